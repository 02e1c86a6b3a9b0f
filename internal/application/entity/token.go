package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

// Во всех сущностях ниже хранится только SHA-256 от токена, сам токен есть только в ссылке из письма.
// Токен действителен, пока used_at пуст и expires_at в будущем.

type PasswordReset struct {
	ID        int64      `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	Email     string     `db:"email"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

func (p *PasswordReset) Valid(now time.Time) bool {
	return p.UsedAt == nil && p.ExpiresAt.After(now)
}

type Invitation struct {
	ID        int64      `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Role      Role       `json:"role" db:"role"`
	InvitedBy uuid.UUID  `json:"invitedBy" db:"invited_by"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expiresAt" db:"expires_at"`
	UsedAt    *time.Time `json:"usedAt,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

func (i *Invitation) Valid(now time.Time) bool {
	return i.UsedAt == nil && i.ExpiresAt.After(now)
}

// ReminderDispatch — отправленное напоминание о термине с двумя ссылками: RSVP и отписка
type ReminderDispatch struct {
	ID                   int64      `db:"id"`
	EventID              uuid.UUID  `db:"event_id"`
	UserID               uuid.UUID  `db:"user_id"`
	DaysBefore           int        `db:"days_before"`
	RsvpTokenHash        string     `db:"rsvp_token_hash"`
	RsvpExpiresAt        time.Time  `db:"rsvp_expires_at"`
	RsvpUsedAt           *time.Time `db:"rsvp_used_at"`
	UnsubscribeTokenHash string     `db:"unsubscribe_token_hash"`
	UnsubscribeExpiresAt time.Time  `db:"unsubscribe_expires_at"`
	UnsubscribeUsedAt    *time.Time `db:"unsubscribe_used_at"`
	CreatedAt            time.Time  `db:"created_at"`
}

func (d *ReminderDispatch) RsvpValid(now time.Time) bool {
	return d.RsvpUsedAt == nil && d.RsvpExpiresAt.After(now)
}
