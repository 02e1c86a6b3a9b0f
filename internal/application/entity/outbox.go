package entity

import (
	"time"
)

type OutboxStatus string

const (
	OutboxPending  OutboxStatus = "PENDING"
	OutboxRetrying OutboxStatus = "RETRYING"
	OutboxSent     OutboxStatus = "SENT"
	OutboxFailed   OutboxStatus = "FAILED"
)

func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxPending, OutboxRetrying, OutboxSent, OutboxFailed:
		return true
	default:
		return false
	}
}

// Claimable — статус, из которого диспетчер может забрать письмо
func (s OutboxStatus) Claimable() bool {
	return s == OutboxPending || s == OutboxRetrying
}

type OutboxEmail struct {
	ID            int64             `json:"id" db:"id"`
	TemplateID    string            `json:"templateId" db:"template_id"`
	Recipient     string            `json:"recipient" db:"recipient"`
	Variables     map[string]string `json:"-" db:"variables"` // JSONB, в ответах админки не показываем (там ссылки с токенами)
	Status        OutboxStatus      `json:"status" db:"status"`
	QueuedAt      time.Time         `json:"queuedAt" db:"queued_at"`
	NextAttemptAt time.Time         `json:"nextAttemptAt" db:"next_attempt_at"`
	Attempts      int               `json:"attempts" db:"attempts"`
	LockedUntil   *time.Time        `json:"lockedUntil,omitempty" db:"locked_until"`
	LastError     *string           `json:"lastError,omitempty" db:"last_error"`
	SentAt        *time.Time        `json:"sentAt,omitempty" db:"sent_at"`
}

// MailRequest — заявка на письмо из Kafka от других сервисов объединения
type MailRequest struct {
	TemplateID string            `json:"templateId" validate:"required,max=64"`
	Recipient  string            `json:"recipient" validate:"required,email,max=254"`
	Variables  map[string]string `json:"variables" validate:"max=32"`
}
