package entity

import (
	"time"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID               uuid.UUID `db:"id"`
	Email            string    `db:"email"`
	Name             string    `db:"name"`
	PasswordHash     string    `db:"password_hash"`
	Role             Role      `db:"role"`
	RemindersEnabled bool      `db:"reminders_enabled"`
	CreatedAt        time.Time `db:"created_at"`
}

// Actor — вызывающий, как его видит внешний провайдер идентичности.
// Передаётся в сервис явно, глобального "текущего пользователя" нет.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
