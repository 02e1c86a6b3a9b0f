package repo

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/pkg/db"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const defaultListLimit = 100

type Repo interface {
	EnqueueEmail(ctx context.Context, e *entity.OutboxEmail) (int64, error)
	ClaimDueBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]entity.OutboxEmail, error)
	MarkSent(ctx context.Context, id int64, now time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt *time.Time) error
	ReleaseEmail(ctx context.Context, id int64) error
	RetryEmail(ctx context.Context, id int64, now time.Time) error
	ListEmails(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error)

	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	GetPasswordResetByHash(ctx context.Context, hash string) (*entity.PasswordReset, error)
	GetInvitationByHash(ctx context.Context, hash string) (*entity.Invitation, error)
	GetReminderByRsvpHash(ctx context.Context, hash string) (*entity.ReminderDispatch, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*entity.Event, error)
	GetVote(ctx context.Context, eventID, userID uuid.UUID) (*entity.Vote, error)
	ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]entity.Event, error)
	ListReminderRecipients(ctx context.Context, eventID uuid.UUID, daysBefore int) ([]entity.User, error)

	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
}

type RepoImpl struct {
	db     db.DB
	logger *zap.SugaredLogger
}

func NewRepo(db db.DB, logger *zap.SugaredLogger) *RepoImpl {
	return &RepoImpl{db: db, logger: logger}
}

func (r *RepoImpl) HealthCheck(ctx context.Context) error {
	// Проверяем доступность БД через простой запрос
	var result int
	err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	var role string
	err := r.db.QueryRow(ctx, getUserByEmailSQL, email).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.RemindersEnabled, &u.CreatedAt,
	)
	switch {
	case err == nil:
		u.Role = entity.Role(role)
		return &u, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrUserNotFound
	default:
		return nil, fmt.Errorf("get user by email: %w", err)
	}
}

func (r *RepoImpl) GetEvent(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	var e entity.Event
	err := r.db.QueryRow(ctx, getEventSQL, id).Scan(&e.ID, &e.Title, &e.Location, &e.StartsAt, &e.Visible)
	switch {
	case err == nil:
		return &e, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrEventNotFound
	default:
		return nil, fmt.Errorf("get event: %w", err)
	}
}

func (r *RepoImpl) GetVote(ctx context.Context, eventID, userID uuid.UUID) (*entity.Vote, error) {
	var v string
	err := r.db.QueryRow(ctx, getVoteSQL, eventID, userID).Scan(&v)
	switch {
	case err == nil:
		vote := entity.Vote(v)
		return &vote, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	default:
		return nil, fmt.Errorf("get vote: %w", err)
	}
}

func (r *RepoImpl) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]entity.Event, error) {
	r.logger.Debugf("[from: %s, to: %s] ListEventsStartingBetween started", from, to)

	rows, err := r.db.Query(ctx, listEventsStartingBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]entity.Event, 0)
	for rows.Next() {
		var e entity.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Location, &e.StartsAt, &e.Visible); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events rows err: %w", err)
	}
	return events, nil
}

func (r *RepoImpl) ListReminderRecipients(ctx context.Context, eventID uuid.UUID, daysBefore int) ([]entity.User, error) {
	rows, err := r.db.Query(ctx, listReminderRecipientsSQL, eventID, daysBefore)
	if err != nil {
		return nil, fmt.Errorf("list reminder recipients: %w", err)
	}
	defer rows.Close()

	users := make([]entity.User, 0)
	for rows.Next() {
		var u entity.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.RemindersEnabled, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		u.Role = entity.Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recipients rows err: %w", err)
	}
	return users, nil
}

// isDuplicateKeyError проверяет, является ли ошибка ошибкой дубликата ключа (SQLSTATE 23505)
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
