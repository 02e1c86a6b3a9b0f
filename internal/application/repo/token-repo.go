package repo

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"

	"github.com/jackc/pgx/v5"
)

// Поиск по хэшу: "не найден" отдаём той же ошибкой, что и "истёк"

func (r *RepoImpl) GetPasswordResetByHash(ctx context.Context, hash string) (*entity.PasswordReset, error) {
	var p entity.PasswordReset
	err := r.db.QueryRow(ctx, getPasswordResetByHashSQL, hash).Scan(
		&p.ID, &p.UserID, &p.Email, &p.TokenHash, &p.ExpiresAt, &p.UsedAt, &p.CreatedAt,
	)
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrTokenInvalidOrExpired
	default:
		return nil, fmt.Errorf("get password reset: %w", err)
	}
}

func (r *RepoImpl) GetInvitationByHash(ctx context.Context, hash string) (*entity.Invitation, error) {
	var i entity.Invitation
	var role string
	err := r.db.QueryRow(ctx, getInvitationByHashSQL, hash).Scan(
		&i.ID, &i.Email, &role, &i.InvitedBy, &i.TokenHash, &i.ExpiresAt, &i.UsedAt, &i.CreatedAt,
	)
	switch {
	case err == nil:
		i.Role = entity.Role(role)
		return &i, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrTokenInvalidOrExpired
	default:
		return nil, fmt.Errorf("get invitation: %w", err)
	}
}

func (r *RepoImpl) GetReminderByRsvpHash(ctx context.Context, hash string) (*entity.ReminderDispatch, error) {
	var d entity.ReminderDispatch
	err := r.db.QueryRow(ctx, getReminderByRsvpHashSQL, hash).Scan(
		&d.ID, &d.EventID, &d.UserID, &d.DaysBefore, &d.RsvpTokenHash, &d.RsvpExpiresAt, &d.RsvpUsedAt,
		&d.UnsubscribeTokenHash, &d.UnsubscribeExpiresAt, &d.UnsubscribeUsedAt, &d.CreatedAt,
	)
	switch {
	case err == nil:
		return &d, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrTokenInvalidOrExpired
	default:
		return nil, fmt.Errorf("get reminder dispatch: %w", err)
	}
}

// DeleteExpiredTokens чистит токены, истёкшие или использованные раньше before.
func (r *RepoImpl) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	r.logger.Infof("start deleting expired tokens older than %s", before.Format(time.RFC3339))

	var total int64
	for _, q := range []string{deleteExpiredPasswordResetsSQL, deleteExpiredInvitationsSQL, deleteExpiredDispatchesSQL} {
		tag, err := r.db.Exec(ctx, q, before)
		if err != nil {
			r.logger.Errorf("error deleting expired tokens: %v", err)
			return total, fmt.Errorf("delete expired tokens: %w", err)
		}
		total += tag.RowsAffected()
	}

	if total == 0 {
		r.logger.Infof("no expired tokens to delete")
		return 0, nil
	}
	r.logger.Infof("deleted %d expired token rows", total)
	return total, nil
}
