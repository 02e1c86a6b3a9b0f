package repo

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var errTokenCollision = errors.New("token hash collision")

// Transactions — операции из нескольких statement'ов, которые должны пройти атомарно.
// Гонки за токены решает условный UPDATE ... WHERE used_at IS NULL внутри транзакции.
type Transactions interface {
	ClaimOutboxBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]entity.OutboxEmail, error)

	CreatePasswordReset(ctx context.Context, reset *entity.PasswordReset, mail *entity.OutboxEmail) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) error

	CreateInvitation(ctx context.Context, inv *entity.Invitation, mail *entity.OutboxEmail) error
	RedeemInvitation(ctx context.Context, tokenHash string, user *entity.User, now time.Time) error

	CreateReminderDispatch(ctx context.Context, d *entity.ReminderDispatch, mail *entity.OutboxEmail) error
	CastRsvpVote(ctx context.Context, tokenHash string, vote entity.Vote, now time.Time) (eventID uuid.UUID, err error)
	Unsubscribe(ctx context.Context, tokenHash string, now time.Time) error
}

type TransactionsImpl struct {
	repo   *RepoImpl
	logger *zap.SugaredLogger
}

func NewTransactions(repo *RepoImpl, logger *zap.SugaredLogger) *TransactionsImpl {
	return &TransactionsImpl{repo: repo, logger: logger}
}

func (t *TransactionsImpl) ClaimOutboxBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]entity.OutboxEmail, error) {
	var emails []entity.OutboxEmail
	err := t.repo.db.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		emails, err = t.repo.ClaimDueBatch(txCtx, now, limit, lease)
		return err
	})
	if err != nil {
		t.logger.Errorw("claim outbox batch failed", "err", err)
		return nil, err
	}
	return emails, nil
}

func (t *TransactionsImpl) CreatePasswordReset(ctx context.Context, reset *entity.PasswordReset, mail *entity.OutboxEmail) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		// старые ссылки гасим, активной остаётся только новая
		tag, err := t.repo.db.Exec(ctx, supersedePasswordResetsSQL, reset.UserID, reset.CreatedAt)
		if err != nil {
			return fmt.Errorf("supersede password resets: %w", err)
		}
		if n := tag.RowsAffected(); n > 0 {
			t.logger.Infof("[user %s] superseded %d active password reset(s)", reset.UserID, n)
		}

		err = t.repo.db.QueryRow(ctx, insertPasswordResetSQL,
			reset.UserID, reset.Email, reset.TokenHash, reset.ExpiresAt, reset.CreatedAt,
		).Scan(&reset.ID)
		if err != nil {
			if isDuplicateKeyError(err) {
				return errTokenCollision
			}
			return fmt.Errorf("insert password reset: %w", err)
		}

		if _, err = t.repo.EnqueueEmail(ctx, mail); err != nil {
			t.logger.Errorf("[user %s] enqueue reset mail failed: %v", reset.UserID, err)
			return err
		}
		return nil
	})
}

func (t *TransactionsImpl) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var userID uuid.UUID
		err := t.repo.db.QueryRow(ctx, consumePasswordResetSQL, tokenHash, now).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return appers.ErrTokenInvalidOrExpired
			}
			return fmt.Errorf("consume password reset: %w", err)
		}

		tag, err := t.repo.db.Exec(ctx, updateUserPasswordSQL, userID, passwordHash, now)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return appers.ErrTokenInvalidOrExpired
		}
		t.logger.Infof("[user %s] password reset applied", userID)
		return nil
	})
}

func (t *TransactionsImpl) CreateInvitation(ctx context.Context, inv *entity.Invitation, mail *entity.OutboxEmail) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := t.repo.GetUserByEmail(ctx, inv.Email); err == nil {
			return appers.ErrUserAlreadyExists
		} else if !errors.Is(err, appers.ErrUserNotFound) {
			return err
		}

		if _, err := t.repo.db.Exec(ctx, supersedeInvitationsSQL, inv.Email, inv.CreatedAt); err != nil {
			return fmt.Errorf("supersede invitations: %w", err)
		}

		err := t.repo.db.QueryRow(ctx, insertInvitationSQL,
			inv.Email, string(inv.Role), inv.InvitedBy, inv.TokenHash, inv.ExpiresAt, inv.CreatedAt,
		).Scan(&inv.ID)
		if err != nil {
			if isDuplicateKeyError(err) {
				return errTokenCollision
			}
			return fmt.Errorf("insert invitation: %w", err)
		}

		if _, err = t.repo.EnqueueEmail(ctx, mail); err != nil {
			t.logger.Errorf("[invitation %d] enqueue mail failed: %v", inv.ID, err)
			return err
		}
		return nil
	})
}

// RedeemInvitation гасит приглашение и создаёт пользователя. Email и роль берутся из приглашения.
func (t *TransactionsImpl) RedeemInvitation(ctx context.Context, tokenHash string, user *entity.User, now time.Time) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var role string
		err := t.repo.db.QueryRow(ctx, consumeInvitationSQL, tokenHash, now).Scan(&user.Email, &role)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return appers.ErrTokenInvalidOrExpired
			}
			return fmt.Errorf("consume invitation: %w", err)
		}
		user.Role = entity.Role(role)
		user.RemindersEnabled = true
		user.CreatedAt = now

		var id uuid.UUID
		err = t.repo.db.QueryRow(ctx, insertUserSQL,
			user.ID, user.Email, user.Name, user.PasswordHash, role, now,
		).Scan(&id)
		switch {
		case err == nil:
			t.logger.Infof("[user %s] created from invitation", id)
			return nil
		case errors.Is(err, pgx.ErrNoRows), isDuplicateKeyError(err):
			// откатываем и used_at приглашения
			return appers.ErrUserAlreadyExists
		default:
			return fmt.Errorf("insert user: %w", err)
		}
	})
}

// CreateReminderDispatch возвращает appers.ErrReminderAlreadySent, если напоминание
// для (event, user, daysBefore) уже было поставлено.
func (t *TransactionsImpl) CreateReminderDispatch(ctx context.Context, d *entity.ReminderDispatch, mail *entity.OutboxEmail) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		err := t.repo.db.QueryRow(ctx, insertReminderDispatchSQL,
			d.EventID, d.UserID, d.DaysBefore,
			d.RsvpTokenHash, d.RsvpExpiresAt,
			d.UnsubscribeTokenHash, d.UnsubscribeExpiresAt, d.CreatedAt,
		).Scan(&d.ID)
		switch {
		case err == nil:
		case errors.Is(err, pgx.ErrNoRows):
			return appers.ErrReminderAlreadySent
		case isDuplicateKeyError(err):
			return errTokenCollision
		default:
			return fmt.Errorf("insert reminder dispatch: %w", err)
		}

		if _, err = t.repo.EnqueueEmail(ctx, mail); err != nil {
			return err
		}
		return nil
	})
}

func (t *TransactionsImpl) CastRsvpVote(ctx context.Context, tokenHash string, vote entity.Vote, now time.Time) (uuid.UUID, error) {
	var eventID uuid.UUID
	err := t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var userID uuid.UUID
		err := t.repo.db.QueryRow(ctx, consumeRsvpSQL, tokenHash, now).Scan(&eventID, &userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return appers.ErrTokenInvalidOrExpired
			}
			return fmt.Errorf("consume rsvp: %w", err)
		}

		if _, err = t.repo.db.Exec(ctx, upsertVoteSQL, eventID, userID, string(vote), now); err != nil {
			return fmt.Errorf("upsert vote: %w", err)
		}
		t.logger.Infof("[event %s] user %s voted %s via email link", eventID, userID, vote)
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return eventID, nil
}

func (t *TransactionsImpl) Unsubscribe(ctx context.Context, tokenHash string, now time.Time) error {
	return t.repo.db.WithinTransaction(ctx, func(ctx context.Context) error {
		var userID uuid.UUID
		err := t.repo.db.QueryRow(ctx, consumeUnsubscribeSQL, tokenHash, now).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return appers.ErrTokenInvalidOrExpired
			}
			return fmt.Errorf("consume unsubscribe: %w", err)
		}

		if _, err = t.repo.db.Exec(ctx, disableRemindersSQL, userID, now); err != nil {
			return fmt.Errorf("disable reminders: %w", err)
		}
		t.logger.Infof("[user %s] reminders disabled via email link", userID)
		return nil
	})
}

// IsTokenCollision — новый токен совпал по хэшу с существующим, нужно сгенерировать другой
func IsTokenCollision(err error) bool {
	return errors.Is(err, errTokenCollision)
}
