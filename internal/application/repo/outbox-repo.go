package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"

	"github.com/jackc/pgx/v5"
)

func (r *RepoImpl) EnqueueEmail(ctx context.Context, e *entity.OutboxEmail) (int64, error) {
	r.logger.Debugf("[template: %s] EnqueueEmail started", e.TemplateID)

	payload, err := marshalVariables(e.Variables)
	if err != nil {
		return 0, fmt.Errorf("marshal variables: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, insertOutboxQuery, e.TemplateID, e.Recipient, string(payload), e.QueuedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert outbox_emails: %w", err)
	}
	e.ID = id
	e.Status = entity.OutboxPending
	e.NextAttemptAt = e.QueuedAt

	return id, nil
}

// ClaimDueBatch должен вызываться внутри транзакции (см. TransactionsImpl.ClaimOutboxBatch)
func (r *RepoImpl) ClaimDueBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]entity.OutboxEmail, error) {
	r.logger.Debugf("[lease: %s, limit: %d] ClaimDueBatch started", lease, limit)

	rows, err := r.db.Query(ctx, claimDueBatchSQL, now, limit, common.PgInterval(lease))
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	res, err := scanEmails(rows)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	return res, nil
}

func (r *RepoImpl) MarkSent(ctx context.Context, id int64, now time.Time) error {
	tag, err := r.db.Exec(ctx, markSentSQL, id, now)
	if err != nil {
		return fmt.Errorf("outbox mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// письмо уже в конечном статусе, например админ или другой воркер успел раньше
		r.logger.Warnf("[ID %d] mark sent: row not in claimable status", id)
	}
	return nil
}

// MarkFailed увеличивает attempts. nextAttemptAt == nil — письмо уходит в FAILED окончательно.
func (r *RepoImpl) MarkFailed(ctx context.Context, id int64, errMsg string, nextAttemptAt *time.Time) error {
	_, err := r.db.Exec(ctx, markFailedSQL, id, truncate(errMsg, 1000), nextAttemptAt)
	if err != nil {
		return fmt.Errorf("outbox mark failed: %w", err)
	}
	return nil
}

// ReleaseEmail возвращает письмо в очередь сразу, attempts не меняется
func (r *RepoImpl) ReleaseEmail(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, releaseEmailSQL, id); err != nil {
		return fmt.Errorf("outbox release: %w", err)
	}
	return nil
}

func (r *RepoImpl) RetryEmail(ctx context.Context, id int64, now time.Time) error {
	tag, err := r.db.Exec(ctx, retryEmailSQL, id, now)
	if err != nil {
		return fmt.Errorf("outbox retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return appers.ErrOutboxNotFound
	}
	return nil
}

func (r *RepoImpl) ListEmails(ctx context.Context, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := r.db.Query(ctx, listEmailsSQL, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	res, err := scanEmails(rows)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return res, nil
}

func scanEmails(rows pgx.Rows) ([]entity.OutboxEmail, error) {
	res := make([]entity.OutboxEmail, 0)
	for rows.Next() {
		var e entity.OutboxEmail
		var status string
		var vars []byte
		if err := rows.Scan(
			&e.ID, &e.TemplateID, &e.Recipient, &vars, &status, &e.QueuedAt,
			&e.NextAttemptAt, &e.Attempts, &e.LockedUntil, &e.LastError, &e.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		if len(vars) > 0 {
			if err := json.Unmarshal(vars, &e.Variables); err != nil {
				return nil, fmt.Errorf("[ID %d] unmarshal variables: %w", e.ID, err)
			}
		}
		e.Status = entity.OutboxStatus(status)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return res, nil
}

func marshalVariables(vars map[string]string) ([]byte, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return json.Marshal(vars)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
