//go:build integration

package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/db"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Запуск: VEREINSPORTAL_TEST_DSN=postgres://... go test -tags integration ./internal/application/repo/
// База должна быть отдельной: тест очищает таблицы.
const testDSNEnv = "VEREINSPORTAL_TEST_DSN"

func newPgRepo(t *testing.T) (*RepoImpl, *TransactionsImpl, *db.Postgres) {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := db.NewPostgres(ctx, config.Postgres{
		ConnString:     dsn,
		MaxConnections: 10,
		MigrationsDir:  "../../../resources/migrations",
	})
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	_, err = pg.Exec(ctx, `TRUNCATE outbox_emails, password_resets, users CASCADE`)
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	r := NewRepo(pg, logger)
	return r, NewTransactions(r, logger), pg
}

func TestPgConcurrentClaimsAreDisjoint(t *testing.T) {
	r, tx, _ := newPgRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	const total = 20
	for i := 0; i < total; i++ {
		_, err := r.EnqueueEmail(ctx, &entity.OutboxEmail{
			TemplateID: "invitation",
			Recipient:  fmt.Sprintf("m%d@verein.example", i),
			Variables:  map[string]string{"inviteLink": "x"},
			QueuedAt:   now.Add(-time.Second),
		})
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
		start   = make(chan struct{})
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				batch, err := tx.ClaimOutboxBatch(ctx, now, 3, time.Minute)
				if !assert.NoError(t, err) || len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, e := range batch {
					claimed[e.ID]++
					assert.NotNil(t, e.LockedUntil)
				}
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "email %d claimed more than once", id)
	}

	// lease ещё действует: повторный claim ничего не получает
	again, err := tx.ClaimOutboxBatch(ctx, now.Add(30*time.Second), total, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestPgMarkOnlyFromClaimableStatus(t *testing.T) {
	r, tx, _ := newPgRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, err := r.EnqueueEmail(ctx, &entity.OutboxEmail{
		TemplateID: "invitation", Recipient: "a@verein.example", QueuedAt: now,
	})
	require.NoError(t, err)

	batch, err := tx.ClaimOutboxBatch(ctx, now, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, r.ReleaseEmail(ctx, id))
	pending, err := r.ListEmails(ctx, entity.OutboxPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].LockedUntil)
	assert.Zero(t, pending[0].Attempts)

	require.NoError(t, r.MarkSent(ctx, id, now))
	// поздний MarkFailed от второго воркера не трогает SENT
	next := now.Add(time.Minute)
	require.NoError(t, r.MarkFailed(ctx, id, "late failure", &next))

	sent, err := r.ListEmails(ctx, entity.OutboxSent, 10)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Zero(t, sent[0].Attempts)
	assert.Nil(t, sent[0].LastError)
	require.NotNil(t, sent[0].SentAt)

	assert.ErrorIs(t, r.RetryEmail(ctx, id, now), appers.ErrOutboxNotFound)
}

func TestPgConcurrentPasswordResetRedeemedOnce(t *testing.T) {
	r, tx, pg := newPgRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	userID := uuid.Must(uuid.NewV4())
	_, err := pg.Exec(ctx, `INSERT INTO users (id, email, name, password_hash) VALUES ($1, $2, $3, $4)`,
		userID, "anna@verein.example", "Anna", "old-hash")
	require.NoError(t, err)

	reset := &entity.PasswordReset{
		UserID:    userID,
		Email:     "anna@verein.example",
		TokenHash: "hash-1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	mail := &entity.OutboxEmail{TemplateID: "password_reset", Recipient: reset.Email, QueuedAt: now}
	require.NoError(t, tx.CreatePasswordReset(ctx, reset, mail))

	const workers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = tx.ConsumePasswordReset(ctx, "hash-1", fmt.Sprintf("new-hash-%d", i), now)
		}()
	}
	close(start)
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, appers.ErrTokenInvalidOrExpired), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)

	got, err := r.GetPasswordResetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.NotNil(t, got.UsedAt)
}
