package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenStore struct{}

var errDown = errors.New("connection refused")

func (brokenStore) Incr(context.Context, string, time.Duration) (int64, error) { return 0, errDown }
func (brokenStore) Block(context.Context, string, time.Duration) error         { return errDown }
func (brokenStore) BlockedFor(context.Context, string) (time.Duration, error)  { return 0, errDown }
func (brokenStore) Reset(context.Context, ...string) error                     { return errDown }
func (brokenStore) Ping(context.Context) error                                 { return errDown }

// hangingStore ждёт отмены контекста — проверка таймаута хранилища
type hangingStore struct{ brokenStore }

func (hangingStore) BlockedFor(ctx context.Context, _ string) (time.Duration, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func newTestLimiter(t *testing.T, max int) (*Limiter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	l := NewLimiter(NewMemoryStore(clock), Config{
		MaxAttempts: max,
		Window:      10 * time.Minute,
		Lockout:     15 * time.Minute,
	}, clock, zap.NewNop().Sugar(), nil)
	return l, clock
}

func TestLimiterBlocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, 3)

	for i := 1; i <= 3; i++ {
		d, err := l.Check(ctx, "ip:10.0.0.1", "reset-password")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.EqualValues(t, i, d.Attempts)
	}

	d, err := l.Check(ctx, "ip:10.0.0.1", "reset-password")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, clock.Now().Add(15*time.Minute), d.BlockedUntil)
	assert.Equal(t, 15*time.Minute, d.RetryAfter(clock.Now()))

	// пока действует блокировка, попытки не засчитываются и не проходят
	clock.Advance(14 * time.Minute)
	d, err = l.Check(ctx, "ip:10.0.0.1", "reset-password")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// другие клиенты и ресурсы не затронуты
	d, err = l.Check(ctx, "ip:10.0.0.2", "reset-password")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Check(ctx, "ip:10.0.0.1", "rsvp")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiterUnblocksAfterLockout(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, 1)

	d, _ := l.Check(ctx, "c", "r")
	require.True(t, d.Allowed)
	d, _ = l.Check(ctx, "c", "r")
	require.False(t, d.Allowed)

	clock.Advance(16 * time.Minute)
	d, err := l.Check(ctx, "c", "r")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.EqualValues(t, 1, d.Attempts)
}

func TestLimiterWindowExpires(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, 2)

	_, _ = l.Check(ctx, "c", "r")
	_, _ = l.Check(ctx, "c", "r")
	clock.Advance(11 * time.Minute)

	d, err := l.Check(ctx, "c", "r")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.EqualValues(t, 1, d.Attempts)
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, 2)

	_, _ = l.Check(ctx, "c", "r")
	_, _ = l.Check(ctx, "c", "r")
	d, _ := l.Check(ctx, "c", "r")
	require.False(t, d.Allowed)

	require.NoError(t, l.RecordSuccess(ctx, "c", "r"))

	d, err := l.Check(ctx, "c", "r")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.EqualValues(t, 1, d.Attempts)
}

func TestAllowPolicies(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(brokenStore{}, Config{}, clockwork.NewFakeClock(), zap.NewNop().Sugar(), nil)

	d, err := l.Allow(ctx, "c", "geocode", FailOpen)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	_, err = l.Allow(ctx, "c", "reset-password", FailClosed)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCheckDoesNotHangOnSlowStore(t *testing.T) {
	l := NewLimiter(hangingStore{}, Config{StoreTimeout: 20 * time.Millisecond}, nil, zap.NewNop().Sugar(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := l.Allow(context.Background(), "c", "rsvp", FailClosed)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("limiter blocked on store")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(clock)
	ctx := context.Background()

	_, _ = s.Incr(ctx, "a", time.Minute)
	_ = s.Block(ctx, "b", time.Hour)
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	left, err := s.BlockedFor(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 58*time.Minute, left)
}

func TestHealthCheck(t *testing.T) {
	ok, _ := newTestLimiter(t, 1)
	assert.NoError(t, ok.HealthCheck(context.Background()))

	down := NewLimiter(brokenStore{}, Config{}, nil, zap.NewNop().Sugar(), nil)
	assert.ErrorIs(t, down.HealthCheck(context.Background()), errDown)
}
