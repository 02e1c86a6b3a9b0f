package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
	"vereinsportal/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Policy определяет, что делать, если хранилище счётчиков недоступно.
// Выбирается на месте вызова, а не глобально.
type Policy int

const (
	FailClosed Policy = iota
	FailOpen
)

func (p Policy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Store хранит счётчики попыток и блокировки.
type Store interface {
	// Incr увеличивает счётчик; TTL окна ставится только при создании ключа.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Block(ctx context.Context, key string, d time.Duration) error
	// BlockedFor возвращает оставшееся время блокировки, 0 если блокировки нет.
	BlockedFor(ctx context.Context, key string) (time.Duration, error)
	Reset(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

type Config struct {
	MaxAttempts  int
	Window       time.Duration
	Lockout      time.Duration
	StoreTimeout time.Duration
}

type Decision struct {
	Allowed      bool
	Attempts     int64
	BlockedUntil time.Time
}

// RetryAfter округляет оставшуюся блокировку вверх до секунды.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.BlockedUntil.IsZero() || !d.BlockedUntil.After(now) {
		return 0
	}
	left := d.BlockedUntil.Sub(now)
	if rem := left % time.Second; rem != 0 {
		left += time.Second - rem
	}
	return left
}

type Limiter struct {
	store  Store
	cfg    Config
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	m      *metrics.Metrics
}

func NewLimiter(store Store, cfg Config, clock clockwork.Clock, logger *zap.SugaredLogger, m *metrics.Metrics) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = cfg.Window
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 500 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{store: store, cfg: cfg, clock: clock, logger: logger, m: m}
}

func counterKey(client, resource string) string {
	return "rl:" + resource + ":" + client
}

func blockKey(client, resource string) string {
	return "rl:block:" + resource + ":" + client
}

// Check засчитывает попытку для пары (client, resource).
func (l *Limiter) Check(ctx context.Context, client, resource string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	blocked, err := l.store.BlockedFor(ctx, blockKey(client, resource))
	if err != nil {
		return Decision{}, fmt.Errorf("read block: %w", err)
	}
	if blocked > 0 {
		return Decision{Allowed: false, BlockedUntil: l.clock.Now().Add(blocked)}, nil
	}

	n, err := l.store.Incr(ctx, counterKey(client, resource), l.cfg.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("incr counter: %w", err)
	}

	if n > int64(l.cfg.MaxAttempts) {
		if err := l.store.Block(ctx, blockKey(client, resource), l.cfg.Lockout); err != nil {
			return Decision{}, fmt.Errorf("set block: %w", err)
		}
		if l.m != nil {
			l.m.RateLimit.BlockedTotal.WithLabelValues(resource).Inc()
		}
		l.logger.Warnf("[client %s] rate limit exceeded for %s after %d attempts", client, resource, n)
		return Decision{Allowed: false, Attempts: n, BlockedUntil: l.clock.Now().Add(l.cfg.Lockout)}, nil
	}

	return Decision{Allowed: true, Attempts: n}, nil
}

// Allow — Check с политикой на случай недоступного хранилища.
// FailOpen пропускает запрос, FailClosed возвращает ErrStoreUnavailable.
func (l *Limiter) Allow(ctx context.Context, client, resource string, policy Policy) (Decision, error) {
	d, err := l.Check(ctx, client, resource)
	if err == nil {
		return d, nil
	}

	if l.m != nil {
		l.m.RateLimit.StoreErrorsTotal.WithLabelValues(resource, policy.String()).Inc()
	}
	if policy == FailOpen {
		l.logger.Warnf("[client %s] rate limit store error on %s, failing open: %v", client, resource, err)
		return Decision{Allowed: true}, nil
	}
	l.logger.Errorf("[client %s] rate limit store error on %s, failing closed: %v", client, resource, err)
	return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// RecordSuccess сбрасывает счётчик и блокировку после успешного использования ресурса.
func (l *Limiter) RecordSuccess(ctx context.Context, client, resource string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	if err := l.store.Reset(ctx, counterKey(client, resource), blockKey(client, resource)); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}

// HealthCheck проверяет доступность хранилища счётчиков
func (l *Limiter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	return l.store.Ping(ctx)
}
