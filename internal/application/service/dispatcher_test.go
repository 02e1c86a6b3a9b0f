package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDispatcher(env *testEnv, transport *fakeTransport, cfg config.RelayConfig) *Dispatcher {
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = time.Hour
	}
	if cfg.Lease == 0 {
		cfg.Lease = time.Minute
	}
	return NewDispatcher(env.store, env.store, env.renderer, transport, env.clock, zap.NewNop().Sugar(), cfg, nil)
}

func enqueueInvitation(t *testing.T, env *testEnv, to string) int64 {
	t.Helper()
	id, err := env.svc.EnqueueMail(context.Background(), entity.MailRequest{
		TemplateID: string(mailtemplate.Invitation),
		Recipient:  to,
		Variables:  map[string]string{"inviteLink": "https://verein.example/einladung/x", "expiresAt": "16.02.2026 09:00"},
	})
	require.NoError(t, err)
	return id
}

func TestDispatcherBackoffGrowsUntilFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	transport := &fakeTransport{err: errors.New("421 service not available")}
	d := newTestDispatcher(env, transport, config.RelayConfig{MaxAttempts: 4, BaseBackoff: time.Second, MaxBackoff: time.Minute})

	id := enqueueInvitation(t, env, "a@b.example")

	var delays []time.Duration
	for i := 0; i < 3; i++ {
		n, err := d.Tick(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		got := env.store.email(id)
		require.Equal(t, entity.OutboxRetrying, got.Status)
		require.Equal(t, i+1, got.Attempts)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, "421")
		require.Nil(t, got.LockedUntil)

		delay := got.NextAttemptAt.Sub(env.clock.Now())
		delays = append(delays, delay)

		// до next_attempt_at письмо не забирается
		n, err = d.Tick(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, n)

		env.clock.Advance(delay)
	}

	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1], "delays %v", delays)
	}
	assert.GreaterOrEqual(t, delays[0], 500*time.Millisecond)
	assert.Less(t, delays[0], time.Second)

	// четвёртая попытка последняя
	n, err := d.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := env.store.email(id)
	assert.Equal(t, entity.OutboxFailed, got.Status)
	assert.Equal(t, 4, got.Attempts)

	env.clock.Advance(time.Hour)
	n, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDispatcherRenderErrorIsPermanent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	transport := &fakeTransport{}
	d := newTestDispatcher(env, transport, config.RelayConfig{MaxAttempts: 5})

	// мимо сервиса: переменных для шаблона не хватает
	id, err := env.store.EnqueueEmail(ctx, &entity.OutboxEmail{
		TemplateID: string(mailtemplate.PasswordReset),
		Recipient:  "a@b.example",
		Variables:  map[string]string{"name": "Anna"},
		QueuedAt:   testNow,
	})
	require.NoError(t, err)

	_, err = d.Tick(ctx)
	require.NoError(t, err)

	got := env.store.email(id)
	assert.Equal(t, entity.OutboxFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, transport.messages())
}

func TestDispatcherNeverSendsTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	transport := &fakeTransport{}

	const total = 40
	for i := 0; i < total; i++ {
		enqueueInvitation(t, env, fmt.Sprintf("m%d@b.example", i))
	}

	// две "реплики" над одним хранилищем
	cfg := config.RelayConfig{Workers: 4, BatchSize: 7, MaxAttempts: 5}
	replicas := []*Dispatcher{newTestDispatcher(env, transport, cfg), newTestDispatcher(env, transport, cfg)}

	var wg sync.WaitGroup
	for _, d := range replicas {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			for {
				n, err := d.Tick(ctx)
				if err != nil {
					t.Errorf("tick: %v", err)
					return
				}
				if n == 0 {
					return
				}
			}
		}(d)
	}
	wg.Wait()

	msgs := transport.messages()
	require.Len(t, msgs, total)
	seen := make(map[int64]bool, total)
	for _, m := range msgs {
		assert.False(t, seen[m.ID], "email %d sent twice", m.ID)
		seen[m.ID] = true
	}
	for _, e := range env.store.emails() {
		assert.Equal(t, entity.OutboxSent, e.Status)
	}
}

func TestDispatcherSendTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	transport := &fakeTransport{block: true}
	d := newTestDispatcher(env, transport, config.RelayConfig{MaxAttempts: 5, SendTimeout: 20 * time.Millisecond})

	id := enqueueInvitation(t, env, "a@b.example")

	_, err := d.Tick(ctx)
	require.NoError(t, err)

	got := env.store.email(id)
	assert.Equal(t, entity.OutboxRetrying, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, context.DeadlineExceeded.Error())
}

func TestDispatcherCancelledTickKeepsAttempts(t *testing.T) {
	env := newTestEnv(t)
	transport := &fakeTransport{block: true}
	d := newTestDispatcher(env, transport, config.RelayConfig{MaxAttempts: 1, Workers: 2})

	ids := []int64{enqueueInvitation(t, env, "a@b.example"), enqueueInvitation(t, env, "c@d.example")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range ids {
		got := env.store.email(id)
		assert.Equal(t, entity.OutboxPending, got.Status)
		assert.Zero(t, got.Attempts)
		assert.Nil(t, got.LockedUntil)
		assert.Nil(t, got.LastError)
	}
	assert.Empty(t, transport.messages())
}

func TestDispatcherShutdownDuringSendKeepsAttempts(t *testing.T) {
	env := newTestEnv(t)
	transport := &fakeTransport{block: true}
	d := newTestDispatcher(env, transport, config.RelayConfig{MaxAttempts: 1, Workers: 2, SendTimeout: time.Minute})

	ids := []int64{enqueueInvitation(t, env, "a@b.example"), enqueueInvitation(t, env, "c@d.example")}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := d.Tick(ctx)
	require.NoError(t, err)

	for _, id := range ids {
		got := env.store.email(id)
		assert.Equal(t, entity.OutboxPending, got.Status)
		assert.Zero(t, got.Attempts)
		assert.Nil(t, got.LockedUntil)
	}

	// после рестарта письма снова забираются и уходят
	transport.block = false
	n, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, transport.messages(), 2)
}

func TestDispatcherLeaseRaisedAboveSendTimeout(t *testing.T) {
	env := newTestEnv(t)
	d := newTestDispatcher(env, &fakeTransport{}, config.RelayConfig{Lease: 10 * time.Second, SendTimeout: 30 * time.Second})

	assert.Equal(t, time.Minute, d.cfg.Lease)
}

func TestDispatcherStartStop(t *testing.T) {
	env := newTestEnv(t)
	transport := &fakeTransport{}
	d := newTestDispatcher(env, transport, config.RelayConfig{PollPeriod: 5 * time.Second, MaxAttempts: 5})

	enqueueInvitation(t, env, "a@b.example")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d.Start(ctx)
	d.Start(ctx)
	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))

	env.clock.Advance(5 * time.Second)
	assert.Eventually(t, func() bool { return len(transport.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)

	d.Stop()
	d.Stop()

	enqueueInvitation(t, env, "b@b.example")
	env.clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, transport.messages(), 1)
}
