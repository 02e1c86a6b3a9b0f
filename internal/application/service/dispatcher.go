package service

import (
	"context"
	"sync"
	"time"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/internal/application/repo"
	"vereinsportal/internal/transport/mailer"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const markTimeout = 10 * time.Second

// Dispatcher забирает из outbox письма, у которых подошло время, и отправляет их.
// Несколько экземпляров (реплик) могут работать одновременно: от двойной отправки
// защищает только атомарный claim с locked_until в БД.
type Dispatcher struct {
	repo         repo.Repo
	transactions repo.Transactions
	renderer     *mailtemplate.Renderer
	transport    mailer.Transport
	clock        clockwork.Clock
	logger       *zap.SugaredLogger
	cfg          config.RelayConfig
	m            *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(r repo.Repo, t repo.Transactions, renderer *mailtemplate.Renderer, transport mailer.Transport,
	clock clockwork.Clock, logger *zap.SugaredLogger, cfg config.RelayConfig, m *metrics.Metrics) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	if cfg.Lease <= cfg.SendTimeout {
		// иначе письмо, которое ещё отправляется, может забрать другой воркер
		logger.Warnf("relay lease %s <= send timeout %s, raising lease", cfg.Lease, cfg.SendTimeout)
		cfg.Lease = 2 * cfg.SendTimeout
	}
	return &Dispatcher{
		repo:         r,
		transactions: t,
		renderer:     renderer,
		transport:    transport,
		clock:        clock,
		logger:       logger,
		cfg:          cfg,
		m:            m,
	}
}

// Start запускает цикл опроса. Повторный Start без Stop ничего не делает.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	d.logger.Infow("dispatcher started", "workers", d.cfg.Workers, "batch", d.cfg.BatchSize,
		"lease", d.cfg.Lease.String(), "poll", d.cfg.PollPeriod.String(), "transport", d.transport.Name())
	go d.run(ctx, d.done)
}

// Stop останавливает цикл и ждёт завершения текущего тика
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Infow("dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := d.clock.NewTicker(d.cfg.PollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
				d.logger.Errorw("dispatcher tick failed", "err", err)
			}
		}
	}
}

// Tick — один проход: claim пачки и обработка с ограниченной параллельностью.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	emails, err := d.transactions.ClaimOutboxBatch(ctx, d.clock.Now().UTC(), d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(emails) == 0 {
		return 0, nil
	}
	if d.m != nil {
		d.m.Outbox.ClaimedTotal.Add(float64(len(emails)))
	}
	d.logger.Debugf("claimed %d outbox email(s)", len(emails))

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for _, e := range emails {
		e := e
		g.Go(func() error {
			d.ProcessOne(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	return len(emails), nil
}

// ProcessOne: render -> send -> mark. Ошибка рендера постоянная, ошибка транспорта временная.
func (d *Dispatcher) ProcessOne(ctx context.Context, e entity.OutboxEmail) {
	if ctx.Err() != nil {
		// остановка до отправки: попытка не тратится
		d.release(ctx, e)
		return
	}
	d.logger.Debugf("[ID %d] dispatch started, attempt %d", e.ID, e.Attempts+1)

	rendered, err := d.renderer.Render(mailtemplate.TemplateID(e.TemplateID), e.Variables)
	if err != nil {
		d.logger.Errorf("[ID %d] render failed, giving up: %v", e.ID, err)
		d.markFailed(ctx, e, err, nil, "render")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err = d.transport.Send(sendCtx, mailer.Message{
		ID:      e.ID,
		To:      e.Recipient,
		Subject: rendered.Subject,
		Body:    rendered.Body,
	})
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// отправку прервала остановка диспетчера, а не SendTimeout
			d.logger.Warnf("[ID %d] send interrupted by shutdown: %v", e.ID, err)
			d.release(ctx, e)
			return
		}
		if e.Attempts+1 >= d.cfg.MaxAttempts {
			d.logger.Errorf("[ID %d] send failed, attempts exhausted (%d): %v", e.ID, e.Attempts+1, err)
			d.markFailed(ctx, e, err, nil, "exhausted")
			return
		}
		next := d.clock.Now().UTC().Add(common.NextBackoffWithJitter(e.Attempts, d.cfg.BaseBackoff, d.cfg.MaxBackoff))
		d.logger.Warnf("[ID %d] send failed, retry at %s: %v", e.ID, next.Format(time.RFC3339), err)
		d.markFailed(ctx, e, err, &next, "")
		return
	}

	// письмо уже ушло: отмена ctx не должна помешать записать SENT
	markCtx, markCancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer markCancel()
	if err := d.repo.MarkSent(markCtx, e.ID, d.clock.Now().UTC()); err != nil {
		// после истечения lease письмо уйдёт ещё раз; at-least-once
		d.logger.Errorf("[ID %d] mark sent failed: %v", e.ID, err)
		return
	}
	if d.m != nil {
		d.m.Outbox.SentTotal.WithLabelValues(e.TemplateID).Inc()
	}
	d.logger.Infof("[ID %d] sent via %s", e.ID, d.transport.Name())
}

// release снимает lease; если не вышло, письмо вернётся в очередь по истечении lease
func (d *Dispatcher) release(ctx context.Context, e entity.OutboxEmail) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if err := d.repo.ReleaseEmail(markCtx, e.ID); err != nil {
		d.logger.Errorf("[ID %d] release failed: %v", e.ID, err)
	}
}

// markFailed: next == nil — FAILED окончательно, иначе RETRYING с next_attempt_at = next
func (d *Dispatcher) markFailed(ctx context.Context, e entity.OutboxEmail, cause error, next *time.Time, reason string) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	if err := d.repo.MarkFailed(markCtx, e.ID, cause.Error(), next); err != nil {
		d.logger.Errorf("[ID %d] mark failed: %v", e.ID, err)
		return
	}
	if d.m == nil {
		return
	}
	if next == nil {
		d.m.Outbox.FailedTotal.WithLabelValues(e.TemplateID, reason).Inc()
	} else {
		d.m.Outbox.RetriedTotal.WithLabelValues(e.TemplateID).Inc()
	}
}
