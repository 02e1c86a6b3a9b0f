package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/mailtemplate"
	"vereinsportal/internal/application/repo"
	"vereinsportal/internal/transport/geocode"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/metrics"
	"vereinsportal/pkg/ratelimit"

	"github.com/gofrs/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Ресурсы лимитера. Ключ — endpoint, а не хэш токена: перебор разных токенов
// с одного адреса упирается в один и тот же счётчик.
const (
	ResourceForgotPassword = "forgot-password"
	ResourceResetPassword  = "reset-password"
	ResourceInvitation     = "invitation"
	ResourceRsvp           = "rsvp"
	ResourceUnsubscribe    = "unsubscribe"
	ResourceContact        = "contact"
	ResourceGeocode        = "geocode"
)

const tokenAttempts = 3

type Service interface {
	RequestPasswordReset(ctx context.Context, client, email string) error
	CheckPasswordReset(ctx context.Context, client, rawToken string) error
	ResetPassword(ctx context.Context, client, rawToken, password string) error

	IssueInvitation(ctx context.Context, actor entity.Actor, email string, role entity.Role) (*entity.Invitation, error)
	CheckInvitation(ctx context.Context, client, rawToken string) (*entity.Invitation, error)
	RedeemInvitation(ctx context.Context, client, rawToken, name, password string) (*entity.User, error)

	GetRsvp(ctx context.Context, client, rawToken string) (*entity.RsvpView, error)
	CastRsvp(ctx context.Context, client, rawToken string, vote entity.Vote) (*entity.RsvpView, error)
	Unsubscribe(ctx context.Context, client, rawToken string) error

	SendEventReminders(ctx context.Context) (int, error)
	CleanupExpiredTokens(ctx context.Context) (int64, error)

	EnqueueMail(ctx context.Context, req entity.MailRequest) (int64, error)
	ListOutbox(ctx context.Context, actor entity.Actor, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error)
	RetryOutbox(ctx context.Context, actor entity.Actor, id int64) error

	SubmitContact(ctx context.Context, client string, req entity.ContactRequest) error
	Geocode(ctx context.Context, client, query string) ([]entity.GeoResult, error)

	HealthCheck(ctx context.Context) entity.Health
}

// RateLimiter — то, что сервису нужно от ratelimit.Limiter
type RateLimiter interface {
	Allow(ctx context.Context, client, resource string, policy ratelimit.Policy) (ratelimit.Decision, error)
	RecordSuccess(ctx context.Context, client, resource string) error
	HealthCheck(ctx context.Context) error
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type ServiceImpl struct {
	repo         repo.Repo
	transactions repo.Transactions
	limiter      RateLimiter
	renderer     *mailtemplate.Renderer
	geocoder     geocode.Geocoder
	kafka        HealthChecker
	clock        clockwork.Clock
	logger       *zap.SugaredLogger
	cfg          *config.Config
	m            *metrics.Metrics
}

type Deps struct {
	Repo         repo.Repo
	Transactions repo.Transactions
	Limiter      RateLimiter
	Renderer     *mailtemplate.Renderer
	Geocoder     geocode.Geocoder
	// nil, если Kafka выключена
	Kafka   HealthChecker
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	Config  *config.Config
	Metrics *metrics.Metrics
}

func NewService(d Deps) *ServiceImpl {
	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ServiceImpl{
		repo:         d.Repo,
		transactions: d.Transactions,
		limiter:      d.Limiter,
		renderer:     d.Renderer,
		geocoder:     d.Geocoder,
		kafka:        d.Kafka,
		clock:        clock,
		logger:       d.Logger,
		cfg:          d.Config,
		m:            d.Metrics,
	}
}

// HealthCheck проверяет БД, хранилище лимитера и Kafka
func (s *ServiceImpl) HealthCheck(ctx context.Context) entity.Health {
	h := entity.Health{
		DB:            s.repo.HealthCheck(ctx),
		RateStore:     s.limiter.HealthCheck(ctx),
		KafkaDisabled: s.kafka == nil,
	}
	if s.kafka != nil {
		h.Kafka = s.kafka.HealthCheck(ctx)
	}
	return h
}

// guard — шаг "проверить лимит" публичного endpoint'а. Ошибка уже в терминах appers.
func (s *ServiceImpl) guard(ctx context.Context, client, resource string, policy ratelimit.Policy) error {
	d, err := s.limiter.Allow(ctx, client, resource, policy)
	if err != nil {
		if errors.Is(err, ratelimit.ErrStoreUnavailable) {
			return appers.ErrServiceUnavailable
		}
		return err
	}
	if !d.Allowed {
		return appers.RateLimitedError{RetryAfter: d.RetryAfter(s.clock.Now())}
	}
	return nil
}

func (s *ServiceImpl) recordSuccess(ctx context.Context, client, resource string) {
	if err := s.limiter.RecordSuccess(ctx, client, resource); err != nil {
		// не критично: счётчик сам истечёт по окну
		s.logger.Warnf("[client %s] reset rate limit for %s failed: %v", client, resource, err)
	}
}

// link собирает публичную ссылку вида <base>/<path>/<token>
func (s *ServiceImpl) link(path, rawToken string) string {
	base := strings.TrimRight(s.cfg.Links.BaseURL, "/")
	return base + "/" + strings.Trim(path, "/") + "/" + url.PathEscape(rawToken)
}

func (s *ServiceImpl) location() *time.Location {
	if s.cfg.Reminders.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.cfg.Reminders.TimeZone)
	if err != nil {
		s.logger.Warnf("unknown time zone %q, using UTC: %v", s.cfg.Reminders.TimeZone, err)
		return time.UTC
	}
	return loc
}

// newMail проверяет шаблон и переменные до записи в outbox, чтобы сломанное письмо не ушло в очередь
func (s *ServiceImpl) newMail(id mailtemplate.TemplateID, recipient string, vars map[string]string) (*entity.OutboxEmail, error) {
	if err := s.renderer.Validate(id, vars); err != nil {
		return nil, err
	}
	return &entity.OutboxEmail{
		TemplateID: string(id),
		Recipient:  recipient,
		Variables:  vars,
		Status:     entity.OutboxPending,
		QueuedAt:   s.clock.Now().UTC(),
	}, nil
}

func (s *ServiceImpl) countEnqueued(templateID string) {
	if s.m != nil {
		s.m.Outbox.EnqueuedTotal.WithLabelValues(templateID).Inc()
	}
}

func newUserID() (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate user id: %w", err)
	}
	return id, nil
}
