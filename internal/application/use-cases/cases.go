package use_cases

import (
	"context"
	"encoding/json"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/service"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/validator"

	"go.uber.org/zap"
)

type UseCaser interface {
	RequestPasswordReset(ctx context.Context, client, email string) error
	CheckPasswordReset(ctx context.Context, client, rawToken string) error
	ResetPassword(ctx context.Context, client, rawToken, password string) error

	IssueInvitation(ctx context.Context, actor entity.Actor, email string, role entity.Role) (*entity.Invitation, error)
	CheckInvitation(ctx context.Context, client, rawToken string) (*entity.Invitation, error)
	RedeemInvitation(ctx context.Context, client, rawToken, name, password string) (*entity.User, error)

	GetRsvp(ctx context.Context, client, rawToken string) (*entity.RsvpView, error)
	CastRsvp(ctx context.Context, client, rawToken string, vote entity.Vote) (*entity.RsvpView, error)
	Unsubscribe(ctx context.Context, client, rawToken string) error

	SendEventReminders(ctx context.Context)
	CleanupExpiredTokens(ctx context.Context)

	ListOutbox(ctx context.Context, actor entity.Actor, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error)
	RetryOutbox(ctx context.Context, actor entity.Actor, id int64) error
	ConsumeMailRequest(ctx context.Context, msg []byte, msgTime time.Time) error

	SubmitContact(ctx context.Context, client string, req entity.ContactRequest) error
	Geocode(ctx context.Context, client, query string) ([]entity.GeoResult, error)

	HealthCheck(ctx context.Context) entity.Health
}

// Sweeper — in-memory хранилище лимитера, которое надо периодически чистить
type Sweeper interface {
	Sweep() int
}

type UseCase struct {
	service service.Service
	sweeper Sweeper
	logger  *zap.SugaredLogger
	conf    *config.Config
}

// NewUseCase: sweeper может быть nil (Redis сам удаляет ключи по TTL)
func NewUseCase(service service.Service, sweeper Sweeper, logger *zap.SugaredLogger, conf *config.Config) *UseCase {
	return &UseCase{
		service: service,
		sweeper: sweeper,
		logger:  logger,
		conf:    conf,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) entity.Health {
	return u.service.HealthCheck(ctx)
}

func (u *UseCase) RequestPasswordReset(ctx context.Context, client, email string) error {
	u.logger.Debugf("[client %s] RequestPasswordReset started", client)
	return u.service.RequestPasswordReset(ctx, client, email)
}

func (u *UseCase) CheckPasswordReset(ctx context.Context, client, rawToken string) error {
	u.logger.Debugf("[client %s] CheckPasswordReset started", client)
	return u.service.CheckPasswordReset(ctx, client, rawToken)
}

func (u *UseCase) ResetPassword(ctx context.Context, client, rawToken, password string) error {
	u.logger.Debugf("[client %s] ResetPassword started", client)
	return u.service.ResetPassword(ctx, client, rawToken, password)
}

func (u *UseCase) IssueInvitation(ctx context.Context, actor entity.Actor, email string, role entity.Role) (*entity.Invitation, error) {
	u.logger.Debugf("[actor %s] IssueInvitation started", actor.UserID)
	return u.service.IssueInvitation(ctx, actor, email, role)
}

func (u *UseCase) CheckInvitation(ctx context.Context, client, rawToken string) (*entity.Invitation, error) {
	u.logger.Debugf("[client %s] CheckInvitation started", client)
	return u.service.CheckInvitation(ctx, client, rawToken)
}

func (u *UseCase) RedeemInvitation(ctx context.Context, client, rawToken, name, password string) (*entity.User, error) {
	u.logger.Debugf("[client %s] RedeemInvitation started", client)
	return u.service.RedeemInvitation(ctx, client, rawToken, name, password)
}

func (u *UseCase) GetRsvp(ctx context.Context, client, rawToken string) (*entity.RsvpView, error) {
	u.logger.Debugf("[client %s] GetRsvp started", client)
	return u.service.GetRsvp(ctx, client, rawToken)
}

func (u *UseCase) CastRsvp(ctx context.Context, client, rawToken string, vote entity.Vote) (*entity.RsvpView, error) {
	u.logger.Debugf("[client %s] CastRsvp %s started", client, vote)
	return u.service.CastRsvp(ctx, client, rawToken, vote)
}

func (u *UseCase) Unsubscribe(ctx context.Context, client, rawToken string) error {
	u.logger.Debugf("[client %s] Unsubscribe started", client)
	return u.service.Unsubscribe(ctx, client, rawToken)
}

func (u *UseCase) SendEventReminders(ctx context.Context) {
	u.logger.Infof("SendEventReminders called with daysBefore=%v", u.conf.Reminders.DaysBefore)
	n, err := u.service.SendEventReminders(ctx)
	if err != nil {
		u.logger.Errorf("SendEventReminders: %d queued, errors: %v", n, err)
	}
}

func (u *UseCase) CleanupExpiredTokens(ctx context.Context) {
	u.logger.Infof("CleanupExpiredTokens called with retention=%s", u.conf.Cron.TokenRetention)
	n, err := u.service.CleanupExpiredTokens(ctx)
	if err != nil {
		u.logger.Errorf("CleanupExpiredTokens: %v", err)
	} else {
		u.logger.Infof("CleanupExpiredTokens: %d token(s) removed", n)
	}

	if u.sweeper != nil {
		u.logger.Debugf("rate limit entries swept: %d", u.sweeper.Sweep())
	}
}

func (u *UseCase) ListOutbox(ctx context.Context, actor entity.Actor, status entity.OutboxStatus, limit int) ([]entity.OutboxEmail, error) {
	u.logger.Debugf("[actor %s] ListOutbox status=%q limit=%d", actor.UserID, status, limit)
	return u.service.ListOutbox(ctx, actor, status, limit)
}

func (u *UseCase) RetryOutbox(ctx context.Context, actor entity.Actor, id int64) error {
	u.logger.Debugf("[actor %s] RetryOutbox %d", actor.UserID, id)
	return u.service.RetryOutbox(ctx, actor, id)
}

// ConsumeMailRequest разбирает заявку на письмо из Kafka.
// ValidationError — сообщение битое, повторять его бессмысленно.
func (u *UseCase) ConsumeMailRequest(ctx context.Context, msg []byte, msgTime time.Time) error {
	u.logger.Debugf("consumer message (%d bytes), time: %v", len(msg), msgTime)

	var req entity.MailRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return appers.ValidationError{Details: []string{"Nachricht ist kein gültiges JSON"}}
	}
	if err := validator.Validate.StructCtx(ctx, req); err != nil {
		return appers.NewValidationError(err)
	}

	_, err := u.service.EnqueueMail(ctx, req)
	return err
}

func (u *UseCase) SubmitContact(ctx context.Context, client string, req entity.ContactRequest) error {
	u.logger.Debugf("[client %s] SubmitContact started", client)
	return u.service.SubmitContact(ctx, client, req)
}

func (u *UseCase) Geocode(ctx context.Context, client, query string) ([]entity.GeoResult, error) {
	u.logger.Debugf("[client %s] Geocode started", client)
	return u.service.Geocode(ctx, client, query)
}
