package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/common"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/use-cases"
	"vereinsportal/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	defaultOutboxLimit = 50
	maxOutboxLimit     = 500
	maxGeocodeQuery    = 200
)

type Handler interface {
	Csrf(c *fiber.Ctx) error

	ForgotPassword(c *fiber.Ctx) error
	CheckResetToken(c *fiber.Ctx) error
	ResetPassword(c *fiber.Ctx) error

	IssueInvitation(c *fiber.Ctx) error
	CheckInvitation(c *fiber.Ctx) error
	RedeemInvitation(c *fiber.Ctx) error

	GetRsvp(c *fiber.Ctx) error
	CastRsvp(c *fiber.Ctx) error
	Unsubscribe(c *fiber.Ctx) error

	Contact(c *fiber.Ctx) error
	Geocode(c *fiber.Ctx) error

	ListOutbox(c *fiber.Ctx) error
	RetryOutbox(c *fiber.Ctx) error

	HealthCheck(c *fiber.Ctx) error
}

type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
	}
}

// parseBody: разбор и валидация тела; если parsed == false, ответ клиенту уже записан
func (h *HandlerImpl) parseBody(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		h.logger.Warnf("[request %v] error parsing body: %v", c.Locals("requestid"), err)
		return false, appers.SanitizeError(c, appers.ErrBadRequest)
	}
	if err := validator.Validate.StructCtx(c.UserContext(), dst); err != nil {
		h.logger.Debugf("[request %v] validation error: %v", c.Locals("requestid"), err)
		return false, appers.SanitizeError(c, appers.NewValidationError(err))
	}
	return true, nil
}

// fail логирует только непредвиденные ошибки, доменные уходят клиенту как есть
func (h *HandlerImpl) fail(c *fiber.Ctx, err error) error {
	var resp appers.ErrorResp
	var rl appers.RateLimitedError
	var v appers.ValidationError
	if !errors.As(err, &resp) && !errors.As(err, &rl) && !errors.As(err, &v) {
		h.logger.Errorf("[request %v] %s %s: %v", c.Locals("requestid"), c.Method(), c.Route().Path, err)
	}
	return appers.SanitizeError(c, err)
}

func ok(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(MessageResponse{Message: "ok"})
}

// Csrf godoc
// @Summary     Выдача CSRF-токена
// @Description Ставит cookie csrf_ и возвращает токен, который нужно отправить в заголовке X-CSRF-Token
// @Produce     json
// @Success     200 {object} CsrfResponse
// @tags        Security
// @Router      /csrf [get]
func (h *HandlerImpl) Csrf(c *fiber.Ctx) error {
	tok, _ := c.Locals(csrfContextKey).(string)
	return c.Status(fiber.StatusOK).JSON(CsrfResponse{Token: tok})
}

// ForgotPassword godoc
// @Summary     Запрос сброса пароля
// @Description Всегда отвечает 200, есть такой адрес или нет. Письмо ставится в очередь только для существующего пользователя.
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       body body ForgotPasswordRequest true "E-Mail"
// @Success     200 {object} MessageResponse
// @Failure     400
// @Failure     429
// @Failure     503
// @tags        Auth
// @Router      /auth/forgot-password [post]
func (h *HandlerImpl) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if parsed, err := h.parseBody(c, &req); !parsed {
		return err
	}

	if err := h.usecase.RequestPasswordReset(c.UserContext(), clientFrom(c), req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(MessageResponse{
		Message: "Falls ein Konto mit dieser Adresse existiert, wurde eine E-Mail versendet.",
	})
}

// CheckResetToken godoc
// @Summary     Проверка ссылки сброса пароля
// @Description Проверяет токен, не погашая его
// @Produce     json
// @Param       token path string true "Токен из письма"
// @Success     200 {object} MessageResponse
// @Failure     410
// @Failure     429
// @tags        Auth
// @Router      /auth/reset-password/{token} [get]
func (h *HandlerImpl) CheckResetToken(c *fiber.Ctx) error {
	if err := h.usecase.CheckPasswordReset(c.UserContext(), clientFrom(c), c.Params("token")); err != nil {
		return h.fail(c, err)
	}
	return ok(c)
}

// ResetPassword godoc
// @Summary     Установка нового пароля
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       token path string true "Токен из письма"
// @Param       body body ResetPasswordRequest true "Новый пароль"
// @Success     200 {object} MessageResponse
// @Failure     400
// @Failure     410
// @Failure     429
// @tags        Auth
// @Router      /auth/reset-password/{token} [post]
func (h *HandlerImpl) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if parsed, err := h.parseBody(c, &req); !parsed {
		return err
	}

	if err := h.usecase.ResetPassword(c.UserContext(), clientFrom(c), c.Params("token"), req.Password); err != nil {
		return h.fail(c, err)
	}
	return ok(c)
}

// IssueInvitation godoc
// @Summary     Приглашение нового участника
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       body body InvitationRequest true "Адрес и роль"
// @Success     201 {object} InvitationResponse
// @Failure     400
// @Failure     401
// @Failure     403
// @Failure     409
// @tags        Admin
// @Router      /admin/invitations [post]
func (h *HandlerImpl) IssueInvitation(c *fiber.Ctx) error {
	var req InvitationRequest
	if parsed, err := h.parseBody(c, &req); !parsed {
		return err
	}

	inv, err := h.usecase.IssueInvitation(c.UserContext(), actorFrom(c), req.Email, entity.Role(req.Role))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newInvitationResponse(inv))
}

// CheckInvitation godoc
// @Summary     Проверка ссылки приглашения
// @Produce     json
// @Param       token path string true "Токен из письма"
// @Success     200 {object} InvitationResponse
// @Failure     410
// @Failure     429
// @tags        Auth
// @Router      /auth/invitation/{token} [get]
func (h *HandlerImpl) CheckInvitation(c *fiber.Ctx) error {
	inv, err := h.usecase.CheckInvitation(c.UserContext(), clientFrom(c), c.Params("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(newInvitationResponse(inv))
}

// RedeemInvitation godoc
// @Summary     Регистрация по приглашению
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       token path string true "Токен из письма"
// @Param       body body RedeemInvitationRequest true "Имя и пароль"
// @Success     201 {object} UserResponse
// @Failure     400
// @Failure     409
// @Failure     410
// @Failure     429
// @tags        Auth
// @Router      /auth/invitation/{token} [post]
func (h *HandlerImpl) RedeemInvitation(c *fiber.Ctx) error {
	var req RedeemInvitationRequest
	if parsed, err := h.parseBody(c, &req); !parsed {
		return err
	}

	user, err := h.usecase.RedeemInvitation(c.UserContext(), clientFrom(c), c.Params("token"), strings.TrimSpace(req.Name), req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(newUserResponse(user))
}

// GetRsvp godoc
// @Summary     Термин по RSVP-ссылке
// @Produce     json
// @Param       token path string true "Токен из напоминания"
// @Success     200 {object} entity.RsvpView
// @Failure     404
// @Failure     410
// @Failure     429
// @tags        Notifications
// @Router      /notifications/rsvp/{token} [get]
func (h *HandlerImpl) GetRsvp(c *fiber.Ctx) error {
	view, err := h.usecase.GetRsvp(c.UserContext(), clientFrom(c), c.Params("token"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(view)
}

// CastRsvp godoc
// @Summary     Ответ на приглашение к термину
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       token path string true "Токен из напоминания"
// @Param       body body RsvpRequest true "YES, NO или MAYBE"
// @Success     200 {object} entity.RsvpView
// @Failure     400
// @Failure     404
// @Failure     410
// @Failure     429
// @tags        Notifications
// @Router      /notifications/rsvp/{token} [post]
func (h *HandlerImpl) CastRsvp(c *fiber.Ctx) error {
	var req RsvpRequest
	if parsed, err := h.parseBody(c, &req); !parsed {
		return err
	}
	vote, valid := entity.ParseVote(req.Vote)
	if !valid {
		return appers.SanitizeError(c, appers.ValidationError{Details: []string{"Feld 'Vote' muss YES, NO oder MAYBE sein"}})
	}

	view, err := h.usecase.CastRsvp(c.UserContext(), clientFrom(c), c.Params("token"), vote)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(view)
}

// Unsubscribe godoc
// @Summary     Отписка от напоминаний
// @Produce     json
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       token path string true "Токен из напоминания"
// @Success     200 {object} MessageResponse
// @Failure     410
// @Failure     429
// @tags        Notifications
// @Router      /notifications/unsubscribe/{token} [post]
func (h *HandlerImpl) Unsubscribe(c *fiber.Ctx) error {
	if err := h.usecase.Unsubscribe(c.UserContext(), clientFrom(c), c.Params("token")); err != nil {
		return h.fail(c, err)
	}
	return ok(c)
}

// Contact godoc
// @Summary     Контактная форма
// @Accept      json
// @Produce     json
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       body body entity.ContactRequest true "Сообщение"
// @Success     202 {object} MessageResponse
// @Failure     400
// @Failure     429
// @Failure     503
// @tags        Public
// @Router      /contact [post]
func (h *HandlerImpl) Contact(c *fiber.Ctx) error {
	var req entity.ContactRequest
	if parsed, err := h.parseBody(c, &req); !parsed {
		return err
	}

	if err := h.usecase.SubmitContact(c.UserContext(), clientFrom(c), req); err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(MessageResponse{Message: "Vielen Dank für Ihre Nachricht."})
}

// Geocode godoc
// @Summary     Поиск координат по адресу
// @Produce     json
// @Param       q query string true "Адрес"
// @Success     200 {array} entity.GeoResult
// @Failure     400
// @Failure     429
// @Failure     503
// @tags        Public
// @Router      /geocode [get]
func (h *HandlerImpl) Geocode(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" || len([]rune(q)) > maxGeocodeQuery {
		return appers.SanitizeError(c, appers.ValidationError{Details: []string{"Parameter 'q' ist erforderlich (max. 200 Zeichen)"}})
	}

	res, err := h.usecase.Geocode(c.UserContext(), clientFrom(c), q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// ListOutbox godoc
// @Summary     Просмотр очереди писем
// @Produce     json
// @Security    BearerAuth
// @Param       status query string false "PENDING, RETRYING, SENT или FAILED"
// @Param       limit  query int    false "Не больше 500, по умолчанию 50"
// @Success     200 {array} entity.OutboxEmail
// @Failure     400
// @Failure     401
// @Failure     403
// @tags        Admin
// @Router      /admin/outbox [get]
func (h *HandlerImpl) ListOutbox(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultOutboxLimit)
	if limit <= 0 || limit > maxOutboxLimit {
		limit = defaultOutboxLimit
	}
	status := entity.OutboxStatus(strings.ToUpper(c.Query("status")))

	emails, err := h.usecase.ListOutbox(c.UserContext(), actorFrom(c), status, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(emails)
}

// RetryOutbox godoc
// @Summary     Ручной повтор письма
// @Description Письмо в FAILED или RETRYING снова ставится в очередь, счётчик попыток обнуляется
// @Produce     json
// @Security    BearerAuth
// @Param       X-CSRF-Token header string true "CSRF-токен"
// @Param       id path int true "ID письма"
// @Success     200 {object} MessageResponse
// @Failure     400
// @Failure     401
// @Failure     403
// @Failure     404
// @tags        Admin
// @Router      /admin/outbox/{id}/retry [post]
func (h *HandlerImpl) RetryOutbox(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return appers.SanitizeError(c, appers.ErrBadRequest)
	}

	if err := h.usecase.RetryOutbox(c.UserContext(), actorFrom(c), id); err != nil {
		return h.fail(c, err)
	}
	return ok(c)
}

// HealthCheck godoc
// @Summary     Проверка состояния сервиса
// @Description Проверяет PostgreSQL, хранилище лимитера (Redis) и Kafka, если она включена
// @Produce     json
// @Success     200   {object} entity.HealthCheckResponse "Все сервисы доступны"
// @Failure     503   {object} entity.HealthCheckResponse "Один или несколько сервисов недоступны"
// @tags        Health
// @Router      /health [get]
func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	health := h.usecase.HealthCheck(ctx)

	resp := entity.HealthCheckResponse{
		Status:  true,
		Message: "success",
		Version: common.Version,
		Checks: entity.HealthCheckResponseData{
			Database:  healthItem("postgresql", health.DB, "Database connection failed"),
			RateStore: healthItem("ratelimit", health.RateStore, "Rate limit store unavailable"),
			Kafka:     healthItem("kafka", health.Kafka, "Kafka connection failed"),
		},
	}
	if health.KafkaDisabled {
		resp.Checks.Kafka.Type = "kafka (disabled)"
	}

	if health.DB != nil || health.RateStore != nil || health.Kafka != nil {
		resp.Status = false
		resp.Message = "Some services are unavailable"
		h.logger.Warnf("health check failed: db=%v ratestore=%v kafka=%v", health.DB, health.RateStore, health.Kafka)
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func healthItem(kind string, err error, message string) entity.HealthCheckItem {
	item := entity.HealthCheckItem{Status: err == nil, Type: kind}
	if err != nil {
		item.Error = message
	}
	return item
}
