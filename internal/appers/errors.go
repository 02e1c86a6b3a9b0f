package appers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

var (
	// Одинаковый ответ для "не найден", "истёк" и "уже использован", чтобы нельзя было перебирать токены
	ErrTokenInvalidOrExpired = ErrorResp{
		http.StatusGone,
		"Der Link ist ungültig oder abgelaufen.",
	}
	ErrEventNotFound = ErrorResp{
		http.StatusNotFound,
		"Termin nicht gefunden.",
	}
	ErrUserNotFound = ErrorResp{
		http.StatusNotFound,
		"Benutzer nicht gefunden.",
	}
	ErrOutboxNotFound = ErrorResp{
		http.StatusNotFound,
		"E-Mail nicht gefunden oder nicht wiederholbar.",
	}
	ErrUserAlreadyExists = ErrorResp{
		http.StatusConflict,
		"Für diese E-Mail-Adresse existiert bereits ein Konto.",
	}
	ErrForbidden = ErrorResp{
		http.StatusForbidden,
		"Keine Berechtigung.",
	}
	ErrUnauthorized = ErrorResp{
		http.StatusUnauthorized,
		"Anmeldung erforderlich.",
	}
	ErrServiceUnavailable = ErrorResp{
		http.StatusServiceUnavailable,
		"Der Dienst ist vorübergehend nicht verfügbar. Bitte später erneut versuchen.",
	}
	ErrBadRequest = ErrorResp{
		http.StatusBadRequest,
		"Ungültige Anfrage.",
	}

	// ErrReminderAlreadySent — внутренний маркер идемпотентности, наружу не уходит
	ErrReminderAlreadySent = errors.New("reminder already dispatched")
)

// RateLimitedError — слишком много попыток; RetryAfter берётся из blockedUntil лимитера
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ValidationError — ошибки в полях запроса, исправимые пользователем
type ValidationError struct {
	Details []string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Details)
}

// NewValidationError переводит ошибки go-playground/validator в понятные сообщения
func NewValidationError(err error) ValidationError {
	var details []string
	var validationErrors playgroundvalidator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			field := e.Field()
			var message string
			switch e.Tag() {
			case "required":
				message = fmt.Sprintf("Feld '%s' ist erforderlich", field)
			case "email":
				message = fmt.Sprintf("Feld '%s' muss eine gültige E-Mail-Adresse sein", field)
			case "min":
				message = fmt.Sprintf("Feld '%s' muss mindestens %s Zeichen lang sein", field, e.Param())
			case "max":
				message = fmt.Sprintf("Feld '%s' darf höchstens %s Zeichen lang sein", field, e.Param())
			case "password":
				message = fmt.Sprintf("Feld '%s' braucht mindestens 10 Zeichen mit Buchstaben und Ziffern", field)
			case "vote":
				message = fmt.Sprintf("Feld '%s' muss YES, NO oder MAYBE sein", field)
			default:
				message = fmt.Sprintf("Feld '%s' ist ungültig (%s)", field, e.Tag())
			}
			details = append(details, message)
		}
	} else {
		details = append(details, err.Error())
	}
	return ValidationError{Details: details}
}

// SanitizeError переводит доменные ошибки в HTTP-ответ. Внутренности наружу не уходят.
func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp
	var rateErr RateLimitedError
	var valErr ValidationError

	switch {
	case errors.As(err, &rateErr):
		secs := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"message": "Zu viele Versuche. Bitte später erneut versuchen.",
		})
	case errors.As(err, &valErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validierung fehlgeschlagen",
			"details": valErr.Details,
		})
	case errors.As(err, &errResp):
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": errResp.StatusDesc,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Ein interner Fehler ist aufgetreten.",
		})
	}
}
