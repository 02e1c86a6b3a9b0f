package appers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (int, respHeaders, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return SanitizeError(c, err) })

	resp, e := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, e)
	defer resp.Body.Close()

	raw, e := io.ReadAll(resp.Body)
	require.NoError(t, e)
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, respHeaders{retryAfter: resp.Header.Get("Retry-After")}, body
}

type respHeaders struct{ retryAfter string }

func TestSanitizeRateLimited(t *testing.T) {
	code, h, _ := respond(t, fmt.Errorf("wrapped: %w", RateLimitedError{RetryAfter: 1500 * time.Millisecond}))
	assert.Equal(t, fiber.StatusTooManyRequests, code)
	assert.Equal(t, "2", h.retryAfter)
}

func TestSanitizeTokenErrorIsGeneric(t *testing.T) {
	code, _, body := respond(t, ErrTokenInvalidOrExpired)
	assert.Equal(t, fiber.StatusGone, code)
	assert.Equal(t, "Der Link ist ungültig oder abgelaufen.", body["message"])
}

func TestSanitizeHidesInternals(t *testing.T) {
	code, _, body := respond(t, errors.New("pq: password authentication failed for user postgres"))
	assert.Equal(t, fiber.StatusInternalServerError, code)
	assert.NotContains(t, body["message"], "postgres")
}

func TestSanitizeValidation(t *testing.T) {
	code, _, body := respond(t, ValidationError{Details: []string{"Feld 'Email' ist erforderlich"}})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Len(t, body["details"], 1)
}
