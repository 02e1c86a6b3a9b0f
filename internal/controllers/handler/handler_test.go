package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/internal/application/use-cases"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/httpserver"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type stubUseCase struct {
	use_cases.UseCaser

	mu        sync.Mutex
	forgotErr error
	clients   []string
	votes     []entity.Vote
	lastActor entity.Actor
	health    entity.Health
}

func (s *stubUseCase) RequestPasswordReset(_ context.Context, client, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, client)
	return s.forgotErr
}

func (s *stubUseCase) CheckPasswordReset(context.Context, string, string) error {
	return appers.ErrTokenInvalidOrExpired
}

func (s *stubUseCase) CastRsvp(_ context.Context, _, _ string, vote entity.Vote) (*entity.RsvpView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, vote)
	return &entity.RsvpView{Event: entity.Event{Title: "Sommerfest"}, CurrentVote: &vote}, nil
}

func (s *stubUseCase) ListOutbox(_ context.Context, actor entity.Actor, _ entity.OutboxStatus, _ int) ([]entity.OutboxEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	return []entity.OutboxEmail{{ID: 1, TemplateID: "einladung", Status: entity.OutboxFailed}}, nil
}

func (s *stubUseCase) RetryOutbox(context.Context, entity.Actor, int64) error {
	return appers.ErrOutboxNotFound
}

func (s *stubUseCase) HealthCheck(context.Context) entity.Health {
	return s.health
}

func newTestApp(t *testing.T, uc use_cases.UseCaser) *fiber.App {
	t.Helper()
	conf := config.Config{
		Server: config.Server{TrustedProxies: []string{"0.0.0.0"}},
		Auth:   config.Auth{JWTSecret: testSecret},
	}
	app := httpserver.NewFiber(conf, nil)
	logger := zap.NewNop().Sugar()
	r := NewRouter(NewHandler(uc, logger), app, &conf, logger, nil)
	require.NoError(t, r.RegisterRouter())
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// csrfToken получает пару cookie/token через GET /api/csrf
func csrfToken(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/csrf", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out CsrfResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.NotEmpty(t, out.Token)

	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookie {
			cookie = c.Value
		}
	}
	require.Equal(t, out.Token, cookie)
	return out.Token
}

func jsonRequest(method, target, body, csrf string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if csrf != "" {
		req.Header.Set(csrfHeader, csrf)
		req.AddCookie(&http.Cookie{Name: csrfCookie, Value: csrf})
	}
	return req
}

func bearer(t *testing.T, role entity.Role) string {
	t.Helper()
	claims := actorClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.Must(uuid.NewV4()).String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestMutatingRequestNeedsCsrf(t *testing.T) {
	uc := &stubUseCase{}
	app := newTestApp(t, uc)

	resp, _ := do(t, app, jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"a@b.example"}`, ""))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, uc.clients, "use case must not run without csrf")

	tok := csrfToken(t, app)
	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"a@b.example"}`, tok))
	assert.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Len(t, uc.clients, 1)
	assert.True(t, strings.HasPrefix(uc.clients[0], "ip:") || strings.HasPrefix(uc.clients[0], "fp:"), uc.clients[0])
}

func TestClientKeyUsesForwardedForFromTrustedProxy(t *testing.T) {
	uc := &stubUseCase{}
	app := newTestApp(t, uc)
	tok := csrfToken(t, app)

	req := jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"a@b.example"}`, tok)
	req.Header.Set(fiber.HeaderXForwardedFor, "203.0.113.7")
	resp, _ := do(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, uc.clients, 1)
	assert.Equal(t, "ip:203.0.113.7", uc.clients[0])
}

func TestForgotPasswordValidationAndRateLimit(t *testing.T) {
	uc := &stubUseCase{}
	app := newTestApp(t, uc)
	tok := csrfToken(t, app)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"kein-email"}`, tok))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "E-Mail-Adresse")

	uc.forgotErr = appers.RateLimitedError{RetryAfter: 90*time.Second + 300*time.Millisecond}
	resp, _ = do(t, app, jsonRequest(http.MethodPost, "/api/auth/forgot-password", `{"email":"a@b.example"}`, tok))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "91", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestTokenErrorsAreGeneric(t *testing.T) {
	app := newTestApp(t, &stubUseCase{})

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/auth/reset-password/abc", nil))
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Contains(t, body, "ungültig oder abgelaufen")
}

func TestCastRsvpValidatesVote(t *testing.T) {
	uc := &stubUseCase{}
	app := newTestApp(t, uc)
	tok := csrfToken(t, app)

	resp, _ := do(t, app, jsonRequest(http.MethodPost, "/api/notifications/rsvp/abc", `{"vote":"VIELLEICHT"}`, tok))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, app, jsonRequest(http.MethodPost, "/api/notifications/rsvp/abc", `{"vote":"maybe"}`, tok))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, []entity.Vote{entity.VoteMaybe}, uc.votes)
	assert.Contains(t, body, `"currentVote":"MAYBE"`)
}

func TestAdminRoutesRequireAdminJWT(t *testing.T) {
	uc := &stubUseCase{}
	app := newTestApp(t, uc)

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/admin/outbox", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/outbox", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-jwt")
	resp, _ = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/outbox", nil)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, entity.RoleMember))
	resp, _ = do(t, app, req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/outbox?status=failed", nil)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, entity.RoleAdmin))
	resp, body := do(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.True(t, uc.lastActor.IsAdmin())
	assert.NotContains(t, body, "variables")
}

func TestRetryOutboxErrors(t *testing.T) {
	app := newTestApp(t, &stubUseCase{})
	tok := csrfToken(t, app)

	req := jsonRequest(http.MethodPost, "/api/admin/outbox/abc/retry", "", tok)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, entity.RoleAdmin))
	resp, _ := do(t, app, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req = jsonRequest(http.MethodPost, "/api/admin/outbox/7/retry", "", tok)
	req.Header.Set(fiber.HeaderAuthorization, bearer(t, entity.RoleAdmin))
	resp, _ = do(t, app, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	uc := &stubUseCase{health: entity.Health{KafkaDisabled: true}}
	app := newTestApp(t, uc)

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var out entity.HealthCheckResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, out.Status)
	assert.Equal(t, "kafka (disabled)", out.Checks.Kafka.Type)

	uc.health.RateStore = io.ErrUnexpectedEOF
	resp, body = do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.False(t, out.Checks.RateStore.Status)
	assert.True(t, out.Checks.Database.Status)
}
