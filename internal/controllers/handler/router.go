package handler

import (
	"fmt"
	"time"
	"vereinsportal/pkg/clientip"
	"vereinsportal/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	csrfHeader     = "X-CSRF-Token"
	csrfCookie     = "csrf_"
	csrfContextKey = "csrf"
)

type Router struct {
	handler Handler
	app     *fiber.App
	conf    *config.Config
	logger  *zap.SugaredLogger
	// nil — CSRF-токены в памяти процесса
	csrfStorage fiber.Storage
}

func NewRouter(handler Handler, app *fiber.App, conf *config.Config, logger *zap.SugaredLogger, csrfStorage fiber.Storage) *Router {
	return &Router{
		logger:      logger,
		app:         app,
		conf:        conf,
		handler:     handler,
		csrfStorage: csrfStorage,
	}
}

func (r *Router) RegisterRouter() error {
	resolver, err := clientip.NewResolver(r.conf.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	r.app.Get("/health", r.handler.HealthCheck)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	r.app.Get("/swagger/*", swagger.New(swagger.Config{
		DeepLinking: false,
		URL:         "/swagger/doc.json",
	}))

	// CSRF проверяется раньше всего остального, в том числе лимитера
	api := r.app.Group("/api",
		csrf.New(csrf.Config{
			KeyLookup:      "header:" + csrfHeader,
			CookieName:     csrfCookie,
			CookieSameSite: "Strict",
			CookieHTTPOnly: false,
			Expiration:     2 * time.Hour,
			ContextKey:     csrfContextKey,
			Storage:        r.csrfStorage,
		}),
		ClientKey(resolver),
	)

	api.Get("/csrf", r.handler.Csrf)

	auth := api.Group("/auth")
	auth.Post("/forgot-password", r.handler.ForgotPassword)
	auth.Get("/reset-password/:token", r.handler.CheckResetToken)
	auth.Post("/reset-password/:token", r.handler.ResetPassword)
	auth.Get("/invitation/:token", r.handler.CheckInvitation)
	auth.Post("/invitation/:token", r.handler.RedeemInvitation)

	notifications := api.Group("/notifications")
	notifications.Get("/rsvp/:token", r.handler.GetRsvp)
	notifications.Post("/rsvp/:token", r.handler.CastRsvp)
	notifications.Post("/unsubscribe/:token", r.handler.Unsubscribe)

	api.Post("/contact", r.handler.Contact)
	api.Get("/geocode", r.handler.Geocode)

	admin := api.Group("/admin", Auth([]byte(r.conf.Auth.JWTSecret), r.logger), RequireAdmin())
	admin.Post("/invitations", r.handler.IssueInvitation)
	admin.Get("/outbox", r.handler.ListOutbox)
	admin.Post("/outbox/:id/retry", r.handler.RetryOutbox)

	return nil
}
