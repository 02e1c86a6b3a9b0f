package httpserver

import (
	"strconv"
	"strings"
	"time"
	"vereinsportal/pkg/config"
	"vereinsportal/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func NewFiber(conf config.Config, m *metrics.Metrics) *fiber.App {
	bodyLimit := conf.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1024 * 1024
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 1024 * 100,
			BodyLimit:      bodyLimit,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				message := "interner Fehler"
				if e, ok := err.(*fiber.Error); ok {
					code = e.Code
					message = e.Message
				}
				return c.Status(code).JSON(fiber.Map{
					"status":  false,
					"message": message,
				})
			},
		},
	)

	corsConfig := cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-CSRF-Token",
		ExposeHeaders: "Retry-After",
	}
	// CSRF-cookie уходит только с credentials, а они несовместимы с "*"
	if origins := conf.Server.AllowOrigins; origins != "" && origins != "*" {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}

	app.Use(
		requestid.New(),
		cors.New(corsConfig),
		recover.New(),
		logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}),
	)

	if m != nil {
		app.Use(instrument(m))
	}

	return app
}

// instrument пишет метрики по шаблону роута: токены из URL не попадают в лейблы
func instrument(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path, method := "unmatched", strings.ToUpper(c.Method())
		if r := c.Route(); r != nil {
			if r.Path != "" {
				path = r.Path
			}
			if r.Method != "" {
				method = strings.ToUpper(r.Method)
			}
		}

		status := strconv.Itoa(c.Response().StatusCode())
		m.API.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.API.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		return err
	}
}
