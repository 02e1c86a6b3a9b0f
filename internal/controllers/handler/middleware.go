package handler

import (
	"fmt"
	"strings"
	"vereinsportal/internal/appers"
	"vereinsportal/internal/application/entity"
	"vereinsportal/pkg/clientip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	localClient = "client"
	localActor  = "actor"
)

// ClientKey кладёт в locals ключ клиента для лимитера.
// RemoteAddr берём у fasthttp напрямую, без c.IP(): тот доверяет заголовкам.
func ClientKey(resolver *clientip.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := resolver.Resolve(
			c.Context().RemoteAddr().String(),
			c.Get(fiber.HeaderXForwardedFor),
			c.Get(fiber.HeaderUserAgent),
			c.Get(fiber.HeaderAcceptLanguage),
		)
		c.Locals(localClient, key)
		return c.Next()
	}
}

func clientFrom(c *fiber.Ctx) string {
	if s, ok := c.Locals(localClient).(string); ok {
		return s
	}
	return "unknown"
}

type actorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth проверяет Bearer JWT (HS256), выданный провайдером идентичности, и кладёт entity.Actor в locals.
// Сами токены здесь не выпускаются.
func Auth(secret []byte, logger *zap.SugaredLogger) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *fiber.Ctx) error {
		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return appers.SanitizeError(c, appers.ErrUnauthorized)
		}

		var claims actorClaims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			logger.Warnf("[request %v] jwt rejected: %v", c.Locals("requestid"), err)
			return appers.SanitizeError(c, appers.ErrUnauthorized)
		}

		actor, err := actorFromClaims(claims)
		if err != nil {
			logger.Warnf("[request %v] jwt claims: %v", c.Locals("requestid"), err)
			return appers.SanitizeError(c, appers.ErrUnauthorized)
		}
		c.Locals(localActor, actor)
		return c.Next()
	}
}

func actorFromClaims(claims actorClaims) (entity.Actor, error) {
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return entity.Actor{}, fmt.Errorf("subject %q: %w", claims.Subject, err)
	}
	role := entity.Role(claims.Role)
	if role != entity.RoleAdmin && role != entity.RoleMember {
		return entity.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return entity.Actor{UserID: id, Role: role}, nil
}

func actorFrom(c *fiber.Ctx) entity.Actor {
	a, _ := c.Locals(localActor).(entity.Actor)
	return a
}

// RequireAdmin — только после Auth
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !actorFrom(c).IsAdmin() {
			return appers.SanitizeError(c, appers.ErrForbidden)
		}
		return c.Next()
	}
}
