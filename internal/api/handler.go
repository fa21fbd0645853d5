package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/paasify/cfvault/internal/cfauth"
)

// SecretLookup reads one field of a stored secret.
type SecretLookup interface {
	Lookup(ctx context.Context, path, field string) (string, bool, error)
}

// TokenSource returns the current Vault session token.
type TokenSource interface {
	Token(ctx context.Context) (cfauth.Token, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// SecretHandler serves the configured demo secret.
type SecretHandler struct {
	logger  *zap.Logger
	secrets SecretLookup
	path    string
	key     string
}

func NewSecretHandler(logger *zap.Logger, secrets SecretLookup, path, key string) *SecretHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecretHandler{logger: logger, secrets: secrets, path: path, key: key}
}

// Get handles GET /.
func (h *SecretHandler) Get(c *fiber.Ctx) error {
	value, ok, err := h.secrets.Lookup(c.UserContext(), h.path, h.key)
	if err != nil {
		h.logger.Warn("api.secret_read_failed",
			zap.String("path", h.path),
			zap.String("key", h.key),
			zap.Error(err))
		return c.Status(fiber.StatusBadGateway).SendString(err.Error())
	}
	if !ok {
		return c.SendString("No value found for key")
	}
	return c.SendString("Encrypted value: " + value)
}

// HealthHandler reports login state and dependency checks.
type HealthHandler struct {
	tokens TokenSource
	checks map[string]HealthCheck
}

func NewHealthHandler(tokens TokenSource, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{tokens: tokens, checks: checks}
}

// Get handles GET /health.
func (h *HealthHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	checks := map[string]string{"login": "ok"}
	status := "ok"
	code := fiber.StatusOK

	if tok, err := h.tokens.Token(ctx); err != nil {
		checks["login"] = err.Error()
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	} else {
		checks["login"] = "ok (" + tok.Kind().String() + ")"
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
