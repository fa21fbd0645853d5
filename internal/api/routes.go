package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all HTTP routes on the Fiber app.
func RegisterRoutes(app *fiber.App, secretHandler *SecretHandler, healthHandler *HealthHandler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", healthHandler.Get)
	app.Get("/", secretHandler.Get)
}
