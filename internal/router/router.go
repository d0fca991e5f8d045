package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-portal-api/internal/config"
	"github.com/noah-isme/gema-portal-api/internal/handler"
	"github.com/noah-isme/gema-portal-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GamificationHandler *handler.GamificationHandler
	AnalyticsHandler    *handler.AnalyticsHandler
	AssistantHandler    *handler.AssistantHandler
	FeedbackHandler     *handler.FeedbackHandler
	SeedHandler         *handler.SeedHandler
	HealthProbes        []handler.HealthProbe
	JWTMiddleware       fiber.Handler
	OptionalJWT         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := passThrough(deps.JWTMiddleware)
	optionalJWT := passThrough(deps.OptionalJWT)

	if deps.GamificationHandler != nil {
		deps.GamificationHandler.Register(app.Group("/api/v2/gamification", jwtMiddleware))
	}

	if deps.AnalyticsHandler != nil {
		deps.AnalyticsHandler.Register(app.Group("/api/v2/analytics", jwtMiddleware))
	}

	// The websocket route authenticates during the upgrade request.
	if deps.AssistantHandler != nil {
		deps.AssistantHandler.Register(app.Group("/api/v2/assistant", jwtMiddleware))
	}

	if deps.FeedbackHandler != nil {
		deps.FeedbackHandler.Register(app.Group("/api/v2/feedback", optionalJWT))
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(app.Group("/api/v2/seed"))
	}
}

func passThrough(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
