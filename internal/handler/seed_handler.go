package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/internal/utils"
)

// SeedHandler exposes seeding endpoints for demo environments.
type SeedHandler struct {
	service   service.SeedService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSeedHandler constructs a seed handler.
func NewSeedHandler(service service.SeedService, validator *validator.Validate, logger zerolog.Logger) *SeedHandler {
	return &SeedHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "seed_handler").Logger(),
	}
}

// Register binds seed routes.
func (h *SeedHandler) Register(router fiber.Router) {
	router.Post("/catalog", h.seedCatalog)
}

func (h *SeedHandler) seedCatalog(c *fiber.Ctx) error {
	var payload dto.SeedCatalogRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if h.validator != nil {
		if err := h.validator.Struct(payload); err != nil {
			return sendValidationError(c, err)
		}
	}

	response, err := h.service.SeedCatalog(requestContext(c), c.Get("X-Seed-Token"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "catalog seeded", response)
}

func (h *SeedHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSeedDisabled):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSeedUnauthorized):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("seed operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "seed operation failed")
	}
}
