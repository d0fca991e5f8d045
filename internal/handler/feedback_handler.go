package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/middleware"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/internal/utils"
)

// FeedbackHandler accepts course and teacher feedback.
type FeedbackHandler struct {
	service service.FeedbackService
	logger  zerolog.Logger
}

// NewFeedbackHandler builds a new feedback handler.
func NewFeedbackHandler(service service.FeedbackService, logger zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		service: service,
		logger:  logger.With().Str("component", "feedback_handler").Logger(),
	}
}

// Register mounts the feedback routes. Authentication is optional.
func (h *FeedbackHandler) Register(router fiber.Router) {
	router.Post("/", middleware.WithAuth(h.submit, middleware.AuthOptions{AllowAnonymous: true}))
}

func (h *FeedbackHandler) submit(c *fiber.Ctx) error {
	var payload dto.FeedbackRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Submit(requestContext(c), optionalUserID(c), payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return sendValidationError(c, err)
		case errors.Is(err, service.ErrFeedbackSpam):
			return utils.SendError(c, fiber.StatusBadRequest, "submission rejected")
		case errors.Is(err, service.ErrFeedbackDuplicate):
			return utils.SendError(c, fiber.StatusTooManyRequests, "duplicate submission detected")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to store feedback")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to submit feedback")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "feedback submitted", response)
}
