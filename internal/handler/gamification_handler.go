package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/internal/utils"
)

// GamificationHandler exposes points, achievements and the leaderboard to students.
type GamificationHandler struct {
	service service.GamificationService
	logger  zerolog.Logger
}

// NewGamificationHandler constructs a gamification handler.
func NewGamificationHandler(service service.GamificationService, logger zerolog.Logger) *GamificationHandler {
	return &GamificationHandler{
		service: service,
		logger:  logger.With().Str("component", "gamification_handler").Logger(),
	}
}

// Register wires the gamification routes.
func (h *GamificationHandler) Register(router fiber.Router) {
	router.Get("/me", h.progress)
	router.Delete("/me", h.release)
	router.Post("/activities", h.recordActivity)
	router.Post("/achievements/:id/unlock", h.unlock)
	router.Get("/leaderboard", h.leaderboard)
}

func (h *GamificationHandler) progress(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	response, err := h.service.GetProgress(requestContext(c), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", userID).Msg("failed to load gamification progress")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load progress")
	}

	return utils.SendSuccess(c, "gamification progress", response)
}

func (h *GamificationHandler) release(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	h.service.Release(userID)
	return utils.SendSuccess(c, "gamification state released", nil)
}

func (h *GamificationHandler) recordActivity(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var payload dto.RecordActivityRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.Type = strings.TrimSpace(payload.Type)

	response, err := h.service.RecordActivity(requestContext(c), userID, payload)
	if err != nil {
		switch {
		case isValidationError(err):
			return sendValidationError(c, err)
		case errors.Is(err, service.ErrInvalidActivity):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("student_id", userID).Msg("failed to record activity")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to record activity")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "activity recorded", response)
}

func (h *GamificationHandler) unlock(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	achievementID := strings.TrimSpace(c.Params("id"))
	if achievementID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "achievement id required")
	}

	response, err := h.service.UnlockAchievement(requestContext(c), userID, achievementID)
	if err != nil {
		if errors.Is(err, service.ErrAchievementNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Str("achievement_id", achievementID).Msg("failed to unlock achievement")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to unlock achievement")
	}

	return utils.SendSuccess(c, "achievement unlocked", response)
}

func (h *GamificationHandler) leaderboard(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	response, err := h.service.GetLeaderboard(requestContext(c), userID, limit)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load leaderboard")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load leaderboard")
	}

	return utils.OK(c, response.Entries, "leaderboard", fiber.Map{"cache_hit": response.CacheHit, "count": len(response.Entries)})
}
