package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal-api/internal/analytics"
	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/middleware"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/internal/utils"
)

// AnalyticsHandler serves the student analytics overview and staff updates.
type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  zerolog.Logger
}

// NewAnalyticsHandler constructs an analytics handler.
func NewAnalyticsHandler(service service.AnalyticsService, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// Register wires the analytics routes. Updates are restricted to staff.
func (h *AnalyticsHandler) Register(router fiber.Router) {
	router.Get("/me", h.overview)
	router.Delete("/me", h.release)

	staff := middleware.RequireStaff()
	router.Put("/:studentId/attendance", staff, h.updateAttendance)
	router.Put("/:studentId/grades", staff, h.updateGrades)
	router.Put("/:studentId/progress", staff, h.updateProgress)
}

func (h *AnalyticsHandler) overview(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	response, err := h.service.GetOverview(requestContext(c), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", userID).Msg("failed to load analytics")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load analytics")
	}

	return utils.SendSuccess(c, "analytics overview", response)
}

func (h *AnalyticsHandler) release(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	h.service.Release(userID)
	return utils.SendSuccess(c, "analytics state released", nil)
}

func (h *AnalyticsHandler) updateAttendance(c *fiber.Ctx) error {
	var payload dto.UpdateAttendanceRequest
	return h.update(c, &payload, "attendance updated", func(studentID uint) (*analytics.Snapshot, error) {
		return h.service.UpdateAttendance(requestContext(c), studentID, payload)
	})
}

func (h *AnalyticsHandler) updateGrades(c *fiber.Ctx) error {
	var payload dto.UpdateGradesRequest
	return h.update(c, &payload, "grades updated", func(studentID uint) (*analytics.Snapshot, error) {
		return h.service.UpdateGrades(requestContext(c), studentID, payload)
	})
}

func (h *AnalyticsHandler) updateProgress(c *fiber.Ctx) error {
	var payload dto.UpdateProgressRequest
	return h.update(c, &payload, "progress updated", func(studentID uint) (*analytics.Snapshot, error) {
		return h.service.UpdateProgress(requestContext(c), studentID, payload)
	})
}

// update parses the target student and body into payload before calling apply.
func (h *AnalyticsHandler) update(c *fiber.Ctx, payload interface{}, message string, apply func(studentID uint) (*analytics.Snapshot, error)) error {
	studentID, err := parseParamUint(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := c.BodyParser(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := apply(studentID)
	if err != nil {
		if isValidationError(err) {
			return sendValidationError(c, err)
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", studentID).Msg("failed to update analytics")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to update analytics")
	}

	return utils.SendSuccess(c, message, snapshot)
}
