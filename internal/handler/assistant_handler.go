package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal-api/internal/assistant"
	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/middleware"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/internal/utils"
)

// AssistantHandler wires the support assistant over HTTP and websocket.
type AssistantHandler struct {
	service   service.AssistantService
	validator *validator.Validate
	logger    zerolog.Logger
	rateLimit int
}

// NewAssistantHandler creates an assistant handler. rateLimit caps messages per user per minute.
func NewAssistantHandler(service service.AssistantService, validator *validator.Validate, rateLimit int, logger zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "assistant_handler").Logger(),
		rateLimit: rateLimit,
	}
}

// Register binds assistant routes under the provided router group.
func (h *AssistantHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))

	router.Post("/sessions", h.open)
	router.Get("/sessions/:id", h.transcript)
	router.Post("/sessions/:id/messages", middleware.RateLimit("assistant", h.rateLimit, time.Minute), h.send)
	router.Delete("/sessions/:id", h.close)
}

func (h *AssistantHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	h.logger.Info().Uint("user_id", userID).Msg("assistant websocket connected")
	h.service.ServeConnection(conn, service.AssistantConnectionOptions{
		UserID:        userID,
		CorrelationID: correlation,
		Context:       baseCtx,
	})
	h.logger.Info().Uint("user_id", userID).Msg("assistant websocket disconnected")
}

func (h *AssistantHandler) open(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	response, err := h.service.Open(userID)
	if err != nil {
		if errors.Is(err, service.ErrOwnerSessionLimit) {
			return utils.SendError(c, fiber.StatusTooManyRequests, err.Error())
		}
		if errors.Is(err, service.ErrSessionLimit) {
			return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to open assistant session")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to open session")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assistant session opened", response)
}

func (h *AssistantHandler) transcript(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	response, err := h.service.Transcript(userID, c.Params("id"))
	if err != nil {
		return h.sendSessionError(c, err)
	}

	return utils.SendSuccess(c, "assistant session", response)
}

func (h *AssistantHandler) send(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	var payload dto.AssistantSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	payload.Message = strings.TrimSpace(payload.Message)
	if h.validator != nil {
		if err := h.validator.Struct(payload); err != nil {
			return sendValidationError(c, err)
		}
	}

	response, err := h.service.Send(requestContext(c), userID, c.Params("id"), payload.Message)
	if err != nil {
		return h.sendSessionError(c, err)
	}

	message := "assistant replied"
	if response.Degraded {
		message = "assistant unavailable, fallback reply sent"
	}
	return utils.SendSuccess(c, message, response)
}

func (h *AssistantHandler) close(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	if err := h.service.Close(userID, c.Params("id")); err != nil {
		return h.sendSessionError(c, err)
	}

	return utils.SendSuccess(c, "assistant session closed", nil)
}

func (h *AssistantHandler) sendSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, assistant.ErrEmptyMessage):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, assistant.ErrRequestInFlight):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, assistant.ErrSessionClosed):
		return utils.SendError(c, fiber.StatusGone, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("assistant request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "assistant request failed")
	}
}

func websocketUserID(conn *websocket.Conn) uint {
	switch v := conn.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	case string:
		if parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil {
			return uint(parsed)
		}
	}
	return 0
}
