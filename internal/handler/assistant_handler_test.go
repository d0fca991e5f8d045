package handler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal-api/internal/assistant"
	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/handler"
	"github.com/noah-isme/gema-portal-api/internal/linkify"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/pkg/ai"
)

type fakeChatClient struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeChatClient) Chat(_ context.Context, turns []ai.Turn) ([]ai.Part, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []ai.Part{{Type: ai.PartTypeText, Text: f.reply}}, nil
}

func newAssistantService(t *testing.T, client ai.ChatClient, maxSessions int) service.AssistantService {
	t.Helper()
	svc := service.NewAssistantService(client, service.AssistantConfig{
		SystemPrompt: "You are the GEMA portal assistant.",
		Timeout:      2 * time.Second,
		MaxSessions:  maxSessions,
	}, zerolog.New(io.Discard))
	t.Cleanup(svc.Shutdown)
	return svc
}

func newAssistantApp(svc service.AssistantService, userID uint) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	group := app.Group("/api/v2/assistant")
	if userID != 0 {
		group.Use(withUser(userID, "student"))
	}
	handler.NewAssistantHandler(svc, validator.New(), 100, zerolog.New(io.Discard)).Register(group)
	return app
}

func openSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var session dto.AssistantSessionResponse
	decodeEnvelope(t, resp, &session)
	require.NotEmpty(t, session.SessionID)
	require.Equal(t, assistant.StateIdle, session.State)
	return session.SessionID
}

func TestAssistantHandler_SendReturnsLinkifiedReply(t *testing.T) {
	client := &fakeChatClient{reply: "Check [the syllabus](https://gema.id/syllabus) or https://gema.id/help"}
	app := newAssistantApp(newAssistantService(t, client, 0), 7)
	sessionID := openSession(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions/"+sessionID+"/messages", map[string]string{"message": "where is the syllabus?"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data dto.AssistantSendResponse
	decodeEnvelope(t, resp, &data)
	require.False(t, data.Degraded)
	require.Equal(t, assistant.StateIdle, data.State)
	require.Equal(t, assistant.RoleAssistant, data.Reply.Role)
	require.Equal(t, []linkify.Segment{
		{Kind: linkify.KindText, Text: "Check "},
		{Kind: linkify.KindLink, Text: "the syllabus", URL: "https://gema.id/syllabus"},
		{Kind: linkify.KindText, Text: " or "},
		{Kind: linkify.KindLink, Text: "https://gema.id/help", URL: "https://gema.id/help"},
	}, data.Reply.Segments)
	require.Contains(t, data.Reply.HTML, `href="https://gema.id/syllabus"`)

	resp, err = app.Test(jsonRequest(t, http.MethodGet, "/api/v2/assistant/sessions/"+sessionID, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var session dto.AssistantSessionResponse
	decodeEnvelope(t, resp, &session)
	require.Len(t, session.Transcript, 2)
	require.Equal(t, assistant.RoleUser, session.Transcript[0].Role)
}

func TestAssistantHandler_FailedCompletionIsDegraded(t *testing.T) {
	client := &fakeChatClient{err: errors.New("upstream 500")}
	app := newAssistantApp(newAssistantService(t, client, 0), 7)
	sessionID := openSession(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions/"+sessionID+"/messages", map[string]string{"message": "hello"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data dto.AssistantSendResponse
	env := decodeEnvelope(t, resp, &data)
	require.True(t, data.Degraded)
	require.Equal(t, assistant.StateIdleWithError, data.State)
	require.Equal(t, assistant.DefaultFallbackReply, data.Reply.Content.Text())
	require.Contains(t, data.Error, "upstream 500")
	require.Equal(t, "assistant unavailable, fallback reply sent", env.Message)
}

func TestAssistantHandler_BlankMessageRejected(t *testing.T) {
	client := &fakeChatClient{reply: "hi"}
	app := newAssistantApp(newAssistantService(t, client, 0), 7)
	sessionID := openSession(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions/"+sessionID+"/messages", map[string]string{"message": "   "}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Zero(t, client.calls)
}

func TestAssistantHandler_SessionsAreOwnerScoped(t *testing.T) {
	svc := newAssistantService(t, &fakeChatClient{reply: "hi"}, 0)
	sessionID := openSession(t, newAssistantApp(svc, 7))

	other := newAssistantApp(svc, 8)
	resp, err := other.Test(jsonRequest(t, http.MethodGet, "/api/v2/assistant/sessions/"+sessionID, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = other.Test(jsonRequest(t, http.MethodDelete, "/api/v2/assistant/sessions/"+sessionID, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAssistantHandler_CloseThenSendIsNotFound(t *testing.T) {
	app := newAssistantApp(newAssistantService(t, &fakeChatClient{reply: "hi"}, 0), 7)
	sessionID := openSession(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodDelete, "/api/v2/assistant/sessions/"+sessionID, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions/"+sessionID+"/messages", map[string]string{"message": "still there?"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAssistantHandler_SessionLimit(t *testing.T) {
	app := newAssistantApp(newAssistantService(t, &fakeChatClient{reply: "hi"}, 1), 7)
	openSession(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestAssistantHandler_RequiresUser(t *testing.T) {
	app := newAssistantApp(newAssistantService(t, &fakeChatClient{reply: "hi"}, 0), 0)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAssistantHandler_WebsocketRequiresUpgrade(t *testing.T) {
	app := newAssistantApp(newAssistantService(t, &fakeChatClient{reply: "hi"}, 0), 7)

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v2/assistant/ws", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestAssistantHandler_WebsocketRoundTrip(t *testing.T) {
	app := newAssistantApp(newAssistantService(t, &fakeChatClient{reply: "Open https://gema.id/points"}, 0), 7)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(listener) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := fmt.Sprintf("ws://%s/api/v2/assistant/ws", listener.Addr().String())
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame dto.AssistantSocketFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "session", frame.Type)
	require.NotEmpty(t, frame.SessionID)
	sessionID := frame.SessionID

	require.NoError(t, conn.WriteJSON(dto.AssistantSocketFrame{Type: "ping"}))
	frame = dto.AssistantSocketFrame{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "pong", frame.Type)

	require.NoError(t, conn.WriteJSON(dto.AssistantSocketFrame{Type: "message", Message: "how do I see my points?"}))
	frame = dto.AssistantSocketFrame{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "reply", frame.Type)
	require.Equal(t, sessionID, frame.SessionID)
	require.NotNil(t, frame.Reply)
	require.Len(t, frame.Reply.Segments, 2)
	require.Equal(t, "https://gema.id/points", frame.Reply.Segments[1].URL)
	require.False(t, frame.Degraded)

	require.NoError(t, conn.WriteJSON(dto.AssistantSocketFrame{Type: "bogus"}))
	frame = dto.AssistantSocketFrame{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "error", frame.Type)
}

type failingAssistantService struct {
	service.AssistantService
	err error
}

func (f *failingAssistantService) Send(context.Context, uint, string, string) (dto.AssistantSendResponse, error) {
	return dto.AssistantSendResponse{}, f.err
}

func TestAssistantHandler_SendErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: service.ErrSessionNotFound, status: fiber.StatusNotFound},
		{name: "in flight", err: fmt.Errorf("send: %w", assistant.ErrRequestInFlight), status: fiber.StatusConflict},
		{name: "closed", err: assistant.ErrSessionClosed, status: fiber.StatusGone},
		{name: "unexpected", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newAssistantApp(&failingAssistantService{err: tc.err}, 7)

			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions/abc/messages", map[string]string{"message": "hello"}))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAssistantHandler_PerUserSessionLimit(t *testing.T) {
	app := newAssistantApp(newAssistantService(t, &fakeChatClient{reply: "hi"}, 0), 7)
	for i := 0; i < 5; i++ {
		openSession(t, app)
	}

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/assistant/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
