package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-portal-api/internal/assistant"
	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/observability"
	"github.com/noah-isme/gema-portal-api/pkg/ai"
)

var (
	// ErrSessionNotFound indicates the session id is unknown or owned by someone else.
	ErrSessionNotFound = errors.New("assistant session not found")
	// ErrSessionLimit indicates the open session cap has been reached.
	ErrSessionLimit = errors.New("too many open assistant sessions")
	// ErrOwnerSessionLimit indicates the user already holds the maximum number of sessions.
	ErrOwnerSessionLimit = errors.New("too many open assistant sessions for this user")
)

const (
	defaultMaxSessions         = 500
	defaultMaxSessionsPerOwner = 5
	defaultSessionIdleTTL      = 30 * time.Minute
)

// AssistantConfig tunes the sessions opened by the assistant service.
type AssistantConfig struct {
	SystemPrompt        string
	FallbackReply       string
	Timeout             time.Duration
	MaxSessions         int
	MaxSessionsPerOwner int
	// IdleTTL closes REST sessions that have not been used for this long.
	// Websocket sessions live as long as their connection.
	IdleTTL time.Duration
}

// AssistantConnectionOptions wraps metadata extracted during the websocket upgrade.
type AssistantConnectionOptions struct {
	UserID        uint
	CorrelationID string
	Context       context.Context
}

// AssistantService manages support chat sessions.
type AssistantService interface {
	Open(ownerID uint) (dto.AssistantSessionResponse, error)
	Send(ctx context.Context, ownerID uint, sessionID, message string) (dto.AssistantSendResponse, error)
	Transcript(ownerID uint, sessionID string) (dto.AssistantSessionResponse, error)
	Close(ownerID uint, sessionID string) error
	ServeConnection(conn *websocket.Conn, opts AssistantConnectionOptions)
	Shutdown()
}

type assistantSession struct {
	owner    uint
	session  *assistant.Session
	lastUsed time.Time
	pinned   bool
}

type assistantService struct {
	completer assistant.Completer
	cfg       AssistantConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*assistantSession

	done     chan struct{}
	stopOnce sync.Once
}

// NewAssistantService builds the session registry on top of a chat completion client.
func NewAssistantService(client ai.ChatClient, cfg AssistantConfig, logger zerolog.Logger) AssistantService {
	return newAssistantService(NewChatCompleter(client), cfg, logger)
}

func newAssistantService(completer assistant.Completer, cfg AssistantConfig, logger zerolog.Logger) *assistantService {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.MaxSessionsPerOwner <= 0 {
		cfg.MaxSessionsPerOwner = defaultMaxSessionsPerOwner
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultSessionIdleTTL
	}
	s := &assistantService{
		completer: completer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "assistant_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-portal-api/internal/service/assistant"),
		now:       time.Now,
		sessions:  make(map[string]*assistantSession),
		done:      make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *assistantService) Open(ownerID uint) (dto.AssistantSessionResponse, error) {
	return s.open(ownerID, false, s.logger)
}

func (s *assistantService) open(ownerID uint, pinned bool, logger zerolog.Logger) (dto.AssistantSessionResponse, error) {
	s.sweepIdle()

	s.mu.Lock()
	owned := 0
	for _, entry := range s.sessions {
		if entry.owner == ownerID {
			owned++
		}
	}
	if owned >= s.cfg.MaxSessionsPerOwner {
		s.mu.Unlock()
		return dto.AssistantSessionResponse{}, ErrOwnerSessionLimit
	}
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return dto.AssistantSessionResponse{}, ErrSessionLimit
	}

	id := uuid.NewString()
	session := assistant.NewSession(s.completer, assistant.Config{
		SystemPrompt:  s.cfg.SystemPrompt,
		FallbackReply: s.cfg.FallbackReply,
		Timeout:       s.cfg.Timeout,
	}, logger.With().Str("session_id", id).Logger())
	s.sessions[id] = &assistantSession{owner: ownerID, session: session, lastUsed: s.now(), pinned: pinned}
	s.mu.Unlock()

	observability.AssistantSessions().Inc()
	logger.Debug().Str("session_id", id).Uint("owner_id", ownerID).Msg("assistant session opened")

	return dto.AssistantSessionResponse{
		SessionID:  id,
		State:      session.State(),
		Transcript: []dto.AssistantMessageResponse{},
	}, nil
}

func (s *assistantService) lookup(ownerID uint, sessionID string) (*assistant.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok || entry.owner != ownerID {
		return nil, ErrSessionNotFound
	}
	entry.lastUsed = s.now()
	return entry.session, nil
}

// Send forwards one user message. A failed completion is not an error here:
// the fallback reply is returned with Degraded set.
func (s *assistantService) Send(ctx context.Context, ownerID uint, sessionID, message string) (dto.AssistantSendResponse, error) {
	session, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return dto.AssistantSendResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "assistant.send", trace.WithAttributes(
		attribute.String("assistant.session_id", sessionID),
		attribute.Int("assistant.message_length", len(message)),
	))
	defer span.End()

	reply, err := session.Send(ctx, message)
	switch {
	case err == nil:
		observability.AssistantMessages().WithLabelValues("ok").Inc()
	case errors.Is(err, assistant.ErrCompletionFailed):
		span.RecordError(err)
		observability.AssistantMessages().WithLabelValues("degraded").Inc()
		logger := observability.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("assistant completion failed, fallback reply sent")
		return dto.AssistantSendResponse{
			SessionID: sessionID,
			State:     session.State(),
			Reply:     dto.NewAssistantMessageResponse(reply),
			Degraded:  true,
			Error:     errorText(session.LastError()),
		}, nil
	default:
		observability.AssistantMessages().WithLabelValues("rejected").Inc()
		return dto.AssistantSendResponse{}, err
	}

	return dto.AssistantSendResponse{
		SessionID: sessionID,
		State:     session.State(),
		Reply:     dto.NewAssistantMessageResponse(reply),
	}, nil
}

func (s *assistantService) Transcript(ownerID uint, sessionID string) (dto.AssistantSessionResponse, error) {
	session, err := s.lookup(ownerID, sessionID)
	if err != nil {
		return dto.AssistantSessionResponse{}, err
	}

	return dto.AssistantSessionResponse{
		SessionID:  sessionID,
		State:      session.State(),
		LastError:  errorText(session.LastError()),
		Transcript: dto.NewAssistantMessageResponseSlice(session.Transcript()),
	}, nil
}

func (s *assistantService) Close(ownerID uint, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	if !ok || entry.owner != ownerID {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	entry.session.Close()
	observability.AssistantSessions().Dec()
	return nil
}

// Shutdown closes every open session, cancelling in-flight completions.
func (s *assistantService) Shutdown() {
	s.stopOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*assistantSession)
	s.mu.Unlock()

	for _, entry := range sessions {
		entry.session.Close()
		observability.AssistantSessions().Dec()
	}
}

// ServeConnection binds one session to the websocket lifetime. Frames of type
// "message" are answered with a "reply" frame; the session is closed when the
// socket goes away.
func (s *assistantService) ServeConnection(conn *websocket.Conn, opts AssistantConnectionOptions) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := s.logger.With().Str("correlation_id", opts.CorrelationID).Logger()

	opened, err := s.open(opts.UserID, true, logger)
	if err != nil {
		_ = conn.WriteJSON(dto.AssistantSocketFrame{Type: "error", Error: err.Error()})
		return
	}
	defer func() {
		_ = s.Close(opts.UserID, opened.SessionID)
	}()

	if err := conn.WriteJSON(dto.AssistantSocketFrame{Type: "session", SessionID: opened.SessionID, State: opened.State}); err != nil {
		return
	}

	for {
		var frame dto.AssistantSocketFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("assistant websocket read ended")
			}
			return
		}

		var out dto.AssistantSocketFrame
		switch frame.Type {
		case "ping":
			out = dto.AssistantSocketFrame{Type: "pong", SessionID: opened.SessionID}
		case "message":
			resp, err := s.Send(ctx, opts.UserID, opened.SessionID, frame.Message)
			if err != nil {
				out = dto.AssistantSocketFrame{Type: "error", SessionID: opened.SessionID, Error: err.Error()}
				break
			}
			reply := resp.Reply
			out = dto.AssistantSocketFrame{
				Type:      "reply",
				SessionID: opened.SessionID,
				Reply:     &reply,
				State:     resp.State,
				Degraded:  resp.Degraded,
				Error:     resp.Error,
			}
		default:
			out = dto.AssistantSocketFrame{Type: "error", SessionID: opened.SessionID, Error: "unsupported frame type"}
		}

		if err := conn.WriteJSON(out); err != nil {
			logger.Debug().Err(err).Msg("assistant websocket write failed")
			return
		}
	}
}

func (s *assistantService) sweepLoop() {
	interval := s.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepIdle()
		}
	}
}

// sweepIdle closes unpinned sessions idle for longer than IdleTTL. Sessions
// with a request in flight are kept.
func (s *assistantService) sweepIdle() {
	cutoff := s.now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var expired []*assistantSession
	for id, entry := range s.sessions {
		if entry.pinned || !entry.lastUsed.Before(cutoff) || entry.session.State() == assistant.StateSending {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, entry)
	}
	s.mu.Unlock()

	for _, entry := range expired {
		entry.session.Close()
		observability.AssistantSessions().Dec()
	}
	if len(expired) > 0 {
		s.logger.Debug().Int("sessions", len(expired)).Msg("idle assistant sessions closed")
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// chatCompleter adapts an ai.ChatClient to the session's Completer contract.
type chatCompleter struct {
	client ai.ChatClient
}

// NewChatCompleter wraps client so sessions can use it.
func NewChatCompleter(client ai.ChatClient) assistant.Completer {
	return &chatCompleter{client: client}
}

func (c *chatCompleter) Complete(ctx context.Context, messages []assistant.Message) (assistant.Content, error) {
	turns := make([]ai.Turn, 0, len(messages))
	for _, message := range messages {
		parts := make([]ai.Part, 0, len(message.Content))
		for _, block := range message.Content {
			parts = append(parts, ai.Part{Type: ai.PartTypeText, Text: block.Text})
		}
		turns = append(turns, ai.Turn{Role: string(message.Role), Parts: parts})
	}

	parts, err := c.client.Chat(ctx, turns)
	if err != nil {
		return nil, err
	}

	content := make(assistant.Content, 0, len(parts))
	for _, part := range parts {
		if part.Type != ai.PartTypeText {
			continue
		}
		content = append(content, assistant.TextBlock{Type: assistant.BlockTypeText, Text: part.Text})
	}
	return content, nil
}
