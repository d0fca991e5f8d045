// Package assistant implements the support chat session: an append-only
// transcript with at most one completion request in flight.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrEmptyMessage rejects blank user input.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrRequestInFlight rejects a send while a previous one is still awaiting its reply.
	ErrRequestInFlight = errors.New("a reply is still pending")
	// ErrSessionClosed is returned once the session has been torn down.
	ErrSessionClosed = errors.New("chat session closed")
	// ErrCompletionFailed wraps any failure of the completion endpoint.
	ErrCompletionFailed = errors.New("completion request failed")
	// ErrEmptyCompletion is reported when the endpoint answers without content.
	ErrEmptyCompletion = errors.New("completion returned no content")
)

const (
	// DefaultFallbackReply is appended as the assistant turn when a completion fails.
	DefaultFallbackReply = "Sorry, I couldn't reach the assistant right now. Please try again in a moment."
	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 30 * time.Second
)

// State is the controller state.
type State string

const (
	StateIdle          State = "idle"
	StateSending       State = "sending"
	StateIdleWithError State = "error"
)

// Completer issues one non-streaming completion for a conversation whose
// first message is the system instruction.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (Content, error)
}

// Config tunes a session.
type Config struct {
	SystemPrompt  string
	FallbackReply string
	Timeout       time.Duration
	Now           func() time.Time
}

// Session owns one conversation transcript.
type Session struct {
	mu         sync.Mutex
	completer  Completer
	cfg        Config
	transcript []Message
	state      State
	lastErr    error
	cancel     context.CancelFunc
	closed     bool
	logger     zerolog.Logger
}

// NewSession creates an idle session with an empty transcript.
func NewSession(completer Completer, cfg Config, logger zerolog.Logger) *Session {
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = DefaultFallbackReply
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Session{
		completer: completer,
		cfg:       cfg,
		state:     StateIdle,
		logger:    logger.With().Str("component", "assistant_session").Logger(),
	}
}

// Send appends the user turn, requests a completion and appends the reply.
// On completion failure the fallback reply is appended, the session moves to
// StateIdleWithError and the returned error wraps ErrCompletionFailed.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Message{}, ErrSessionClosed
	}
	if s.state == StateSending {
		s.mu.Unlock()
		return Message{}, ErrRequestInFlight
	}

	s.transcript = append(s.transcript, Message{Role: RoleUser, Content: TextContent(text), CreatedAt: s.cfg.Now()})
	s.lastErr = nil
	s.state = StateSending
	request := s.requestLocked()

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	s.cancel = cancel
	s.mu.Unlock()

	content, err := s.completer.Complete(reqCtx, request)
	cancel()
	if err == nil && len(content) == 0 {
		err = ErrEmptyCompletion
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil

	if s.closed {
		return Message{}, ErrSessionClosed
	}

	if err != nil {
		s.lastErr = err
		s.state = StateIdleWithError
		reply := Message{Role: RoleAssistant, Content: TextContent(s.cfg.FallbackReply), CreatedAt: s.cfg.Now()}
		s.transcript = append(s.transcript, reply)
		s.logger.Warn().Err(err).Int("turns", len(s.transcript)).Msg("completion failed, fallback reply appended")
		return reply.clone(), fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	reply := Message{Role: RoleAssistant, Content: append(Content(nil), content...), CreatedAt: s.cfg.Now()}
	s.transcript = append(s.transcript, reply)
	s.state = StateIdle
	return reply.clone(), nil
}

// requestLocked builds system prompt + full transcript. The transcript
// already ends with the new user turn.
func (s *Session) requestLocked() []Message {
	messages := make([]Message, 0, len(s.transcript)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: TextContent(s.cfg.SystemPrompt)})
	for _, message := range s.transcript {
		messages = append(messages, message.clone())
	}
	return messages
}

// Transcript returns a copy of the conversation, oldest first.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.transcript))
	for _, message := range s.transcript {
		out = append(out, message.clone())
	}
	return out
}

// State returns the current controller state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of the last failed request, if the session is in StateIdleWithError.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close tears the session down, cancelling any in-flight request and discarding the transcript.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.transcript = nil
	s.state = StateIdle
	s.lastErr = nil
}
