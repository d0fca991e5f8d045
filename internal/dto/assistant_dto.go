package dto

import (
	"time"

	"github.com/noah-isme/gema-portal-api/internal/assistant"
	"github.com/noah-isme/gema-portal-api/internal/linkify"
)

// AssistantSendRequest carries one user message.
type AssistantSendRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

// AssistantMessageResponse is a transcript turn with its link segments pre-rendered.
type AssistantMessageResponse struct {
	Role      assistant.Role    `json:"role"`
	Content   assistant.Content `json:"content"`
	Segments  []linkify.Segment `json:"segments"`
	HTML      string            `json:"html"`
	CreatedAt time.Time         `json:"created_at"`
}

// AssistantSessionResponse describes a chat session and its transcript.
type AssistantSessionResponse struct {
	SessionID  string                     `json:"session_id"`
	State      assistant.State            `json:"state"`
	LastError  string                     `json:"last_error,omitempty"`
	Transcript []AssistantMessageResponse `json:"transcript"`
}

// AssistantSendResponse is returned after a message round trip. Degraded is
// true when the reply is the fallback text; Error then carries the cause.
type AssistantSendResponse struct {
	SessionID string                   `json:"session_id"`
	State     assistant.State          `json:"state"`
	Reply     AssistantMessageResponse `json:"reply"`
	Degraded  bool                     `json:"degraded"`
	Error     string                   `json:"error,omitempty"`
}

// AssistantSocketFrame is exchanged over the assistant websocket.
type AssistantSocketFrame struct {
	Type      string                    `json:"type"`
	SessionID string                    `json:"session_id,omitempty"`
	Message   string                    `json:"message,omitempty"`
	Reply     *AssistantMessageResponse `json:"reply,omitempty"`
	State     assistant.State           `json:"state,omitempty"`
	Degraded  bool                      `json:"degraded,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// NewAssistantMessageResponse converts a transcript turn, splitting its text into link segments.
func NewAssistantMessageResponse(message assistant.Message) AssistantMessageResponse {
	segments := linkify.Parse(message.Content.Text())
	if segments == nil {
		segments = []linkify.Segment{}
	}
	return AssistantMessageResponse{
		Role:      message.Role,
		Content:   message.Content,
		Segments:  segments,
		HTML:      linkify.RenderHTML(segments),
		CreatedAt: message.CreatedAt,
	}
}

// NewAssistantMessageResponseSlice converts a transcript.
func NewAssistantMessageResponseSlice(messages []assistant.Message) []AssistantMessageResponse {
	out := make([]AssistantMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewAssistantMessageResponse(message))
	}
	return out
}
