package assistant

import (
	"strings"
	"time"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockTypeText is the only content block type exchanged with the completion endpoint.
const BlockTypeText = "text"

// TextBlock is a single text segment of a message.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Content is the normalised list form of message content. Bare-string
// payloads are converted with TextContent at the boundary.
type Content []TextBlock

// TextContent wraps a bare string into the single-segment form.
func TextContent(text string) Content {
	return Content{{Type: BlockTypeText, Text: text}}
}

// Text joins every text segment.
func (c Content) Text() string {
	switch len(c) {
	case 0:
		return ""
	case 1:
		return c[0].Text
	}
	parts := make([]string, 0, len(c))
	for _, block := range c {
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "")
}

// Message is one transcript turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) clone() Message {
	m.Content = append(Content(nil), m.Content...)
	return m
}
