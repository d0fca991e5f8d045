package ai

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned when a request is attempted without a credential.
var ErrMissingAPIKey = errors.New("ai api key is not configured")

// ErrEmptyResponse is returned when the provider answers without any choice or content.
var ErrEmptyResponse = errors.New("no content returned from ai provider")

// PartTypeText marks a text content part.
const PartTypeText = "text"

// Part is one content block of a chat turn.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Turn is a single chat message sent to or received from the provider.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"content"`
}

// ChatClient issues one non-streaming chat completion.
type ChatClient interface {
	Chat(ctx context.Context, turns []Turn) ([]Part, error)
}
