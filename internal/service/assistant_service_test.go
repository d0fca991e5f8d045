package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal-api/internal/assistant"
	"github.com/noah-isme/gema-portal-api/internal/linkify"
	"github.com/noah-isme/gema-portal-api/pkg/ai"
)

type chatClientStub struct {
	mu    sync.Mutex
	turns [][]ai.Turn
	parts []ai.Part
	err   error
}

func (c *chatClientStub) Chat(ctx context.Context, turns []ai.Turn) ([]ai.Part, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns)
	return c.parts, c.err
}

func newAssistantFixture(client ai.ChatClient) AssistantService {
	return NewAssistantService(client, AssistantConfig{
		SystemPrompt: "You are the GEMA assistant.",
		Timeout:      time.Second,
		MaxSessions:  2,
	}, testLogger())
}

func TestAssistantRoundTripRendersLinks(t *testing.T) {
	client := &chatClientStub{parts: []ai.Part{
		{Type: ai.PartTypeText, Text: "Read [the guide](https://gema.dev/guide) "},
		{Type: ai.PartTypeText, Text: "or https://gema.dev/faq"},
	}}
	svc := newAssistantFixture(client)

	opened, err := svc.Open(5)
	require.NoError(t, err)
	require.Equal(t, assistant.StateIdle, opened.State)

	resp, err := svc.Send(context.Background(), 5, opened.SessionID, "where are the docs?")
	require.NoError(t, err)
	require.False(t, resp.Degraded)
	require.Equal(t, assistant.StateIdle, resp.State)
	require.Len(t, resp.Reply.Content, 2)
	require.Equal(t, []linkify.Segment{
		{Kind: linkify.KindText, Text: "Read "},
		{Kind: linkify.KindLink, Text: "the guide", URL: "https://gema.dev/guide"},
		{Kind: linkify.KindText, Text: " or "},
		{Kind: linkify.KindLink, Text: "https://gema.dev/faq", URL: "https://gema.dev/faq"},
	}, resp.Reply.Segments)
	require.Contains(t, resp.Reply.HTML, `href="https://gema.dev/guide"`)

	require.Len(t, client.turns, 1)
	require.Equal(t, "system", client.turns[0][0].Role)
	require.Equal(t, "You are the GEMA assistant.", client.turns[0][0].Parts[0].Text)
	require.Equal(t, "user", client.turns[0][1].Role)

	transcript, err := svc.Transcript(5, opened.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript.Transcript, 2)
}

func TestAssistantFailureReturnsDegradedFallback(t *testing.T) {
	svc := newAssistantFixture(&chatClientStub{err: ai.ErrMissingAPIKey})

	opened, err := svc.Open(5)
	require.NoError(t, err)

	resp, err := svc.Send(context.Background(), 5, opened.SessionID, "hello")
	require.NoError(t, err)
	require.True(t, resp.Degraded)
	require.Equal(t, assistant.StateIdleWithError, resp.State)
	require.Equal(t, assistant.DefaultFallbackReply, resp.Reply.Content.Text())
	require.Equal(t, ai.ErrMissingAPIKey.Error(), resp.Error)

	transcript, err := svc.Transcript(5, opened.SessionID)
	require.NoError(t, err)
	require.Equal(t, ai.ErrMissingAPIKey.Error(), transcript.LastError)
	require.Len(t, transcript.Transcript, 2)
}

func TestAssistantRejectsForeignOwnerAndBlankInput(t *testing.T) {
	svc := newAssistantFixture(&chatClientStub{parts: []ai.Part{{Type: ai.PartTypeText, Text: "ok"}}})

	opened, err := svc.Open(5)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), 6, opened.SessionID, "hi")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Send(context.Background(), 5, opened.SessionID, "   ")
	require.ErrorIs(t, err, assistant.ErrEmptyMessage)

	require.ErrorIs(t, svc.Close(6, opened.SessionID), ErrSessionNotFound)
	require.NoError(t, svc.Close(5, opened.SessionID))
	_, err = svc.Transcript(5, opened.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAssistantSessionLimit(t *testing.T) {
	svc := newAssistantFixture(&chatClientStub{})

	_, err := svc.Open(1)
	require.NoError(t, err)
	_, err = svc.Open(2)
	require.NoError(t, err)
	_, err = svc.Open(3)
	require.ErrorIs(t, err, ErrSessionLimit)

	svc.Shutdown()
	_, err = svc.Open(3)
	require.NoError(t, err)
}

func TestChatCompleterDropsNonTextParts(t *testing.T) {
	completer := NewChatCompleter(&chatClientStub{parts: []ai.Part{
		{Type: "image_url", Text: ""},
		{Type: ai.PartTypeText, Text: "hi"},
	}})

	content, err := completer.Complete(context.Background(), []assistant.Message{{Role: assistant.RoleUser, Content: assistant.TextContent("hello")}})
	require.NoError(t, err)
	require.Equal(t, assistant.TextContent("hi"), content)

	failing := NewChatCompleter(&chatClientStub{err: errors.New("boom")})
	_, err = failing.Complete(context.Background(), nil)
	require.EqualError(t, err, "boom")
}

func TestAssistantPerOwnerLimit(t *testing.T) {
	svc := NewAssistantService(&chatClientStub{}, AssistantConfig{MaxSessions: 10, MaxSessionsPerOwner: 2}, testLogger())
	t.Cleanup(svc.Shutdown)

	first, err := svc.Open(1)
	require.NoError(t, err)
	_, err = svc.Open(1)
	require.NoError(t, err)
	_, err = svc.Open(1)
	require.ErrorIs(t, err, ErrOwnerSessionLimit)

	_, err = svc.Open(2)
	require.NoError(t, err)

	require.NoError(t, svc.Close(1, first.SessionID))
	_, err = svc.Open(1)
	require.NoError(t, err)
}

func TestAssistantIdleSessionsExpire(t *testing.T) {
	svc := NewAssistantService(&chatClientStub{}, AssistantConfig{MaxSessions: 3, IdleTTL: time.Minute}, testLogger())
	t.Cleanup(svc.Shutdown)

	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	impl := svc.(*assistantService)
	impl.now = func() time.Time { return clock }

	stale, err := svc.Open(1)
	require.NoError(t, err)
	active, err := svc.Open(2)
	require.NoError(t, err)
	socket, err := impl.open(3, true, testLogger())
	require.NoError(t, err)

	clock = clock.Add(45 * time.Second)
	_, err = svc.Transcript(2, active.SessionID)
	require.NoError(t, err)

	clock = clock.Add(30 * time.Second)
	_, err = svc.Open(4)
	require.NoError(t, err, "the idle session frees a slot")

	_, err = svc.Transcript(1, stale.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Transcript(2, active.SessionID)
	require.NoError(t, err)
	_, err = svc.Transcript(3, socket.SessionID)
	require.NoError(t, err, "websocket sessions are bound to their connection")
}
