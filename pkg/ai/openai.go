package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	chatDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "chat_duration_seconds",
		Help:      "Duration of assistant chat completion requests",
	}, []string{"model"})

	chatFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "chat_failures_total",
		Help:      "Number of assistant chat completion failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI chat client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// OpenAIChat implements ChatClient against an OpenAI compatible chat completion API.
type OpenAIChat struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIChat builds a chat client. A missing API key is not an error here;
// every Chat call reports ErrMissingAPIKey instead so callers can degrade gracefully.
func NewOpenAIChat(cfg OpenAIConfig) *OpenAIChat {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIChat{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-portal-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_chat").Logger(),
	}
}

// Model returns the configured model name.
func (c *OpenAIChat) Model() string {
	return c.cfg.Model
}

// Chat sends the conversation and returns the content blocks of the first choice.
// String and array shaped content are both normalised into parts.
func (c *OpenAIChat) Chat(parent context.Context, turns []Turn) ([]Part, error) {
	ctx, span := c.tracer.Start(parent, "openai.chat", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.Int("turns", len(turns)),
	))
	defer span.End()

	if strings.TrimSpace(c.cfg.APIKey) == "" {
		chatFailures.WithLabelValues(c.cfg.Model).Inc()
		span.SetStatus(codes.Error, ErrMissingAPIKey.Error())
		return nil, ErrMissingAPIKey
	}

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    toOpenAIMessages(turns),
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	chatDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		chatFailures.WithLabelValues(c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		chatFailures.WithLabelValues(c.cfg.Model).Inc()
		span.RecordError(ErrEmptyResponse)
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, ErrEmptyResponse
	}

	parts := fromOpenAIMessage(resp.Choices[0].Message)
	if len(parts) == 0 {
		chatFailures.WithLabelValues(c.cfg.Model).Inc()
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return nil, ErrEmptyResponse
	}

	c.logger.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion received")

	return parts, nil
}

func toOpenAIMessages(turns []Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		parts := make([]openai.ChatMessagePart, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:         turn.Role,
			MultiContent: parts,
		})
	}
	return messages
}

func fromOpenAIMessage(message openai.ChatCompletionMessage) []Part {
	if len(message.MultiContent) > 0 {
		parts := make([]Part, 0, len(message.MultiContent))
		for _, part := range message.MultiContent {
			if part.Type != openai.ChatMessagePartTypeText {
				continue
			}
			parts = append(parts, Part{Type: PartTypeText, Text: part.Text})
		}
		return parts
	}

	if message.Content == "" {
		return nil
	}
	return []Part{{Type: PartTypeText, Text: message.Content}}
}
