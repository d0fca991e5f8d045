package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	CORSAllowOrigins     []string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	EventChannel         string
	JWTSecret            string
	LeaderboardCacheTTL  time.Duration
	FeedbackDedupeTTL    time.Duration
	SeedEnabled          bool
	SeedToken            string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	OpenAIMaxTokens      int
	AssistantTimeout     time.Duration
	AssistantPrompt      string
	AssistantFallback    string
	AssistantRateLimit   int
	AssistantMaxSessions int
	AssistantMaxPerUser  int
	AssistantIdleTTL     time.Duration
}

// DefaultAssistantPrompt is the system instruction sent with every assistant conversation.
const DefaultAssistantPrompt = "You are the GEMA student portal assistant. Answer questions about courses, " +
	"assignments, points and the portal itself. Keep answers short and include links when they help."

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Portal API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "gema:portal")
	v.SetDefault("leaderboard.cache_ttl", "1m")
	v.SetDefault("feedback.dedupe_ttl", "5m")
	v.SetDefault("seed.enabled", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 512)
	v.SetDefault("assistant.timeout", "30s")
	v.SetDefault("assistant.prompt", DefaultAssistantPrompt)
	v.SetDefault("assistant.rate_limit", 20)
	v.SetDefault("assistant.max_sessions", 500)
	v.SetDefault("assistant.max_sessions_per_user", 5)
	v.SetDefault("assistant.idle_ttl", "30m")

	leaderboardTTL, err := parseDuration(v, "leaderboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	dedupeTTL, err := parseDuration(v, "feedback.dedupe_ttl")
	if err != nil {
		return Config{}, err
	}
	assistantTimeout, err := parseDuration(v, "assistant.timeout")
	if err != nil {
		return Config{}, err
	}
	assistantIdleTTL, err := parseDuration(v, "assistant.idle_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		CORSAllowOrigins:     splitList(v.GetString("cors.allow_origins")),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		EventChannel:         v.GetString("events.channel"),
		JWTSecret:            v.GetString("jwt.secret"),
		LeaderboardCacheTTL:  leaderboardTTL,
		FeedbackDedupeTTL:    dedupeTTL,
		SeedEnabled:          v.GetBool("seed.enabled"),
		SeedToken:            v.GetString("seed.token"),
		OpenAIAPIKey:         v.GetString("openai.api_key"),
		OpenAIModel:          v.GetString("openai.model"),
		OpenAIBaseURL:        v.GetString("openai.base_url"),
		OpenAIMaxTokens:      v.GetInt("openai.max_tokens"),
		AssistantTimeout:     assistantTimeout,
		AssistantPrompt:      v.GetString("assistant.prompt"),
		AssistantFallback:    v.GetString("assistant.fallback"),
		AssistantRateLimit:   v.GetInt("assistant.rate_limit"),
		AssistantMaxSessions: v.GetInt("assistant.max_sessions"),
		AssistantMaxPerUser:  v.GetInt("assistant.max_sessions_per_user"),
		AssistantIdleTTL:     assistantIdleTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.OpenAIMaxTokens <= 0 {
		cfg.OpenAIMaxTokens = 512
	}

	if cfg.AssistantRateLimit <= 0 {
		cfg.AssistantRateLimit = 20
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
