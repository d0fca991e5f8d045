package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, time.Minute, cfg.LeaderboardCacheTTL)
	require.Equal(t, 30*time.Second, cfg.AssistantTimeout)
	require.Equal(t, 5, cfg.AssistantMaxPerUser)
	require.Equal(t, 30*time.Minute, cfg.AssistantIdleTTL)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, DefaultAssistantPrompt, cfg.AssistantPrompt)
	require.False(t, cfg.SeedEnabled)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_APP_PORT", ":9000")
	t.Setenv("GEMA_OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMA_ASSISTANT_TIMEOUT", "5s")
	t.Setenv("GEMA_ASSISTANT_IDLE_TTL", "10m")
	t.Setenv("GEMA_ASSISTANT_MAX_SESSIONS_PER_USER", "2")
	t.Setenv("GEMA_SEED_ENABLED", "true")
	t.Setenv("GEMA_CORS_ALLOW_ORIGINS", "https://portal.gema.id, ,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress())
	require.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	require.Equal(t, 5*time.Second, cfg.AssistantTimeout)
	require.Equal(t, 10*time.Minute, cfg.AssistantIdleTTL)
	require.Equal(t, 2, cfg.AssistantMaxPerUser)
	require.True(t, cfg.SeedEnabled)
	require.Equal(t, []string{"https://portal.gema.id", "http://localhost:3000"}, cfg.CORSAllowOrigins)
}

func TestLoadRejectsMissingSecretAndBadDurations(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_LEADERBOARD_CACHE_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "leaderboard.cache_ttl")
}
