package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal-api/internal/config"
	"github.com/noah-isme/gema-portal-api/internal/database"
	"github.com/noah-isme/gema-portal-api/internal/handler"
	"github.com/noah-isme/gema-portal-api/internal/middleware"
	"github.com/noah-isme/gema-portal-api/internal/repository"
	"github.com/noah-isme/gema-portal-api/internal/router"
	"github.com/noah-isme/gema-portal-api/internal/service"
	"github.com/noah-isme/gema-portal-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set, leaderboard cache and feedback dedupe disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, gamification events go to redis only")
		} else {
			defer natsConn.Drain()
		}
	}

	validate := service.NewValidator()

	gamificationRepo := repository.NewGamificationRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	events := service.NewPointsEventPublisher(redisClient, natsConn, cfg.EventChannel, logger)
	chatClient := ai.NewOpenAIChat(ai.OpenAIConfig{
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.OpenAIModel,
		BaseURL:   cfg.OpenAIBaseURL,
		MaxTokens: cfg.OpenAIMaxTokens,
		Logger:    logger,
	})
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("openai api key not set, assistant replies will use the fallback text")
	}

	gamificationService := service.NewGamificationService(gamificationRepo, redisClient, cfg.LeaderboardCacheTTL, events, validate, logger)
	analyticsService := service.NewAnalyticsService(analyticsRepo, feedbackRepo, validate, logger)
	feedbackService := service.NewFeedbackService(feedbackRepo, redisClient, validate, analyticsService, cfg.FeedbackDedupeTTL, logger)
	seedService := service.NewSeedService(gamificationRepo, studentRepo, redisClient, cfg.SeedEnabled, cfg.SeedToken, logger, gamificationService)
	assistantService := service.NewAssistantService(chatClient, service.AssistantConfig{
		SystemPrompt:        cfg.AssistantPrompt,
		FallbackReply:       cfg.AssistantFallback,
		Timeout:             cfg.AssistantTimeout,
		MaxSessions:         cfg.AssistantMaxSessions,
		MaxSessionsPerOwner: cfg.AssistantMaxPerUser,
		IdleTTL:             cfg.AssistantIdleTTL,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		GamificationHandler: handler.NewGamificationHandler(gamificationService, logger),
		AnalyticsHandler:    handler.NewAnalyticsHandler(analyticsService, logger),
		AssistantHandler:    handler.NewAssistantHandler(assistantService, validate, cfg.AssistantRateLimit, logger),
		FeedbackHandler:     handler.NewFeedbackHandler(feedbackService, logger),
		SeedHandler:         handler.NewSeedHandler(seedService, validate, logger),
		HealthProbes:        healthProbes(db, redisClient),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		OptionalJWT:         middleware.OptionalJWT(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, assistantService, logger)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return probes
}

func waitForShutdown(app *fiber.App, assistantService service.AssistantService, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	// Cancel pending completions so websocket handlers can return.
	assistantService.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
