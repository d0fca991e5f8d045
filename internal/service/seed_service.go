package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/gamification"
	"github.com/noah-isme/gema-portal-api/internal/models"
	"github.com/noah-isme/gema-portal-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedService loads the achievement catalog and demo leaderboard data.
type SeedService interface {
	SeedCatalog(ctx context.Context, token string, req dto.SeedCatalogRequest) (dto.SeedCatalogResponse, error)
}

// StoreReleaser drops the in-memory state held for a student.
type StoreReleaser interface {
	Release(studentID uint)
}

type seedService struct {
	gamificationRepo repository.GamificationRepository
	studentRepo      repository.StudentRepository
	cache            *redis.Client
	releasers        []StoreReleaser
	enabled          bool
	token            string
	logger           zerolog.Logger
}

// NewSeedService constructs a seeding service. Seeded students are released
// from every releaser so their next read comes from the database.
func NewSeedService(gamificationRepo repository.GamificationRepository, studentRepo repository.StudentRepository, cache *redis.Client, enabled bool, token string, logger zerolog.Logger, releasers ...StoreReleaser) SeedService {
	return &seedService{
		gamificationRepo: gamificationRepo,
		studentRepo:      studentRepo,
		cache:            cache,
		releasers:        releasers,
		enabled:          enabled,
		token:            token,
		logger:           logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedCatalog(ctx context.Context, token string, req dto.SeedCatalogRequest) (dto.SeedCatalogResponse, error) {
	if !s.enabled {
		return dto.SeedCatalogResponse{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedCatalogResponse{}, ErrSeedUnauthorized
	}

	var resp dto.SeedCatalogResponse

	affected, err := s.gamificationRepo.UpsertCatalog(ctx, normalizeCatalog(req.Achievements))
	if err != nil {
		return dto.SeedCatalogResponse{}, err
	}
	resp.Achievements = affected

	students, ledgers := splitLedgers(req.Ledgers)
	if resp.Students, err = s.studentRepo.UpsertBatch(ctx, students); err != nil {
		return dto.SeedCatalogResponse{}, err
	}
	if resp.Ledgers, err = s.gamificationRepo.UpsertLedgers(ctx, ledgers); err != nil {
		return dto.SeedCatalogResponse{}, err
	}

	for _, ledger := range ledgers {
		for _, releaser := range s.releasers {
			releaser.Release(ledger.StudentID)
		}
	}

	if s.cache != nil && len(ledgers) > 0 {
		if err := s.cache.Del(ctx, leaderboardCacheKey).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate leaderboard cache")
		}
	}

	s.logger.Info().
		Int64("achievements", resp.Achievements).
		Int64("students", resp.Students).
		Int64("ledgers", resp.Ledgers).
		Msg("catalog seeded")
	return resp, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

func normalizeCatalog(items []dto.SeedAchievement) []models.Achievement {
	out := make([]models.Achievement, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(item.Title)), " ", "-")
		}
		out = append(out, models.Achievement{
			ID:              id,
			Title:           strings.TrimSpace(item.Title),
			Description:     item.Description,
			Points:          item.Points,
			Icon:            item.Icon,
			ThresholdPoints: item.ThresholdPoints,
		})
	}
	return out
}

func splitLedgers(items []dto.SeedLedger) ([]models.Student, []models.PointsLedger) {
	students := make([]models.Student, 0, len(items))
	ledgers := make([]models.PointsLedger, 0, len(items))
	for _, item := range items {
		students = append(students, models.Student{
			ID:       item.StudentID,
			Name:     strings.TrimSpace(item.Name),
			Username: strings.ToLower(strings.TrimSpace(item.Username)),
			Email:    strings.ToLower(strings.TrimSpace(item.Email)),
		})
		ledgers = append(ledgers, models.PointsLedger{
			StudentID:   item.StudentID,
			TotalPoints: item.TotalPoints,
			Level:       gamification.LevelFor(item.TotalPoints),
		})
	}
	return students, ledgers
}
