package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/gamification"
	"github.com/noah-isme/gema-portal-api/internal/models"
	"github.com/noah-isme/gema-portal-api/internal/observability"
	"github.com/noah-isme/gema-portal-api/internal/repository"
)

const (
	leaderboardCacheKey     = "gamification:leaderboard"
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	recentActivityLimit     = 20
)

var (
	// ErrInvalidActivity indicates an unknown activity type or non-positive points.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrAchievementNotFound indicates the achievement id is not in the catalog.
	ErrAchievementNotFound = errors.New("achievement not found")
)

// GamificationService exposes points, achievements and the leaderboard.
type GamificationService interface {
	GetProgress(ctx context.Context, studentID uint) (dto.GamificationProgressResponse, error)
	RecordActivity(ctx context.Context, studentID uint, req dto.RecordActivityRequest) (dto.RecordActivityResponse, error)
	UnlockAchievement(ctx context.Context, studentID uint, achievementID string) (dto.GamificationProgressResponse, error)
	GetLeaderboard(ctx context.Context, studentID uint, limit int) (dto.LeaderboardResponse, error)
	State(studentID uint) gamification.State
	Release(studentID uint)
}

type gamificationEntry struct {
	mu    sync.Mutex
	store *gamification.Store
}

type gamificationService struct {
	repo      repository.GamificationRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	events    PointsEventPublisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu     sync.Mutex
	stores map[uint]*gamificationEntry
}

// NewGamificationService constructs the gamification service. events may be nil.
func NewGamificationService(repo repository.GamificationRepository, cache *redis.Client, ttl time.Duration, events PointsEventPublisher, validate *validator.Validate, logger zerolog.Logger) GamificationService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &gamificationService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  ttl,
		events:    events,
		validator: validate,
		logger:    logger.With().Str("component", "gamification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-portal-api/internal/service/gamification"),
		now:       time.Now,
		stores:    make(map[uint]*gamificationEntry),
	}
}

func (s *gamificationService) entry(studentID uint) *gamificationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.stores[studentID]
	if !ok {
		e = &gamificationEntry{store: gamification.NewStore(gamification.WithClock(func() time.Time { return s.now().UTC() }))}
		s.stores[studentID] = e
	}
	return e
}

func (s *gamificationService) GetProgress(ctx context.Context, studentID uint) (dto.GamificationProgressResponse, error) {
	ctx, span := s.tracer.Start(ctx, "gamification.progress", trace.WithAttributes(attribute.Int("student_id", int(studentID))))
	defer span.End()

	e := s.entry(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.hydrate(ctx, studentID, e.store); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hydrate failed")
		return dto.GamificationProgressResponse{}, err
	}

	return dto.NewGamificationProgressResponse(*e.store.StudentPoints()), nil
}

func (s *gamificationService) RecordActivity(ctx context.Context, studentID uint, req dto.RecordActivityRequest) (dto.RecordActivityResponse, error) {
	ctx, span := s.tracer.Start(ctx, "gamification.record_activity", trace.WithAttributes(
		attribute.Int("student_id", int(studentID)),
		attribute.String("activity.type", req.Type),
		attribute.Int("activity.points", req.Points),
	))
	defer span.End()

	if s.validator != nil {
		if err := s.validator.Struct(req); err != nil {
			span.SetStatus(codes.Error, "validation failed")
			return dto.RecordActivityResponse{}, err
		}
	}

	activityType := gamification.ActivityType(req.Type)
	if !activityType.Valid() || req.Points <= 0 {
		return dto.RecordActivityResponse{}, ErrInvalidActivity
	}

	e := s.entry(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.StudentPoints() == nil {
		if err := s.hydrate(ctx, studentID, e.store); err != nil {
			span.RecordError(err)
			return dto.RecordActivityResponse{}, err
		}
	}

	occurredAt := s.now().UTC()
	activity := gamification.Activity{
		ID:          uuid.NewString(),
		Type:        activityType,
		Points:      req.Points,
		Description: req.Description,
		Timestamp:   occurredAt,
	}

	record := &models.ActivityRecord{
		ReferenceID: activity.ID,
		StudentID:   studentID,
		Type:        req.Type,
		Points:      req.Points,
		Description: req.Description,
		OccurredAt:  occurredAt,
	}
	ledger, err := s.repo.RecordActivity(ctx, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist activity failed")
		s.setStoreError(e.store, err)
		return dto.RecordActivityResponse{}, err
	}

	if err := e.store.AddPoints(req.Points, activity); err != nil {
		return dto.RecordActivityResponse{}, err
	}
	// The ledger may have been written by another instance or by seeding.
	if current := e.store.StudentPoints(); current.TotalPoints != ledger.TotalPoints {
		current.TotalPoints = ledger.TotalPoints
		current.Level = gamification.LevelFor(ledger.TotalPoints)
		e.store.SetStudentPoints(current)
	}
	observability.PointsAwarded().WithLabelValues(req.Type).Add(float64(req.Points))

	unlocked, err := s.grantThresholds(ctx, studentID, e.store)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to grant threshold achievements")
	}

	updated := e.store.StudentPoints()
	s.publish(ctx, PointsEvent{
		Type:         EventPointsEarned,
		StudentID:    updated.UserID,
		Points:       req.Points,
		TotalPoints:  updated.TotalPoints,
		Level:        updated.Level,
		ActivityType: req.Type,
		OccurredAt:   occurredAt,
	})
	s.invalidateLeaderboard(ctx)

	logger := observability.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Uint("student_id", studentID).
		Str("activity_type", req.Type).
		Int("points", req.Points).
		Int("total_points", updated.TotalPoints).
		Msg("activity recorded")

	if unlocked == nil {
		unlocked = []gamification.Achievement{}
	}
	return dto.RecordActivityResponse{
		Progress: dto.NewGamificationProgressResponse(*updated),
		Unlocked: unlocked,
	}, nil
}

// grantThresholds unlocks catalog entries whose threshold the student has reached
// and that have not been granted before.
func (s *gamificationService) grantThresholds(ctx context.Context, studentID uint, store *gamification.Store) ([]gamification.Achievement, error) {
	catalog, err := s.repo.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	total := store.StudentPoints().TotalPoints
	var unlocked []gamification.Achievement
	for _, item := range catalog {
		if item.ThresholdPoints <= 0 || total < item.ThresholdPoints || store.HasAchievement(item.ID) {
			continue
		}

		achievement, err := s.grant(ctx, studentID, store, item, "threshold")
		if err != nil {
			return unlocked, err
		}
		unlocked = append(unlocked, achievement)
	}
	return unlocked, nil
}

func (s *gamificationService) UnlockAchievement(ctx context.Context, studentID uint, achievementID string) (dto.GamificationProgressResponse, error) {
	ctx, span := s.tracer.Start(ctx, "gamification.unlock", trace.WithAttributes(
		attribute.Int("student_id", int(studentID)),
		attribute.String("achievement.id", achievementID),
	))
	defer span.End()

	item, err := s.repo.FindAchievement(ctx, achievementID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GamificationProgressResponse{}, ErrAchievementNotFound
		}
		span.RecordError(err)
		return dto.GamificationProgressResponse{}, err
	}

	e := s.entry(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.StudentPoints() == nil {
		if err := s.hydrate(ctx, studentID, e.store); err != nil {
			span.RecordError(err)
			return dto.GamificationProgressResponse{}, err
		}
	}

	if _, err := s.grant(ctx, studentID, e.store, item, "manual"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant failed")
		s.setStoreError(e.store, err)
		return dto.GamificationProgressResponse{}, err
	}

	return dto.NewGamificationProgressResponse(*e.store.StudentPoints()), nil
}

func (s *gamificationService) grant(ctx context.Context, studentID uint, store *gamification.Store, item models.Achievement, source string) (gamification.Achievement, error) {
	unlockedAt := s.now().UTC()
	if err := s.repo.CreateGrant(ctx, &models.AchievementGrant{
		StudentID:     studentID,
		AchievementID: item.ID,
		UnlockedAt:    unlockedAt,
	}); err != nil {
		return gamification.Achievement{}, err
	}

	achievement := toAchievement(item, nil)
	if err := store.UnlockAchievementAt(achievement, unlockedAt); err != nil {
		return gamification.Achievement{}, err
	}
	achievement.UnlockedAt = &unlockedAt

	observability.AchievementsUnlocked().WithLabelValues(source).Inc()
	points := store.StudentPoints()
	s.publish(ctx, PointsEvent{
		Type:          EventAchievementUnlocked,
		StudentID:     points.UserID,
		TotalPoints:   points.TotalPoints,
		Level:         points.Level,
		AchievementID: item.ID,
		OccurredAt:    unlockedAt,
	})
	return achievement, nil
}

func (s *gamificationService) GetLeaderboard(ctx context.Context, studentID uint, limit int) (dto.LeaderboardResponse, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	field := strconv.Itoa(limit)
	ctx, span := s.tracer.Start(ctx, "gamification.leaderboard", trace.WithAttributes(attribute.Int("leaderboard.limit", limit)))
	defer span.End()

	var (
		entries  []gamification.LeaderboardEntry
		cacheHit bool
	)

	if s.cache != nil {
		cached, err := s.cache.HGet(ctx, leaderboardCacheKey, field).Result()
		if err == nil {
			if unmarshalErr := json.Unmarshal([]byte(cached), &entries); unmarshalErr == nil {
				cacheHit = true
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read leaderboard cache")
			span.RecordError(err)
		}
	}

	if !cacheHit {
		rows, err := s.repo.Leaderboard(ctx, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "leaderboard query failed")
			return dto.LeaderboardResponse{}, err
		}
		entries = rankLeaderboard(rows)
		s.storeLeaderboard(ctx, field, entries)
	}
	span.SetAttributes(attribute.Bool("leaderboard.cache_hit", cacheHit))

	if studentID != 0 {
		e := s.entry(studentID)
		e.store.SetLeaderboard(entries)
		entries = e.store.Leaderboard()
	}

	return dto.LeaderboardResponse{
		Entries:  dto.NewLeaderboardEntryResponses(entries),
		CacheHit: cacheHit,
	}, nil
}

func (s *gamificationService) storeLeaderboard(ctx context.Context, field string, entries []gamification.LeaderboardEntry) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return
	}
	pipe := s.cache.TxPipeline()
	pipe.HSet(ctx, leaderboardCacheKey, field, payload)
	pipe.Expire(ctx, leaderboardCacheKey, s.cacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store leaderboard cache")
	}
}

func (s *gamificationService) invalidateLeaderboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, leaderboardCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate leaderboard cache")
	}
}

func (s *gamificationService) State(studentID uint) gamification.State {
	s.mu.Lock()
	e, ok := s.stores[studentID]
	s.mu.Unlock()
	if !ok {
		return gamification.State{}
	}
	return e.store.Snapshot()
}

// Release tears down the store of a student, e.g. on logout.
func (s *gamificationService) Release(studentID uint) {
	s.mu.Lock()
	e, ok := s.stores[studentID]
	delete(s.stores, studentID)
	s.mu.Unlock()

	if ok {
		e.store.Reset()
	}
}

// hydrate loads the persisted ledger into the store. A student without a
// ledger starts from a zero-point level 1 record.
func (s *gamificationService) hydrate(ctx context.Context, studentID uint, store *gamification.Store) error {
	store.SetLoading(true)
	defer store.SetLoading(false)

	points, err := s.load(ctx, studentID)
	if err != nil {
		s.setStoreError(store, err)
		return err
	}

	store.SetStudentPoints(points)
	store.SetError(nil)
	return nil
}

func (s *gamificationService) load(ctx context.Context, studentID uint) (*gamification.StudentPoints, error) {
	points := &gamification.StudentPoints{
		UserID:           strconv.FormatUint(uint64(studentID), 10),
		Level:            1,
		Achievements:     []gamification.Achievement{},
		RecentActivities: []gamification.Activity{},
	}

	ledger, err := s.repo.GetLedger(ctx, studentID)
	switch {
	case err == nil:
		points.TotalPoints = ledger.TotalPoints
		points.Level = gamification.LevelFor(ledger.TotalPoints)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	activities, err := s.repo.RecentActivities(ctx, studentID, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	for _, record := range activities {
		points.RecentActivities = append(points.RecentActivities, gamification.Activity{
			ID:          record.ReferenceID,
			Type:        gamification.ActivityType(record.Type),
			Points:      record.Points,
			Description: record.Description,
			Timestamp:   record.OccurredAt,
		})
	}

	grants, err := s.repo.Grants(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	for _, grant := range grants {
		unlockedAt := grant.UnlockedAt
		item := grant.Achievement
		if item.ID == "" {
			item.ID = grant.AchievementID
		}
		points.Achievements = append(points.Achievements, toAchievement(item, &unlockedAt))
	}

	return points, nil
}

func (s *gamificationService) setStoreError(store *gamification.Store, err error) {
	message := err.Error()
	store.SetError(&message)
}

func (s *gamificationService) publish(ctx context.Context, event PointsEvent) {
	if s.events == nil {
		return
	}
	event.CorrelationID = observability.CorrelationIDFromContext(ctx)
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish gamification event")
	}
}

func rankLeaderboard(rows []models.LeaderboardRow) []gamification.LeaderboardEntry {
	entries := make([]gamification.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		username := row.Username
		if username == "" {
			username = row.Name
		}
		entries = append(entries, gamification.LeaderboardEntry{
			UserID:      strconv.FormatUint(uint64(row.StudentID), 10),
			Username:    username,
			TotalPoints: row.TotalPoints,
			Level:       gamification.LevelFor(row.TotalPoints),
			Rank:        i + 1,
		})
	}
	return entries
}

func toAchievement(item models.Achievement, unlockedAt *time.Time) gamification.Achievement {
	return gamification.Achievement{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Points:      item.Points,
		Icon:        item.Icon,
		UnlockedAt:  unlockedAt,
	}
}
