package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Event types emitted by the gamification service.
const (
	EventPointsEarned        = "points.earned"
	EventAchievementUnlocked = "achievement.unlocked"
)

// PointsEvent is the payload fanned out to subscribers when a ledger changes.
type PointsEvent struct {
	Type          string    `json:"type"`
	StudentID     string    `json:"student_id"`
	Points        int       `json:"points,omitempty"`
	TotalPoints   int       `json:"total_points"`
	Level         int       `json:"level"`
	ActivityType  string    `json:"activity_type,omitempty"`
	AchievementID string    `json:"achievement_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// PointsEventPublisher delivers gamification events to downstream consumers.
type PointsEventPublisher interface {
	Publish(ctx context.Context, event PointsEvent) error
}

type pointsEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsPrefix   string
	logger       zerolog.Logger
}

// NewPointsEventPublisher publishes to Redis pub/sub on "<channelBase>:gamification" and to NATS
// subjects "<channelBase>.<event type>" with ':' replaced by '.'. Either transport may be nil.
func NewPointsEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) PointsEventPublisher {
	redisChannel := ""
	natsPrefix := ""
	if channelBase != "" {
		redisChannel = channelBase + ":gamification"
		natsPrefix = strings.ReplaceAll(channelBase, ":", ".")
	}

	return &pointsEventPublisher{
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsPrefix:   natsPrefix,
		logger:       logger.With().Str("component", "points_events").Logger(),
	}
}

func (p *pointsEventPublisher) Publish(ctx context.Context, event PointsEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil && p.natsPrefix != "" {
		if err := p.nats.Publish(p.natsPrefix+"."+event.Type, payload); err != nil {
			return err
		}
	}

	p.logger.Debug().Str("type", event.Type).Str("student_id", event.StudentID).Msg("gamification event published")
	return nil
}
