package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-portal-api/internal/analytics"
	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/models"
	"github.com/noah-isme/gema-portal-api/internal/observability"
	"github.com/noah-isme/gema-portal-api/internal/repository"
)

var (
	// ErrFeedbackSpam indicates the honeypot field was filled.
	ErrFeedbackSpam = errors.New("feedback submission flagged as spam")
	// ErrFeedbackDuplicate indicates the same feedback was submitted recently.
	ErrFeedbackDuplicate = errors.New("duplicate feedback submission")
)

// FeedbackSink receives accepted feedback for a signed-in student.
type FeedbackSink interface {
	RecordFeedback(studentID uint, item analytics.Feedback)
}

// FeedbackService exposes the course/teacher feedback workflow.
type FeedbackService interface {
	Submit(ctx context.Context, studentID *uint, req dto.FeedbackRequest) (dto.FeedbackResponse, error)
}

type feedbackService struct {
	repo      repository.FeedbackRepository
	cache     *redis.Client
	validator *validator.Validate
	sink      FeedbackSink
	logger    zerolog.Logger
	dedupeTTL time.Duration
	tracer    trace.Tracer
	now       func() time.Time
}

// NewFeedbackService constructs a feedback submission service. The validator
// must have the portal_email tag registered; sink may be nil.
func NewFeedbackService(repo repository.FeedbackRepository, cache *redis.Client, validator *validator.Validate, sink FeedbackSink, ttl time.Duration, logger zerolog.Logger) FeedbackService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &feedbackService{
		repo:      repo,
		cache:     cache,
		validator: validator,
		sink:      sink,
		logger:    logger.With().Str("component", "feedback_service").Logger(),
		dedupeTTL: ttl,
		tracer:    otel.Tracer("github.com/noah-isme/gema-portal-api/internal/service/feedback"),
		now:       time.Now,
	}
}

func (s *feedbackService) Submit(ctx context.Context, studentID *uint, req dto.FeedbackRequest) (dto.FeedbackResponse, error) {
	ctx, span := s.tracer.Start(ctx, "feedback.submit")
	defer span.End()

	if req.Honeypot != "" {
		span.SetStatus(codes.Error, "honeypot tripped")
		observability.FeedbackSubmissions().WithLabelValues("spam").Inc()
		return dto.FeedbackResponse{}, ErrFeedbackSpam
	}

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		observability.FeedbackSubmissions().WithLabelValues("invalid").Inc()
		return dto.FeedbackResponse{}, err
	}

	checksum := computeChecksum(req.CourseID, req.TeacherID, req.Email, req.Comment)
	span.SetAttributes(attribute.String("feedback.checksum", checksum))

	dedupeKey := fmt.Sprintf("feedback:dedupe:%s", checksum)
	if s.cache != nil {
		ok, err := s.cache.SetNX(ctx, dedupeKey, 1, s.dedupeTTL).Result()
		if err != nil {
			span.RecordError(err)
			return dto.FeedbackResponse{}, err
		}
		if !ok {
			span.SetStatus(codes.Error, "duplicate submission")
			observability.FeedbackSubmissions().WithLabelValues("duplicate").Inc()
			return dto.FeedbackResponse{}, ErrFeedbackDuplicate
		}
	}

	document := models.FeedbackDocument{
		ReferenceID: uuid.NewString(),
		StudentID:   studentID,
		CourseID:    strings.TrimSpace(req.CourseID),
		TeacherID:   strings.TrimSpace(req.TeacherID),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Comment:     strings.TrimSpace(req.Comment),
		Rating:      req.Rating,
		Checksum:    checksum,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.Create(ctx, &document); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		observability.FeedbackSubmissions().WithLabelValues("error").Inc()
		// A failed write must not block the same submission from being retried.
		if s.cache != nil {
			if delErr := s.cache.Del(ctx, dedupeKey).Err(); delErr != nil {
				s.logger.Warn().Err(delErr).Msg("failed to clear feedback dedupe key")
			}
		}
		return dto.FeedbackResponse{}, err
	}

	if s.sink != nil && studentID != nil {
		s.sink.RecordFeedback(*studentID, toFeedback(document))
	}

	observability.FeedbackSubmissions().WithLabelValues("stored").Inc()
	logger := observability.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Str("reference_id", document.ReferenceID).
		Str("course_id", document.CourseID).
		Str("email", maskEmailAddress(document.Email)).
		Msg("feedback submission stored")
	span.SetStatus(codes.Ok, "stored")

	return dto.FeedbackResponse{
		ReferenceID: document.ReferenceID,
		Status:      "stored",
		CreatedAt:   document.CreatedAt,
	}, nil
}
