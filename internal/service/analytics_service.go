package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal-api/internal/analytics"
	"github.com/noah-isme/gema-portal-api/internal/dto"
	"github.com/noah-isme/gema-portal-api/internal/models"
	"github.com/noah-isme/gema-portal-api/internal/repository"
)

// AnalyticsService exposes the attendance, grade and progress overview of students.
type AnalyticsService interface {
	GetOverview(ctx context.Context, studentID uint) (dto.AnalyticsOverviewResponse, error)
	UpdateAttendance(ctx context.Context, studentID uint, req dto.UpdateAttendanceRequest) (*analytics.Snapshot, error)
	UpdateGrades(ctx context.Context, studentID uint, req dto.UpdateGradesRequest) (*analytics.Snapshot, error)
	UpdateProgress(ctx context.Context, studentID uint, req dto.UpdateProgressRequest) (*analytics.Snapshot, error)
	RecordFeedback(studentID uint, item analytics.Feedback)
	Release(studentID uint)
}

type analyticsEntry struct {
	mu    sync.Mutex
	store *analytics.Store
}

type analyticsService struct {
	repo      repository.AnalyticsRepository
	feedback  repository.FeedbackRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu     sync.Mutex
	stores map[uint]*analyticsEntry
}

// NewAnalyticsService constructs the analytics service.
func NewAnalyticsService(repo repository.AnalyticsRepository, feedback repository.FeedbackRepository, validate *validator.Validate, logger zerolog.Logger) AnalyticsService {
	return &analyticsService{
		repo:      repo,
		feedback:  feedback,
		validator: validate,
		logger:    logger.With().Str("component", "analytics_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-portal-api/internal/service/analytics"),
		now:       time.Now,
		stores:    make(map[uint]*analyticsEntry),
	}
}

func (s *analyticsService) entry(studentID uint) *analyticsEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.stores[studentID]
	if !ok {
		e = &analyticsEntry{store: analytics.NewStore()}
		s.stores[studentID] = e
	}
	return e
}

func (s *analyticsService) GetOverview(ctx context.Context, studentID uint) (dto.AnalyticsOverviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.overview", trace.WithAttributes(attribute.Int("student_id", int(studentID))))
	defer span.End()

	e := s.entry(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	store := e.store
	store.SetLoading(true)
	defer store.SetLoading(false)

	snapshot, err := s.load(ctx, studentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		message := err.Error()
		store.SetError(&message)
		return dto.AnalyticsOverviewResponse{}, err
	}
	store.SetAnalytics(snapshot)

	documents, err := s.feedback.List(ctx, repository.FeedbackFilter{StudentID: &studentID})
	if err != nil {
		span.RecordError(err)
		message := err.Error()
		store.SetError(&message)
		return dto.AnalyticsOverviewResponse{}, err
	}
	items := make([]analytics.Feedback, 0, len(documents))
	for _, document := range documents {
		items = append(items, toFeedback(document))
	}
	store.SetFeedback(items)
	store.SetError(nil)

	state := store.Snapshot()
	if state.Feedback == nil {
		state.Feedback = []analytics.Feedback{}
	}
	return dto.AnalyticsOverviewResponse{Analytics: state.Analytics, Feedback: state.Feedback}, nil
}

func (s *analyticsService) UpdateAttendance(ctx context.Context, studentID uint, req dto.UpdateAttendanceRequest) (*analytics.Snapshot, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	attendance := analytics.AttendanceStats{
		Present: req.Present,
		Absent:  req.Absent,
		Late:    req.Late,
		Rate:    attendanceRate(req.Present, req.Absent, req.Late),
	}
	return s.update(ctx, studentID, "attendance",
		func(snapshot *analytics.Snapshot) { snapshot.Attendance = attendance },
		func(store *analytics.Store) error { return store.UpdateAttendance(attendance) },
	)
}

func (s *analyticsService) UpdateGrades(ctx context.Context, studentID uint, req dto.UpdateGradesRequest) (*analytics.Snapshot, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	grades := make([]analytics.GradeEntry, 0, len(req.Grades))
	for _, grade := range req.Grades {
		grades = append(grades, analytics.GradeEntry{
			CourseID: grade.CourseID,
			Course:   grade.Course,
			Score:    grade.Score,
			MaxScore: grade.MaxScore,
		})
	}
	return s.update(ctx, studentID, "grades",
		func(snapshot *analytics.Snapshot) { snapshot.Grades = grades },
		func(store *analytics.Store) error { return store.UpdateGrades(grades) },
	)
}

func (s *analyticsService) UpdateProgress(ctx context.Context, studentID uint, req dto.UpdateProgressRequest) (*analytics.Snapshot, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	progress := make([]analytics.CourseProgress, 0, len(req.Progress))
	for _, item := range req.Progress {
		percent := 0.0
		if item.TotalLessons > 0 {
			percent = float64(item.CompletedLessons) / float64(item.TotalLessons) * 100
		}
		progress = append(progress, analytics.CourseProgress{
			CourseID:         item.CourseID,
			Course:           item.Course,
			CompletedLessons: item.CompletedLessons,
			TotalLessons:     item.TotalLessons,
			Percent:          percent,
		})
	}
	return s.update(ctx, studentID, "progress",
		func(snapshot *analytics.Snapshot) { snapshot.Progress = progress },
		func(store *analytics.Store) error { return store.UpdateProgress(progress) },
	)
}

// update persists one sub-field and then applies the same change to the store,
// hydrating the store first so the partial update always has a base snapshot.
func (s *analyticsService) update(ctx context.Context, studentID uint, field string, apply func(*analytics.Snapshot), mutate func(*analytics.Store) error) (*analytics.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.update", trace.WithAttributes(
		attribute.Int("student_id", int(studentID)),
		attribute.String("analytics.field", field),
	))
	defer span.End()

	e := s.entry(studentID)
	e.mu.Lock()
	defer e.mu.Unlock()

	store := e.store
	if store.Snapshot().Analytics == nil {
		snapshot, err := s.load(ctx, studentID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		store.SetAnalytics(snapshot)
	}

	next := store.Snapshot().Analytics
	apply(next)
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, toSnapshotModel(studentID, next)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		message := err.Error()
		store.SetError(&message)
		return nil, err
	}

	if err := mutate(store); err != nil {
		return nil, err
	}
	if err := store.Touch(next.UpdatedAt); err != nil {
		return nil, err
	}

	s.logger.Info().Uint("student_id", studentID).Str("field", field).Msg("analytics updated")
	return store.Snapshot().Analytics, nil
}

// RecordFeedback appends feedback to the student's store if one is open.
func (s *analyticsService) RecordFeedback(studentID uint, item analytics.Feedback) {
	s.mu.Lock()
	e, ok := s.stores[studentID]
	s.mu.Unlock()
	if ok {
		e.store.AddFeedback(item)
	}
}

func (s *analyticsService) Release(studentID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, studentID)
}

func (s *analyticsService) validate(req interface{}) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Struct(req)
}

// load reads the persisted snapshot; a student without one starts from an empty snapshot.
func (s *analyticsService) load(ctx context.Context, studentID uint) (*analytics.Snapshot, error) {
	model, err := s.repo.Get(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &analytics.Snapshot{
				StudentID: strconv.FormatUint(uint64(studentID), 10),
				Grades:    []analytics.GradeEntry{},
				Progress:  []analytics.CourseProgress{},
			}, nil
		}
		return nil, fmt.Errorf("load analytics: %w", err)
	}
	return fromSnapshotModel(model), nil
}

func attendanceRate(present, absent, late int) float64 {
	total := present + absent + late
	if total == 0 {
		return 0
	}
	return float64(present+late) / float64(total)
}

func fromSnapshotModel(model models.AnalyticsSnapshot) *analytics.Snapshot {
	attendance := model.Attendance.Data()
	snapshot := &analytics.Snapshot{
		StudentID: strconv.FormatUint(uint64(model.StudentID), 10),
		Attendance: analytics.AttendanceStats{
			Present: attendance.Present,
			Absent:  attendance.Absent,
			Late:    attendance.Late,
			Rate:    attendance.Rate,
		},
		Grades:    make([]analytics.GradeEntry, 0, len(model.Grades)),
		Progress:  make([]analytics.CourseProgress, 0, len(model.Progress)),
		UpdatedAt: model.UpdatedAt,
	}
	for _, grade := range model.Grades {
		snapshot.Grades = append(snapshot.Grades, analytics.GradeEntry(grade))
	}
	for _, item := range model.Progress {
		snapshot.Progress = append(snapshot.Progress, analytics.CourseProgress(item))
	}
	return snapshot
}

func toSnapshotModel(studentID uint, snapshot *analytics.Snapshot) *models.AnalyticsSnapshot {
	grades := make([]models.GradeRecord, 0, len(snapshot.Grades))
	for _, grade := range snapshot.Grades {
		grades = append(grades, models.GradeRecord(grade))
	}
	progress := make([]models.ProgressRecord, 0, len(snapshot.Progress))
	for _, item := range snapshot.Progress {
		progress = append(progress, models.ProgressRecord(item))
	}

	return &models.AnalyticsSnapshot{
		StudentID:  studentID,
		Attendance: datatypes.NewJSONType(models.AttendanceSummary(snapshot.Attendance)),
		Grades:     datatypes.NewJSONSlice(grades),
		Progress:   datatypes.NewJSONSlice(progress),
		UpdatedAt:  snapshot.UpdatedAt,
	}
}

func toFeedback(document models.FeedbackDocument) analytics.Feedback {
	return analytics.Feedback{
		ID:        document.ReferenceID,
		CourseID:  document.CourseID,
		TeacherID: document.TeacherID,
		Email:     document.Email,
		Comment:   document.Comment,
		Rating:    document.Rating,
		CreatedAt: document.CreatedAt,
	}
}
