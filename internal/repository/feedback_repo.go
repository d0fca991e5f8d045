package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal-api/internal/models"
)

// FeedbackFilter narrows feedback listings.
type FeedbackFilter struct {
	StudentID *uint
	CourseID  string
	Limit     int
}

// FeedbackRepository appends and lists feedback documents.
type FeedbackRepository interface {
	Create(ctx context.Context, document *models.FeedbackDocument) error
	List(ctx context.Context, filter FeedbackFilter) ([]models.FeedbackDocument, error)
}

type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository constructs a feedback repository backed by GORM.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) Create(ctx context.Context, document *models.FeedbackDocument) error {
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *feedbackRepository) List(ctx context.Context, filter FeedbackFilter) ([]models.FeedbackDocument, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Model(&models.FeedbackDocument{})
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.CourseID != "" {
		query = query.Where("course_id = ?", filter.CourseID)
	}

	var documents []models.FeedbackDocument
	if err := query.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}
