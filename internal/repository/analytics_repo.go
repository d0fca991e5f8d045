package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-portal-api/internal/models"
)

// AnalyticsRepository persists per-student analytics snapshots.
type AnalyticsRepository interface {
	Get(ctx context.Context, studentID uint) (models.AnalyticsSnapshot, error)
	Save(ctx context.Context, snapshot *models.AnalyticsSnapshot) error
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository constructs an analytics repository backed by GORM.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) Get(ctx context.Context, studentID uint) (models.AnalyticsSnapshot, error) {
	var snapshot models.AnalyticsSnapshot
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&snapshot).Error; err != nil {
		return models.AnalyticsSnapshot{}, err
	}
	return snapshot, nil
}

func (r *analyticsRepository) Save(ctx context.Context, snapshot *models.AnalyticsSnapshot) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"attendance", "grades", "progress", "updated_at"}),
	}).Create(snapshot).Error
}
