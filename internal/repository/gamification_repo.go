package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-portal-api/internal/gamification"
	"github.com/noah-isme/gema-portal-api/internal/models"
)

// GamificationRepository persists point ledgers, activities and achievement grants.
type GamificationRepository interface {
	GetLedger(ctx context.Context, studentID uint) (models.PointsLedger, error)
	RecentActivities(ctx context.Context, studentID uint, limit int) ([]models.ActivityRecord, error)
	Grants(ctx context.Context, studentID uint) ([]models.AchievementGrant, error)
	RecordActivity(ctx context.Context, activity *models.ActivityRecord) (models.PointsLedger, error)
	CreateGrant(ctx context.Context, grant *models.AchievementGrant) error
	Catalog(ctx context.Context) ([]models.Achievement, error)
	FindAchievement(ctx context.Context, id string) (models.Achievement, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardRow, error)
	UpsertCatalog(ctx context.Context, items []models.Achievement) (int64, error)
	UpsertLedgers(ctx context.Context, items []models.PointsLedger) (int64, error)
}

type gamificationRepository struct {
	db *gorm.DB
}

// NewGamificationRepository constructs a repository backed by GORM.
func NewGamificationRepository(db *gorm.DB) GamificationRepository {
	return &gamificationRepository{db: db}
}

func (r *gamificationRepository) GetLedger(ctx context.Context, studentID uint) (models.PointsLedger, error) {
	var ledger models.PointsLedger
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&ledger).Error; err != nil {
		return models.PointsLedger{}, err
	}
	return ledger, nil
}

func (r *gamificationRepository) RecentActivities(ctx context.Context, studentID uint, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var records []models.ActivityRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("occurred_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *gamificationRepository) Grants(ctx context.Context, studentID uint) ([]models.AchievementGrant, error) {
	var grants []models.AchievementGrant
	err := r.db.WithContext(ctx).
		Preload("Achievement").
		Where("student_id = ?", studentID).
		Order("unlocked_at ASC").
		Order("id ASC").
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

// RecordActivity stores the activity and credits its points to the ledger
// atomically. The total is incremented in SQL and the returned ledger is the
// row as it stands after the update.
func (r *gamificationRepository) RecordActivity(ctx context.Context, activity *models.ActivityRecord) (models.PointsLedger, error) {
	var ledger models.PointsLedger
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(activity).Error; err != nil {
			return err
		}

		initial := models.PointsLedger{
			StudentID:   activity.StudentID,
			TotalPoints: activity.Points,
			Level:       gamification.LevelFor(activity.Points),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_points": gorm.Expr("points_ledgers.total_points + ?", activity.Points),
				"updated_at":   time.Now().UTC(),
			}),
		}).Create(&initial).Error
		if err != nil {
			return err
		}

		if err := tx.Where("student_id = ?", activity.StudentID).First(&ledger).Error; err != nil {
			return err
		}
		if level := gamification.LevelFor(ledger.TotalPoints); level != ledger.Level {
			ledger.Level = level
			return tx.Model(&models.PointsLedger{}).
				Where("student_id = ?", activity.StudentID).
				Update("level", level).Error
		}
		return nil
	})
	if err != nil {
		return models.PointsLedger{}, err
	}
	return ledger, nil
}

func (r *gamificationRepository) CreateGrant(ctx context.Context, grant *models.AchievementGrant) error {
	return r.db.WithContext(ctx).Omit("Achievement").Create(grant).Error
}

func (r *gamificationRepository) Catalog(ctx context.Context) ([]models.Achievement, error) {
	var items []models.Achievement
	if err := r.db.WithContext(ctx).Order("threshold_points ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gamificationRepository) FindAchievement(ctx context.Context, id string) (models.Achievement, error) {
	var item models.Achievement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return models.Achievement{}, err
	}
	return item, nil
}

// Leaderboard returns ledgers ordered by points, ties broken by student id.
func (r *gamificationRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var rows []models.LeaderboardRow
	err := r.db.WithContext(ctx).
		Table("points_ledgers").
		Select("points_ledgers.student_id AS student_id, COALESCE(students.username, '') AS username, COALESCE(students.name, '') AS name, points_ledgers.total_points AS total_points, points_ledgers.level AS level").
		Joins("LEFT JOIN students ON students.id = points_ledgers.student_id").
		Order("points_ledgers.total_points DESC").
		Order("points_ledgers.student_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gamificationRepository) UpsertCatalog(ctx context.Context, items []models.Achievement) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "points", "icon", "threshold_points", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}

func (r *gamificationRepository) UpsertLedgers(ctx context.Context, items []models.PointsLedger) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_points", "level", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}
