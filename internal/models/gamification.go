package models

import "time"

// Activity types accepted by the points ledger.
const (
	ActivityTypeAttendance    = "attendance"
	ActivityTypeAssignment    = "assignment"
	ActivityTypeQuiz          = "quiz"
	ActivityTypeParticipation = "participation"
)

// PointsLedger stores the running point total of a student.
type PointsLedger struct {
	StudentID   uint      `gorm:"primaryKey;autoIncrement:false" json:"student_id"`
	TotalPoints int       `gorm:"not null;default:0;index" json:"total_points"`
	Level       int       `gorm:"not null;default:1" json:"level"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityRecord is a persisted point-earning event.
type ActivityRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ReferenceID string    `gorm:"size:36;uniqueIndex;not null" json:"reference_id"`
	StudentID   uint      `gorm:"index;not null" json:"student_id"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	Points      int       `gorm:"not null" json:"points"`
	Description string    `gorm:"size:255" json:"description"`
	OccurredAt  time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Achievement is a catalog entry. ThresholdPoints > 0 grants it automatically
// once a student's total reaches the threshold.
type Achievement struct {
	ID              string    `gorm:"primaryKey;size:64" json:"id"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	Points          int       `gorm:"not null;default:0" json:"points"`
	Icon            string    `gorm:"size:64" json:"icon"`
	ThresholdPoints int       `gorm:"not null;default:0" json:"threshold_points"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AchievementGrant links an unlocked achievement to a student.
type AchievementGrant struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	StudentID     uint        `gorm:"index;not null" json:"student_id"`
	AchievementID string      `gorm:"size:64;index;not null" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement"`
	UnlockedAt    time.Time   `json:"unlocked_at"`
}

// LeaderboardRow is the projection used to build leaderboard entries.
type LeaderboardRow struct {
	StudentID   uint
	Username    string
	Name        string
	TotalPoints int
	Level       int
}
