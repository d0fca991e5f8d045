package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttendanceSummary is stored as JSON inside an analytics snapshot.
type AttendanceSummary struct {
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Rate    float64 `json:"rate"`
}

// GradeRecord is a single course grade.
type GradeRecord struct {
	CourseID string  `json:"course_id"`
	Course   string  `json:"course"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
}

// ProgressRecord captures course completion.
type ProgressRecord struct {
	CourseID         string  `json:"course_id"`
	Course           string  `json:"course"`
	CompletedLessons int     `json:"completed_lessons"`
	TotalLessons     int     `json:"total_lessons"`
	Percent          float64 `json:"percent"`
}

// AnalyticsSnapshot is the persisted analytics overview of a student.
type AnalyticsSnapshot struct {
	StudentID  uint                                  `gorm:"primaryKey;autoIncrement:false" json:"student_id"`
	Attendance datatypes.JSONType[AttendanceSummary] `json:"attendance"`
	Grades     datatypes.JSONSlice[GradeRecord]      `json:"grades"`
	Progress   datatypes.JSONSlice[ProgressRecord]   `json:"progress"`
	CreatedAt  time.Time                             `json:"created_at"`
	UpdatedAt  time.Time                             `json:"updated_at"`
}
