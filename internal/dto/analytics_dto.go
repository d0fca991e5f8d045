package dto

import "github.com/noah-isme/gema-portal-api/internal/analytics"

// AnalyticsOverviewResponse is returned by the student analytics endpoint.
type AnalyticsOverviewResponse struct {
	Analytics *analytics.Snapshot  `json:"analytics"`
	Feedback  []analytics.Feedback `json:"feedback"`
}

// UpdateAttendanceRequest replaces the attendance summary of a student.
type UpdateAttendanceRequest struct {
	Present int `json:"present" validate:"gte=0"`
	Absent  int `json:"absent" validate:"gte=0"`
	Late    int `json:"late" validate:"gte=0"`
}

// GradeInput is a single course grade in an update request.
type GradeInput struct {
	CourseID string  `json:"course_id" validate:"required,max=64"`
	Course   string  `json:"course" validate:"required,max=255"`
	Score    float64 `json:"score" validate:"gte=0"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
}

// UpdateGradesRequest replaces the grade list of a student.
type UpdateGradesRequest struct {
	Grades []GradeInput `json:"grades" validate:"dive"`
}

// ProgressInput is the completion state of a single course.
type ProgressInput struct {
	CourseID         string `json:"course_id" validate:"required,max=64"`
	Course           string `json:"course" validate:"required,max=255"`
	CompletedLessons int    `json:"completed_lessons" validate:"gte=0,ltefield=TotalLessons"`
	TotalLessons     int    `json:"total_lessons" validate:"gte=0"`
}

// UpdateProgressRequest replaces the course progress list of a student.
type UpdateProgressRequest struct {
	Progress []ProgressInput `json:"progress" validate:"dive"`
}
