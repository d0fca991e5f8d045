package dto

import "time"

// FeedbackRequest is the public course/teacher review form.
type FeedbackRequest struct {
	CourseID  string `json:"course_id" validate:"required,max=64"`
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,max=255,portal_email"`
	Comment   string `json:"comment" validate:"required,min=3,max=2000"`
	Rating    int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Honeypot  string `json:"website"`
}

// FeedbackResponse acknowledges a stored feedback document.
type FeedbackResponse struct {
	ReferenceID string    `json:"reference_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// SeedCatalogRequest carries the achievement catalog and demo ledgers to load.
type SeedCatalogRequest struct {
	Achievements []SeedAchievement `json:"achievements" validate:"dive"`
	Ledgers      []SeedLedger      `json:"ledgers" validate:"dive"`
}

// SeedAchievement is one catalog entry to upsert.
type SeedAchievement struct {
	ID              string `json:"id" validate:"required,max=64"`
	Title           string `json:"title" validate:"required,max=255"`
	Description     string `json:"description"`
	Points          int    `json:"points" validate:"gte=0"`
	Icon            string `json:"icon" validate:"max=64"`
	ThresholdPoints int    `json:"threshold_points" validate:"gte=0"`
}

// SeedLedger assigns a starting total to a student.
type SeedLedger struct {
	StudentID   uint   `json:"student_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=255"`
	Username    string `json:"username" validate:"required,max=64"`
	Email       string `json:"email" validate:"required,email"`
	TotalPoints int    `json:"total_points" validate:"gte=0"`
}

// SeedCatalogResponse reports how many rows were affected.
type SeedCatalogResponse struct {
	Achievements int64 `json:"achievements"`
	Students     int64 `json:"students"`
	Ledgers      int64 `json:"ledgers"`
}
