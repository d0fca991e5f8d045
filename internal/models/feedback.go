package models

import "time"

// FeedbackDocument is an append-only course/teacher review.
type FeedbackDocument struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ReferenceID string    `gorm:"size:36;uniqueIndex;not null" json:"reference_id"`
	StudentID   *uint     `gorm:"index" json:"student_id"`
	CourseID    string    `gorm:"size:64;index;not null" json:"course_id"`
	TeacherID   string    `gorm:"size:64;index;not null" json:"teacher_id"`
	Email       string    `gorm:"size:255;not null" json:"email"`
	Comment     string    `gorm:"type:text;not null" json:"comment"`
	Rating      int       `json:"rating"`
	Checksum    string    `gorm:"size:64;index" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
