// Package analytics keeps the attendance, grade and progress overview of a
// student together with the feedback that has been submitted from the portal.
package analytics

import (
	"errors"
	"sync"
	"time"
)

// ErrNoAnalytics is returned by partial updates issued before a snapshot exists.
var ErrNoAnalytics = errors.New("analytics snapshot not initialised")

// AttendanceStats summarises class attendance.
type AttendanceStats struct {
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Rate    float64 `json:"rate"`
}

// GradeEntry is a single course grade.
type GradeEntry struct {
	CourseID string  `json:"course_id"`
	Course   string  `json:"course"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
}

// CourseProgress captures completion of a course.
type CourseProgress struct {
	CourseID         string  `json:"course_id"`
	Course           string  `json:"course"`
	CompletedLessons int     `json:"completed_lessons"`
	TotalLessons     int     `json:"total_lessons"`
	Percent          float64 `json:"percent"`
}

// Snapshot is the analytics overview of one student.
type Snapshot struct {
	StudentID  string           `json:"student_id"`
	Attendance AttendanceStats  `json:"attendance"`
	Grades     []GradeEntry     `json:"grades"`
	Progress   []CourseProgress `json:"progress"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Feedback is a course/teacher review left by a student.
type Feedback struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	TeacherID string    `json:"teacher_id"`
	Email     string    `json:"email"`
	Comment   string    `json:"comment"`
	Rating    int       `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// State is a detached view of the store.
type State struct {
	Analytics *Snapshot  `json:"analytics"`
	Feedback  []Feedback `json:"feedback"`
	Loading   bool       `json:"loading"`
	Error     *string    `json:"error"`
}

// Store is the analytics state container.
type Store struct {
	mu        sync.RWMutex
	analytics *Snapshot
	feedback  []Feedback
	loading   bool
	err       *string
}

// NewStore returns an empty analytics store.
func NewStore() *Store {
	return &Store{}
}

// SetFeedback replaces the feedback list.
func (s *Store) SetFeedback(items []Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append([]Feedback(nil), items...)
}

// AddFeedback appends one feedback entry.
func (s *Store) AddFeedback(item Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, item)
}

// SetAnalytics replaces the whole snapshot.
func (s *Store) SetAnalytics(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = snapshot.clone()
}

// UpdateAttendance replaces the attendance block of the current snapshot.
func (s *Store) UpdateAttendance(attendance AttendanceStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analytics == nil {
		return ErrNoAnalytics
	}
	s.analytics.Attendance = attendance
	return nil
}

// UpdateGrades replaces the grades of the current snapshot.
func (s *Store) UpdateGrades(grades []GradeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analytics == nil {
		return ErrNoAnalytics
	}
	s.analytics.Grades = append([]GradeEntry(nil), grades...)
	return nil
}

// UpdateProgress replaces the course progress of the current snapshot.
func (s *Store) UpdateProgress(progress []CourseProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analytics == nil {
		return ErrNoAnalytics
	}
	s.analytics.Progress = append([]CourseProgress(nil), progress...)
	return nil
}

// Touch stamps the update time of the current snapshot.
func (s *Store) Touch(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analytics == nil {
		return ErrNoAnalytics
	}
	s.analytics.UpdatedAt = at
	return nil
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// SetError records or clears the last error.
func (s *Store) SetError(message *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message == nil {
		s.err = nil
		return
	}
	copied := *message
	s.err = &copied
}

// Snapshot returns a detached copy of the state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		Analytics: s.analytics.clone(),
		Feedback:  append([]Feedback(nil), s.feedback...),
		Loading:   s.loading,
	}
	if s.err != nil {
		message := *s.err
		state.Error = &message
	}
	return state
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Grades = append([]GradeEntry(nil), s.Grades...)
	out.Progress = append([]CourseProgress(nil), s.Progress...)
	return &out
}
