// Package gamification holds the point ledger, achievements and leaderboard
// snapshot of a student together with the operations that keep the derived
// level consistent with the point total.
package gamification

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoStudentPoints is returned by mutations that need a student record when none has been set.
// The state is left untouched in that case.
var ErrNoStudentPoints = errors.New("student points record not initialised")

// ErrNegativePoints is returned by AddPoints for a negative delta. Totals only grow.
var ErrNegativePoints = errors.New("points delta must not be negative")

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp unlocked achievements.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the state container for one student's gamification view.
type Store struct {
	mu          sync.RWMutex
	points      *StudentPoints
	leaderboard []LeaderboardEntry
	loading     bool
	err         *string
	now         func() time.Time
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetStudentPoints replaces the student record wholesale. The caller is
// responsible for supplying a level consistent with the point total.
func (s *Store) SetStudentPoints(points *StudentPoints) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = points.clone()
}

// AddPoints credits delta points for the given activity, prepends the activity
// to the recent list and recomputes the level.
func (s *Store) AddPoints(delta int, activity Activity) error {
	if delta < 0 {
		return ErrNegativePoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.points == nil {
		return ErrNoStudentPoints
	}

	s.points.TotalPoints += delta
	activities := make([]Activity, 0, len(s.points.RecentActivities)+1)
	activities = append(activities, activity)
	s.points.RecentActivities = append(activities, s.points.RecentActivities...)
	s.points.Level = LevelFor(s.points.TotalPoints)
	return nil
}

// UnlockAchievement appends the achievement stamped with the current time.
// Repeated calls with the same achievement append duplicates; use
// HasAchievement first when grant-once semantics are wanted.
func (s *Store) UnlockAchievement(achievement Achievement) error {
	return s.UnlockAchievementAt(achievement, s.now())
}

// UnlockAchievementAt is UnlockAchievement with an explicit unlock time, for
// callers that already stamped the grant elsewhere.
func (s *Store) UnlockAchievementAt(achievement Achievement, unlockedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.points == nil {
		return ErrNoStudentPoints
	}

	achievement.UnlockedAt = &unlockedAt
	s.points.Achievements = append(s.points.Achievements, achievement)
	return nil
}

// HasAchievement reports whether an achievement with the id has been unlocked.
func (s *Store) HasAchievement(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.points == nil {
		return false
	}
	for _, achievement := range s.points.Achievements {
		if achievement.ID == id {
			return true
		}
	}
	return false
}

// SetLeaderboard replaces the leaderboard snapshot. Entries are expected to carry their rank already.
func (s *Store) SetLeaderboard(entries []LeaderboardEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboard = append([]LeaderboardEntry{}, entries...)
}

// Leaderboard returns the snapshot ordered by ascending rank.
func (s *Store) Leaderboard() []LeaderboardEntry {
	s.mu.RLock()
	if len(s.leaderboard) == 0 {
		s.mu.RUnlock()
		return nil
	}
	entries := append([]LeaderboardEntry{}, s.leaderboard...)
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	return entries
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// SetError records or clears (nil) the last error message.
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

// StudentPoints returns a copy of the student record, or nil.
func (s *Store) StudentPoints() *StudentPoints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points.clone()
}

// Snapshot returns a detached copy of the whole state.
func (s *Store) Snapshot() State {
	leaderboard := s.Leaderboard()

	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		StudentPoints: s.points.clone(),
		Leaderboard:   leaderboard,
		Loading:       s.loading,
	}
	if s.err != nil {
		message := *s.err
		state.Error = &message
	}
	return state
}

// Reset discards all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
	s.leaderboard = nil
	s.loading = false
	s.err = nil
}
