package gamification

import "time"

// PointsPerLevel is the number of points separating two consecutive levels.
const PointsPerLevel = 1000

// ActivityType enumerates the point-earning events a student can record.
type ActivityType string

const (
	ActivityAttendance    ActivityType = "attendance"
	ActivityAssignment    ActivityType = "assignment"
	ActivityQuiz          ActivityType = "quiz"
	ActivityParticipation ActivityType = "participation"
)

// Valid reports whether the activity type is one of the known kinds.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityAttendance, ActivityAssignment, ActivityQuiz, ActivityParticipation:
		return true
	}
	return false
}

// Achievement is a catalog item. UnlockedAt is only set once granted to a student.
type Achievement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Points      int        `json:"points"`
	Icon        string     `json:"icon"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// Activity records a single point-earning event.
type Activity struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Points      int          `json:"points"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
}

// StudentPoints is the point ledger of one student.
type StudentPoints struct {
	UserID           string        `json:"user_id"`
	TotalPoints      int           `json:"total_points"`
	Level            int           `json:"level"`
	Achievements     []Achievement `json:"achievements"`
	RecentActivities []Activity    `json:"recent_activities"`
}

// LeaderboardEntry is a read-only ranked projection of a student.
type LeaderboardEntry struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
	Rank        int    `json:"rank"`
}

// Medal is the tier rendered for the top three leaderboard ranks.
type Medal string

const (
	MedalNone   Medal = ""
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

// MedalFor maps a rank to its medal tier.
func MedalFor(rank int) Medal {
	switch rank {
	case 1:
		return MedalGold
	case 2:
		return MedalSilver
	case 3:
		return MedalBronze
	default:
		return MedalNone
	}
}

// LevelFor derives the level from a point total. Negative totals, which only a
// wholesale SetStudentPoints can produce, are clamped to level 1.
func LevelFor(totalPoints int) int {
	if totalPoints < 0 {
		return 1
	}
	return totalPoints/PointsPerLevel + 1
}

// State is a detached snapshot of the store.
type State struct {
	StudentPoints *StudentPoints     `json:"student_points"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Loading       bool               `json:"loading"`
	Error         *string            `json:"error"`
}

func (p *StudentPoints) clone() *StudentPoints {
	if p == nil {
		return nil
	}
	out := *p
	out.Achievements = make([]Achievement, len(p.Achievements))
	for i, achievement := range p.Achievements {
		out.Achievements[i] = achievement
		if achievement.UnlockedAt != nil {
			unlocked := *achievement.UnlockedAt
			out.Achievements[i].UnlockedAt = &unlocked
		}
	}
	out.RecentActivities = append([]Activity{}, p.RecentActivities...)
	return &out
}
