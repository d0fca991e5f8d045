package dto

import (
	"github.com/noah-isme/gema-portal-api/internal/gamification"
)

// RecordActivityRequest is the payload to credit points for an activity.
type RecordActivityRequest struct {
	Type        string `json:"type" validate:"required,oneof=attendance assignment quiz participation"`
	Points      int    `json:"points" validate:"required,gt=0,lte=1000"`
	Description string `json:"description" validate:"omitempty,max=255"`
}

// GamificationProgressResponse describes the points ledger of the current student.
type GamificationProgressResponse struct {
	UserID            string                     `json:"user_id"`
	TotalPoints       int                        `json:"total_points"`
	Level             int                        `json:"level"`
	PointsToNextLevel int                        `json:"points_to_next_level"`
	Achievements      []gamification.Achievement `json:"achievements"`
	RecentActivities  []gamification.Activity    `json:"recent_activities"`
}

// RecordActivityResponse returns the updated ledger plus achievements granted by the activity.
type RecordActivityResponse struct {
	Progress GamificationProgressResponse `json:"progress"`
	Unlocked []gamification.Achievement   `json:"unlocked"`
}

// LeaderboardEntryResponse is a ranked leaderboard row with its medal tier.
type LeaderboardEntryResponse struct {
	UserID      string             `json:"user_id"`
	Username    string             `json:"username"`
	TotalPoints int                `json:"total_points"`
	Level       int                `json:"level"`
	Rank        int                `json:"rank"`
	Medal       gamification.Medal `json:"medal,omitempty"`
}

// LeaderboardResponse wraps the ranked entries.
type LeaderboardResponse struct {
	Entries  []LeaderboardEntryResponse `json:"entries"`
	CacheHit bool                       `json:"cache_hit"`
}

// NewGamificationProgressResponse converts a store record into the response shape.
func NewGamificationProgressResponse(points gamification.StudentPoints) GamificationProgressResponse {
	achievements := points.Achievements
	if achievements == nil {
		achievements = []gamification.Achievement{}
	}
	activities := points.RecentActivities
	if activities == nil {
		activities = []gamification.Activity{}
	}

	next := points.Level*gamification.PointsPerLevel - points.TotalPoints
	if next < 0 {
		next = 0
	}

	return GamificationProgressResponse{
		UserID:            points.UserID,
		TotalPoints:       points.TotalPoints,
		Level:             points.Level,
		PointsToNextLevel: next,
		Achievements:      achievements,
		RecentActivities:  activities,
	}
}

// NewLeaderboardEntryResponses converts leaderboard entries, attaching medals.
func NewLeaderboardEntryResponses(entries []gamification.LeaderboardEntry) []LeaderboardEntryResponse {
	out := make([]LeaderboardEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, LeaderboardEntryResponse{
			UserID:      entry.UserID,
			Username:    entry.Username,
			TotalPoints: entry.TotalPoints,
			Level:       entry.Level,
			Rank:        entry.Rank,
			Medal:       gamification.MedalFor(entry.Rank),
		})
	}
	return out
}
