package gamification

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newSeededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store := NewStore(opts...)
	store.SetStudentPoints(&StudentPoints{UserID: "student-1", Level: 1})
	return store
}

func TestAddPointsTotalsAndLevelProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deltas := rapid.SliceOfN(rapid.IntRange(0, 2500), 0, 40).Draw(t, "deltas")

		store := NewStore()
		store.SetStudentPoints(&StudentPoints{UserID: "student-1", Level: 1})

		sum := 0
		for i, delta := range deltas {
			sum += delta
			err := store.AddPoints(delta, Activity{ID: fmt.Sprintf("a-%d", i), Type: ActivityQuiz, Points: delta})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		points := store.StudentPoints()
		if points.TotalPoints != sum {
			t.Fatalf("expected total %d, got %d", sum, points.TotalPoints)
		}
		if points.Level != sum/1000+1 {
			t.Fatalf("expected level %d, got %d", sum/1000+1, points.Level)
		}
		if len(points.RecentActivities) != len(deltas) {
			t.Fatalf("expected %d activities, got %d", len(deltas), len(points.RecentActivities))
		}
		if len(deltas) > 0 && points.RecentActivities[0].ID != fmt.Sprintf("a-%d", len(deltas)-1) {
			t.Fatalf("most recent activity not first: %s", points.RecentActivities[0].ID)
		}
	})
}

func TestAddPointsRecomputesLevelAcrossBoundary(t *testing.T) {
	store := NewStore()
	store.SetStudentPoints(&StudentPoints{UserID: "s", TotalPoints: 950, Level: 1})

	require.NoError(t, store.AddPoints(50, Activity{ID: "1", Type: ActivityAttendance, Points: 50}))
	require.Equal(t, 1000, store.StudentPoints().TotalPoints)
	require.Equal(t, 2, store.StudentPoints().Level)

	require.NoError(t, store.AddPoints(1999, Activity{ID: "2", Type: ActivityAssignment, Points: 1999}))
	require.Equal(t, 3, store.StudentPoints().Level)
}

func TestMutationsWithoutRecordLeaveStateUntouched(t *testing.T) {
	store := NewStore()

	err := store.AddPoints(10, Activity{ID: "1"})
	require.ErrorIs(t, err, ErrNoStudentPoints)

	err = store.UnlockAchievement(Achievement{ID: "first-steps"})
	require.ErrorIs(t, err, ErrNoStudentPoints)

	require.Nil(t, store.Snapshot().StudentPoints)
	require.False(t, store.HasAchievement("first-steps"))
}

func TestAddPointsRejectsNegativeDelta(t *testing.T) {
	store := NewStore()
	store.SetStudentPoints(&StudentPoints{UserID: "s", TotalPoints: 1200, Level: 2})

	err := store.AddPoints(-500, Activity{ID: "penalty"})
	require.ErrorIs(t, err, ErrNegativePoints)

	points := store.StudentPoints()
	require.Equal(t, 1200, points.TotalPoints)
	require.Equal(t, 2, points.Level)
	require.Empty(t, points.RecentActivities)
}

func TestLevelForClampsNegativeTotals(t *testing.T) {
	require.Equal(t, 1, LevelFor(-1))
	require.Equal(t, 1, LevelFor(-2500))
	require.Equal(t, 1, LevelFor(999))
	require.Equal(t, 2, LevelFor(1000))
}

func TestUnlockAchievementAtUsesGivenTime(t *testing.T) {
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newSeededStore(t, WithClock(func() time.Time { return clock }))

	grantedAt := clock.Add(-time.Hour)
	require.NoError(t, store.UnlockAchievementAt(Achievement{ID: "first-steps"}, grantedAt))

	points := store.StudentPoints()
	require.Len(t, points.Achievements, 1)
	require.True(t, grantedAt.Equal(*points.Achievements[0].UnlockedAt))
}

func TestUnlockAchievementIsNotIdempotent(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newSeededStore(t, WithClock(func() time.Time { return fixed }))

	achievement := Achievement{ID: "quiz-master", Title: "Quiz Master", Points: 100}
	require.NoError(t, store.UnlockAchievement(achievement))
	require.NoError(t, store.UnlockAchievement(achievement))

	points := store.StudentPoints()
	require.Len(t, points.Achievements, 2)
	for _, unlocked := range points.Achievements {
		require.NotNil(t, unlocked.UnlockedAt)
		require.True(t, fixed.Equal(*unlocked.UnlockedAt))
	}
	require.True(t, store.HasAchievement("quiz-master"))
	require.Nil(t, achievement.UnlockedAt, "caller's value must not be stamped")
}

func TestLeaderboardOrderedByRank(t *testing.T) {
	store := NewStore()
	store.SetLeaderboard([]LeaderboardEntry{
		{UserID: "c", Rank: 3},
		{UserID: "a", Rank: 1},
		{UserID: "d", Rank: 4},
		{UserID: "b", Rank: 2},
	})

	entries := store.Leaderboard()
	require.Len(t, entries, 4)
	for i, entry := range entries {
		require.Equal(t, i+1, entry.Rank)
	}

	require.Equal(t, MedalGold, MedalFor(entries[0].Rank))
	require.Equal(t, MedalSilver, MedalFor(entries[1].Rank))
	require.Equal(t, MedalBronze, MedalFor(entries[2].Rank))
	require.Equal(t, MedalNone, MedalFor(entries[3].Rank))
}

func TestSnapshotIsDetached(t *testing.T) {
	store := newSeededStore(t)
	require.NoError(t, store.AddPoints(5, Activity{ID: "1"}))

	message := "network down"
	store.SetError(&message)
	store.SetLoading(true)

	snapshot := store.Snapshot()
	snapshot.StudentPoints.RecentActivities[0].ID = "mutated"
	*snapshot.Error = "mutated"

	again := store.Snapshot()
	require.Equal(t, "1", again.StudentPoints.RecentActivities[0].ID)
	require.Equal(t, "network down", *again.Error)
	require.True(t, again.Loading)

	store.SetError(nil)
	require.Nil(t, store.Snapshot().Error)

	store.Reset()
	require.Equal(t, State{}, store.Snapshot())
}

func TestSetStudentPointsDoesNotValidateLevel(t *testing.T) {
	store := NewStore()
	store.SetStudentPoints(&StudentPoints{UserID: "s", TotalPoints: 5000, Level: 1})
	require.Equal(t, 1, store.StudentPoints().Level)

	require.NoError(t, store.AddPoints(0, Activity{ID: "noop"}))
	require.Equal(t, LevelFor(5000), store.StudentPoints().Level)
}
