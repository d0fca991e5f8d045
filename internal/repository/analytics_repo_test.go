package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-portal-api/internal/models"
)

func TestAnalyticsSaveUpsertsSnapshot(t *testing.T) {
	repo := NewAnalyticsRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, 9)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	snapshot := &models.AnalyticsSnapshot{
		StudentID:  9,
		Attendance: datatypes.NewJSONType(models.AttendanceSummary{Present: 8, Absent: 2, Rate: 0.8}),
		Grades:     datatypes.NewJSONSlice([]models.GradeRecord{{CourseID: "web-101", Course: "Web Basics", Score: 88, MaxScore: 100}}),
	}
	require.NoError(t, repo.Save(ctx, snapshot))

	snapshot.Progress = datatypes.NewJSONSlice([]models.ProgressRecord{{CourseID: "web-101", CompletedLessons: 3, TotalLessons: 4, Percent: 75}})
	require.NoError(t, repo.Save(ctx, snapshot))

	stored, err := repo.Get(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, 8, stored.Attendance.Data().Present)
	require.Len(t, stored.Grades, 1)
	require.Len(t, stored.Progress, 1)
	require.Equal(t, float64(75), stored.Progress[0].Percent)
}
