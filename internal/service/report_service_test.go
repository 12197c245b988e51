package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/repository"
)

var reportNow = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func seedCatalog(t *testing.T, env *testEnv) {
	t.Helper()
	for _, ex := range []domain.Exercise{
		{ID: "ex-squat", Name: "Agachamento", MuscleGroup: "Legs"},
		{ID: "ex-row", Name: "Remada", MuscleGroup: "Back"},
		{ID: "ex-bench", Name: "Supino", MuscleGroup: "Chest"},
	} {
		mustInsert(t, env.store, repository.CollectionExercises, ex)
	}
	mustInsert(t, env.store, repository.CollectionPlans, domain.WorkoutPlan{
		ID: "plan-legs-back", CoachID: "coach-1", Name: "A",
		Items: []domain.PlanItem{
			{ExerciseID: "ex-squat", ExerciseName: "Agachamento"},
			{ExerciseName: "REMADA"},
		},
	})
	mustInsert(t, env.store, repository.CollectionPlans, domain.WorkoutPlan{
		ID: "plan-unknown", CoachID: "coach-1", Name: "B",
		Items: []domain.PlanItem{{ExerciseName: "Burpee"}},
	})
	mustInsert(t, env.store, repository.CollectionPlans, domain.WorkoutPlan{
		ID: "plan-empty", CoachID: "coach-1", Name: "C",
	})
}

func sendFinished(t *testing.T, env *testEnv, coachID, gymID, planID string, effort int, duration *int64) {
	t.Helper()
	_, err := env.notifications.Send(context.Background(), SendRequest{
		CoachID: coachID,
		GymID:   gymID,
		Payload: domain.WorkoutFinishedData{
			SessionID: "s", PlanID: planID, EffortLevel: effort, DurationSeconds: duration, FinishedAt: reportNow,
		},
	})
	require.NoError(t, err)
}

func newReportEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	env.notifications.now = func() time.Time { return reportNow.Add(-24 * time.Hour) }
	env.reports.now = func() time.Time { return reportNow }
	seedCatalog(t, env)
	return env
}

func TestBuildEffortReport_ZeroState(t *testing.T) {
	env := newReportEnv(t)

	report, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalSessions)
	assert.Nil(t, report.MeanEffort)
	assert.NotNil(t, report.Categories)
	assert.Empty(t, report.Categories)
	assert.Equal(t, DefaultLookbackDays, report.LookbackDays)
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}, report.EffortHistogram)
	assert.Equal(t, domain.MissingValue, report.FormattedMeanEffort())

	body, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"categories":[]`)
	assert.Contains(t, string(body), `"meanEffort":null`)
}

func TestBuildEffortReport_CategoryFanOut(t *testing.T) {
	env := newReportEnv(t)
	sendFinished(t, env, "coach-1", "", "plan-legs-back", 4, ptr(int64(3600)))

	report, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSessions)
	require.Len(t, report.Categories, 2)
	assert.Equal(t, "Back", report.Categories[0].Category)
	assert.Equal(t, "Legs", report.Categories[1].Category)
	for _, c := range report.Categories {
		assert.Equal(t, 1, c.TotalSessions)
		assert.Equal(t, 1, c.EffortHistogram[4])
	}
}

func TestBuildEffortReport_Aggregates(t *testing.T) {
	env := newReportEnv(t)
	sendFinished(t, env, "coach-1", "gym-1", "plan-legs-back", 4, ptr(int64(3600)))
	sendFinished(t, env, "coach-1", "gym-1", "plan-legs-back", 3, nil)
	sendFinished(t, env, "coach-1", "gym-1", "plan-unknown", 5, ptr(int64(1800)))
	sendFinished(t, env, "coach-1", "gym-1", "plan-empty", 2, ptr(int64(600)))
	sendFinished(t, env, "coach-1", "gym-1", "plan-deleted", 1, nil)
	// excluded: other coach, invalid effort, missing plan
	sendFinished(t, env, "coach-2", "gym-1", "plan-legs-back", 5, nil)
	mustInsert(t, env.store, repository.CollectionNotifications, repository.Document{
		"coach_id": "coach-1", "type": string(domain.TypeWorkoutFinished), "created_at": reportNow.Add(-time.Hour),
		"data": repository.Document{"plan_id": "plan-legs-back", "effort_level": 0},
	})
	mustInsert(t, env.store, repository.CollectionNotifications, repository.Document{
		"coach_id": "coach-1", "type": string(domain.TypeWorkoutFinished), "created_at": reportNow.Add(-time.Hour),
		"data": repository.Document{"plan_id": "", "effort_level": 3},
	})
	mustInsert(t, env.store, repository.CollectionNotifications, repository.Document{
		"coach_id": "coach-1", "type": string(domain.TypeWorkoutFinished), "created_at": reportNow.Add(-time.Hour),
		"data": nil,
	})
	// outside the window
	mustInsert(t, env.store, repository.CollectionNotifications, domain.Notification{
		CoachID: ptr("coach-1"), Type: domain.TypeWorkoutFinished, CreatedAt: reportNow.AddDate(0, 0, -31),
		Data: domain.WorkoutFinishedData{PlanID: "plan-legs-back", EffortLevel: 5},
	})

	report, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 30)
	require.NoError(t, err)

	assert.Equal(t, 5, report.TotalSessions)
	require.NotNil(t, report.MeanEffort)
	assert.InDelta(t, 3.0, *report.MeanEffort, 1e-9)
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1}, report.EffortHistogram)
	assert.Equal(t, 3, report.DurationSamples)
	assert.EqualValues(t, 6000, report.TotalDurationSeconds)
	assert.Equal(t, "00:33:20", report.FormattedMeanDuration())

	names := make([]string, 0, len(report.Categories))
	for _, c := range report.Categories {
		names = append(names, c.Category)
	}
	assert.Equal(t, []string{domain.UncategorizedCategory, "Back", "Legs"}, names)

	uncategorized := report.Categories[0]
	assert.Equal(t, 3, uncategorized.TotalSessions)
	assert.Equal(t, "2,7/5", uncategorized.FormattedMeanEffort())

	legs := report.Categories[2]
	assert.Equal(t, 2, legs.TotalSessions)
	assert.Equal(t, "3,5/5", legs.FormattedMeanEffort())
	assert.Equal(t, 1, legs.DurationSamples)
	assert.Equal(t, "01:00:00", legs.FormattedMeanDuration())
	assert.Equal(t, "01:00:00", legs.FormattedTotalDuration())
}

func TestBuildEffortReport_UndecodablePlanFallsBackToUncategorized(t *testing.T) {
	env := newReportEnv(t)
	ctx := context.Background()
	_, err := env.store.Insert(ctx, repository.CollectionPlans, repository.Document{
		"_id": "plan-bad", "coach_id": "coach-1", "items": "x",
	})
	require.NoError(t, err)
	_, err = env.store.Insert(ctx, repository.CollectionExercises, repository.Document{
		"_id": "ex-bad", "name": 42, "muscle_group": "Arms",
	})
	require.NoError(t, err)
	sendFinished(t, env, "coach-1", "", "plan-legs-back", 4, nil)
	sendFinished(t, env, "coach-1", "", "plan-bad", 2, nil)

	report, err := env.reports.BuildEffortReport(ctx, domain.ReportSelector{CoachID: "coach-1"}, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalSessions)

	names := make([]string, 0, len(report.Categories))
	for _, c := range report.Categories {
		names = append(names, c.Category)
	}
	assert.Equal(t, []string{"Back", "Legs", domain.UncategorizedCategory}, names)
	assert.Equal(t, 1, report.Categories[2].TotalSessions)
	assert.Equal(t, 1, report.Categories[2].EffortHistogram[2])
}

func TestBuildEffortReport_MissingDurationsOnlyAffectDurationStats(t *testing.T) {
	env := newReportEnv(t)
	sendFinished(t, env, "coach-1", "", "plan-unknown", 4, nil)
	sendFinished(t, env, "coach-1", "", "plan-unknown", 2, nil)

	report, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalSessions)
	assert.Equal(t, "3/5", report.FormattedMeanEffort())
	assert.Nil(t, report.MeanDurationSeconds)
	assert.Equal(t, domain.MissingValue, report.FormattedMeanDuration())
	assert.Equal(t, domain.MissingValue, report.FormattedTotalDuration())
}

func TestBuildEffortReport_GymSelector(t *testing.T) {
	env := newReportEnv(t)
	sendFinished(t, env, "coach-1", "gym-1", "plan-legs-back", 5, nil)
	sendFinished(t, env, "coach-2", "gym-1", "plan-legs-back", 3, nil)
	sendFinished(t, env, "coach-3", "gym-2", "plan-legs-back", 1, nil)

	report, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{GymID: "gym-1"}, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalSessions)
	assert.Equal(t, "4/5", report.FormattedMeanEffort())
}

func TestBuildEffortReport_SelectorValidation(t *testing.T) {
	env := newReportEnv(t)
	_, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{}, 30)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{CoachID: "c", GymID: "g"}, 30)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBuildEffortReport_ConfigurableDefaultLookback(t *testing.T) {
	env := newReportEnv(t)
	env.reports.SetDefaultLookback(14)
	report, err := env.reports.BuildEffortReport(context.Background(), domain.ReportSelector{GymID: "g"}, -1)
	require.NoError(t, err)
	assert.Equal(t, 14, report.LookbackDays)
	assert.Equal(t, reportNow.AddDate(0, 0, -14), report.Since)
}

type memArchive struct {
	mu         sync.Mutex
	objects    map[string][]byte
	presignErr error
}

func (a *memArchive) PutObject(_ context.Context, key, _ string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = data
	return nil
}

func (a *memArchive) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if a.presignErr != nil {
		return "", a.presignErr
	}
	return "https://archive.test/" + key + "?sig=1", nil
}

func (a *memArchive) DeleteObject(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func TestExportEffortReport(t *testing.T) {
	env := newReportEnv(t)
	archive := &memArchive{}
	env.reports.archive = archive
	sendFinished(t, env, "coach-1", "", "plan-legs-back", 4, ptr(int64(3600)))

	res, err := env.reports.ExportEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 30)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ObjectKey, "reports/coach/coach-1/2026-02-15/"))
	assert.True(t, strings.HasSuffix(res.ObjectKey, ".json"))
	assert.Equal(t, "https://archive.test/"+res.ObjectKey+"?sig=1", res.URL)
	assert.Equal(t, 1, res.Report.TotalSessions)

	body, ok := archive.objects[res.ObjectKey]
	require.True(t, ok)
	var stored domain.EffortReport
	require.NoError(t, json.NewDecoder(bytes.NewReader(body)).Decode(&stored))
	assert.Equal(t, 1, stored.TotalSessions)
	assert.Len(t, stored.Categories, 2)
}

func TestExportEffortReport_PresignFailureRemovesObject(t *testing.T) {
	env := newReportEnv(t)
	archive := &memArchive{presignErr: errors.New("no credentials")}
	env.reports.archive = archive

	_, err := env.reports.ExportEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 30)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Empty(t, archive.objects)
}

func TestExportEffortReport_NoArchive(t *testing.T) {
	env := newReportEnv(t)
	_, err := env.reports.ExportEffortReport(context.Background(), domain.ReportSelector{CoachID: "coach-1"}, 30)
	assert.ErrorIs(t, err, ErrTransient)
}
