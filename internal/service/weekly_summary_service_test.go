package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/repository"
)

var sunday = time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

func seedJoao(t *testing.T, env *testEnv) {
	t.Helper()
	mustInsert(t, env.store, repository.CollectionUsers, domain.User{ID: "joao", Name: "João", Role: domain.RoleAthlete})
	mustInsert(t, env.store, repository.CollectionSessions,
		finishedSession("s1", "joao", time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC), 4, "Treino pesado"))
	mustInsert(t, env.store, repository.CollectionSessions,
		finishedSession("s2", "joao", time.Date(2026, 2, 13, 7, 30, 0, 0, time.UTC), 2, "Boa execução"))
	// previous week
	mustInsert(t, env.store, repository.CollectionSessions,
		finishedSession("s0", "joao", time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC), 5, "Semana passada"))
	mustInsert(t, env.store, repository.CollectionSessions, domain.TrainingSession{
		ID: "s3", PlanID: "plan-1", AthleteID: "joao",
		StartTime: time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC), Status: domain.SessionInProgress,
	})
}

func TestGenerateForAthlete_ExampleAndIdempotence(t *testing.T) {
	env := newTestEnv(t)
	seedJoao(t, env)
	ctx := context.Background()

	res, err := env.weekly.GenerateForAthlete(ctx, SummaryRequest{AthleteID: "joao", CoachID: "coach-1", Reference: sunday})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "2026-02-09", res.WeekKey)
	assert.Equal(t, 2, res.TotalSessions)
	assert.NotEmpty(t, res.NotificationID)

	notes := mustNotifications(t, env.store, repository.Eq("type", domain.TypeWeeklyResume))
	require.Len(t, notes, 1)
	n := notes[0]
	assert.Contains(t, n.Message, "Resumo semanal de João (09/02/2026 a 15/02/2026)")
	assert.Contains(t, n.Message, "Treinos finalizados: 2")
	assert.Contains(t, n.Message, "Intensidade média: 3/5")
	assert.Contains(t, n.Message, `"Treino pesado"`)
	assert.Contains(t, n.Message, `"Boa execução"`)
	assert.False(t, n.Read)
	require.NotNil(t, n.AthleteID)
	assert.Equal(t, "joao", *n.AthleteID)
	require.NotNil(t, n.CoachID)
	assert.Equal(t, "coach-1", *n.CoachID)

	data, ok := n.Data.(domain.WeeklyResumeData)
	require.True(t, ok)
	assert.Equal(t, "2026-02-09", data.WeekKey)
	require.NotNil(t, data.MeanEffort)
	assert.InDelta(t, 3.0, *data.MeanEffort, 1e-9)
	assert.Equal(t, []string{"Treino pesado", "Boa execução"}, data.FeedbackExcerpts)

	again, err := env.weekly.GenerateForAthlete(ctx, SummaryRequest{AthleteID: "joao", Reference: sunday.Add(5 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, again.Sent)
	assert.Equal(t, ReasonAlreadySent, again.Reason)
	assert.Equal(t, "2026-02-09", again.WeekKey)
	assert.Equal(t, 1, env.store.Count(repository.CollectionNotifications))
}

func TestGenerateForAthlete_NotSundayWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	seedJoao(t, env)

	for _, ref := range []time.Time{
		time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 14, 23, 59, 59, 0, time.UTC),
	} {
		res, err := env.weekly.GenerateForAthlete(context.Background(), SummaryRequest{AthleteID: "joao", Reference: ref})
		require.NoError(t, err)
		assert.Equal(t, SummaryResult{Sent: false, Reason: ReasonNotSunday}, res)
	}
	assert.Zero(t, env.store.Count(repository.CollectionNotifications))
}

func TestGenerateForAthlete_NoEffortStoresNullMean(t *testing.T) {
	env := newTestEnv(t)
	mustInsert(t, env.store, repository.CollectionSessions,
		finishedSession("s1", "ana", time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC), 0, ""))

	res, err := env.weekly.GenerateForAthlete(context.Background(), SummaryRequest{AthleteID: "ana", AthleteName: "Ana", Reference: sunday})
	require.NoError(t, err)
	require.True(t, res.Sent)

	docs := mustFind(t, env.store, repository.CollectionNotifications)
	require.Len(t, docs, 1)
	data := repository.SubDocument(docs[0]["data"])
	require.Contains(t, data, "mean_effort")
	assert.Nil(t, data["mean_effort"])
	assert.Contains(t, docs[0]["message"], "Intensidade média: não informada")
	assert.Nil(t, docs[0]["coach_id"])
}

func TestGenerateForAthlete_RequiresAthlete(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.weekly.GenerateForAthlete(context.Background(), SummaryRequest{Reference: sunday})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateForAthlete_StoreFailurePropagates(t *testing.T) {
	fs := &faultyStore{Store: newTestEnv(t).store, failFind: func(c repository.Collection, _ repository.Query) bool {
		return c == repository.CollectionSessions
	}}
	env := newTestEnvWithStore(t, fs.Store, fs)

	_, err := env.weekly.GenerateForAthlete(context.Background(), SummaryRequest{AthleteID: "joao", Reference: sunday})
	assert.ErrorIs(t, err, ErrTransient)
	assert.Zero(t, env.store.Count(repository.CollectionNotifications))
}

func TestFeedbackExcerpts(t *testing.T) {
	end := sunday
	sessions := []domain.TrainingSession{
		finishedSession("1", "a", end, 3, "  primeiro "),
		finishedSession("2", "a", end, 3, ""),
		finishedSession("3", "a", end, 3, "primeiro"),
		finishedSession("4", "a", end, 3, "segundo"),
		finishedSession("5", "a", end, 3, "terceiro"),
		finishedSession("6", "a", end, 3, "quarto"),
	}
	assert.Equal(t, []string{"primeiro", "segundo", "terceiro"}, feedbackExcerpts(sessions))
	assert.Empty(t, feedbackExcerpts(nil))
}

func TestMeanEffortRoundsToOneDecimal(t *testing.T) {
	sessions := []domain.TrainingSession{
		finishedSession("1", "a", sunday, 4, ""),
		finishedSession("2", "a", sunday, 4, ""),
		finishedSession("3", "a", sunday, 3, ""),
		finishedSession("4", "a", sunday, 0, ""),
	}
	got := meanEffort(sessions)
	require.NotNil(t, got)
	assert.InDelta(t, 3.7, *got, 1e-9)
}

func TestRunSweep_ProcessesEveryAthleteOnce(t *testing.T) {
	env := newTestEnv(t)
	env.weekly.SetFanout(8)
	const athletes = 405
	for i := 0; i < athletes; i++ {
		mustInsert(t, env.store, repository.CollectionUsers, domain.User{
			ID: fmt.Sprintf("athlete-%03d", i), Name: fmt.Sprintf("Atleta %d", i), Role: domain.RoleAthlete,
		})
	}
	mustInsert(t, env.store, repository.CollectionUsers, domain.User{ID: "coach-1", Name: "Coach", Role: domain.RoleCoach})

	res, err := env.weekly.RunSweep(context.Background(), sunday)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "2026-02-09", res.WeekKey)
	assert.EqualValues(t, athletes, res.Processed)
	assert.EqualValues(t, athletes, res.Sent)
	assert.Zero(t, res.Failed)

	again, err := env.weekly.RunSweep(context.Background(), sunday)
	require.NoError(t, err)
	assert.EqualValues(t, athletes, again.Skipped)
	assert.Zero(t, again.Sent)
	assert.Equal(t, athletes, env.store.Count(repository.CollectionNotifications))
}

func TestRunSweep_IsNotSundayGuarded(t *testing.T) {
	env := newTestEnv(t)
	mustInsert(t, env.store, repository.CollectionUsers, domain.User{ID: "a1", Name: "Ana", Role: domain.RoleAthlete})

	res, err := env.weekly.RunSweep(context.Background(), time.Date(2026, 2, 11, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Sent)
	assert.Equal(t, "2026-02-09", res.WeekKey)
}

func TestRunSweep_IsolatesAthleteFailures(t *testing.T) {
	mem := newTestEnv(t).store
	fs := &faultyStore{Store: mem, failFind: func(c repository.Collection, q repository.Query) bool {
		return c == repository.CollectionSessions && hasFilter(q, "athlete_id", "bad")
	}}
	env := newTestEnvWithStore(t, mem, fs)
	for _, id := range []string{"a1", "bad", "a2"} {
		mustInsert(t, mem, repository.CollectionUsers, domain.User{ID: id, Name: id, Role: domain.RoleAthlete})
	}

	res, err := env.weekly.RunSweep(context.Background(), sunday)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Processed)
	assert.EqualValues(t, 2, res.Sent)
	assert.EqualValues(t, 1, res.Failed)
}

func TestRunSweep_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	mustInsert(t, env.store, repository.CollectionUsers, domain.User{ID: "a1", Role: domain.RoleAthlete})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.weekly.RunSweep(ctx, sunday)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Processed)
	assert.Zero(t, env.store.Count(repository.CollectionNotifications))
}

func TestRunSweep_UndecodableAthleteCountsAsFailed(t *testing.T) {
	env := newTestEnv(t)
	mustInsert(t, env.store, repository.CollectionUsers, domain.User{ID: "a1", Name: "Ana", Role: domain.RoleAthlete})
	_, err := env.store.Insert(context.Background(), repository.CollectionUsers, repository.Document{
		"_id": "a2", "role": string(domain.RoleAthlete), "name": 42,
	})
	require.NoError(t, err)
	mustInsert(t, env.store, repository.CollectionUsers, domain.User{ID: "a3", Name: "Bia", Role: domain.RoleAthlete})

	res, err := env.weekly.RunSweep(context.Background(), sunday)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Processed)
	assert.EqualValues(t, 2, res.Sent)
	assert.EqualValues(t, 1, res.Failed)
	assert.Len(t, mustNotifications(t, env.store, repository.Eq("athlete_id", "a1")), 1)
	assert.Len(t, mustNotifications(t, env.store, repository.Eq("athlete_id", "a3")), 1)
	assert.Empty(t, mustNotifications(t, env.store, repository.Eq("athlete_id", "a2")))
}

func TestGenerateForAthlete_CorruptUserRecord(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Insert(context.Background(), repository.CollectionUsers, repository.Document{
		"_id": "ana", "role": string(domain.RoleAthlete), "name": 42,
	})
	require.NoError(t, err)

	_, err = env.weekly.GenerateForAthlete(context.Background(), SummaryRequest{AthleteID: "ana", Reference: sunday})
	assert.ErrorIs(t, err, ErrCorruptRecord)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Zero(t, env.store.Count(repository.CollectionNotifications))
}
