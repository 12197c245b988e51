package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/repository"
	"alcyxob/gym-notifier/internal/repository/memory"
)

var errInjected = errors.New("injected store failure")

type testEnv struct {
	store         *memory.Store
	notifications *NotificationService
	weekly        *WeeklySummaryService
	cleanup       *CleanupService
	reports       *ReportService
	sessions      *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New(), nil)
}

// newTestEnvWithStore wires every service against st. The memory store is
// still returned for direct inspection.
func newTestEnvWithStore(t *testing.T, mem *memory.Store, st repository.Store) *testEnv {
	t.Helper()
	if st == nil {
		st = mem
	}
	log := zaptest.NewLogger(t)
	notifications := NewNotificationService(st, log)
	weekly := NewWeeklySummaryService(st, notifications, time.UTC, log)
	return &testEnv{
		store:         mem,
		notifications: notifications,
		weekly:        weekly,
		cleanup:       NewCleanupService(st, log),
		reports:       NewReportService(st, nil, time.Minute, log),
		sessions:      NewSessionService(st, notifications, weekly, log),
	}
}

func mustInsert(t *testing.T, st repository.Store, c repository.Collection, v any) string {
	t.Helper()
	doc, err := repository.Encode(v)
	require.NoError(t, err)
	id, err := st.Insert(context.Background(), c, doc)
	require.NoError(t, err)
	return id
}

func mustFind(t *testing.T, st repository.Store, c repository.Collection, filters ...repository.Filter) []repository.Document {
	t.Helper()
	docs, err := st.Find(context.Background(), c, repository.Query{Filters: filters})
	require.NoError(t, err)
	return docs
}

func mustNotifications(t *testing.T, st repository.Store, filters ...repository.Filter) []domain.Notification {
	t.Helper()
	out, err := repository.DecodeAll[domain.Notification](mustFind(t, st, repository.CollectionNotifications, filters...))
	require.NoError(t, err)
	return out
}

func ptr[T any](v T) *T { return &v }

func finishedSession(id, athleteID string, end time.Time, effort int, feedback string) domain.TrainingSession {
	s := domain.TrainingSession{
		ID:              id,
		PlanID:          "plan-1",
		AthleteID:       athleteID,
		StartTime:       end.Add(-time.Hour),
		EndTime:         ptr(end),
		Status:          domain.SessionFinished,
		DurationSeconds: ptr(int64(3600)),
	}
	if effort > 0 {
		s.EffortLevel = ptr(effort)
	}
	if feedback != "" {
		s.FeedbackText = ptr(feedback)
	}
	return s
}

// faultyStore fails selected operations of the wrapped memory store.
type faultyStore struct {
	*memory.Store
	failFind   func(c repository.Collection, q repository.Query) bool
	failCommit func(c repository.Collection) bool
}

func (f *faultyStore) Find(ctx context.Context, c repository.Collection, q repository.Query) ([]repository.Document, error) {
	if f.failFind != nil && f.failFind(c, q) {
		return nil, errInjected
	}
	return f.Store.Find(ctx, c, q)
}

func (f *faultyStore) Batch(c repository.Collection) repository.Batch {
	b := f.Store.Batch(c)
	if f.failCommit != nil && f.failCommit(c) {
		return failingBatch{b}
	}
	return b
}

type failingBatch struct {
	repository.Batch
}

func (failingBatch) Commit(context.Context) error { return errInjected }

func hasFilter(q repository.Query, field string, value any) bool {
	for _, f := range q.Filters {
		if f.Field == field && f.Op == repository.OpEq && f.Value == value {
			return true
		}
	}
	return false
}
