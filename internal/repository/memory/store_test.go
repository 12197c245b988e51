package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"alcyxob/gym-notifier/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, c repository.Collection, docs ...repository.Document) {
	t.Helper()
	for _, d := range docs {
		_, err := s.Insert(context.Background(), c, d)
		require.NoError(t, err)
	}
}

func TestInsertGeneratesIDAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Insert(ctx, repository.CollectionUsers, repository.Document{"name": "Ana"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.Insert(ctx, repository.CollectionUsers, repository.Document{"_id": id, "name": "Bia"})
	assert.ErrorIs(t, err, repository.ErrDuplicateID)

	doc, err := s.Get(ctx, repository.CollectionUsers, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc["name"])
}

func TestFindFiltersAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	seed(t, s, repository.CollectionSessions,
		repository.Document{"_id": "s1", "athlete_id": "a1", "status": "finished", "end_time": base.Add(1 * time.Hour)},
		repository.Document{"_id": "s2", "athlete_id": "a1", "status": "finished", "end_time": base.Add(-1 * time.Hour)},
		repository.Document{"_id": "s3", "athlete_id": "a1", "status": "in_progress"},
		repository.Document{"_id": "s4", "athlete_id": "a2", "status": "finished", "end_time": base.Add(2 * time.Hour)},
		repository.Document{"_id": "s5", "athlete_id": "a1", "status": "finished", "end_time": base.Add(48 * time.Hour)},
	)

	docs, err := s.Find(ctx, repository.CollectionSessions, repository.Query{
		Filters: []repository.Filter{
			repository.Eq("athlete_id", "a1"),
			repository.Eq("status", "finished"),
			repository.Gte("end_time", base),
			repository.Lte("end_time", base.Add(24*time.Hour)),
		},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "s1", repository.DocumentID(docs[0]))

	docs, err = s.Find(ctx, repository.CollectionSessions, repository.Query{
		Filters:    []repository.Filter{repository.In("_id", "s5", "s2", "missing")},
		OrderBy:    "end_time",
		Descending: true,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "s5", repository.DocumentID(docs[0]))
	assert.Equal(t, "s2", repository.DocumentID(docs[1]))
}

func TestFindCursorPagination(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 25; i++ {
		seed(t, s, repository.CollectionNotifications, repository.Document{"_id": fmt.Sprintf("n%03d", i), "athlete_id": "a1"})
	}

	var seen []string
	var after any
	for {
		page, err := s.Find(ctx, repository.CollectionNotifications, repository.Query{
			Filters: []repository.Filter{repository.Eq("athlete_id", "a1")},
			OrderBy: repository.FieldID,
			After:   after,
			Limit:   10,
		})
		require.NoError(t, err)
		for _, d := range page {
			seen = append(seen, repository.DocumentID(d))
		}
		if len(page) < 10 {
			break
		}
		after = repository.DocumentID(page[len(page)-1])
	}
	require.Len(t, seen, 25)
	assert.Equal(t, "n000", seen[0])
	assert.Equal(t, "n024", seen[24])
}

func TestFindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, repository.CollectionUsers, repository.Document{"_id": "u1", "name": "Ana"})

	docs, err := s.Find(ctx, repository.CollectionUsers, repository.Query{})
	require.NoError(t, err)
	docs[0]["name"] = "changed"

	doc, err := s.Get(ctx, repository.CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc["name"])
}

func TestBatchCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, repository.CollectionPlans,
		repository.Document{"_id": "p1", "athlete_id": "a1", "name": "A"},
		repository.Document{"_id": "p2", "athlete_id": "a1", "name": "B"},
	)

	b := s.Batch(repository.CollectionPlans)
	b.Update("p1", repository.Document{"athlete_id": ""})
	b.Delete("p2")
	assert.Equal(t, 2, b.Len())
	require.NoError(t, b.Commit(ctx))

	doc, err := s.Get(ctx, repository.CollectionPlans, "p1")
	require.NoError(t, err)
	assert.Equal(t, "", doc["athlete_id"])
	assert.Equal(t, "A", doc["name"])
	_, err = s.Get(ctx, repository.CollectionPlans, "p2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, repository.CollectionSessions, repository.Document{"_id": "s1"})

	b := s.Batch(repository.CollectionSessions)
	b.Delete("s1")
	b.Delete("missing")
	assert.ErrorIs(t, b.Commit(ctx), repository.ErrNotFound)
	assert.Equal(t, 1, s.Count(repository.CollectionSessions))
}

func TestBatchRejectsOversizedCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := s.Batch(repository.CollectionSessions)
	for i := 0; i <= repository.MaxBatchWrites; i++ {
		b.Delete(fmt.Sprintf("s%d", i))
	}
	assert.ErrorIs(t, b.Commit(ctx), repository.ErrBatchTooLarge)
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s := New()
	assert.ErrorIs(t, s.Update(ctx, repository.CollectionNotifications, "x", repository.Document{"read": true}), repository.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, repository.CollectionNotifications, "x"), repository.ErrNotFound)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Find(ctx, repository.CollectionUsers, repository.Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
