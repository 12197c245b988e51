package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/logger"
	"alcyxob/gym-notifier/internal/monitoring"
	"alcyxob/gym-notifier/internal/repository"
	"alcyxob/gym-notifier/internal/tracing"
)

// UserDeletedEvent is delivered once per removed user record.
type UserDeletedEvent struct {
	ID            string      `json:"id" binding:"required"`
	LastKnownRole domain.Role `json:"lastKnownRole" binding:"required"`
}

// CollectionSweep reports the progress of one collection's cleanup loop.
type CollectionSweep struct {
	Collection repository.Collection `json:"collection"`
	Action     string                `json:"action"`
	Records    int                   `json:"records"`
	Pages      int                   `json:"pages"`
	Error      string                `json:"error,omitempty"`
}

type CleanupResult struct {
	UserID  string            `json:"userId"`
	Skipped bool              `json:"skipped"`
	Sweeps  []CollectionSweep `json:"sweeps"`
}

const (
	actionDetach = "detach"
	actionDelete = "delete"
)

type sweepTarget struct {
	collection repository.Collection
	action     string
}

var cleanupTargets = []sweepTarget{
	{repository.CollectionPlans, actionDetach},
	{repository.CollectionSessions, actionDelete},
	{repository.CollectionNotifications, actionDelete},
}

// CleanupService removes or detaches the records that referenced a deleted athlete.
type CleanupService struct {
	store    repository.Store
	log      *zap.Logger
	pageSize int
}

func NewCleanupService(store repository.Store, log *zap.Logger) *CleanupService {
	return &CleanupService{
		store:    store,
		log:      log.With(zap.String(logger.FieldOperation, "orphan_cleanup")),
		pageSize: repository.MaxBatchWrites,
	}
}

// HandleUserDeleted detaches the athlete's plans and deletes their sessions and
// notifications. Each collection is swept independently: a failed commit stops
// that collection only. Re-running after a failure is safe.
func (s *CleanupService) HandleUserDeleted(ctx context.Context, ev UserDeletedEvent) (CleanupResult, error) {
	result := CleanupResult{UserID: ev.ID}
	if ev.ID == "" {
		return result, validationError("user id is required")
	}
	if !ev.LastKnownRole.IsAthlete() {
		result.Skipped = true
		s.log.Debug("deleted user is not an athlete", zap.String("user_id", ev.ID), zap.String("role", string(ev.LastKnownRole)))
		return result, nil
	}

	ctx, span := tracing.StartSpan(ctx, "cleanup.user_deleted", attribute.String("athlete_id", ev.ID))
	defer span.End()

	result.Sweeps = make([]CollectionSweep, len(cleanupTargets))
	errs := make([]error, len(cleanupTargets))
	var g errgroup.Group
	for i, target := range cleanupTargets {
		g.Go(func() error {
			sweep, err := s.sweep(ctx, ev.ID, target)
			result.Sweeps[i], errs[i] = sweep, err
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		s.log.Error("orphan cleanup incomplete", zap.String(logger.FieldAthleteID, ev.ID), zap.Error(err))
		return result, err
	}
	s.log.Info("orphan cleanup finished",
		zap.String(logger.FieldAthleteID, ev.ID),
		zap.Any("sweeps", result.Sweeps))
	return result, nil
}

func (s *CleanupService) sweep(ctx context.Context, athleteID string, target sweepTarget) (CollectionSweep, error) {
	out := CollectionSweep{Collection: target.collection, Action: target.action}
	log := s.log.With(zap.String(logger.FieldAthleteID, athleteID), zap.String(logger.FieldCollection, string(target.collection)))

	fail := func(err error) (CollectionSweep, error) {
		err = fmt.Errorf("%s: %w", target.collection, err)
		out.Error = err.Error()
		log.Warn("collection sweep aborted", zap.Int("records", out.Records), zap.Error(err))
		return out, err
	}

	var cursor any
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		page, err := s.store.Find(ctx, target.collection, repository.Query{
			Filters: []repository.Filter{repository.Eq("athlete_id", athleteID)},
			OrderBy: repository.FieldID,
			After:   cursor,
			Limit:   s.pageSize,
		})
		if err != nil {
			return fail(storeError("find page", err))
		}
		if len(page) == 0 {
			break
		}

		batch := s.store.Batch(target.collection)
		for _, doc := range page {
			id := repository.DocumentID(doc)
			if target.action == actionDetach {
				batch.Update(id, repository.Document{"athlete_id": ""})
			} else {
				batch.Delete(id)
			}
		}
		if err := batch.Commit(ctx); err != nil {
			return fail(storeError("commit page", err))
		}

		out.Pages++
		out.Records += len(page)
		monitoring.CleanupRecords.WithLabelValues(string(target.collection), target.action).Add(float64(len(page)))
		log.Debug("cleanup page committed", zap.Int("page", out.Pages), zap.Int("size", len(page)))

		cursor = repository.DocumentID(page[len(page)-1])
		if len(page) < s.pageSize {
			break
		}
	}
	return out, nil
}
