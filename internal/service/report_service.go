package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/logger"
	"alcyxob/gym-notifier/internal/monitoring"
	"alcyxob/gym-notifier/internal/repository"
	"alcyxob/gym-notifier/internal/storage"
	"alcyxob/gym-notifier/internal/tracing"
)

const (
	DefaultLookbackDays = 30
	// planLookupChunk bounds the size of each "in" filter used to load plans.
	planLookupChunk = 30
)

// ExportResult points at an archived report.
type ExportResult struct {
	ObjectKey string               `json:"objectKey"`
	URL       string               `json:"url"`
	Report    *domain.EffortReport `json:"report"`
}

// ReportService builds per-category effort/time reports from workout_finished notifications.
type ReportService struct {
	store           repository.Store
	archive         storage.FileStorage
	presignExpiry   time.Duration
	log             *zap.Logger
	now             func() time.Time
	defaultLookback atomic.Int32
}

// NewReportService creates the report service. archive may be nil, in which
// case exports are refused.
func NewReportService(store repository.Store, archive storage.FileStorage, presignExpiry time.Duration, log *zap.Logger) *ReportService {
	s := &ReportService{
		store:         store,
		archive:       archive,
		presignExpiry: presignExpiry,
		log:           log.With(zap.String(logger.FieldOperation, "effort_report")),
		now:           time.Now,
	}
	s.defaultLookback.Store(DefaultLookbackDays)
	return s
}

// SetDefaultLookback changes the window used when a request gives none.
func (s *ReportService) SetDefaultLookback(days int) {
	if days <= 0 {
		days = DefaultLookbackDays
	}
	s.defaultLookback.Store(int32(days))
}

// BuildEffortReport aggregates the finished workouts visible to the selector
// over the last lookbackDays. An empty window yields a zero report.
func (s *ReportService) BuildEffortReport(ctx context.Context, sel domain.ReportSelector, lookbackDays int) (*domain.EffortReport, error) {
	if (sel.CoachID == "") == (sel.GymID == "") {
		return nil, validationError("exactly one of coachId or gymId is required")
	}
	if lookbackDays <= 0 {
		lookbackDays = int(s.defaultLookback.Load())
	}

	ctx, span := tracing.StartSpan(ctx, "report.build", attribute.String("selector", sel.Key()))
	defer span.End()

	report, err := s.build(ctx, sel, lookbackDays)
	kind := "gym"
	if sel.CoachID != "" {
		kind = "coach"
	}
	if err != nil {
		span.RecordError(err)
		monitoring.ReportBuilds.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	monitoring.ReportBuilds.WithLabelValues(kind, "ok").Inc()
	return report, nil
}

func (s *ReportService) build(ctx context.Context, sel domain.ReportSelector, lookbackDays int) (*domain.EffortReport, error) {
	now := s.now().UTC()
	report := &domain.EffortReport{
		Selector:     sel,
		LookbackDays: lookbackDays,
		Since:        now.AddDate(0, 0, -lookbackDays),
		GeneratedAt:  now,
		EffortStats:  domain.NewEffortStats(),
		Categories:   []domain.CategoryReport{},
	}

	scope := repository.Eq("gym_id", sel.GymID)
	if sel.CoachID != "" {
		scope = repository.Eq("coach_id", sel.CoachID)
	}
	docs, err := s.store.Find(ctx, repository.CollectionNotifications, repository.Query{
		Filters: []repository.Filter{
			scope,
			repository.Eq("type", domain.TypeWorkoutFinished),
			repository.Gte("created_at", report.Since),
		},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, storeError("list finished workouts", err)
	}

	workouts := make([]domain.WorkoutFinishedData, 0, len(docs))
	for _, doc := range docs {
		var n domain.Notification
		if err := repository.Decode(doc, &n); err != nil {
			s.log.Debug("skipping undecodable notification", zap.String("id", repository.DocumentID(doc)), zap.Error(err))
			continue
		}
		data, ok := n.Data.(domain.WorkoutFinishedData)
		if !ok || !domain.ValidEffort(data.EffortLevel) || data.PlanID == "" {
			continue
		}
		workouts = append(workouts, data)
	}
	if len(workouts) == 0 {
		return report, nil
	}

	categories, err := s.planCategories(ctx, workouts)
	if err != nil {
		return nil, err
	}

	global := newAccumulator()
	perCategory := make(map[string]*accumulator)
	for _, w := range workouts {
		global.add(w)
		for cat := range categories[w.PlanID] {
			acc, ok := perCategory[cat]
			if !ok {
				acc = newAccumulator()
				perCategory[cat] = acc
			}
			acc.add(w)
		}
	}

	report.EffortStats = global.stats()
	for cat, acc := range perCategory {
		report.Categories = append(report.Categories, domain.CategoryReport{Category: cat, EffortStats: acc.stats()})
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		a, b := report.Categories[i], report.Categories[j]
		if a.TotalSessions != b.TotalSessions {
			return a.TotalSessions > b.TotalSessions
		}
		return a.Category < b.Category
	})

	s.log.Info("effort report built",
		zap.String(logger.FieldSelector, sel.Key()),
		zap.Int("sessions", report.TotalSessions),
		zap.Int("categories", len(report.Categories)))
	return report, nil
}

// planCategories maps every referenced plan id to the set of categories of
// its items. Plans that are gone or resolve nothing map to "uncategorized".
func (s *ReportService) planCategories(ctx context.Context, workouts []domain.WorkoutFinishedData) (map[string]map[string]struct{}, error) {
	var planIDs []any
	seen := make(map[string]struct{})
	for _, w := range workouts {
		if _, ok := seen[w.PlanID]; ok {
			continue
		}
		seen[w.PlanID] = struct{}{}
		planIDs = append(planIDs, w.PlanID)
	}

	plans := make(map[string]domain.WorkoutPlan, len(planIDs))
	for start := 0; start < len(planIDs); start += planLookupChunk {
		end := min(start+planLookupChunk, len(planIDs))
		docs, err := s.store.Find(ctx, repository.CollectionPlans, repository.Query{
			Filters: []repository.Filter{repository.In(repository.FieldID, planIDs[start:end]...)},
		})
		if err != nil {
			return nil, storeError("load plans", err)
		}
		for _, doc := range docs {
			var p domain.WorkoutPlan
			if err := repository.Decode(doc, &p); err != nil {
				s.log.Debug("skipping undecodable plan", zap.String("id", repository.DocumentID(doc)), zap.Error(err))
				continue
			}
			plans[p.ID] = p
		}
	}

	catalogDocs, err := s.store.Find(ctx, repository.CollectionExercises, repository.Query{})
	if err != nil {
		return nil, storeError("load exercise catalog", err)
	}
	byID := make(map[string]string, len(catalogDocs))
	byName := make(map[string]string, len(catalogDocs))
	for _, doc := range catalogDocs {
		var ex domain.Exercise
		if err := repository.Decode(doc, &ex); err != nil {
			s.log.Debug("skipping undecodable exercise", zap.String("id", repository.DocumentID(doc)), zap.Error(err))
			continue
		}
		byID[ex.ID] = ex.MuscleGroup
		byName[strings.ToLower(strings.TrimSpace(ex.Name))] = ex.MuscleGroup
	}

	out := make(map[string]map[string]struct{}, len(seen))
	for id := range seen {
		set := make(map[string]struct{})
		for _, item := range plans[id].Items {
			set[itemCategory(item, byID, byName)] = struct{}{}
		}
		if len(set) == 0 {
			set[domain.UncategorizedCategory] = struct{}{}
		}
		out[id] = set
	}
	return out, nil
}

func itemCategory(item domain.PlanItem, byID, byName map[string]string) string {
	if group, ok := byID[item.ExerciseID]; ok && item.ExerciseID != "" && group != "" {
		return group
	}
	if group, ok := byName[strings.ToLower(strings.TrimSpace(item.ExerciseName))]; ok && group != "" {
		return group
	}
	return domain.UncategorizedCategory
}

type accumulator struct {
	count       int
	effortSum   int
	histogram   map[int]int
	durSamples  int
	durTotalSec int64
}

func newAccumulator() *accumulator {
	return &accumulator{histogram: domain.NewEffortStats().EffortHistogram}
}

func (a *accumulator) add(w domain.WorkoutFinishedData) {
	a.count++
	a.effortSum += w.EffortLevel
	a.histogram[w.EffortLevel]++
	if w.DurationSeconds != nil && *w.DurationSeconds >= 0 {
		a.durSamples++
		a.durTotalSec += *w.DurationSeconds
	}
}

func (a *accumulator) stats() domain.EffortStats {
	st := domain.EffortStats{
		TotalSessions:        a.count,
		EffortHistogram:      a.histogram,
		DurationSamples:      a.durSamples,
		TotalDurationSeconds: a.durTotalSec,
	}
	if a.count > 0 {
		mean := domain.Round1(float64(a.effortSum) / float64(a.count))
		st.MeanEffort = &mean
	}
	if a.durSamples > 0 {
		mean := domain.Round1(float64(a.durTotalSec) / float64(a.durSamples))
		st.MeanDurationSeconds = &mean
	}
	return st
}

// ExportEffortReport builds the report, stores it as JSON in the archive and
// returns a presigned download URL.
func (s *ReportService) ExportEffortReport(ctx context.Context, sel domain.ReportSelector, lookbackDays int) (*ExportResult, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("%w: report archive is not configured", ErrTransient)
	}
	report, err := s.BuildEffortReport(ctx, sel, lookbackDays)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, validationError("render report: %v", err)
	}
	key := fmt.Sprintf("reports/%s/%s/%s.json", sel.Key(), report.GeneratedAt.Format("2006-01-02"), uuid.NewString())

	if err := s.archive.PutObject(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("%w: upload report: %v", ErrTransient, err)
	}
	url, err := s.archive.GeneratePresignedDownloadURL(ctx, key, s.presignExpiry)
	if err != nil {
		if delErr := s.archive.DeleteObject(ctx, key); delErr != nil {
			s.log.Warn("failed to remove unreachable report", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("%w: presign report: %v", ErrTransient, err)
	}

	s.log.Info("effort report exported", zap.String(logger.FieldSelector, sel.Key()), zap.String("key", key))
	return &ExportResult{ObjectKey: key, URL: url, Report: report}, nil
}
