package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/logger"
	"alcyxob/gym-notifier/internal/monitoring"
	"alcyxob/gym-notifier/internal/repository"
	"alcyxob/gym-notifier/internal/timewindow"
	"alcyxob/gym-notifier/internal/tracing"
)

const (
	ReasonNotSunday   = "not_sunday"
	ReasonAlreadySent = "already_sent"

	DefaultSweepFanout = 4
	maxFeedbackExcerpt = 3
)

// SummaryRequest identifies the athlete a weekly resume is generated for.
// CoachID and AthleteName are hints; a missing name is read from the user record.
type SummaryRequest struct {
	AthleteID   string
	CoachID     string
	AthleteName string
	GymID       string
	Reference   time.Time
}

type SummaryResult struct {
	Sent           bool   `json:"sent"`
	Reason         string `json:"reason,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
	WeekKey        string `json:"weekKey,omitempty"`
	TotalSessions  int    `json:"totalSessions"`
}

type SweepResult struct {
	RunID     string `json:"runId"`
	WeekKey   string `json:"weekKey"`
	Processed int64  `json:"processed"`
	Sent      int64  `json:"sent"`
	Skipped   int64  `json:"skipped"`
	Failed    int64  `json:"failed"`
}

// WeeklySummaryService produces at most one weekly_resume notification per
// athlete per calendar week.
type WeeklySummaryService struct {
	store         repository.Store
	notifications *NotificationService
	log           *zap.Logger
	loc           *time.Location
	now           func() time.Time
	fanout        atomic.Int32
}

func NewWeeklySummaryService(store repository.Store, notifications *NotificationService, loc *time.Location, log *zap.Logger) *WeeklySummaryService {
	if loc == nil {
		loc = time.UTC
	}
	s := &WeeklySummaryService{
		store:         store,
		notifications: notifications,
		log:           log.With(zap.String(logger.FieldOperation, "weekly_summary")),
		loc:           loc,
		now:           time.Now,
	}
	s.fanout.Store(DefaultSweepFanout)
	return s
}

// SetFanout changes how many athletes a sweep processes concurrently.
func (s *WeeklySummaryService) SetFanout(n int) {
	if n < 1 {
		n = 1
	}
	s.fanout.Store(int32(n))
}

// GenerateForAthlete is the on-demand path. It only acts on Sundays.
func (s *WeeklySummaryService) GenerateForAthlete(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	if req.AthleteID == "" {
		return SummaryResult{}, validationError("athlete id is required")
	}
	ref := s.reference(req.Reference)
	if !timewindow.IsSunday(ref) {
		monitoring.WeeklySummaryOutcomes.WithLabelValues(ReasonNotSunday).Inc()
		return SummaryResult{Sent: false, Reason: ReasonNotSunday}, nil
	}
	res, err := s.generate(ctx, req, ref)
	recordOutcome(res, err)
	return res, err
}

// RunSweep generates the weekly resume of every athlete. A failure for one
// athlete is logged and counted; the sweep moves on to the next one.
func (s *WeeklySummaryService) RunSweep(ctx context.Context, reference time.Time) (SweepResult, error) {
	ref := s.reference(reference)
	result := SweepResult{RunID: uuid.NewString(), WeekKey: timewindow.WeekKey(ref)}
	log := s.log.With(zap.String(logger.FieldRunID, result.RunID), zap.String(logger.FieldWeekKey, result.WeekKey))

	ctx, span := tracing.StartSpan(ctx, "weekly_summary.sweep", attribute.String("week_key", result.WeekKey))
	defer span.End()
	start := time.Now()
	defer func() { monitoring.WeeklySweepDuration.Observe(time.Since(start).Seconds()) }()

	log.Info("weekly sweep started", zap.Int32("fanout", s.fanout.Load()))

	var processed, sent, skipped, failed atomic.Int64
	var cursor any
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		docs, err := s.store.Find(ctx, repository.CollectionUsers, repository.Query{
			Filters: []repository.Filter{repository.Eq("role", domain.RoleAthlete)},
			OrderBy: repository.FieldID,
			After:   cursor,
			Limit:   repository.MaxBatchWrites,
		})
		if err != nil {
			span.RecordError(err)
			result.Processed, result.Sent, result.Skipped, result.Failed = processed.Load(), sent.Load(), skipped.Load(), failed.Load()
			return result, storeError("list athletes", err)
		}
		if len(docs) == 0 {
			break
		}
		var g errgroup.Group
		g.SetLimit(int(s.fanout.Load()))
		for _, doc := range docs {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				processed.Add(1)
				var athlete domain.User
				if err := repository.Decode(doc, &athlete); err != nil {
					failed.Add(1)
					recordOutcome(SummaryResult{}, err)
					log.Error("undecodable athlete record", zap.String(logger.FieldAthleteID, repository.DocumentID(doc)), zap.Error(err))
					return nil
				}
				res, err := s.generate(ctx, SummaryRequest{
					AthleteID:   athlete.ID,
					AthleteName: athlete.Name,
					GymID:       athlete.GymIDValue(),
				}, ref)
				recordOutcome(res, err)
				switch {
				case err != nil:
					failed.Add(1)
					log.Error("weekly summary failed", zap.String(logger.FieldAthleteID, athlete.ID), zap.Error(err))
				case res.Sent:
					sent.Add(1)
				default:
					skipped.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		cursor = repository.DocumentID(docs[len(docs)-1])
		if len(docs) < repository.MaxBatchWrites {
			break
		}
	}

	result.Processed, result.Sent, result.Skipped, result.Failed = processed.Load(), sent.Load(), skipped.Load(), failed.Load()
	log.Info("weekly sweep finished",
		zap.Int64("processed", result.Processed),
		zap.Int64("sent", result.Sent),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *WeeklySummaryService) reference(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return t.In(s.loc)
}

func (s *WeeklySummaryService) generate(ctx context.Context, req SummaryRequest, ref time.Time) (SummaryResult, error) {
	weekKey := timewindow.WeekKey(ref)
	weekStart, weekEnd := timewindow.WeekStart(ref), timewindow.WeekEnd(ref)

	sent, err := s.alreadySent(ctx, req.AthleteID, weekKey)
	if err != nil {
		return SummaryResult{}, err
	}
	if sent {
		return SummaryResult{Sent: false, Reason: ReasonAlreadySent, WeekKey: weekKey}, nil
	}

	docs, err := s.store.Find(ctx, repository.CollectionSessions, repository.Query{
		Filters: []repository.Filter{
			repository.Eq("athlete_id", req.AthleteID),
			repository.Eq("status", domain.SessionFinished),
			repository.Gte("end_time", weekStart),
			repository.Lte("end_time", weekEnd),
		},
		OrderBy: "end_time",
	})
	if err != nil {
		return SummaryResult{}, storeError("list finished sessions", err)
	}
	sessions, err := repository.DecodeAll[domain.TrainingSession](docs)
	if err != nil {
		return SummaryResult{}, corruptError("decode sessions", err)
	}

	if req.AthleteName == "" || req.GymID == "" {
		if err := s.fillFromUser(ctx, &req); err != nil {
			return SummaryResult{}, err
		}
	}

	data := domain.WeeklyResumeData{
		WeekKey:          weekKey,
		WeekStart:        weekStart,
		WeekEnd:          weekEnd,
		TotalSessions:    len(sessions),
		MeanEffort:       meanEffort(sessions),
		FeedbackExcerpts: feedbackExcerpts(sessions),
	}

	// mean_effort stays an explicit null, so the payload is written unpruned.
	id, err := s.notifications.deliver(ctx, SendRequest{
		AthleteID: req.AthleteID,
		CoachID:   req.CoachID,
		GymID:     req.GymID,
		Payload:   data,
		Message:   weeklyMessage(req.AthleteName, data),
	}, false)
	if err != nil {
		return SummaryResult{}, err
	}

	s.log.Info("weekly resume sent",
		zap.String(logger.FieldAthleteID, req.AthleteID),
		zap.String(logger.FieldWeekKey, weekKey),
		zap.Int("total_sessions", data.TotalSessions))
	return SummaryResult{Sent: true, NotificationID: id, WeekKey: weekKey, TotalSessions: data.TotalSessions}, nil
}

func (s *WeeklySummaryService) alreadySent(ctx context.Context, athleteID, weekKey string) (bool, error) {
	docs, err := s.store.Find(ctx, repository.CollectionNotifications, repository.Query{
		Filters: []repository.Filter{
			repository.Eq("athlete_id", athleteID),
			repository.Eq("type", domain.TypeWeeklyResume),
		},
	})
	if err != nil {
		return false, storeError("list weekly resumes", err)
	}
	for _, doc := range docs {
		data := repository.SubDocument(doc["data"])
		if key, _ := data["week_key"].(string); key == weekKey {
			return true, nil
		}
	}
	return false, nil
}

// fillFromUser completes the name and gym hints from the user record. A
// missing record is not an error; the summary is still produced.
func (s *WeeklySummaryService) fillFromUser(ctx context.Context, req *SummaryRequest) error {
	doc, err := s.store.Get(ctx, repository.CollectionUsers, req.AthleteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError("get athlete", err)
	}
	var u domain.User
	if err := repository.Decode(doc, &u); err != nil {
		return corruptError("decode athlete", err)
	}
	if req.AthleteName == "" {
		req.AthleteName = u.Name
	}
	if req.GymID == "" {
		req.GymID = u.GymIDValue()
	}
	return nil
}

func meanEffort(sessions []domain.TrainingSession) *float64 {
	var sum, n int
	for _, sess := range sessions {
		if sess.EffortLevel != nil && domain.ValidEffort(*sess.EffortLevel) {
			sum += *sess.EffortLevel
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := domain.Round1(float64(sum) / float64(n))
	return &mean
}

func feedbackExcerpts(sessions []domain.TrainingSession) []string {
	excerpts := make([]string, 0, maxFeedbackExcerpt)
	seen := make(map[string]struct{})
	for _, sess := range sessions {
		if len(excerpts) == maxFeedbackExcerpt {
			break
		}
		if sess.FeedbackText == nil {
			continue
		}
		text := strings.TrimSpace(*sess.FeedbackText)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		excerpts = append(excerpts, text)
	}
	return excerpts
}

func weeklyMessage(athleteName string, d domain.WeeklyResumeData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resumo semanal de %s (%s)\n", orDefault(athleteName, "atleta"), timewindow.FormatRange(d.WeekStart, d.WeekEnd))
	fmt.Fprintf(&b, "Treinos finalizados: %d\n", d.TotalSessions)
	if d.MeanEffort != nil {
		fmt.Fprintf(&b, "Intensidade média: %s", domain.FormatEffort(*d.MeanEffort))
	} else {
		b.WriteString("Intensidade média: não informada")
	}
	if len(d.FeedbackExcerpts) > 0 {
		b.WriteString("\nComentários:")
		for _, fb := range d.FeedbackExcerpts {
			fmt.Fprintf(&b, "\n- \"%s\"", fb)
		}
	}
	return b.String()
}

func recordOutcome(res SummaryResult, err error) {
	outcome := "sent"
	switch {
	case err != nil:
		outcome = "failed"
	case !res.Sent:
		outcome = res.Reason
	}
	monitoring.WeeklySummaryOutcomes.WithLabelValues(outcome).Inc()
}
