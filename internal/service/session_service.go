package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/logger"
	"alcyxob/gym-notifier/internal/repository"
)

type StartSessionRequest struct {
	AthleteID string    `json:"athleteId" binding:"required"`
	PlanID    string    `json:"planId" binding:"required"`
	StartTime time.Time `json:"startTime"`
}

type FinishSessionRequest struct {
	SessionID       string    `json:"-"`
	EffortLevel     int       `json:"effortLevel" binding:"required"`
	Feedback        string    `json:"feedback"`
	DurationSeconds *int64    `json:"durationSeconds"`
	EndTime         time.Time `json:"endTime"`
}

// AthleteSessions is the session list plus the outcome of the weekly resume
// fallback that runs alongside it. Summary is nil when the fallback failed.
type AthleteSessions struct {
	Sessions []domain.TrainingSession `json:"sessions"`
	Summary  *SummaryResult           `json:"summary,omitempty"`
}

// SessionService drives the training session lifecycle and emits the coach
// notifications that the effort report later reads.
type SessionService struct {
	store         repository.Store
	notifications *NotificationService
	weekly        *WeeklySummaryService
	log           *zap.Logger
	now           func() time.Time
}

func NewSessionService(store repository.Store, notifications *NotificationService, weekly *WeeklySummaryService, log *zap.Logger) *SessionService {
	return &SessionService{
		store:         store,
		notifications: notifications,
		weekly:        weekly,
		log:           log.With(zap.String(logger.FieldOperation, "sessions")),
		now:           time.Now,
	}
}

// StartSession opens an in-progress session for the plan's athlete.
func (s *SessionService) StartSession(ctx context.Context, req StartSessionRequest) (*domain.TrainingSession, error) {
	if req.AthleteID == "" || req.PlanID == "" {
		return nil, validationError("athlete id and plan id are required")
	}
	plan, err := s.getPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	start := req.StartTime
	if start.IsZero() {
		start = s.now()
	}
	session := &domain.TrainingSession{
		PlanID:             plan.ID,
		PlanName:           plan.Name,
		AthleteID:          req.AthleteID,
		CoachID:            optional(plan.CoachID),
		GymID:              optional(plan.GymID),
		StartTime:          start.UTC(),
		Status:             domain.SessionInProgress,
		CompletedExercises: []domain.ExerciseRecord{},
	}
	doc, err := repository.Encode(session)
	if err != nil {
		return nil, validationError("encode session: %v", err)
	}
	id, err := s.store.Insert(ctx, repository.CollectionSessions, doc)
	if err != nil {
		return nil, storeError("insert session", err)
	}
	session.ID = id

	s.notifyCoach(ctx, session, domain.WorkoutStartedData{
		SessionID:   session.ID,
		PlanID:      session.PlanID,
		PlanName:    session.PlanName,
		AthleteName: s.athleteName(ctx, session.AthleteID),
		StartedAt:   session.StartTime,
	})
	return session, nil
}

// CompleteExercise upserts an exercise record on an in-progress session.
func (s *SessionService) CompleteExercise(ctx context.Context, sessionID string, rec domain.ExerciseRecord) (*domain.TrainingSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = s.now().UTC()
	}
	if err := session.UpsertExercise(rec); err != nil {
		return nil, validationError("%v", err)
	}

	exercises, err := repository.Encode(struct {
		Items []domain.ExerciseRecord `bson:"items"`
	}{session.CompletedExercises})
	if err != nil {
		return nil, validationError("encode exercises: %v", err)
	}
	if err := s.store.Update(ctx, repository.CollectionSessions, session.ID, repository.Document{
		"completed_exercises": exercises["items"],
	}); err != nil {
		return nil, storeError("update session exercises", err)
	}

	s.notifyCoach(ctx, session, domain.ExerciseCompletedData{
		SessionID:    session.ID,
		PlanID:       session.PlanID,
		AthleteName:  s.athleteName(ctx, session.AthleteID),
		ExerciseName: rec.Name,
		Sets:         rec.Sets,
		Reps:         rec.Reps,
		WeightKg:     rec.WeightKg,
	})
	return session, nil
}

// FinishSession closes the session exactly once and notifies the coach.
func (s *SessionService) FinishSession(ctx context.Context, req FinishSessionRequest) (*domain.TrainingSession, error) {
	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	end := req.EndTime
	if end.IsZero() {
		end = s.now()
	}
	if err := session.Finish(end.UTC(), req.EffortLevel, req.Feedback, req.DurationSeconds); err != nil {
		return nil, validationError("%v", err)
	}

	if err := s.store.Update(ctx, repository.CollectionSessions, session.ID, repository.Document{
		"status":           session.Status,
		"end_time":         *session.EndTime,
		"duration_seconds": *session.DurationSeconds,
		"effort_level":     *session.EffortLevel,
		"feedback_text":    session.FeedbackText,
	}); err != nil {
		return nil, storeError("finish session", err)
	}

	data := domain.WorkoutFinishedData{
		SessionID:       session.ID,
		PlanID:          session.PlanID,
		PlanName:        session.PlanName,
		AthleteName:     s.athleteName(ctx, session.AthleteID),
		EffortLevel:     *session.EffortLevel,
		DurationSeconds: session.DurationSeconds,
		FinishedAt:      *session.EndTime,
		Metadata: map[string]any{
			"completed_exercises": len(session.CompletedExercises),
		},
	}
	if session.FeedbackText != nil {
		data.Feedback = *session.FeedbackText
	}
	s.notifyCoach(ctx, session, data)
	return session, nil
}

// ListAthleteSessions returns the athlete's sessions, newest first, and runs
// the on-demand weekly resume. A fallback failure is logged, not returned.
func (s *SessionService) ListAthleteSessions(ctx context.Context, athleteID string, reference time.Time) (*AthleteSessions, error) {
	if athleteID == "" {
		return nil, validationError("athlete id is required")
	}
	docs, err := s.store.Find(ctx, repository.CollectionSessions, repository.Query{
		Filters:    []repository.Filter{repository.Eq("athlete_id", athleteID)},
		OrderBy:    "start_time",
		Descending: true,
	})
	if err != nil {
		return nil, storeError("list sessions", err)
	}
	sessions, err := repository.DecodeAll[domain.TrainingSession](docs)
	if err != nil {
		return nil, corruptError("decode sessions", err)
	}
	out := &AthleteSessions{Sessions: sessions}

	req := SummaryRequest{AthleteID: athleteID, Reference: reference}
	if len(sessions) > 0 && sessions[0].CoachID != nil {
		req.CoachID = *sessions[0].CoachID
	}
	res, err := s.weekly.GenerateForAthlete(ctx, req)
	if err != nil {
		s.log.Warn("weekly resume fallback failed", zap.String(logger.FieldAthleteID, athleteID), zap.Error(err))
		return out, nil
	}
	out.Summary = &res
	return out, nil
}

func (s *SessionService) notifyCoach(ctx context.Context, session *domain.TrainingSession, payload domain.Payload) {
	if session.CoachID == nil {
		return
	}
	req := SendRequest{CoachID: *session.CoachID, Payload: payload}
	if session.GymID != nil {
		req.GymID = *session.GymID
	}
	if _, err := s.notifications.Send(ctx, req); err != nil {
		s.log.Warn("coach notification failed",
			zap.String("session_id", session.ID),
			zap.String("type", string(payload.NotificationType())),
			zap.Error(err))
	}
}

func (s *SessionService) athleteName(ctx context.Context, athleteID string) string {
	doc, err := s.store.Get(ctx, repository.CollectionUsers, athleteID)
	if err != nil {
		return ""
	}
	name, _ := doc["name"].(string)
	return name
}

// GetSession loads one session by id.
func (s *SessionService) GetSession(ctx context.Context, id string) (*domain.TrainingSession, error) {
	if id == "" {
		return nil, validationError("session id is required")
	}
	doc, err := s.store.Get(ctx, repository.CollectionSessions, id)
	if err != nil {
		return nil, storeError("get session", err)
	}
	var session domain.TrainingSession
	if err := repository.Decode(doc, &session); err != nil {
		return nil, corruptError("decode session", err)
	}
	return &session, nil
}

func (s *SessionService) getPlan(ctx context.Context, id string) (*domain.WorkoutPlan, error) {
	doc, err := s.store.Get(ctx, repository.CollectionPlans, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validationError("workout plan %s does not exist", id)
		}
		return nil, storeError("get plan", err)
	}
	var plan domain.WorkoutPlan
	if err := repository.Decode(doc, &plan); err != nil {
		return nil, corruptError("decode plan", err)
	}
	return &plan, nil
}
