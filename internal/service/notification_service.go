package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"alcyxob/gym-notifier/internal/domain"
	"alcyxob/gym-notifier/internal/logger"
	"alcyxob/gym-notifier/internal/monitoring"
	"alcyxob/gym-notifier/internal/repository"
)

// SendRequest carries the candidate recipients of a notification. Which of
// them end up on the stored record depends on the payload type.
type SendRequest struct {
	CoachID   string
	AthleteID string
	GymID     string
	Payload   domain.Payload
	// Message overrides the type template when set.
	Message string
}

// NotificationService writes directed notifications.
type NotificationService struct {
	store repository.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewNotificationService(store repository.Store, log *zap.Logger) *NotificationService {
	return &NotificationService{
		store: store,
		log:   log.With(zap.String(logger.FieldOperation, "notifications")),
		now:   time.Now,
	}
}

// Send routes, renders and stores a notification and returns its id.
// Nil-valued entries of the payload are stripped before the write.
func (s *NotificationService) Send(ctx context.Context, req SendRequest) (string, error) {
	return s.deliver(ctx, req, true)
}

// MarkRead flips the read flag. It is the only mutation a notification receives.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return validationError("notification id is required")
	}
	err := s.store.Update(ctx, repository.CollectionNotifications, id, repository.Document{"read": true})
	return storeError("mark notification read", err)
}

func (s *NotificationService) deliver(ctx context.Context, req SendRequest, prune bool) (string, error) {
	if req.Payload == nil {
		return "", validationError("notification payload is required")
	}
	t := req.Payload.NotificationType()
	coach, athlete, gym, err := route(t, req)
	if err != nil {
		return "", err
	}

	msg := req.Message
	if msg == "" {
		msg = renderMessage(req.Payload)
	}

	n := domain.Notification{
		CoachID:   coach,
		AthleteID: athlete,
		GymID:     gym,
		Type:      t,
		Message:   msg,
		Data:      req.Payload,
		CreatedAt: s.now().UTC(),
	}
	doc, err := repository.Encode(n)
	if err != nil {
		return "", validationError("encode %s notification: %v", t, err)
	}
	if prune {
		doc["data"] = PruneNil(doc["data"])
	}

	id, err := s.store.Insert(ctx, repository.CollectionNotifications, doc)
	if err != nil {
		return "", storeError("insert notification", err)
	}
	monitoring.NotificationsSent.WithLabelValues(string(t)).Inc()
	s.log.Debug("notification stored", zap.String("id", id), zap.String("type", string(t)))
	return id, nil
}

// route applies the recipient table: parties outside the audience of t are
// stored as null. The gym id is kept as scope whenever it is known.
func route(t domain.NotificationType, req SendRequest) (coach, athlete, gym *string, err error) {
	audience, ok := t.Audience()
	if !ok {
		return nil, nil, nil, validationError("unknown notification type %q", t)
	}
	gym = optional(req.GymID)

	switch audience {
	case domain.AudienceCoach:
		if req.CoachID == "" {
			return nil, nil, nil, validationError("%s requires a coach recipient", t)
		}
		coach = optional(req.CoachID)
	case domain.AudienceAthlete:
		if req.AthleteID == "" {
			return nil, nil, nil, validationError("%s requires an athlete recipient", t)
		}
		athlete = optional(req.AthleteID)
	case domain.AudienceGym:
		if req.GymID == "" {
			return nil, nil, nil, validationError("%s requires a gym recipient", t)
		}
	case domain.AudienceAthleteAndCoach:
		if req.AthleteID == "" {
			return nil, nil, nil, validationError("%s requires an athlete recipient", t)
		}
		athlete = optional(req.AthleteID)
		coach = optional(req.CoachID)
	}
	return coach, athlete, gym, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func renderMessage(p domain.Payload) string {
	switch d := p.(type) {
	case domain.WorkoutStartedData:
		return fmt.Sprintf("%s iniciou o treino %s", orDefault(d.AthleteName, "Seu aluno"), orDefault(d.PlanName, d.PlanID))
	case domain.ExerciseCompletedData:
		return fmt.Sprintf("%s concluiu o exercício %s", orDefault(d.AthleteName, "Seu aluno"), d.ExerciseName)
	case domain.WorkoutFinishedData:
		return fmt.Sprintf("%s finalizou o treino %s (intensidade %d/5)",
			orDefault(d.AthleteName, "Seu aluno"), orDefault(d.PlanName, d.PlanID), d.EffortLevel)
	case domain.PlanEventData:
		switch d.Event {
		case domain.TypePlanAssigned:
			return fmt.Sprintf("Novo treino atribuído: %s", d.PlanName)
		case domain.TypePlanUpdated:
			return fmt.Sprintf("Seu treino %s foi atualizado", d.PlanName)
		default:
			return fmt.Sprintf("O treino %s foi removido", d.PlanName)
		}
	case domain.GymPlanEventData:
		if d.Event == domain.TypePlanCreated {
			return fmt.Sprintf("Novo treino criado na academia: %s", d.PlanName)
		}
		return fmt.Sprintf("Treino %s removido da academia", d.PlanName)
	case domain.WeeklyResumeData:
		return fmt.Sprintf("Resumo semanal (%s): %d treinos finalizados", d.WeekKey, d.TotalSessions)
	}
	return string(p.NotificationType())
}

// PruneNil returns v with nil-valued map entries removed at every depth.
func PruneNil(v any) any {
	switch x := v.(type) {
	case primitive.M:
		out := make(primitive.M, len(x))
		for k, val := range x {
			if val == nil {
				continue
			}
			out[k] = PruneNil(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if val == nil {
				continue
			}
			out[k] = PruneNil(val)
		}
		return out
	case primitive.D:
		out := make(primitive.D, 0, len(x))
		for _, e := range x {
			if e.Value == nil {
				continue
			}
			out = append(out, primitive.E{Key: e.Key, Value: PruneNil(e.Value)})
		}
		return out
	case primitive.A:
		out := make(primitive.A, len(x))
		for i, val := range x {
			out[i] = PruneNil(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = PruneNil(val)
		}
		return out
	}
	return v
}
