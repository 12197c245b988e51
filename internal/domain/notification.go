package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrUnknownNotificationType = errors.New("unknown notification type")
	ErrMissingPayload          = errors.New("notification payload is missing")
)

// NotificationType selects both the recipient routing and the payload variant.
type NotificationType string

const (
	TypeWorkoutStarted    NotificationType = "workout_started"
	TypeExerciseCompleted NotificationType = "exercise_completed"
	TypeWorkoutFinished   NotificationType = "workout_finished"
	TypePlanAssigned      NotificationType = "plan_assigned"
	TypePlanUpdated       NotificationType = "plan_updated"
	TypePlanRemoved       NotificationType = "plan_removed"
	TypePlanCreated       NotificationType = "plan_created"
	TypePlanDeletedGym    NotificationType = "plan_deleted_gym"
	TypeWeeklyResume      NotificationType = "weekly_resume"
)

// Audience is who may see a notification of a given type.
type Audience string

const (
	AudienceCoach           Audience = "coach"
	AudienceAthlete         Audience = "athlete"
	AudienceGym             Audience = "gym"
	AudienceAthleteAndCoach Audience = "athlete_and_coach"
)

var notificationAudience = map[NotificationType]Audience{
	TypeWorkoutStarted:    AudienceCoach,
	TypeExerciseCompleted: AudienceCoach,
	TypeWorkoutFinished:   AudienceCoach,
	TypePlanAssigned:      AudienceAthlete,
	TypePlanUpdated:       AudienceAthlete,
	TypePlanRemoved:       AudienceAthlete,
	TypePlanCreated:       AudienceGym,
	TypePlanDeletedGym:    AudienceGym,
	TypeWeeklyResume:      AudienceAthleteAndCoach,
}

// Audience returns the routing rule of the type.
func (t NotificationType) Audience() (Audience, bool) {
	a, ok := notificationAudience[t]
	return a, ok
}

func (t NotificationType) Valid() bool {
	_, ok := notificationAudience[t]
	return ok
}

// Notification is a typed message directed to a coach, an athlete or a gym.
// It is only ever updated to flip Read.
type Notification struct {
	ID        string           `bson:"_id,omitempty" json:"id"`
	CoachID   *string          `bson:"coach_id" json:"coachId"`
	AthleteID *string          `bson:"athlete_id" json:"athleteId"`
	GymID     *string          `bson:"gym_id" json:"gymId"`
	Type      NotificationType `bson:"type" json:"type"`
	Message   string           `bson:"message" json:"message"`
	Data      Payload          `bson:"data" json:"data"`
	Read      bool             `bson:"read" json:"read"`
	CreatedAt time.Time        `bson:"created_at" json:"createdAt"`
}

// UnmarshalBSON decodes the data field into the variant selected by type.
func (n *Notification) UnmarshalBSON(b []byte) error {
	var doc struct {
		ID        string           `bson:"_id,omitempty"`
		CoachID   *string          `bson:"coach_id"`
		AthleteID *string          `bson:"athlete_id"`
		GymID     *string          `bson:"gym_id"`
		Type      NotificationType `bson:"type"`
		Message   string           `bson:"message"`
		Data      bson.Raw         `bson:"data"`
		Read      bool             `bson:"read"`
		CreatedAt time.Time        `bson:"created_at"`
	}
	if err := bson.Unmarshal(b, &doc); err != nil {
		return err
	}
	payload, err := DecodePayload(doc.Type, doc.Data)
	if err != nil {
		return fmt.Errorf("notification %s: %w", doc.ID, err)
	}
	*n = Notification{
		ID:        doc.ID,
		CoachID:   doc.CoachID,
		AthleteID: doc.AthleteID,
		GymID:     doc.GymID,
		Type:      doc.Type,
		Message:   doc.Message,
		Data:      payload,
		Read:      doc.Read,
		CreatedAt: doc.CreatedAt,
	}
	return nil
}

// Payload is the type-specific data of a notification.
type Payload interface {
	NotificationType() NotificationType
}

type WorkoutStartedData struct {
	SessionID   string    `bson:"session_id" json:"session_id"`
	PlanID      string    `bson:"plan_id" json:"plan_id"`
	PlanName    string    `bson:"plan_name,omitempty" json:"plan_name,omitempty"`
	AthleteName string    `bson:"athlete_name,omitempty" json:"athlete_name,omitempty"`
	StartedAt   time.Time `bson:"started_at" json:"started_at"`
}

func (WorkoutStartedData) NotificationType() NotificationType { return TypeWorkoutStarted }

type ExerciseCompletedData struct {
	SessionID    string         `bson:"session_id" json:"session_id"`
	PlanID       string         `bson:"plan_id" json:"plan_id"`
	AthleteName  string         `bson:"athlete_name,omitempty" json:"athlete_name,omitempty"`
	ExerciseName string         `bson:"exercise_name" json:"exercise_name"`
	Sets         int            `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps         int            `bson:"reps,omitempty" json:"reps,omitempty"`
	WeightKg     float64        `bson:"weight_kg,omitempty" json:"weight_kg,omitempty"`
	Metadata     map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

func (ExerciseCompletedData) NotificationType() NotificationType { return TypeExerciseCompleted }

// WorkoutFinishedData is read back by the effort report; its field names are
// a persisted contract.
type WorkoutFinishedData struct {
	SessionID       string         `bson:"session_id" json:"session_id"`
	PlanID          string         `bson:"plan_id" json:"plan_id"`
	PlanName        string         `bson:"plan_name,omitempty" json:"plan_name,omitempty"`
	AthleteName     string         `bson:"athlete_name,omitempty" json:"athlete_name,omitempty"`
	EffortLevel     int            `bson:"effort_level" json:"effort_level"`
	DurationSeconds *int64         `bson:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	Feedback        string         `bson:"feedback,omitempty" json:"feedback,omitempty"`
	FinishedAt      time.Time      `bson:"finished_at" json:"finished_at"`
	Metadata        map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

func (WorkoutFinishedData) NotificationType() NotificationType { return TypeWorkoutFinished }

// PlanEventData covers the athlete-directed plan notifications
// (plan_assigned, plan_updated, plan_removed).
type PlanEventData struct {
	Event     NotificationType `bson:"-" json:"-"`
	PlanID    string           `bson:"plan_id" json:"plan_id"`
	PlanName  string           `bson:"plan_name" json:"plan_name"`
	CoachName string           `bson:"coach_name,omitempty" json:"coach_name,omitempty"`
}

func (d PlanEventData) NotificationType() NotificationType { return d.Event }

// GymPlanEventData covers the gym-directed plan notifications
// (plan_created, plan_deleted_gym).
type GymPlanEventData struct {
	Event     NotificationType `bson:"-" json:"-"`
	PlanID    string           `bson:"plan_id" json:"plan_id"`
	PlanName  string           `bson:"plan_name" json:"plan_name"`
	CoachName string           `bson:"coach_name,omitempty" json:"coach_name,omitempty"`
}

func (d GymPlanEventData) NotificationType() NotificationType { return d.Event }

// WeeklyResumeData is the persisted contract of a weekly_resume notification.
// MeanEffort is stored as null when no session carried an effort level.
type WeeklyResumeData struct {
	WeekKey          string    `bson:"week_key" json:"week_key"`
	WeekStart        time.Time `bson:"week_start" json:"week_start"`
	WeekEnd          time.Time `bson:"week_end" json:"week_end"`
	TotalSessions    int       `bson:"total_sessions" json:"total_sessions"`
	MeanEffort       *float64  `bson:"mean_effort" json:"mean_effort"`
	FeedbackExcerpts []string  `bson:"feedback_excerpts" json:"feedback_excerpts"`
}

func (WeeklyResumeData) NotificationType() NotificationType { return TypeWeeklyResume }

// DecodePayload decodes a bson data document into the variant of t.
func DecodePayload(t NotificationType, raw bson.Raw) (Payload, error) {
	return decodePayload(t, len(raw) == 0, func(v any) error { return bson.Unmarshal(raw, v) })
}

// DecodePayloadJSON decodes a JSON data object into the variant of t.
func DecodePayloadJSON(t NotificationType, raw json.RawMessage) (Payload, error) {
	empty := len(raw) == 0 || string(raw) == "null"
	return decodePayload(t, empty, func(v any) error { return json.Unmarshal(raw, v) })
}

func decodePayload(t NotificationType, empty bool, unmarshal func(any) error) (Payload, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotificationType, t)
	}
	if empty {
		return nil, ErrMissingPayload
	}

	switch t {
	case TypeWorkoutStarted:
		var d WorkoutStartedData
		err := unmarshal(&d)
		return d, err
	case TypeExerciseCompleted:
		var d ExerciseCompletedData
		err := unmarshal(&d)
		return d, err
	case TypeWorkoutFinished:
		var d WorkoutFinishedData
		err := unmarshal(&d)
		return d, err
	case TypePlanAssigned, TypePlanUpdated, TypePlanRemoved:
		var d PlanEventData
		err := unmarshal(&d)
		d.Event = t
		return d, err
	case TypePlanCreated, TypePlanDeletedGym:
		var d GymPlanEventData
		err := unmarshal(&d)
		d.Event = t
		return d, err
	default:
		var d WeeklyResumeData
		err := unmarshal(&d)
		return d, err
	}
}
