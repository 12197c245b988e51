package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrSessionFinished    = errors.New("training session is already finished")
	ErrInvalidEffortLevel = errors.New("effort level must be between 1 and 5")
	ErrNegativeDuration   = errors.New("duration cannot be negative")
	ErrExerciseNameEmpty  = errors.New("exercise name is required")
)

const (
	MinEffortLevel = 1
	MaxEffortLevel = 5
)

// SessionStatus tracks the training session lifecycle.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionFinished   SessionStatus = "finished"
)

// ExerciseRecord is one completed exercise inside a session.
type ExerciseRecord struct {
	ExerciseID  string    `bson:"exercise_id,omitempty" json:"exerciseId,omitempty"`
	Name        string    `bson:"name" json:"name"`
	Sets        int       `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps        int       `bson:"reps,omitempty" json:"reps,omitempty"`
	WeightKg    float64   `bson:"weight_kg,omitempty" json:"weightKg,omitempty"`
	CompletedAt time.Time `bson:"completed_at" json:"completedAt"`
}

// TrainingSession is one execution of a workout plan by an athlete.
type TrainingSession struct {
	ID                 string           `bson:"_id,omitempty" json:"id"`
	PlanID             string           `bson:"plan_id" json:"planId"`
	PlanName           string           `bson:"plan_name,omitempty" json:"planName,omitempty"`
	AthleteID          string           `bson:"athlete_id" json:"athleteId"`
	CoachID            *string          `bson:"coach_id,omitempty" json:"coachId,omitempty"`
	GymID              *string          `bson:"gym_id,omitempty" json:"gymId,omitempty"`
	StartTime          time.Time        `bson:"start_time" json:"startTime"`
	EndTime            *time.Time       `bson:"end_time,omitempty" json:"endTime,omitempty"`
	Status             SessionStatus    `bson:"status" json:"status"`
	DurationSeconds    *int64           `bson:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
	EffortLevel        *int             `bson:"effort_level,omitempty" json:"effortLevel,omitempty"`
	FeedbackText       *string          `bson:"feedback_text,omitempty" json:"feedbackText,omitempty"`
	CompletedExercises []ExerciseRecord `bson:"completed_exercises" json:"completedExercises"`
}

// ValidEffort reports whether level is inside the 1..5 scale.
func ValidEffort(level int) bool {
	return level >= MinEffortLevel && level <= MaxEffortLevel
}

func (s *TrainingSession) IsFinished() bool {
	return s.Status == SessionFinished
}

// UpsertExercise records a completed exercise, replacing a previous record with
// the same name (case-insensitive) instead of appending a duplicate.
func (s *TrainingSession) UpsertExercise(rec ExerciseRecord) error {
	if s.IsFinished() {
		return ErrSessionFinished
	}
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return ErrExerciseNameEmpty
	}
	rec.Name = name
	for i := range s.CompletedExercises {
		if strings.EqualFold(s.CompletedExercises[i].Name, name) {
			s.CompletedExercises[i] = rec
			return nil
		}
	}
	s.CompletedExercises = append(s.CompletedExercises, rec)
	return nil
}

// Finish moves the session to finished. The duration is end-start unless an
// explicit one was supplied or one was already stored on the session.
func (s *TrainingSession) Finish(end time.Time, effort int, feedback string, duration *int64) error {
	if s.IsFinished() {
		return ErrSessionFinished
	}
	if !ValidEffort(effort) {
		return ErrInvalidEffortLevel
	}
	switch {
	case duration != nil:
		if *duration < 0 {
			return ErrNegativeDuration
		}
		d := *duration
		s.DurationSeconds = &d
	case s.DurationSeconds == nil:
		d := int64(end.Sub(s.StartTime) / time.Second)
		if d < 0 {
			d = 0
		}
		s.DurationSeconds = &d
	}

	s.EndTime = &end
	s.Status = SessionFinished
	s.EffortLevel = &effort
	if fb := strings.TrimSpace(feedback); fb != "" {
		s.FeedbackText = &fb
	} else {
		s.FeedbackText = nil
	}
	return nil
}
