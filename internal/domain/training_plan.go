// internal/domain/training_plan.go
package domain

import (
	"time"
)

// WorkoutPlan is a list of exercises a coach prepared. An empty AthleteID
// means the plan is an unassigned template.
type WorkoutPlan struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	AthleteID string     `bson:"athlete_id" json:"athleteId"`
	CoachID   string     `bson:"coach_id" json:"coachId"`
	GymID     string     `bson:"gym_id,omitempty" json:"gymId,omitempty"`
	Name      string     `bson:"name" json:"name"`
	Items     []PlanItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

// PlanItem references a catalog exercise by id, by name, or both.
type PlanItem struct {
	ExerciseID   string `bson:"exercise_id,omitempty" json:"exerciseId,omitempty"`
	ExerciseName string `bson:"exercise_name" json:"exerciseName"`
	Sets         int    `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps         int    `bson:"reps,omitempty" json:"reps,omitempty"`
}

func (p *WorkoutPlan) IsTemplate() bool {
	return p.AthleteID == ""
}
