// internal/domain/exercise.go
package domain

import (
	"time"
)

// Exercise is an entry of the exercise catalog. MuscleGroup is the category
// used by the effort report (e.g. "Legs", "Back", "Chest").
type Exercise struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Name        string    `bson:"name" json:"name"`
	MuscleGroup string    `bson:"muscle_group,omitempty" json:"muscleGroup,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
}
