package domain

import (
	"time"
)

// Role type to distinguish between user roles
type Role string

const (
	RoleAthlete     Role = "athlete"
	RoleCoach       Role = "coach"
	RoleGymAdmin    Role = "gym_admin"
	RoleSystemAdmin Role = "system_admin"
)

// User is the subset of the user record the pipeline reads. The record itself
// is owned by the user store and only referenced by id everywhere else.
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Role      Role      `bson:"role" json:"role"`
	GymID     *string   `bson:"gym_id,omitempty" json:"gymId,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

func (r Role) IsAthlete() bool {
	return r == RoleAthlete
}

// IsStaff reports whether the role may read coach or gym scoped reports.
func (r Role) IsStaff() bool {
	return r == RoleCoach || r == RoleGymAdmin || r == RoleSystemAdmin
}

// GymIDValue returns the gym id or "" when the user is not attached to a gym.
func (u *User) GymIDValue() string {
	if u.GymID == nil {
		return ""
	}
	return *u.GymID
}
