package domain

import "time"

// Role is the kind of participant on a connection.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Participant is a registered student on a live connection.
// ID is the connection id and dies with the connection.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
	JoinedAt    time.Time
}
