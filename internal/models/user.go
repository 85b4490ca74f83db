package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleRequester           UserRole = "REQUESTER"
	RoleFieldAuthority      UserRole = "FIELD_AUTHORITY"
	RoleGeneralDirectorate  UserRole = "GENERAL_DIRECTORATE"
	RoleAdvisoryBoardMember UserRole = "ADVISORY_BOARD_MEMBER"
	RoleMinister            UserRole = "MINISTER"
	RoleAdministrator       UserRole = "ADMINISTRATOR"

	// RoleSystem is used for transitions the engine fires on its own. It is never
	// stored on a user row and never accepted from a token.
	RoleSystem UserRole = "SYSTEM"
)

// SystemActorID identifies engine-initiated transitions in the audit trail.
const SystemActorID = "system"

// AssignableRoles lists the roles a user account may hold.
var AssignableRoles = []UserRole{
	RoleRequester,
	RoleFieldAuthority,
	RoleGeneralDirectorate,
	RoleAdvisoryBoardMember,
	RoleMinister,
	RoleAdministrator,
}

// Valid reports whether r is a role a user account may hold.
func (r UserRole) Valid() bool {
	for _, candidate := range AssignableRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor is the resolved identity behind a call: who is acting and in which role.
type Actor struct {
	ID   string
	Role UserRole
}

// SystemActor returns the identity used for engine-initiated transitions.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Role: RoleSystem}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
