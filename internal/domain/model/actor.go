package model

// Role is the platform role of an actor.
type Role string

const (
	RoleClient     Role = "client"
	RoleMaster     Role = "master"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
	// RoleSystem is used by scheduled jobs and never issued to people.
	RoleSystem Role = "system"
)

// Valid reports whether role can be carried by an authenticated person.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleMaster, RoleDispatcher, RoleAdmin:
		return true
	}
	return false
}

// Actor is the resolved identity performing an operation.
type Actor struct {
	ID         string
	Role       Role
	IsVerified bool
	IsActive   bool
}

// SystemActor identifies scheduled sweeps in audit records.
var SystemActor = Actor{ID: "system", Role: RoleSystem, IsVerified: true, IsActive: true}

// Profile is a directory entry maintained by the external user service.
type Profile struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
	IsVerified  bool   `json:"is_verified"`
	IsActive    bool   `json:"is_active"`
}

// Actor converts profile to an actor value.
func (p Profile) Actor() Actor {
	return Actor{ID: p.ID, Role: p.Role, IsVerified: p.IsVerified, IsActive: p.IsActive}
}
