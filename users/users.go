package users

import "fmt"

// RoleID is the backend's numeric role key. It is the only authorization input the client has.
type RoleID int

const (
	RoleNone                RoleID = 0
	RoleAdmin               RoleID = 1 // Full access to every module
	RoleInstructor          RoleID = 2 // Docente: authors diagnostics and recommendations
	RoleWorker              RoleID = 3 // Trabajador: executes labores
	RoleStudent             RoleID = 4 // Estudiante: read access
	RoleAssistantInstructor RoleID = 5 // Second docente profile, same rights as RoleInstructor
	RoleSupervisor          RoleID = 6 // Field supervisor: manages labores and inventory
)

var roleNames = map[RoleID]string{
	RoleAdmin:               "admin",
	RoleInstructor:          "docente",
	RoleWorker:              "trabajador",
	RoleStudent:             "estudiante",
	RoleAssistantInstructor: "docente",
	RoleSupervisor:          "supervisor",
}

func (r RoleID) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rol_%d", int(r))
}

// Known reports whether r is one of the roles the backend hands out.
func (r RoleID) Known() bool {
	_, ok := roleNames[r]
	return ok
}

// Identity is the decoded profile of the logged in user.
type Identity struct {
	ID     int    `json:"id"`
	Name   string `json:"nombre"`
	Email  string `json:"email,omitempty"`
	RoleID RoleID `json:"rol_id"`
	Role   string `json:"rol,omitempty"`
}

// IsAdmin returns true if the user has the admin role
func (u *Identity) IsAdmin() bool {
	return u != nil && u.RoleID == RoleAdmin
}

// IsInstructor returns true for both docente role ids
func (u *Identity) IsInstructor() bool {
	return u != nil && (u.RoleID == RoleInstructor || u.RoleID == RoleAssistantInstructor)
}

func (u *Identity) IsWorker() bool {
	return u != nil && u.RoleID == RoleWorker
}

// HasRole checks whether the user holds any of the given roles
func (u *Identity) HasRole(roles ...RoleID) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.RoleID == r {
			return true
		}
	}
	return false
}

// DisplayRole prefers the role name sent by the backend.
func (u *Identity) DisplayRole() string {
	if u == nil {
		return ""
	}
	if u.Role != "" {
		return u.Role
	}
	return u.RoleID.String()
}
