package auth

import "errors"

// Role represents an authorisation tier of the ops API.
type Role string

const (
	// RoleViewer may read greenhouses, history and jobs.
	RoleViewer Role = "viewer"

	// RoleOperator may also switch devices and trigger a tick.
	RoleOperator Role = "operator"

	// RoleAdmin may also change device configurations.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrInvalidRole  = errors.New("auth: invalid role")
	ErrWeakSecret   = errors.New("auth: signing secret too short")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)
