package auth

import "strings"

// Role is the coarse authorization level stored on a user profile. The zero
// value means the role could not be resolved.
type Role string

const (
	RoleNone     Role = ""
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

const (
	HomeAdmin    = "/admin"
	HomeEmployee = "/dashboard"
	LoginPath    = "/login"
)

var Roles = []Role{RoleAdmin, RoleEmployee}

// ParseRole maps a stored role value to a Role. Unknown values yield RoleNone.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEmployee:
		return RoleEmployee
	default:
		return RoleNone
	}
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Home is the landing page for a signed-in user with role r.
func (r Role) Home() string {
	if r == RoleAdmin {
		return HomeAdmin
	}
	return HomeEmployee
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}
