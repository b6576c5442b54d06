// Package gate decides whether a caller may see a page.
package gate

import (
	"path"
	"strings"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/session"
)

// Capability is what a route requires of the caller.
type Capability string

const (
	Public        Capability = "public"
	Authenticated Capability = "authenticated"
	Admin         Capability = "admin"
)

type Outcome string

const (
	OutcomeLoading  Outcome = "loading"
	OutcomeAllow    Outcome = "allow"
	OutcomeRedirect Outcome = "redirect"
)

type Decision struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"`
}

func Allow() Decision {
	return Decision{Outcome: OutcomeAllow}
}

func Redirect(target string) Decision {
	return Decision{Outcome: OutcomeRedirect, Target: target}
}

func Loading() Decision {
	return Decision{Outcome: OutcomeLoading}
}

func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// Decide applies the admission rules in order: nothing is decided while the
// session is loading, public pages bounce signed-in callers to their home,
// protected pages need a session, and admin pages need the admin role.
func Decide(state session.State, required Capability) Decision {
	if state.Loading {
		return Loading()
	}
	switch required {
	case Public:
		if state.SignedIn() {
			return Redirect(state.Role.Home())
		}
		return Allow()
	case Authenticated, Admin:
		if !state.SignedIn() {
			return Redirect(auth.LoginPath)
		}
		if required == Admin && !state.Role.IsAdmin() {
			return Redirect(auth.HomeEmployee)
		}
		return Allow()
	default:
		return Redirect(state.Home())
	}
}

// Routes maps page paths to the capability they require.
type Routes map[string]Capability

// DefaultRoutes is the page table of the application.
var DefaultRoutes = Routes{
	"/login":                Public,
	"/register":             Public,
	"/dashboard":            Authenticated,
	"/profile-setup":        Authenticated,
	"/history":              Authenticated,
	"/admin":                Admin,
	"/admin/users":          Admin,
	"/admin/departments":    Admin,
	"/admin/positions":      Admin,
	"/admin/salary-payment": Admin,
	"/admin/location":       Admin,
	"/admin/bank":           Admin,
	"/admin/attendance":     Admin,
}

// Lookup returns the capability for p after cleaning it.
func (r Routes) Lookup(p string) (Capability, bool) {
	c, ok := r[Clean(p)]
	return c, ok
}

// Resolve decides for a page path. Paths outside the table, "/" included,
// send the caller to their home page.
func (r Routes) Resolve(p string, state session.State) Decision {
	if state.Loading {
		return Loading()
	}
	required, ok := r.Lookup(p)
	if !ok {
		return Redirect(state.Home())
	}
	return Decide(state, required)
}

func Clean(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
