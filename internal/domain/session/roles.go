package session

import (
	"context"
	"sync"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/store"
)

// RoleResolver looks up a user's role from their profile row. It remembers
// the last answer for one user until Invalidate is called. A lookup that
// started before an Invalidate returns its answer but does not cache it.
type RoleResolver struct {
	client store.Client

	mu     sync.Mutex
	userID string
	role   auth.Role
	cached bool
	gen    uint64
}

func NewRoleResolver(client store.Client) *RoleResolver {
	return &RoleResolver{client: client}
}

// Resolve returns the role for userID. Failed or empty lookups yield
// auth.RoleNone together with a *RoleLookupError; failures are not cached.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) (auth.Role, error) {
	if userID == "" {
		return auth.RoleNone, nil
	}

	r.mu.Lock()
	if r.cached && r.userID == userID {
		role := r.role
		r.mu.Unlock()
		return role, nil
	}
	gen := r.gen
	r.mu.Unlock()

	row, err := r.client.QueryOne(ctx, store.TableProfiles, store.Eq("id", userID))
	if err != nil {
		return auth.RoleNone, &RoleLookupError{UserID: userID, Err: err}
	}
	role := auth.ParseRole(row.String("role"))

	r.mu.Lock()
	if r.gen == gen {
		r.userID = userID
		r.role = role
		r.cached = true
	}
	r.mu.Unlock()
	return role, nil
}

func (r *RoleResolver) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.userID = ""
	r.role = auth.RoleNone
	r.cached = false
	r.mu.Unlock()
}
