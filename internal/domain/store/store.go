// Package store defines the contract the rest of the application relies on
// from the remote data store: sessions, session-change notifications, and
// row access against named tables.
package store

import (
	"context"
	"time"
)

const (
	TableProfiles    = "profiles"
	TableDepartments = "departments"
	TablePositions   = "positions"
	TableBanks       = "banks"
	TableLocations   = "locations"
)

// Session is an authenticated identity issued by a Backend.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session has not yet expired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.UserID != "" && now.Before(s.ExpiresAt)
}

type SessionEventType string

const (
	EventSignedIn  SessionEventType = "signed_in"
	EventSignedOut SessionEventType = "signed_out"
	EventRefreshed SessionEventType = "refreshed"
)

// SessionEvent is published whenever a session is created, refreshed or
// destroyed. Session is nil for sign-out events.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId"`
	Session   *Session         `json:"session,omitempty"`
}

// Subscription is a handle to a session-change listener.
type Subscription interface {
	Unsubscribe()
}

// Filter is an equality predicate on one column.
type Filter struct {
	Column string
	Value  any
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Query selects rows from a table. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Client is the store as seen by one caller. Its session methods act on the
// session the client was created for.
type Client interface {
	GetSession(ctx context.Context) (*Session, error)
	OnSessionChange(fn func(SessionEvent)) Subscription
	SignOut(ctx context.Context) error

	QueryOne(ctx context.Context, table string, filters ...Filter) (Row, error)
	QueryMany(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, patch Row) (Row, error)
	Delete(ctx context.Context, table, id string) error
}

// Provisioner creates sign-in capable users together with their profile row.
type Provisioner interface {
	CreateUser(ctx context.Context, email, password string, profile Row) (string, error)
}

// Revoker ends every session of a user and removes their credentials, so a
// user whose profile is gone can no longer sign in.
type Revoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

// Backend owns the connection to the store and hands out per-caller clients.
type Backend interface {
	Client(token string) Client
	SignIn(ctx context.Context, email, password string) (*Session, string, error)
	Subscribe(fn func(SessionEvent)) Subscription
	Ping(ctx context.Context) error
	Close()
}
