package session

import (
	"errors"
	"fmt"
)

var ErrStarted = errors.New("auth context already started")

// SessionError reports a session the store refused while resolving. The
// resolver signs the caller out whenever it records one.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session invalid: %v", e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// RoleLookupError reports a failed profile lookup. It never fails a request;
// the user is treated as having no role.
type RoleLookupError struct {
	UserID string
	Err    error
}

func (e *RoleLookupError) Error() string {
	return fmt.Sprintf("role lookup for %s: %v", e.UserID, e.Err)
}

func (e *RoleLookupError) Unwrap() error {
	return e.Err
}
