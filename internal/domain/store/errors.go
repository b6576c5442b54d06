package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("row not found")
	ErrNoSession      = errors.New("no active session")
	ErrInvalidSession = errors.New("session is invalid or expired")
	ErrInvalidLogin   = errors.New("invalid credentials")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrConflict       = errors.New("row conflicts with an existing row")
)

// Error wraps a failure returned by the store for one operation.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with the operation and table it came from. It leaves
// already-wrapped errors untouched.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Table: table, Err: err}
}

