package resource

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBusy      = errors.New("another change is still in progress")
	ErrFormOpen  = errors.New("form is already open")
	ErrNoSuchRow = errors.New("row is not in the current list")
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is raised before any store call when the submitted fields
// are not acceptable.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return strings.Join(parts, "; ")
}

// ReferentialIntegrityError refuses a delete because rows of another kind
// still refer to the entity by name.
type ReferentialIntegrityError struct {
	Kind      string
	Name      string
	Dependent string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s %q is still used by %s", e.Kind, e.Name, e.Dependent)
}

// StoreError is a failed store call seen from the manager. The previous list
// and form are left as they were.
type StoreError struct {
	Op   string
	Kind string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
