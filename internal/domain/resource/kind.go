package resource

import (
	"strings"

	"hradmin/internal/domain/store"
)

// Entity is a row the manager can list, search and reference by name.
type Entity interface {
	EntityID() string
	DisplayName() string
	// SearchFields are the free-text values a search term is matched
	// against, the name included.
	SearchFields() []string
}

// Dependent is a column of another table that refers to an entity by name.
type Dependent struct {
	Kind   string
	Table  string
	Column string
}

type Column[K Entity] struct {
	Title string
	Width float64
	Value func(K) string
}

// Kind describes how one entity type is stored.
type Kind[K Entity] struct {
	Name   string
	Plural string
	Table  string

	// Blank returns the values a new form starts with.
	Blank  func() K
	Decode func(store.Row) K
	// Encode returns the writable columns of k. id and the timestamps are
	// owned by the manager.
	Encode func(K) store.Row

	Dependents []Dependent
	Columns    []Column[K]
}

func (k Kind[K]) blank() K {
	if k.Blank != nil {
		return k.Blank()
	}
	var zero K
	return zero
}

// Export renders items as a header row and text cells using the kind's
// columns.
func (k Kind[K]) Export(items []K) ([]string, []float64, [][]string) {
	headers := make([]string, len(k.Columns))
	widths := make([]float64, len(k.Columns))
	for i, c := range k.Columns {
		headers[i] = c.Title
		widths[i] = c.Width
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		cells := make([]string, len(k.Columns))
		for i, c := range k.Columns {
			cells[i] = c.Value(item)
		}
		rows = append(rows, cells)
	}
	return headers, widths, rows
}

// Matches reports whether any search field of item contains term, ignoring
// case. An empty term matches everything; whitespace is matched literally.
func Matches(item Entity, term string) bool {
	term = strings.ToLower(term)
	if term == "" {
		return true
	}
	for _, field := range item.SearchFields() {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
