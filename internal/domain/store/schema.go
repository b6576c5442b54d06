package store

import "fmt"

// TableSpec lists the columns a table exposes through the store contract.
type TableSpec struct {
	Columns    []string
	UniqueName bool
}

var Schema = map[string]TableSpec{
	TableProfiles: {
		Columns: []string{"id", "name", "email", "role", "department", "position", "bank_name", "bank_account", "phone", "is_active", "created_at", "updated_at"},
	},
	TableDepartments: {
		Columns:    []string{"id", "name", "description", "head_name", "is_active", "created_at", "updated_at"},
		UniqueName: true,
	},
	TablePositions: {
		Columns:    []string{"id", "name", "department", "description", "level", "is_active", "created_at", "updated_at"},
		UniqueName: true,
	},
	TableBanks: {
		Columns:    []string{"id", "name", "code", "description", "is_active", "created_at", "updated_at"},
		UniqueName: true,
	},
	TableLocations: {
		Columns:    []string{"id", "name", "address", "latitude", "longitude", "radius_meters", "is_active", "created_at", "updated_at"},
		UniqueName: true,
	},
}

// Lookup returns the spec for table or ErrUnknownTable.
func Lookup(table string) (TableSpec, error) {
	spec, ok := Schema[table]
	if !ok {
		return TableSpec{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return spec, nil
}

func (t TableSpec) Has(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// CheckColumns rejects any column not declared for the table.
func (t TableSpec) CheckColumns(columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}
	return nil
}

// CheckQuery validates the filter and order columns of q.
func (t TableSpec) CheckQuery(filters []Filter, orderBy string) error {
	for _, f := range filters {
		if err := t.CheckColumns(f.Column); err != nil {
			return err
		}
	}
	if orderBy != "" {
		return t.CheckColumns(orderBy)
	}
	return nil
}
