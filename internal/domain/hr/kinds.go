package hr

import (
	"strconv"
	"strings"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/resource"
	"hradmin/internal/domain/store"
)

var Departments = resource.Kind[Department]{
	Name:   "department",
	Plural: "departments",
	Table:  store.TableDepartments,
	Blank:  func() Department { return Department{IsActive: true} },
	Decode: func(r store.Row) Department {
		return Department{
			ID:          r.String("id"),
			Name:        r.String("name"),
			Description: r.String("description"),
			HeadName:    r.String("head_name"),
			IsActive:    r.Bool("is_active"),
			CreatedAt:   r.Time("created_at"),
			UpdatedAt:   r.Time("updated_at"),
		}
	},
	Encode: func(d Department) store.Row {
		return store.Row{
			"name":        trim(d.Name),
			"description": trim(d.Description),
			"head_name":   trim(d.HeadName),
			"is_active":   d.IsActive,
		}
	},
	Dependents: []resource.Dependent{
		{Kind: "positions", Table: store.TablePositions, Column: "department"},
		{Kind: "users", Table: store.TableProfiles, Column: "department"},
	},
	Columns: []resource.Column[Department]{
		{Title: "Name", Width: 50, Value: func(d Department) string { return d.Name }},
		{Title: "Head", Width: 40, Value: func(d Department) string { return d.HeadName }},
		{Title: "Description", Width: 70, Value: func(d Department) string { return d.Description }},
		{Title: "Active", Width: 20, Value: func(d Department) string { return yesNo(d.IsActive) }},
	},
}

var Positions = resource.Kind[Position]{
	Name:   "position",
	Plural: "positions",
	Table:  store.TablePositions,
	Blank:  func() Position { return Position{IsActive: true} },
	Decode: func(r store.Row) Position {
		return Position{
			ID:          r.String("id"),
			Name:        r.String("name"),
			Department:  r.String("department"),
			Description: r.String("description"),
			Level:       r.Int("level"),
			IsActive:    r.Bool("is_active"),
			CreatedAt:   r.Time("created_at"),
			UpdatedAt:   r.Time("updated_at"),
		}
	},
	Encode: func(p Position) store.Row {
		return store.Row{
			"name":        trim(p.Name),
			"department":  trim(p.Department),
			"description": trim(p.Description),
			"level":       p.Level,
			"is_active":   p.IsActive,
		}
	},
	Dependents: []resource.Dependent{
		{Kind: "users", Table: store.TableProfiles, Column: "position"},
	},
	Columns: []resource.Column[Position]{
		{Title: "Name", Width: 50, Value: func(p Position) string { return p.Name }},
		{Title: "Department", Width: 45, Value: func(p Position) string { return p.Department }},
		{Title: "Level", Width: 20, Value: func(p Position) string { return strconv.Itoa(p.Level) }},
		{Title: "Description", Width: 45, Value: func(p Position) string { return p.Description }},
		{Title: "Active", Width: 20, Value: func(p Position) string { return yesNo(p.IsActive) }},
	},
}

var Users = resource.Kind[User]{
	Name:   "user",
	Plural: "users",
	Table:  store.TableProfiles,
	Blank:  func() User { return User{Role: string(auth.RoleEmployee), IsActive: true} },
	Decode: func(r store.Row) User {
		return User{
			ID:          r.String("id"),
			Name:        r.String("name"),
			Email:       r.String("email"),
			Role:        r.String("role"),
			Department:  r.String("department"),
			Position:    r.String("position"),
			BankName:    r.String("bank_name"),
			BankAccount: r.String("bank_account"),
			Phone:       r.String("phone"),
			IsActive:    r.Bool("is_active"),
			CreatedAt:   r.Time("created_at"),
			UpdatedAt:   r.Time("updated_at"),
		}
	},
	Encode: func(u User) store.Row {
		role := auth.ParseRole(u.Role)
		if role == auth.RoleNone {
			role = auth.RoleEmployee
		}
		return store.Row{
			"name":         trim(u.Name),
			"email":        strings.ToLower(trim(u.Email)),
			"role":         string(role),
			"department":   trim(u.Department),
			"position":     trim(u.Position),
			"bank_name":    trim(u.BankName),
			"bank_account": trim(u.BankAccount),
			"phone":        trim(u.Phone),
			"is_active":    u.IsActive,
		}
	},
	Columns: []resource.Column[User]{
		{Title: "Name", Width: 40, Value: func(u User) string { return u.Name }},
		{Title: "Email", Width: 50, Value: func(u User) string { return u.Email }},
		{Title: "Role", Width: 20, Value: func(u User) string { return u.Role }},
		{Title: "Department", Width: 30, Value: func(u User) string { return u.Department }},
		{Title: "Position", Width: 30, Value: func(u User) string { return u.Position }},
		{Title: "Active", Width: 15, Value: func(u User) string { return yesNo(u.IsActive) }},
	},
}

var Banks = resource.Kind[Bank]{
	Name:   "bank",
	Plural: "banks",
	Table:  store.TableBanks,
	Blank:  func() Bank { return Bank{IsActive: true} },
	Decode: func(r store.Row) Bank {
		return Bank{
			ID:          r.String("id"),
			Name:        r.String("name"),
			Code:        r.String("code"),
			Description: r.String("description"),
			IsActive:    r.Bool("is_active"),
			CreatedAt:   r.Time("created_at"),
			UpdatedAt:   r.Time("updated_at"),
		}
	},
	Encode: func(b Bank) store.Row {
		return store.Row{
			"name":        trim(b.Name),
			"code":        strings.ToUpper(trim(b.Code)),
			"description": trim(b.Description),
			"is_active":   b.IsActive,
		}
	},
	Dependents: []resource.Dependent{
		{Kind: "users", Table: store.TableProfiles, Column: "bank_name"},
	},
	Columns: []resource.Column[Bank]{
		{Title: "Name", Width: 55, Value: func(b Bank) string { return b.Name }},
		{Title: "Code", Width: 25, Value: func(b Bank) string { return b.Code }},
		{Title: "Description", Width: 80, Value: func(b Bank) string { return b.Description }},
		{Title: "Active", Width: 20, Value: func(b Bank) string { return yesNo(b.IsActive) }},
	},
}

var Locations = resource.Kind[Location]{
	Name:   "location",
	Plural: "locations",
	Table:  store.TableLocations,
	Blank:  func() Location { return Location{RadiusMeters: 100, IsActive: true} },
	Decode: func(r store.Row) Location {
		return Location{
			ID:           r.String("id"),
			Name:         r.String("name"),
			Address:      r.String("address"),
			Latitude:     r.Float("latitude"),
			Longitude:    r.Float("longitude"),
			RadiusMeters: r.Int("radius_meters"),
			IsActive:     r.Bool("is_active"),
			CreatedAt:    r.Time("created_at"),
			UpdatedAt:    r.Time("updated_at"),
		}
	},
	Encode: func(l Location) store.Row {
		return store.Row{
			"name":          trim(l.Name),
			"address":       trim(l.Address),
			"latitude":      l.Latitude,
			"longitude":     l.Longitude,
			"radius_meters": l.RadiusMeters,
			"is_active":     l.IsActive,
		}
	},
	Columns: []resource.Column[Location]{
		{Title: "Name", Width: 45, Value: func(l Location) string { return l.Name }},
		{Title: "Address", Width: 65, Value: func(l Location) string { return l.Address }},
		{Title: "Coordinates", Width: 45, Value: func(l Location) string {
			return strconv.FormatFloat(l.Latitude, 'f', 5, 64) + ", " + strconv.FormatFloat(l.Longitude, 'f', 5, 64)
		}},
		{Title: "Radius (m)", Width: 25, Value: func(l Location) string { return strconv.Itoa(l.RadiusMeters) }},
	},
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
