package hr

import (
	"context"
	"errors"
	"testing"
	"time"

	"hradmin/internal/domain/resource"
	"hradmin/internal/domain/store"
	"hradmin/internal/domain/store/memory"
)

func TestValidationRules(t *testing.T) {
	tests := []struct {
		name  string
		item  resource.Entity
		field string
	}{
		{name: "user email", item: User{Name: "Ana", Email: "not-an-email"}, field: "email"},
		{name: "user role", item: User{Name: "Ana", Role: "owner"}, field: "role"},
		{name: "position level", item: Position{Name: "Dev", Level: -1}, field: "level"},
		{name: "location latitude", item: Location{Name: "HQ", Latitude: 91, RadiusMeters: 10}, field: "latitude"},
		{name: "location longitude", item: Location{Name: "HQ", Longitude: -181, RadiusMeters: 10}, field: "longitude"},
		{name: "location radius", item: Location{Name: "HQ"}, field: "radius_meters"},
		{name: "bank code", item: Bank{Name: "BCA", Code: "ABCDEFGHIJKLMNOPQ"}, field: "code"},
		{name: "blank department", item: Department{Name: "  "}, field: "name"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := resource.Validate(tc.item)
			var verr *resource.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("expected %s error, got %+v", tc.field, verr.Fields)
			}
		})
	}
}

func TestValidEntitiesPass(t *testing.T) {
	items := []resource.Entity{
		Department{Name: "IT"},
		User{Name: "Ana", Email: "ana@example.com", Role: "admin"},
		User{Name: "Budi"},
		Position{Name: "Dev", Level: 3},
		Bank{Name: "BCA", Code: "014"},
		Location{Name: "HQ", Latitude: -6.2, Longitude: 106.8, RadiusMeters: 150},
	}
	for _, item := range items {
		if err := resource.Validate(item); err != nil {
			t.Fatalf("%T rejected: %v", item, err)
		}
	}
}

func TestUserEncodeDefaultsRole(t *testing.T) {
	row := Users.Encode(User{Name: " Ana ", Email: " Ana@Example.com "})
	if row["role"] != "employee" || row["email"] != "ana@example.com" || row["name"] != "Ana" {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestDependentsBlockDeletes(t *testing.T) {
	ctx := context.Background()
	b := memory.New("hr-test-secret", time.Hour)
	client := b.Client("")

	banks := resource.NewManager(client, Banks)
	depts := resource.NewManager(client, Departments)
	users := resource.NewManager(client, Users)
	defer banks.Close()
	defer depts.Close()
	defer users.Close()

	bank, err := banks.Create(ctx, Bank{Name: "BCA", Code: "014", IsActive: true})
	if err != nil {
		t.Fatalf("create bank: %v", err)
	}
	dept, err := depts.Create(ctx, Department{Name: "Finance", IsActive: true})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	user, err := users.Create(ctx, User{Name: "Ana", Department: "Finance", BankName: "BCA", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	var refErr *resource.ReferentialIntegrityError
	if err := banks.Remove(ctx, bank.ID); !errors.As(err, &refErr) || refErr.Dependent != "users" {
		t.Fatalf("expected bank delete blocked by users, got %v", err)
	}
	if err := depts.Remove(ctx, dept.ID); !errors.As(err, &refErr) || refErr.Dependent != "users" {
		t.Fatalf("expected department delete blocked by users, got %v", err)
	}

	if err := users.Remove(ctx, user.ID); err != nil {
		t.Fatalf("remove user: %v", err)
	}
	if err := banks.Remove(ctx, bank.ID); err != nil {
		t.Fatalf("remove bank: %v", err)
	}
	if err := depts.Remove(ctx, dept.ID); err != nil {
		t.Fatalf("remove department: %v", err)
	}
	if _, err := client.QueryOne(ctx, store.TableBanks, store.Eq("id", bank.ID)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected bank gone, got %v", err)
	}
}

func TestLocationRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := memory.New("hr-test-secret", time.Hour)
	m := resource.NewManager(b.Client(""), Locations)
	defer m.Close()

	fields := Location{Name: "HQ", Address: "Jl. Sudirman 1", Latitude: -6.2, Longitude: 106.8, RadiusMeters: 150, IsActive: true}
	if _, err := m.Create(ctx, fields); err != nil {
		t.Fatalf("create: %v", err)
	}
	items := m.Items()
	if len(items) != 1 {
		t.Fatalf("expected one location, got %d", len(items))
	}
	got := items[0]
	if got.Latitude != fields.Latitude || got.Longitude != fields.Longitude || got.RadiusMeters != 150 || got.Address != fields.Address {
		t.Fatalf("round trip changed fields: %+v", got)
	}
	if len(Locations.Columns) == 0 {
		t.Fatal("locations need export columns")
	}
}
