package audithandler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/resource"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	log := audit.NewMemory(100)
	ctx := context.Background()
	for _, c := range []resource.Change{
		{Action: resource.ActionCreate, Kind: "bank", EntityID: "b1", ActorID: "u1"},
		{Action: resource.ActionCreate, Kind: "department", EntityID: "d1", ActorID: "u1"},
		{Action: resource.ActionDelete, Kind: "bank", EntityID: "b1", ActorID: "u2"},
	} {
		if err := log.Record(ctx, c); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	r := chi.NewRouter()
	NewHandler(log).RegisterRoutes(r)
	return r
}

func TestListEvents(t *testing.T) {
	router := newRouter(t)
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "all", query: "", want: 3},
		{name: "by entity", query: "?entityType=bank", want: 2},
		{name: "by actor and action", query: "?actorUserId=u1&action=create", want: 2},
		{name: "paged", query: "?limit=1&offset=2", want: 1},
		{name: "since future", query: "?since=2999-01-01", want: 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events"+tc.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var body struct {
				Data []audit.Event `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Data) != tc.want {
				t.Fatalf("expected %d events, got %d", tc.want, len(body.Data))
			}
		})
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	router := newRouter(t)
	for _, query := range []string{"?since=last-week", "?limit=ten", "?offset=-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events"+query, nil))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", query, rec.Code)
		}
	}
}

func TestExportEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events/export?entityType=bank", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("expected csv, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[0][0] != "id" || records[1][2] != resource.ActionDelete {
		t.Fatalf("unexpected csv: %v", records)
	}
}
