package pageshandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/gate"
	"hradmin/internal/domain/session"
	"hradmin/internal/domain/store"
	"hradmin/internal/transport/http/middleware"
)

func staticDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return dir
}

func stateFor(role auth.Role) session.State {
	if role == "" {
		return session.State{}
	}
	return session.State{
		Session: &store.Session{ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
		Role:    role,
	}
}

func TestPages(t *testing.T) {
	h := NewHandler(gate.DefaultRoutes, staticDir(t))
	tests := []struct {
		name     string
		path     string
		state    session.State
		status   int
		location string
	}{
		{name: "anonymous admin page", path: "/admin/bank", state: stateFor(""), status: http.StatusFound, location: "/login"},
		{name: "employee admin page", path: "/admin/users", state: stateFor(auth.RoleEmployee), status: http.StatusFound, location: "/dashboard"},
		{name: "admin admin page", path: "/admin/users", state: stateFor(auth.RoleAdmin), status: http.StatusOK},
		{name: "admin login page", path: "/login", state: stateFor(auth.RoleAdmin), status: http.StatusFound, location: "/admin"},
		{name: "anonymous login page", path: "/login", state: stateFor(""), status: http.StatusOK},
		{name: "root goes home", path: "/", state: stateFor(auth.RoleEmployee), status: http.StatusFound, location: "/dashboard"},
		{name: "unknown path", path: "/nowhere", state: stateFor(""), status: http.StatusFound, location: "/login"},
		{name: "loading", path: "/dashboard", state: session.State{Loading: true}, status: http.StatusServiceUnavailable},
		{name: "asset bypasses gate", path: "/app.js", state: stateFor(""), status: http.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req = req.WithContext(middleware.WithCaller(req.Context(), middleware.Caller{State: tc.state}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.location != "" && rec.Header().Get("Location") != tc.location {
				t.Fatalf("expected redirect to %s, got %s", tc.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestGateEndpoint(t *testing.T) {
	h := NewHandler(gate.DefaultRoutes, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/gate?path=/admin/bank/", nil)
	req = req.WithContext(middleware.WithCaller(req.Context(), middleware.Caller{State: stateFor(auth.RoleEmployee)}))
	rec := httptest.NewRecorder()
	h.HandleGate(rec, req)

	var body struct {
		Data struct {
			Path     string        `json:"path"`
			Decision gate.Decision `json:"decision"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Path != "/admin/bank" || body.Data.Decision != gate.Redirect(auth.HomeEmployee) {
		t.Fatalf("unexpected gate answer: %+v", body.Data)
	}
}
