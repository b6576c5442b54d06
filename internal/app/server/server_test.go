package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hradmin/internal/platform/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return config.Config{
		Environment:        "test",
		FrontendDir:        dir,
		StoreDriver:        config.DriverMemory,
		JWTSecret:          "server-test-secret",
		SessionTTL:         time.Hour,
		RunSeed:            true,
		SeedAdminEmail:     "admin@example.com",
		SeedAdminPassword:  "Password123",
		SeedAdminName:      "Admin",
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 1000,
		NoticeTTL:          time.Second,
		WorkspaceIdleTTL:   time.Minute,
		SessionWait:        2 * time.Second,
		MetricsEnabled:     true,
	}
}

func newApp(t *testing.T) *App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, testConfig(t))
	if err != nil {
		cancel()
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		app.Close()
	})
	return app
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signIn(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/auth/sign-in", "", map[string]string{
		"email":    "admin@example.com",
		"password": "Password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign in: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data struct {
			Token string `json:"token"`
			Home  string `json:"home"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode sign in: %v", err)
	}
	if body.Data.Token == "" || body.Data.Home != "/admin" {
		t.Fatalf("unexpected sign in response: %s", rec.Body.String())
	}
	return body.Data.Token
}

func TestProbes(t *testing.T) {
	app := newApp(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := do(t, app.Router, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestSeededAdminManagesBanks(t *testing.T) {
	app := newApp(t)
	token := signIn(t, app.Router)

	rec := do(t, app.Router, http.MethodPost, "/api/v1/admin/banks", token, map[string]any{
		"name": "First National",
		"code": "fnb",
	})
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("create bank: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, app.Router, http.MethodGet, "/api/v1/admin/banks", token, nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("FNB")) {
		t.Fatalf("list banks: %d %s", rec.Code, rec.Body.String())
	}
	if app.Workspaces.Len() != 1 {
		t.Fatalf("expected one workspace, got %d", app.Workspaces.Len())
	}

	rec = do(t, app.Router, http.MethodPost, "/api/v1/auth/sign-out", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign out: %d %s", rec.Code, rec.Body.String())
	}
	if app.Workspaces.Len() != 0 {
		t.Fatal("workspace survived sign-out")
	}
}

func TestGateOnApiAndPages(t *testing.T) {
	app := newApp(t)

	if rec := do(t, app.Router, http.MethodGet, "/api/v1/admin/banks", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous api call refused, got %d", rec.Code)
	}

	rec := do(t, app.Router, http.MethodGet, "/admin/bank", "", nil)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	token := signIn(t, app.Router)
	if rec := do(t, app.Router, http.MethodGet, "/admin/bank", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected admin page, got %d", rec.Code)
	}
}
