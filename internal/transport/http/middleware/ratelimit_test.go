package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/session"
	"hradmin/internal/domain/store"
)

func signedInCtx(userID string) context.Context {
	return WithCaller(context.Background(), Caller{State: session.State{
		Session: &store.Session{ID: "s-" + userID, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)},
		Role:    auth.RoleAdmin,
	}})
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestRateLimitUsesUserKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(noContent))
	userCtx := signedInCtx("user-1")

	first := httptest.NewRequest(http.MethodPost, "/api/v1/admin/banks", nil).WithContext(userCtx)
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/admin/banks", nil).WithContext(userCtx)
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by user key, got %d", secondRec.Code)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(noContent))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", bytes.NewBufferString(`{"email":"a@example.com"}`))
	first.Header.Set("Content-Type", "application/json")
	first.RemoteAddr = "203.0.113.10:4444"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", bytes.NewBufferString(`{"email":"b@example.com"}`))
	second.Header.Set("Content-Type", "application/json")
	second.RemoteAddr = "203.0.113.10:5555"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by ip key, got %d", secondRec.Code)
	}
}

func TestRateLimitRefills(t *testing.T) {
	limited := RateLimit(1, 40*time.Millisecond)(http.HandlerFunc(noContent))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil)
		req.RemoteAddr = "192.0.2.20:1111"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
	time.Sleep(60 * time.Millisecond)
	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected request after refill to pass, got %d", code)
	}
}

func TestRateLimitReturnsRetryMetadata(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(noContent))

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil)
	req1.RemoteAddr = "192.0.2.30:1234"
	limited.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil)
	req2.RemoteAddr = "192.0.2.30:1234"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req2)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected throttled response, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected no remaining tokens, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestSensitiveMutationRateLimitScope(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(http.HandlerFunc(noContent))

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/departments", nil)
		req.RemoteAddr = "198.51.100.40:8888"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected read request %d to bypass sensitive limits, got %d", i+1, rec.Code)
		}
	}

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/departments/form/new", nil).WithContext(signedInCtx("hr-1"))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected form transition %d to bypass sensitive limits, got %d", i+1, rec.Code)
		}
	}

	userCtx := signedInCtx("hr-2")
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/departments/d1", nil).WithContext(userCtx)
		req.RemoteAddr = "198.51.100.41:9999"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if i < 2 && rec.Code != http.StatusNoContent {
			t.Fatalf("expected mutation %d to pass, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected third mutation to be throttled, got %d", rec.Code)
		}
	}
}

func TestSensitiveSignInLimitedByEmail(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(http.HandlerFunc(noContent))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", bytes.NewBufferString(`{"email":"Admin@Example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("203.0.113.1:1"); code != http.StatusNoContent {
		t.Fatalf("expected first sign-in to pass, got %d", code)
	}
	if code := send("203.0.113.2:1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected same email from another address to be throttled, got %d", code)
	}
}
