package shared

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hradmin/internal/domain/resource"
	"hradmin/internal/transport/http/api"
)

func TestValidatorIssuesSorted(t *testing.T) {
	v := NewValidator()
	v.Required("password", "", "is required")
	v.Required("email", "  ", "is required")
	v.Required("name", "Finance", "is required")
	if _, ok := v.Date("since", "yesterday"); ok {
		t.Fatal("expected bad date to fail")
	}
	if _, ok := v.Date("until", ""); !ok {
		t.Fatal("empty optional date must pass")
	}

	issues := v.Issues()
	if len(issues) != 3 || issues[0].Field != "email" || issues[2].Field != "since" {
		t.Fatalf("unexpected issues: %+v", issues)
	}
}

func TestRejectWrites422(t *testing.T) {
	v := NewValidator()
	if v.Reject(httptest.NewRecorder(), "req-1") {
		t.Fatal("empty validator must not reject")
	}

	err := &resource.ValidationError{Fields: []resource.FieldError{{Field: "name", Reason: "is required"}}}
	rec := httptest.NewRecorder()
	FailValidation(rec, "req-2", IssuesFrom(err))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var env api.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error == nil || env.Error.Code != "validation_error" || env.RequestID != "req-2" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "valid", body: `{"name":"Finance"}`, ok: true},
		{name: "unknown field", body: `{"nmae":"Finance"}`},
		{name: "empty", body: ``},
		{name: "malformed", body: `{"name":`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var dst struct {
				Name string `json:"name"`
			}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tc.body))
			if got := DecodeJSON(rec, req, &dst, "req"); got != tc.ok {
				t.Fatalf("expected %v, got %v (status %d)", tc.ok, got, rec.Code)
			}
			if !tc.ok && rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}
