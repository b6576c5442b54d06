package middleware

import (
	"net/http"

	"hradmin/internal/domain/gate"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/transport/http/api"
)

// RequireCapability admits the request only when the gate allows the caller.
// Refusals carry the page the caller should be sent to.
func RequireCapability(required gate.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, _ := GetCaller(r.Context())
			decision := gate.Decide(caller.State, required)
			metrics.GateDecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()

			reqID := GetRequestID(r.Context())
			switch {
			case decision.Allowed():
				next.ServeHTTP(w, r)
			case decision.Outcome == gate.OutcomeLoading:
				w.Header().Set("Retry-After", "1")
				api.Fail(w, http.StatusServiceUnavailable, "session_loading", "session is still being resolved", reqID)
			case !caller.State.SignedIn():
				api.FailWithDetails(w, http.StatusUnauthorized, "unauthorized", "authentication required",
					map[string]any{"redirect": decision.Target}, reqID)
			default:
				api.FailWithDetails(w, http.StatusForbidden, "forbidden", "insufficient role",
					map[string]any{"redirect": decision.Target}, reqID)
			}
		})
	}
}
