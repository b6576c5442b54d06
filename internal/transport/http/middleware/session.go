package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hradmin/internal/domain/session"
	"hradmin/internal/domain/store"
	"hradmin/internal/platform/metrics"
)

const SessionCookie = "session"

type ctxKey string

const ctxKeyCaller ctxKey = "caller"

// Caller is what the session middleware learned about the request: the
// resolved state and a store client bound to the caller's token.
type Caller struct {
	State  session.State
	Client store.Client
	Token  string
}

// ClientSource hands out store clients bound to a token.
type ClientSource interface {
	Client(token string) store.Client
}

// Session resolves the caller of every request before it reaches the
// handler. Resolution is bounded by wait; when it does not finish in time the
// state stays loading and the gate answers accordingly. A token the store
// refuses clears the session cookie.
func Session(source ClientSource, wait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := TokenFromRequest(r)
			client := source.Client(token)

			ac := session.New(client,
				session.WithLogger(slog.Default().With("requestId", GetRequestID(r.Context()))),
				session.WithObserver(func(outcome string) {
					metrics.SessionResolutionsTotal.WithLabelValues(outcome).Inc()
				}),
			)
			defer ac.Close()
			if err := ac.Start(r.Context()); err != nil {
				slog.Warn("session start failed", "err", err)
			}

			waitCtx, cancel := context.WithTimeout(r.Context(), wait)
			state, err := ac.Wait(waitCtx)
			cancel()
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				slog.Debug("session wait aborted", "err", err)
			}
			if ac.Err() != nil && fromCookie {
				ClearSessionCookie(w, r)
			}

			ctx := context.WithValue(r.Context(), ctxKeyCaller, Caller{State: state, Client: client, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetCaller(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(ctxKeyCaller).(Caller)
	return caller, ok
}

// WithCaller stores caller in ctx. Handlers under test use it in place of
// the Session middleware.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, ctxKeyCaller, caller)
}

// TokenFromRequest reads the bearer token, falling back to the session
// cookie. The second result reports whether the cookie supplied it.
func TokenFromRequest(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" && parts[1] != "" {
			return parts[1], false
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
