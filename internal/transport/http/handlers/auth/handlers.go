package authhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/session"
	"hradmin/internal/domain/store"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

// Backend signs users in and hands out clients bound to the issued token.
type Backend interface {
	middleware.ClientSource
	SignIn(ctx context.Context, email, password string) (*store.Session, string, error)
}

type Handler struct {
	Backend Backend
}

func NewHandler(backend Backend) *Handler {
	return &Handler{Backend: backend}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-in", h.HandleSignIn)
		r.Post("/sign-out", h.HandleSignOut)
		r.Get("/session", h.HandleSession)
	})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token   string         `json:"token,omitempty"`
	Session *store.Session `json:"session"`
	Role    string         `json:"role"`
	Home    string         `json:"home"`
	Loading bool           `json:"loading,omitempty"`
}

func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload signInRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Required("password", payload.Password, "is required")
	if v.Reject(w, reqID) {
		return
	}

	sess, token, err := h.Backend.SignIn(r.Context(), strings.TrimSpace(payload.Email), payload.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidLogin) {
			api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
			return
		}
		slog.Warn("sign in failed", "err", err)
		api.Fail(w, http.StatusBadGateway, "store_unavailable", "sign in is unavailable", reqID)
		return
	}

	role, err := session.NewRoleResolver(h.Backend.Client(token)).Resolve(r.Context(), sess.UserID)
	if err != nil {
		slog.Info("signed in without role", "userId", sess.UserID, "err", err)
	}
	state := session.State{Session: sess, Role: role}

	middleware.SetSessionCookie(w, r, token, sess.ExpiresAt)
	api.Success(w, sessionResponse{
		Token:   token,
		Session: sess,
		Role:    role.String(),
		Home:    state.Home(),
	}, reqID)
}

func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if caller, ok := middleware.GetCaller(r.Context()); ok && caller.Client != nil && caller.Token != "" {
		if err := caller.Client.SignOut(r.Context()); err != nil {
			slog.Warn("sign out failed", "userId", caller.State.UserID(), "err", err)
		}
	}
	middleware.ClearSessionCookie(w, r)
	api.Success(w, map[string]string{"status": "signed_out"}, reqID)
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())
	state := caller.State
	api.Success(w, sessionResponse{
		Session: state.Session,
		Role:    state.Role.String(),
		Home:    state.Home(),
		Loading: state.Loading,
	}, middleware.GetRequestID(r.Context()))
}
