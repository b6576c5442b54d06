package resourcehandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/hr"
	"hradmin/internal/domain/resource"
	"hradmin/internal/domain/store"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/platform/pdfexport"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

// Deps are shared by the handlers of every kind.
type Deps struct {
	Workspaces *resource.Workspaces
	Recorder   resource.Recorder
	Locker     resource.Locker
	// Revoker signs out and disables a user whose profile is removed.
	Revoker   store.Revoker
	NoticeTTL time.Duration
	Now       func() time.Time
}

// Mount registers the routes of every administered kind under r.
func Mount(r chi.Router, deps Deps) {
	NewHandler(hr.Departments, deps).RegisterRoutes(r)
	NewHandler(hr.Positions, deps).RegisterRoutes(r)
	NewHandler(hr.Users, deps).RegisterRoutes(r)
	NewHandler(hr.Banks, deps).RegisterRoutes(r)
	NewHandler(hr.Locations, deps).RegisterRoutes(r)
}

// Handler exposes the manager of one kind for the calling session.
type Handler[K resource.Entity] struct {
	Kind resource.Kind[K]
	Deps Deps
}

func NewHandler[K resource.Entity](kind resource.Kind[K], deps Deps) *Handler[K] {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler[K]{Kind: kind, Deps: deps}
}

func (h *Handler[K]) RegisterRoutes(r chi.Router) {
	r.Route("/"+h.Kind.Plural, func(r chi.Router) {
		r.Get("/", h.handleView)
		r.Post("/", h.handleCreate)
		r.Post("/refresh", h.handleRefresh)
		r.Get("/export.pdf", h.handleExport)
		r.Post("/form/new", h.handleOpenNew)
		r.Post("/form/edit/{id}", h.handleOpenEdit)
		r.Post("/form/cancel", h.handleCancelForm)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleRemove)
	})
}

type changeResponse[K resource.Entity] struct {
	Item *K               `json:"item,omitempty"`
	View resource.View[K] `json:"view"`
}

// manager returns the caller's manager, fetching the list on first use. It
// writes the failure response itself when it returns nil.
func (h *Handler[K]) manager(w http.ResponseWriter, r *http.Request) *resource.Manager[K] {
	reqID := middleware.GetRequestID(r.Context())
	caller, ok := middleware.GetCaller(r.Context())
	if !ok || !caller.State.SignedIn() {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return nil
	}
	sessionID := caller.State.Session.ID
	actorID := caller.State.UserID()

	m, err := resource.Open(h.Deps.Workspaces, sessionID, h.Kind, func() *resource.Manager[K] {
		opts := []resource.Option{
			resource.WithNoticeTTL(h.Deps.NoticeTTL),
			resource.WithLogger(slog.Default().With("kind", h.Kind.Name, "userId", actorID)),
			resource.WithObserver(func(op, outcome string) {
				metrics.ResourceOperationsTotal.WithLabelValues(h.Kind.Name, op, outcome).Inc()
			}),
		}
		if h.Deps.Recorder != nil {
			opts = append(opts, resource.WithRecorder(h.Deps.Recorder, actorID))
		}
		if h.Deps.Locker != nil {
			opts = append(opts, resource.WithLocker(h.Deps.Locker, sessionID+":"+h.Kind.Name))
		}
		if h.Deps.Revoker != nil && h.Kind.Table == store.TableProfiles {
			opts = append(opts, resource.WithAfterRemove(h.Deps.Revoker.RevokeUser))
		}
		return resource.NewManager(caller.Client, h.Kind, opts...)
	})
	if err != nil {
		slog.Error("open workspace failed", "kind", h.Kind.Name, "err", err)
		api.Fail(w, http.StatusInternalServerError, "workspace_error", "failed to open workspace", reqID)
		return nil
	}
	metrics.WorkspacesActive.Set(float64(h.Deps.Workspaces.Len()))

	if !m.View().Loaded {
		if _, err := m.List(r.Context()); err != nil {
			writeError(w, err, reqID)
			return nil
		}
	}
	return m
}

func (h *Handler[K]) handleView(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	if q, ok := r.URL.Query()["q"]; ok {
		m.SetSearch(strings.Join(q, " "))
	}
	api.Success(w, m.View(), middleware.GetRequestID(r.Context()))
}

func (h *Handler[K]) handleRefresh(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	if _, err := m.List(r.Context()); err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, m.View(), middleware.GetRequestID(r.Context()))
}

func (h *Handler[K]) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	m := h.manager(w, r)
	if m == nil {
		return
	}
	var fields K
	if !shared.DecodeJSON(w, r, &fields, reqID) {
		return
	}
	created, err := m.Create(r.Context(), fields)
	if err != nil {
		writeError(w, err, reqID)
		return
	}
	api.Created(w, changeResponse[K]{Item: &created, View: m.View()}, reqID)
}

func (h *Handler[K]) handleUpdate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	m := h.manager(w, r)
	if m == nil {
		return
	}
	id := chi.URLParam(r, "id")
	fields, err := m.Current(r.Context(), id)
	if err != nil {
		writeError(w, err, reqID)
		return
	}
	if !shared.DecodeJSON(w, r, &fields, reqID) {
		return
	}
	updated, err := m.Update(r.Context(), id, fields)
	if err != nil {
		writeError(w, err, reqID)
		return
	}
	api.Success(w, changeResponse[K]{Item: &updated, View: m.View()}, reqID)
}

func (h *Handler[K]) handleRemove(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	m := h.manager(w, r)
	if m == nil {
		return
	}
	if err := m.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err, reqID)
		return
	}
	api.Success(w, changeResponse[K]{View: m.View()}, reqID)
}

func (h *Handler[K]) handleOpenNew(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	if err := m.OpenNew(); err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, m.View(), middleware.GetRequestID(r.Context()))
}

func (h *Handler[K]) handleOpenEdit(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	if err := m.OpenEdit(chi.URLParam(r, "id")); err != nil {
		writeError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, m.View(), middleware.GetRequestID(r.Context()))
}

func (h *Handler[K]) handleCancelForm(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	m.CancelForm()
	api.Success(w, m.View(), middleware.GetRequestID(r.Context()))
}

func (h *Handler[K]) handleExport(w http.ResponseWriter, r *http.Request) {
	m := h.manager(w, r)
	if m == nil {
		return
	}
	items := m.Search(r.URL.Query().Get("q"))
	headers, widths, rows := h.Kind.Export(items)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+h.Kind.Plural+".pdf")
	err := pdfexport.Write(w, pdfexport.Table{
		Title:       strings.ToUpper(h.Kind.Plural[:1]) + h.Kind.Plural[1:],
		Headers:     headers,
		Widths:      widths,
		Rows:        rows,
		GeneratedAt: h.Deps.Now(),
	})
	if err != nil {
		slog.Warn("pdf export failed", "kind", h.Kind.Name, "err", err)
	}
}

func writeError(w http.ResponseWriter, err error, reqID string) {
	var validation *resource.ValidationError
	var referenced *resource.ReferentialIntegrityError
	var storeErr *resource.StoreError
	switch {
	case errors.As(err, &validation):
		shared.FailValidation(w, reqID, shared.IssuesFrom(validation))
	case errors.As(err, &referenced):
		api.FailWithDetails(w, http.StatusConflict, "referenced", err.Error(),
			map[string]any{"dependent": referenced.Dependent}, reqID)
	case errors.Is(err, resource.ErrBusy):
		api.Fail(w, http.StatusConflict, "busy", err.Error(), reqID)
	case errors.Is(err, resource.ErrFormOpen):
		api.Fail(w, http.StatusConflict, "form_open", err.Error(), reqID)
	case errors.Is(err, resource.ErrNoSuchRow), errors.Is(err, store.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, store.ErrConflict):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), reqID)
	case errors.As(err, &storeErr):
		api.Fail(w, http.StatusBadGateway, "store_error", err.Error(), reqID)
	default:
		slog.Error("unexpected resource error", "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "unexpected error", reqID)
	}
}
