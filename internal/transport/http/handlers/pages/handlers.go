package pageshandler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/gate"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
)

// Handler serves the single-page frontend behind the access gate and answers
// gate queries for client-side navigation.
type Handler struct {
	Routes     gate.Routes
	StaticPath string
	IndexPath  string
}

func NewHandler(routes gate.Routes, staticPath string) *Handler {
	return &Handler{Routes: routes, StaticPath: staticPath, IndexPath: "index.html"}
}

// RegisterAPI adds the gate query endpoint.
func (h *Handler) RegisterAPI(r chi.Router) {
	r.Get("/gate", h.HandleGate)
}

func (h *Handler) HandleGate(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())
	page := gate.Clean(r.URL.Query().Get("path"))
	decision := h.Routes.Resolve(page, caller.State)
	metrics.GateDecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()
	api.Success(w, map[string]any{
		"path":     page,
		"decision": decision,
		"role":     caller.State.Role.String(),
	}, middleware.GetRequestID(r.Context()))
}

// ServeHTTP serves static assets as they are and every other GET path as a
// page: redirected when the gate says so, the index otherwise.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	page := gate.Clean(r.URL.Path)
	if h.isAsset(page) {
		http.FileServer(http.Dir(h.StaticPath)).ServeHTTP(w, r)
		return
	}

	caller, _ := middleware.GetCaller(r.Context())
	decision := h.Routes.Resolve(page, caller.State)
	metrics.GateDecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()

	switch decision.Outcome {
	case gate.OutcomeLoading:
		w.Header().Set("Retry-After", "1")
		http.Error(w, "loading", http.StatusServiceUnavailable)
	case gate.OutcomeRedirect:
		http.Redirect(w, r, decision.Target, http.StatusFound)
	default:
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, filepath.Join(h.StaticPath, h.IndexPath))
	}
}

func (h *Handler) isAsset(page string) bool {
	if page == "/" || !strings.Contains(filepath.Base(page), ".") {
		return false
	}
	info, err := os.Stat(filepath.Join(h.StaticPath, filepath.FromSlash(page)))
	return err == nil && !info.IsDir()
}
