package audithandler

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/audit"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

const exportLimit = 10000

type Handler struct {
	Log audit.Log
}

func NewHandler(log audit.Log) *Handler {
	return &Handler{Log: log}
}

// RegisterRoutes expects r to be admitted for admins already.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/events", h.handleListEvents)
		r.Get("/events/export", h.handleExportEvents)
	})
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) (audit.Filter, shared.Pagination, bool) {
	q := r.URL.Query()
	v := shared.NewValidator()
	since, _ := v.Date("since", q.Get("since"))
	page := v.Page(q, 100, 500)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return audit.Filter{}, shared.Pagination{}, false
	}
	return audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
		ActorUser:  q.Get("actorUserId"),
		Since:      since,
	}, page, true
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, page, ok := h.filter(w, r)
	if !ok {
		return
	}
	events, err := h.Log.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		slog.Warn("audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	filter, _, ok := h.filter(w, r)
	if !ok {
		return
	}
	events, err := h.Log.List(r.Context(), filter, exportLimit, 0)
	if err != nil {
		slog.Warn("audit export failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_user_id", "action", "entity_type", "entity_id", "request_id", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.CreatedAt.Format(time.RFC3339)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}
