package audithandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"salaryrules/internal/domain/audit"
	"salaryrules/internal/transport/http/api"
	"salaryrules/internal/transport/http/middleware"
	"salaryrules/internal/transport/http/shared"
)

type Lister interface {
	Count(ctx context.Context, tenantID string, filter audit.Filter) (int, error)
	List(ctx context.Context, tenantID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service Lister
}

func NewHandler(service Lister) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/events", h.handleListEvents)
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	client, ok := middleware.GetClient(r.Context())
	if !ok {
		api.Fail(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	query := r.URL.Query()
	filter := audit.Filter{Action: query.Get("action"), EntityType: query.Get("entityType"), Actor: query.Get("actor")}
	total, err := h.Service.Count(r.Context(), client.TenantID, filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	}

	events, err := h.Service.List(r.Context(), client.TenantID, filter, query.Get("includeDetails") == "true", page.Limit, page.Offset)
	if err != nil {
		slog.Error("audit list failed", "err", err)
		api.Fail(w, r, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events")
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, r, shared.NewPage(events, total, page))
}
