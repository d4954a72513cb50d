package rates

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
)

// Handler exposes rate rule administration and rate resolution.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler constructs the rates handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers rate routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rates", h.handleList)
	r.Post("/rates", h.handleCreate)
	r.Delete("/rates/{id}", h.handleDelete)
	r.Get("/rates/resolve", h.handleResolve)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list rate rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rule Rule
	if err := httpx.DecodeJSON(r, &rule); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	created, err := h.repo.Create(r.Context(), rule)
	if err != nil {
		h.logger.Error("create rate rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "rule id must be numeric")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemGroup := q.Get("item_group")
	billing := BillingType(q.Get("billing_type"))
	if itemGroup == "" || !billing.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_group and a valid billing_type are required")
		return
	}

	resolver, err := h.repo.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("load rate snapshot", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rate, found := resolver.Resolve(q.Get("item"), itemGroup, billing)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"handling": rate.Handling,
		"loading":  rate.Loading,
		"matched":  found,
	})
}
