package warehouse

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
)

// Handler wires warehouse master-data endpoints.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler constructs the warehouse handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses", h.handleList)
	r.Post("/warehouses", h.handleCreate)
	r.Get("/warehouses/{code}", h.handleGet)
	r.Put("/warehouses/{code}", h.handleUpdate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	includeDisabled := r.URL.Query().Get("all") == "1"
	list, err := h.repo.List(r.Context(), includeDisabled)
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": list})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	wh, err := h.repo.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var wh Warehouse
	if err := httpx.DecodeJSON(r, &wh); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	created, err := h.repo.Create(r.Context(), wh)
	if err != nil {
		h.logger.Error("create warehouse", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var wh Warehouse
	if err := httpx.DecodeJSON(r, &wh); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	wh.Code = chi.URLParam(r, "code")
	if err := h.repo.Update(r.Context(), wh); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}
