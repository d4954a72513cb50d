package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
)

// Handler wires report and typeahead endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	typeahead *Typeahead
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service, typeahead *Typeahead) *Handler {
	return &Handler{logger: logger, service: service, typeahead: typeahead}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/stock-ledger", h.handleStockLedger)
		r.Get("/aging", h.handleAging)
		r.Get("/utilization", h.handleUtilization)
		r.Get("/trends", h.handleTrends)
		r.Get("/dashboard", h.handleDashboard)
	})
	r.Route("/typeahead", func(r chi.Router) {
		r.Get("/warehouses", h.handleTypeaheadWarehouses)
		r.Get("/items", h.handleTypeaheadItems)
		r.Get("/batches", h.handleTypeaheadBatches)
	})
}

func filterFromQuery(r *http.Request) ledger.BalanceFilter {
	q := r.URL.Query()
	filter := ledger.BalanceFilter{
		Customer:  q.Get("customer"),
		Warehouse: q.Get("warehouse"),
		GoodsItem: q.Get("item"),
		ItemGroup: q.Get("item_group"),
		BatchCode: q.Get("batch"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.FromDate = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.ToDate = t
		}
	}
	return filter
}

func (h *Handler) handleStockLedger(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.StockLedger(r.Context(), filterFromQuery(r))
	if err != nil {
		h.logger.Error("stock ledger report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Aging(r.Context(), filterFromQuery(r))
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleUtilization(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Utilization(r.Context())
	if err != nil {
		h.logger.Error("utilization report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	points, err := h.service.Trends(r.Context(), filter.FromDate, filter.ToDate)
	if err != nil {
		h.logger.Error("trends report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"points": points})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) requireCustomer(w http.ResponseWriter, r *http.Request) (string, bool) {
	customer := r.URL.Query().Get("customer")
	if customer == "" {
		httpx.FieldProblem(w, "customer required", map[string]string{"customer": "required"})
		return "", false
	}
	return customer, true
}

func (h *Handler) handleTypeaheadWarehouses(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.requireCustomer(w, r)
	if !ok {
		return
	}
	list, err := h.typeahead.CustomerWarehouses(r.Context(), customer)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": list})
}

func (h *Handler) handleTypeaheadItems(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.requireCustomer(w, r)
	if !ok {
		return
	}
	list, err := h.typeahead.CustomerItems(r.Context(), customer)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) handleTypeaheadBatches(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.requireCustomer(w, r)
	if !ok {
		return
	}
	list, err := h.typeahead.CustomerBatches(r.Context(), customer)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": list})
}
