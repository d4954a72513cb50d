package ledger

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
)

// Handler exposes the balance engine to UI typeahead and external callers.
type Handler struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, pool *pgxpool.Pool) *Handler {
	return &Handler{logger: logger, pool: pool}
}

// MountRoutes registers balance query routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances/batch", h.handleBatchBalance)
	r.Get("/balances/aggregate", h.handleAggregateBalance)
}

type balanceResponse struct {
	ReceiptCode string  `json:"receipt,omitempty"`
	Customer    string  `json:"customer,omitempty"`
	Warehouse   string  `json:"warehouse,omitempty"`
	BatchCode   string  `json:"batch"`
	Balance     float64 `json:"balance"`
}

func (h *Handler) handleBatchBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	receipt := q.Get("receipt")
	batch := q.Get("batch")
	if receipt == "" || batch == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "receipt and batch are required")
		return
	}

	balance, err := BatchBalance(r.Context(), h.pool, receipt, batch, q.Get("exclude_dispatch"))
	if err != nil {
		h.logger.Error("batch balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{ReceiptCode: receipt, BatchCode: batch, Balance: balance})
}

func (h *Handler) handleAggregateBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customer := q.Get("customer")
	warehouse := q.Get("warehouse")
	batch := q.Get("batch")
	if customer == "" || warehouse == "" || batch == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customer, warehouse and batch are required")
		return
	}

	balance, err := AggregateBalance(r.Context(), h.pool, customer, warehouse, batch)
	if err != nil {
		h.logger.Error("aggregate balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{Customer: customer, Warehouse: warehouse, BatchCode: batch, Balance: balance})
}
