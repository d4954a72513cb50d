package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frostline-erp/frostline/internal/auth"
	"github.com/frostline-erp/frostline/internal/dispatch"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/observability"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/receipt"
	"github.com/frostline-erp/frostline/internal/reports"
	"github.com/frostline-erp/frostline/internal/sensors"
	"github.com/frostline-erp/frostline/internal/shared"
	"github.com/frostline-erp/frostline/internal/warehouse"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthService      *auth.Service
	LedgerHandler    *ledger.Handler
	RatesHandler     *rates.Handler
	WarehouseHandler *warehouse.Handler
	ReceiptHandler   *receipt.Handler
	DispatchHandler  *dispatch.Handler
	ReportsHandler   *reports.Handler
	SensorsHandler   *sensors.Handler
	Idempotency      *shared.IdempotencyStore
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Frostline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.AuthService != nil {
			r.Use(auth.Middleware(params.AuthService))
		}
		if params.Idempotency != nil {
			r.Use(IdempotencyMiddleware(params.Idempotency, "api"))
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.RatesHandler != nil {
			params.RatesHandler.MountRoutes(r)
		}
		if params.WarehouseHandler != nil {
			params.WarehouseHandler.MountRoutes(r)
		}
		if params.ReceiptHandler != nil {
			params.ReceiptHandler.MountRoutes(r)
		}
		if params.DispatchHandler != nil {
			params.DispatchHandler.MountRoutes(r)
		}
		if params.ReportsHandler != nil {
			params.ReportsHandler.MountRoutes(r)
		}
		if params.SensorsHandler != nil {
			params.SensorsHandler.MountRoutes(r)
		}
	})

	return r
}
