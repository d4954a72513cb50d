package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/frostline-erp/frostline/cmd/frostline/cli"
	"github.com/frostline-erp/frostline/internal/app"
	"github.com/frostline-erp/frostline/internal/auth"
	"github.com/frostline-erp/frostline/internal/dispatch"
	"github.com/frostline-erp/frostline/internal/integration"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/observability"
	"github.com/frostline-erp/frostline/internal/platform/cache"
	"github.com/frostline-erp/frostline/internal/platform/db"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/receipt"
	"github.com/frostline-erp/frostline/internal/reports"
	"github.com/frostline-erp/frostline/internal/sensors"
	"github.com/frostline-erp/frostline/internal/shared"
	"github.com/frostline-erp/frostline/internal/warehouse"
	"github.com/frostline-erp/frostline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// "create-key <name> [customer] [roles]" mints an API key and exits.
	if len(os.Args) > 1 && os.Args[1] == "create-key" {
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: frostline create-key <name> [customer] [roles]")
			os.Exit(2)
		}
		customer, roles := "", []string(nil)
		if len(os.Args) > 3 {
			customer = os.Args[3]
		}
		if len(os.Args) > 4 {
			roles = cli.ParseRoles(os.Args[4])
		}
		token, err := cli.NewKeyMinter(pool).Create(ctx, os.Args[2], customer, roles)
		if err != nil {
			logger.Error("create key", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	validate := validator.New()
	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	hooks := integration.NewHooks(logger, integration.NewRecorder(pool), jobsClient, integration.Config{
		LoadingExpenseAccount: cfg.LoadingExpenseAccount,
		LoadingPayableAccount: cfg.LoadingPayableAccount,
		IntraWarehouseRate:    cfg.IntraRate(),
		InterWarehouseRate:    cfg.InterRate(),
	})

	ratesRepo := rates.NewRepository(pool)
	warehouseRepo := warehouse.NewRepository(pool)

	dispatchRepo := dispatch.NewRepository(pool, cfg.CompanyAbbr)
	dispatchService := dispatch.NewService(logger, dispatchRepo, ratesRepo, auditLogger, hooks, dispatch.ServiceConfig{
		Company:     cfg.CompanyName,
		CompanyAbbr: cfg.CompanyAbbr,
	})

	receiptRepo := receipt.NewRepository(pool, cfg.CompanyAbbr)
	receiptService := receipt.NewService(logger, receiptRepo, dispatchService, auditLogger, hooks, receipt.ServiceConfig{
		Company:             cfg.CompanyName,
		CompanyAbbr:         cfg.CompanyAbbr,
		TransferBillingType: rates.BillingType(cfg.TransferBillingType),
	})

	cacheStore := cache.NewStore(redisClient, cfg.DashboardTTL)
	reportsService := reports.NewService(logger, reports.NewPGRepository(pool, warehouseRepo), cacheStore)

	authService := auth.NewService(logger, auth.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthService:      authService,
		LedgerHandler:    ledger.NewHandler(logger, pool),
		RatesHandler:     rates.NewHandler(logger, ratesRepo),
		WarehouseHandler: warehouse.NewHandler(logger, warehouseRepo),
		ReceiptHandler:   receipt.NewHandler(logger, receiptService, validate),
		DispatchHandler:  dispatch.NewHandler(logger, dispatchService, validate),
		ReportsHandler:   reports.NewHandler(logger, reportsService, reports.NewTypeahead(pool)),
		SensorsHandler:   sensors.NewHandler(logger, sensors.NewRepository(pool), jobsClient, validate),
		Idempotency:      idempotencyStore,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
