package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
	"github.com/xenking/blanket-orders/internal/domain/fulfillment"
	"github.com/xenking/blanket-orders/internal/domain/ledger"
	"github.com/xenking/blanket-orders/internal/domain/reservation"
	"github.com/xenking/blanket-orders/internal/handler"
	"github.com/xenking/blanket-orders/internal/repository"
	"github.com/xenking/blanket-orders/internal/tax"
	"github.com/xenking/blanket-orders/pkg/health"
	"github.com/xenking/blanket-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	blanketRepo := repository.NewBlanketRepository(pool)
	ledgerAdapter := repository.NewLedgerAdapter(pool)
	sequences := repository.NewSequences(pool)
	fulfillmentRepo := repository.NewFulfillmentRepository(pool, sequences)
	reportRepo := repository.NewReportRepository(pool)

	// Domain services.
	rates, err := taxRates(cfg.Tax)
	if err != nil {
		return errors.Wrap(err, "parse tax rates")
	}
	engine := reservation.NewEngine(ledgerAdapter, ledger.Route{
		Source: cfg.Stock.Source,
		Dest:   cfg.Stock.Dest,
	})
	orderService := blanket.NewService(blanketRepo, engine, sequences, tax.NewRateTable(rates))
	converter := fulfillment.NewConverter(blanketRepo, fulfillmentRepo)

	// HTTP handlers.
	h := handler.NewHandler(orderService, converter, reportRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("blanket-api", m),
			httpmiddleware.Metrics(m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// taxRates merges configured rate overrides over the built-in table.
func taxRates(cfg TaxConfig) (map[string]decimal.Decimal, error) {
	rates := tax.DefaultRates()
	for code, raw := range cfg.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "tax %q", code)
		}
		rates[code] = rate
	}
	return rates, nil
}
