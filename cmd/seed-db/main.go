package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/repository"
)

type stockLevelJSON struct {
	Product  string          `json:"product"`
	Location string          `json:"location"`
	OnHand   decimal.Decimal `json:"on_hand"`
}

func main() {
	var (
		databaseURL string
		stockFile   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&stockFile, "stock-file", "db/seed/stock.json", "path to stock levels JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, stockFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, stockFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedStockLevels(ctx, repository.NewLedgerAdapter(pool), stockFile); err != nil {
		return errors.Wrap(err, "seed stock levels")
	}

	return nil
}

func seedStockLevels(ctx context.Context, adapter *repository.LedgerAdapter, stockFile string) error {
	slog.Info("reading stock file", slog.String("path", stockFile))

	data, err := os.ReadFile(stockFile)
	if err != nil {
		return errors.Wrap(err, "read stock file")
	}

	var levels []stockLevelJSON
	if err := json.Unmarshal(data, &levels); err != nil {
		return errors.Wrap(err, "parse stock JSON")
	}

	slog.Info("upserting stock levels", slog.Int("count", len(levels)))

	for _, l := range levels {
		if err := adapter.SetStockLevel(ctx, l.Product, l.Location, l.OnHand); err != nil {
			return errors.Wrapf(err, "upsert stock level %s at %s", l.Product, l.Location)
		}

		slog.Info("upserted stock level",
			slog.String("product", l.Product),
			slog.String("location", l.Location),
			slog.String("on_hand", l.OnHand.String()),
		)
	}

	return nil
}
