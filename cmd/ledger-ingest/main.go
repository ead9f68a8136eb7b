// Command ledger-ingest bulk-imports historical stock moves from gzipped
// CSV exports. Rows are keyed by their move reference; a bloom filter plus
// an exact set drop references that already appeared in an earlier row, so
// re-running the import against overlapping exports is safe.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/blanket-orders/internal/domain/ledger"
	"github.com/xenking/blanket-orders/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	timeLayout    = "2006-01-02 15:04:05"
)

// row is one parsed CSV record:
// reference,product,quantity,source,dest,origin,date
type row struct {
	reference string
	move      ledger.Move
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more moves .csv.gz files")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("ledger ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("ledger ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	adapter := repository.NewLedgerAdapter(pool)

	// Files are parsed concurrently; a single writer goroutine dedupes and
	// inserts so the duplicate check stays race-free.
	rows := make(chan row, 1024)

	g, ctx := errgroup.WithContext(ctx)
	parsers, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		parsers.Go(parseFile(ctx, f, rows))
	}
	g.Go(func() error {
		defer close(rows)
		return parsers.Wait()
	})
	g.Go(writeMoves(ctx, adapter, rows))

	return g.Wait()
}

// parseFile streams one gzipped CSV file into the rows channel.
func parseFile(ctx context.Context, path string, rows chan<- row) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		r := csv.NewReader(gz)
		r.FieldsPerRecord = 7
		r.ReuseRecord = true

		var count uint64
		for {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			if record[0] == "reference" {
				continue // header
			}

			parsed, err := parseRow(record)
			if err != nil {
				return errors.Wrapf(err, "parse %s row %q", path, record[0])
			}

			select {
			case rows <- parsed:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress", slog.String("file", path), slog.Uint64("rows", count))
			}
		}

		slog.Info("parse complete", slog.String("file", path), slog.Uint64("rows", count))
		return nil
	}
}

func parseRow(record []string) (row, error) {
	qty, err := decimal.NewFromString(record[2])
	if err != nil {
		return row{}, errors.Wrap(err, "quantity")
	}
	createdAt, err := time.Parse(timeLayout, record[6])
	if err != nil {
		return row{}, errors.Wrap(err, "date")
	}
	return row{
		reference: record[0],
		move: ledger.Move{
			Product:   record[1],
			Quantity:  qty,
			Source:    record[3],
			Dest:      record[4],
			Origin:    record[5],
			CreatedAt: createdAt,
		},
	}, nil
}

// writeMoves drains the rows channel, skipping duplicate references. The
// bloom filter answers "definitely new" cheaply; only possible repeats hit
// the exact set.
func writeMoves(ctx context.Context, adapter *repository.LedgerAdapter, rows <-chan row) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		seen := make(map[string]struct{})

		var written, skipped uint64
		for r := range rows {
			dup := false
			if filter.TestString(r.reference) {
				_, dup = seen[r.reference]
			}
			if !dup {
				filter.AddString(r.reference)
				seen[r.reference] = struct{}{}
			}

			if dup {
				skipped++
				continue
			}

			if err := adapter.ImportDoneMove(ctx, r.move); err != nil {
				return errors.Wrapf(err, "import move %s", r.reference)
			}

			written++
			if written%progressEvery == 0 {
				slog.Info("write progress", slog.Uint64("written", written), slog.Uint64("skipped", skipped))
			}
		}

		slog.Info("write complete", slog.Uint64("written", written), slog.Uint64("skipped", skipped))
		return nil
	}
}
