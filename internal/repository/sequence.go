package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/blanket-orders/internal/sequence"
)

const nextSequenceSQL = `INSERT INTO sequences (series, value) VALUES ($1, 1)
	ON CONFLICT (series) DO UPDATE SET value = sequences.value + 1
	RETURNING value`

// defaultPrefixes maps series keys to reference prefixes.
var defaultPrefixes = map[string]string{
	sequence.SeriesBlanket:     "BO",
	sequence.SeriesFulfillment: "FO",
}

var _ sequence.Generator = (*Sequences)(nil)

// Sequences implements sequence.Generator on a per-series counter table.
// The upsert makes Next atomic without explicit locking.
type Sequences struct {
	pool     *pgxpool.Pool
	prefixes map[string]string
}

// NewSequences returns a Sequences generator using the default prefixes.
func NewSequences(pool *pgxpool.Pool) *Sequences {
	return &Sequences{pool: pool, prefixes: defaultPrefixes}
}

// Next returns the next reference in the series, e.g. "BO00042".
func (s *Sequences) Next(ctx context.Context, series string) (string, error) {
	var value int64
	if err := s.pool.QueryRow(ctx, nextSequenceSQL, series).Scan(&value); err != nil {
		return "", fmt.Errorf("next value of series %q: %w", series, err)
	}
	prefix, ok := s.prefixes[series]
	if !ok {
		prefix = series
	}
	return fmt.Sprintf("%s%05d", prefix, value), nil
}
