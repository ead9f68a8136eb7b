package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/blanket-orders/internal/domain/fulfillment"
	"github.com/xenking/blanket-orders/internal/sequence"
)

const createFulfillmentSQL = `INSERT INTO fulfillment_orders (id, reference, partner, target_date, origin, lines)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at`

var _ fulfillment.Creator = (*FulfillmentRepository)(nil)

// FulfillmentRepository implements fulfillment.Creator backed by
// PostgreSQL. Each order gets a reference from the fulfillment series; the
// lines are stored in a JSONB column.
type FulfillmentRepository struct {
	pool *pgxpool.Pool
	refs sequence.Generator
}

// NewFulfillmentRepository returns a FulfillmentRepository that uses the
// given pool and reference generator.
func NewFulfillmentRepository(pool *pgxpool.Pool, refs sequence.Generator) *FulfillmentRepository {
	return &FulfillmentRepository{pool: pool, refs: refs}
}

// CreateOrder persists a new fulfillment order.
func (r *FulfillmentRepository) CreateOrder(
	ctx context.Context,
	partner string,
	lines []fulfillment.OrderLine,
	targetDate time.Time,
	origin string,
) (*fulfillment.Order, error) {
	ref, err := r.refs.Next(ctx, sequence.SeriesFulfillment)
	if err != nil {
		return nil, errors.Wrap(err, "next reference")
	}

	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshaling lines: %w", err)
	}

	o := &fulfillment.Order{
		ID:         uuid.New(),
		Reference:  ref,
		Partner:    partner,
		TargetDate: targetDate,
		Origin:     origin,
		Lines:      lines,
	}
	err = r.pool.QueryRow(ctx, createFulfillmentSQL,
		o.ID, o.Reference, o.Partner, o.TargetDate, o.Origin, linesJSON,
	).Scan(&o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating fulfillment order %q: %w", ref, err)
	}
	return o, nil
}
