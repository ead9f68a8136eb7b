package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/domain/ledger"
)

const (
	availableQuantitySQL = `SELECT
		COALESCE((SELECT on_hand FROM stock_levels WHERE product = $1 AND location = $2), 0)
		- COALESCE((SELECT SUM(quantity) FROM stock_moves
			WHERE product = $1 AND source = $2 AND state = 'assigned'), 0)`

	createMoveSQL = `INSERT INTO stock_moves (id, product, quantity, source, dest, state, line_id, origin)
		VALUES ($1, $2, $3, $4, $5, 'draft', $6, $7)
		RETURNING created_at`

	getMoveSQL = `SELECT product, quantity, source, state FROM stock_moves WHERE id = $1`

	levelExistsSQL = `SELECT EXISTS (SELECT 1 FROM stock_levels WHERE product = $1 AND location = $2)`

	confirmMoveSQL = `UPDATE stock_moves SET state = 'confirmed' WHERE id = $1 AND state = 'draft'`

	lockMoveSQL = `SELECT product, quantity, source, state FROM stock_moves WHERE id = $1 FOR UPDATE`

	lockLevelSQL = `SELECT on_hand FROM stock_levels WHERE product = $1 AND location = $2 FOR UPDATE`

	assignedSumSQL = `SELECT COALESCE(SUM(quantity), 0) FROM stock_moves
		WHERE product = $1 AND source = $2 AND state = 'assigned'`

	assignMoveSQL = `UPDATE stock_moves SET state = 'assigned' WHERE id = $1`

	cancelMoveSQL = `UPDATE stock_moves SET state = 'cancelled'
		WHERE id = $1 AND state NOT IN ('cancelled', 'done')`

	discardMoveSQL = `DELETE FROM stock_moves WHERE id = $1 AND state IN ('draft', 'cancelled')`

	reduceMoveSQL = `UPDATE stock_moves SET quantity = $2 WHERE id = $1`

	movesForLineSQL = `SELECT id, product, quantity, source, dest, state, line_id, fulfillment_ref, origin, created_at
		FROM stock_moves WHERE line_id = $1 ORDER BY created_at DESC, id DESC`

	reassignMovesSQL = `UPDATE stock_moves SET fulfillment_ref = $2 WHERE id = ANY($1)`

	upsertLevelSQL = `INSERT INTO stock_levels (product, location, on_hand) VALUES ($1, $2, $3)
		ON CONFLICT (product, location) DO UPDATE SET on_hand = EXCLUDED.on_hand`

	insertDoneMoveSQL = `INSERT INTO stock_moves (id, product, quantity, source, dest, state, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, 'done', $6, $7)`
)

var _ ledger.Adapter = (*LedgerAdapter)(nil)

// LedgerAdapter implements ledger.Adapter backed by PostgreSQL. Available
// quantity is on-hand stock minus the total of currently assigned moves at
// the same location; Assign serializes against concurrent assigns through
// row locks on the move and the stock level.
type LedgerAdapter struct {
	pool *pgxpool.Pool
}

// NewLedgerAdapter returns a LedgerAdapter that uses the given pool.
func NewLedgerAdapter(pool *pgxpool.Pool) *LedgerAdapter {
	return &LedgerAdapter{pool: pool}
}

// AvailableQuantity returns the unreserved on-hand quantity of the product
// at the location.
func (a *LedgerAdapter) AvailableQuantity(ctx context.Context, product, location string) (decimal.Decimal, error) {
	var available decimal.Decimal
	err := a.pool.QueryRow(ctx, availableQuantitySQL, product, location).Scan(&available)
	if err != nil {
		return decimal.Zero, fmt.Errorf("available quantity of %q at %q: %w", product, location, err)
	}
	return available, nil
}

// CreateMove creates a move in draft state.
func (a *LedgerAdapter) CreateMove(ctx context.Context, req ledger.CreateMove) (*ledger.Move, error) {
	m := &ledger.Move{
		ID:       uuid.New(),
		Product:  req.Product,
		Quantity: req.Quantity,
		Source:   req.Route.Source,
		Dest:     req.Route.Dest,
		State:    ledger.StateDraft,
		LineID:   req.LineID,
		Origin:   req.Origin,
	}
	err := a.pool.QueryRow(ctx, createMoveSQL,
		m.ID, m.Product, m.Quantity, m.Source, m.Dest, m.LineID, m.Origin,
	).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating move for %q: %w", req.Product, err)
	}
	return m, nil
}

// Confirm transitions a draft move to confirmed after verifying the
// product is configured at the source location.
func (a *LedgerAdapter) Confirm(ctx context.Context, id uuid.UUID) error {
	var (
		product, source, state string
		qty                    decimal.Decimal
	)
	err := a.pool.QueryRow(ctx, getMoveSQL, id).Scan(&product, &qty, &source, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrMoveNotFound
		}
		return fmt.Errorf("getting move %s: %w", id, err)
	}

	var known bool
	if err := a.pool.QueryRow(ctx, levelExistsSQL, product, source).Scan(&known); err != nil {
		return fmt.Errorf("checking stock level: %w", err)
	}
	if !known {
		return errors.Wrapf(ledger.ErrUnavailable, "product %q not stocked at %q", product, source)
	}

	tag, err := a.pool.Exec(ctx, confirmMoveSQL, id)
	if err != nil {
		return fmt.Errorf("confirming move %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ledger.ErrUnavailable, "move %s not in draft state", id)
	}
	return nil
}

// Assign attempts to allocate stock to the move inside one transaction.
// It never fails for insufficient stock; the caller inspects the returned
// state.
func (a *LedgerAdapter) Assign(ctx context.Context, id uuid.UUID) (ledger.MoveState, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var (
		product, source string
		qty             decimal.Decimal
		state           ledger.MoveState
	)
	err = tx.QueryRow(ctx, lockMoveSQL, id).Scan(&product, &qty, &source, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ledger.ErrMoveNotFound
		}
		return "", fmt.Errorf("locking move %s: %w", id, err)
	}
	if state == ledger.StateAssigned {
		return state, nil
	}
	if state != ledger.StateConfirmed && state != ledger.StateWaiting {
		return state, nil
	}

	var onHand decimal.Decimal
	err = tx.QueryRow(ctx, lockLevelSQL, product, source).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return state, nil
		}
		return "", fmt.Errorf("locking stock level: %w", err)
	}

	var assigned decimal.Decimal
	if err := tx.QueryRow(ctx, assignedSumSQL, product, source).Scan(&assigned); err != nil {
		return "", fmt.Errorf("summing assigned moves: %w", err)
	}
	if onHand.Sub(assigned).LessThan(qty) {
		return state, nil
	}

	if _, err := tx.Exec(ctx, assignMoveSQL, id); err != nil {
		return "", fmt.Errorf("assigning move %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return ledger.StateAssigned, nil
}

// Cancel transitions the move to cancelled; already cancelled or done
// moves are left alone.
func (a *LedgerAdapter) Cancel(ctx context.Context, id uuid.UUID) error {
	if _, err := a.pool.Exec(ctx, cancelMoveSQL, id); err != nil {
		return fmt.Errorf("cancelling move %s: %w", id, err)
	}
	return nil
}

// Discard permanently removes a never-confirmed or cancelled move.
func (a *LedgerAdapter) Discard(ctx context.Context, id uuid.UUID) error {
	if _, err := a.pool.Exec(ctx, discardMoveSQL, id); err != nil {
		return fmt.Errorf("discarding move %s: %w", id, err)
	}
	return nil
}

// Reduce lowers the move's requested quantity in place.
func (a *LedgerAdapter) Reduce(ctx context.Context, id uuid.UUID, quantity decimal.Decimal) error {
	tag, err := a.pool.Exec(ctx, reduceMoveSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("reducing move %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrMoveNotFound
	}
	return nil
}

// MovesForLine returns the line's moves, most recently created first.
func (a *LedgerAdapter) MovesForLine(ctx context.Context, lineID uuid.UUID) ([]ledger.Move, error) {
	rows, err := a.pool.Query(ctx, movesForLineSQL, lineID)
	if err != nil {
		return nil, fmt.Errorf("listing moves for line %s: %w", lineID, err)
	}
	return pgx.CollectRows(rows, scanMove)
}

// Reassign attaches the moves to a fulfillment order reference.
func (a *LedgerAdapter) Reassign(ctx context.Context, ids []uuid.UUID, fulfillmentRef string) error {
	if _, err := a.pool.Exec(ctx, reassignMovesSQL, ids, fulfillmentRef); err != nil {
		return fmt.Errorf("reassigning moves to %q: %w", fulfillmentRef, err)
	}
	return nil
}

// SetStockLevel upserts the on-hand quantity of a product at a location.
// Used by seeding and bulk import tooling.
func (a *LedgerAdapter) SetStockLevel(ctx context.Context, product, location string, onHand decimal.Decimal) error {
	if _, err := a.pool.Exec(ctx, upsertLevelSQL, product, location, onHand); err != nil {
		return fmt.Errorf("setting stock level of %q at %q: %w", product, location, err)
	}
	return nil
}

// ImportDoneMove inserts a historical move directly in done state. Used by
// bulk import tooling; done moves never affect available quantity.
func (a *LedgerAdapter) ImportDoneMove(ctx context.Context, m ledger.Move) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := a.pool.Exec(ctx, insertDoneMoveSQL,
		m.ID, m.Product, m.Quantity, m.Source, m.Dest, m.Origin, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("importing move %q: %w", m.Origin, err)
	}
	return nil
}

func scanMove(row pgx.CollectableRow) (ledger.Move, error) {
	var (
		m              ledger.Move
		fulfillmentRef *string
	)
	err := row.Scan(
		&m.ID, &m.Product, &m.Quantity, &m.Source, &m.Dest, &m.State,
		&m.LineID, &fulfillmentRef, &m.Origin, &m.CreatedAt,
	)
	if fulfillmentRef != nil {
		m.FulfillmentRef = *fulfillmentRef
	}
	return m, err
}
