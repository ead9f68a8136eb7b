package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
)

const (
	createOrderSQL = `INSERT INTO blanket_orders
		(id, reference, partner, currency, order_date, status, amount_untaxed, amount_tax, amount_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getOrderSQL = `SELECT id, reference, partner, currency, order_date, status,
		amount_untaxed, amount_tax, amount_total, created_at
		FROM blanket_orders WHERE id = $1`

	listOrdersSQL = `SELECT id, reference, partner, currency, order_date, status,
		amount_untaxed, amount_tax, amount_total, created_at
		FROM blanket_orders ORDER BY reference`

	updateOrderStatusSQL = `UPDATE blanket_orders SET status = $2 WHERE id = $1`

	updateOrderAmountsSQL = `UPDATE blanket_orders
		SET amount_untaxed = $2, amount_tax = $3, amount_total = $4 WHERE id = $1`

	createLineSQL = `INSERT INTO blanket_order_lines
		(id, order_id, product, description, quantity, price_unit, taxes, currency,
		 order_before, subtotal, tax, total, delivered_qty, reserved_qty)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getLineSQL = `SELECT id, order_id, product, description, quantity, price_unit, taxes,
		currency, order_before, subtotal, tax, total, delivered_qty, reserved_qty, created_at
		FROM blanket_order_lines WHERE id = $1`

	linesForOrderSQL = `SELECT id, order_id, product, description, quantity, price_unit, taxes,
		currency, order_before, subtotal, tax, total, delivered_qty, reserved_qty, created_at
		FROM blanket_order_lines WHERE order_id = $1 ORDER BY created_at, id`

	updateLineSQL = `UPDATE blanket_order_lines
		SET product = $2, description = $3, quantity = $4, price_unit = $5, taxes = $6,
		    order_before = $7, subtotal = $8, tax = $9, total = $10
		WHERE id = $1`

	updateLineReservedSQL  = `UPDATE blanket_order_lines SET reserved_qty = $2 WHERE id = $1`
	updateLineDeliveredSQL = `UPDATE blanket_order_lines SET delivered_qty = $2 WHERE id = $1`
)

var _ blanket.Repository = (*BlanketRepository)(nil)

// BlanketRepository implements blanket.Repository backed by PostgreSQL.
type BlanketRepository struct {
	pool *pgxpool.Pool
}

// NewBlanketRepository returns a BlanketRepository that uses the given pool.
func NewBlanketRepository(pool *pgxpool.Pool) *BlanketRepository {
	return &BlanketRepository{pool: pool}
}

// CreateOrder persists a new order together with its lines in one
// transaction.
func (r *BlanketRepository) CreateOrder(ctx context.Context, o *blanket.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.Reference, o.Partner, o.Currency, o.OrderDate, o.Status,
		o.AmountUntaxed, o.AmountTax, o.AmountTotal,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Reference, err)
	}

	for i := range o.Lines {
		if err := insertLine(ctx, tx, &o.Lines[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetOrder returns an order together with its lines.
func (r *BlanketRepository) GetOrder(ctx context.Context, id uuid.UUID) (*blanket.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blanket.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	lineRows, err := r.pool.Query(ctx, linesForOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %s: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %s: %w", id, err)
	}
	return &o, nil
}

// ListOrders returns all orders without their lines, ordered by reference.
func (r *BlanketRepository) ListOrders(ctx context.Context) ([]blanket.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateOrderStatus sets the order's lifecycle state.
func (r *BlanketRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status blanket.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating status of order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return blanket.ErrNotFound
	}
	return nil
}

// UpdateOrderAmounts stores the recomputed order totals.
func (r *BlanketRepository) UpdateOrderAmounts(ctx context.Context, id uuid.UUID, untaxed, tax, total decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, updateOrderAmountsSQL, id, untaxed, tax, total)
	if err != nil {
		return fmt.Errorf("updating amounts of order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return blanket.ErrNotFound
	}
	return nil
}

// CreateLine persists a new line.
func (r *BlanketRepository) CreateLine(ctx context.Context, l *blanket.Line) error {
	return insertLine(ctx, r.pool, l)
}

// GetLine returns a single line.
func (r *BlanketRepository) GetLine(ctx context.Context, id uuid.UUID) (*blanket.Line, error) {
	rows, err := r.pool.Query(ctx, getLineSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting line %s: %w", id, err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, blanket.ErrLineNotFound
		}
		return nil, fmt.Errorf("getting line %s: %w", id, err)
	}
	return &l, nil
}

// UpdateLine stores the line's editable fields and computed amounts.
// Reserved and delivered quantities have dedicated update methods.
func (r *BlanketRepository) UpdateLine(ctx context.Context, l *blanket.Line) error {
	taxesJSON, err := json.Marshal(l.Taxes)
	if err != nil {
		return fmt.Errorf("marshaling taxes: %w", err)
	}
	tag, err := r.pool.Exec(ctx, updateLineSQL,
		l.ID, l.Product, l.Description, l.Quantity, l.PriceUnit, taxesJSON,
		l.OrderBefore, l.Subtotal, l.Tax, l.Total,
	)
	if err != nil {
		return fmt.Errorf("updating line %s: %w", l.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return blanket.ErrLineNotFound
	}
	return nil
}

// UpdateLineReserved stores the line's reserved quantity.
func (r *BlanketRepository) UpdateLineReserved(ctx context.Context, id uuid.UUID, reserved decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, updateLineReservedSQL, id, reserved)
	if err != nil {
		return fmt.Errorf("updating reserved qty of line %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return blanket.ErrLineNotFound
	}
	return nil
}

// UpdateLineDelivered stores the line's delivered quantity.
func (r *BlanketRepository) UpdateLineDelivered(ctx context.Context, id uuid.UUID, delivered decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, updateLineDeliveredSQL, id, delivered)
	if err != nil {
		return fmt.Errorf("updating delivered qty of line %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return blanket.ErrLineNotFound
	}
	return nil
}

// execer is satisfied by both pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLine(ctx context.Context, q execer, l *blanket.Line) error {
	taxesJSON, err := json.Marshal(l.Taxes)
	if err != nil {
		return fmt.Errorf("marshaling taxes: %w", err)
	}
	_, err = q.Exec(ctx, createLineSQL,
		l.ID, l.OrderID, l.Product, l.Description, l.Quantity, l.PriceUnit, taxesJSON,
		l.Currency, l.OrderBefore, l.Subtotal, l.Tax, l.Total, l.DeliveredQty, l.ReservedQty,
	)
	if err != nil {
		return fmt.Errorf("creating line %s: %w", l.ID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (blanket.Order, error) {
	var o blanket.Order
	err := row.Scan(
		&o.ID, &o.Reference, &o.Partner, &o.Currency, &o.OrderDate, &o.Status,
		&o.AmountUntaxed, &o.AmountTax, &o.AmountTotal, &o.CreatedAt,
	)
	return o, err
}

func scanLine(row pgx.CollectableRow) (blanket.Line, error) {
	var (
		l         blanket.Line
		taxesJSON []byte
	)
	err := row.Scan(
		&l.ID, &l.OrderID, &l.Product, &l.Description, &l.Quantity, &l.PriceUnit, &taxesJSON,
		&l.Currency, &l.OrderBefore, &l.Subtotal, &l.Tax, &l.Total, &l.DeliveredQty, &l.ReservedQty,
		&l.CreatedAt,
	)
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal(taxesJSON, &l.Taxes); err != nil {
		return l, fmt.Errorf("unmarshaling taxes: %w", err)
	}
	return l, nil
}
