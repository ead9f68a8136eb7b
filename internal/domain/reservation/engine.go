// Package reservation implements the stock reservation engine: it brings a
// blanket order line's reserved quantity in line with its requested
// quantity by creating, cancelling, and reducing ledger moves.
package reservation

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/domain/ledger"
)

// Line is the view of a blanket order line the engine operates on. The
// engine never mutates the caller's record; it returns the new reserved
// quantity and the caller persists it.
type Line struct {
	ID       uuid.UUID
	OrderRef string
	Product  string
	Quantity decimal.Decimal
	Reserved decimal.Decimal
}

// InsufficientStockError reports a reservation request that exceeds the
// available quantity.
type InsufficientStockError struct {
	Product   string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("cannot reserve %s units of %s: only %s available",
		e.Required, e.Product, e.Available)
}

// FailedError reports a move that the ledger confirmed but could not
// assign. The move has already been discarded.
type FailedError struct {
	Product  string
	Quantity decimal.Decimal
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("could not reserve %s units of %s: stock not assignable",
		e.Quantity, e.Product)
}

// Engine translates reserved-quantity deltas into ledger move operations.
// All moves it creates route stock from route.Source to route.Dest.
type Engine struct {
	ledger ledger.Adapter
	route  ledger.Route
}

// NewEngine creates an Engine reserving stock over the given route.
func NewEngine(adapter ledger.Adapter, route ledger.Route) *Engine {
	return &Engine{ledger: adapter, route: route}
}

// CheckAvailable verifies that qty units of product can currently be
// reserved, without reserving anything. Returns InsufficientStockError on
// shortfall.
func (e *Engine) CheckAvailable(ctx context.Context, product string, qty decimal.Decimal) error {
	available, err := e.ledger.AvailableQuantity(ctx, product, e.route.Source)
	if err != nil {
		return errors.Wrap(err, "available quantity")
	}
	if available.LessThan(qty) {
		return &InsufficientStockError{Product: product, Required: qty, Available: available}
	}
	return nil
}

// ReserveFull reserves the line's outstanding quantity. A line that is
// already fully reserved is a no-op. On success the returned value is the
// new reserved quantity.
func (e *Engine) ReserveFull(ctx context.Context, l Line) (decimal.Decimal, error) {
	if l.Reserved.GreaterThanOrEqual(l.Quantity) {
		return l.Reserved, nil
	}
	return e.reserve(ctx, l, l.Quantity.Sub(l.Reserved))
}

// Adjust reconciles the line's reservation after a quantity or product
// change: it reserves the shortfall, releases the excess, or does nothing.
func (e *Engine) Adjust(ctx context.Context, l Line) (decimal.Decimal, error) {
	switch l.Quantity.Cmp(l.Reserved) {
	case 1:
		return e.reserve(ctx, l, l.Quantity.Sub(l.Reserved))
	case -1:
		return e.release(ctx, l, l.Reserved.Sub(l.Quantity))
	default:
		return l.Reserved, nil
	}
}

// UnreserveAll cancels every non-terminal move of the line and zeroes its
// reservation. Idempotent.
func (e *Engine) UnreserveAll(ctx context.Context, l Line) (decimal.Decimal, error) {
	moves, err := e.ledger.MovesForLine(ctx, l.ID)
	if err != nil {
		return l.Reserved, errors.Wrap(err, "list moves")
	}

	for _, m := range moves {
		if m.State.Terminal() {
			continue
		}
		if err := e.ledger.Cancel(ctx, m.ID); err != nil {
			return l.Reserved, errors.Wrapf(err, "cancel move %s", m.ID)
		}
	}

	return decimal.Zero, nil
}

// ErrNoAssignedMoves is returned by Deliver when a line holds no assigned
// moves to hand over.
var ErrNoAssignedMoves = errors.New("no assigned moves for line")

// Deliver hands all of the line's assigned moves over to a fulfillment
// order reference. The line's reserved counter is not touched.
func (e *Engine) Deliver(ctx context.Context, lineID uuid.UUID, fulfillmentRef string) error {
	moves, err := e.ledger.MovesForLine(ctx, lineID)
	if err != nil {
		return errors.Wrap(err, "list moves")
	}

	var ids []uuid.UUID
	for _, m := range moves {
		if m.State == ledger.StateAssigned {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return ErrNoAssignedMoves
	}

	if err := e.ledger.Reassign(ctx, ids, fulfillmentRef); err != nil {
		return errors.Wrap(err, "reassign moves")
	}
	return nil
}

// reserve creates, confirms, and assigns a single move for delta units.
// A move that cannot be assigned is discarded so no partial state survives
// a failed attempt.
func (e *Engine) reserve(ctx context.Context, l Line, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := e.CheckAvailable(ctx, l.Product, delta); err != nil {
		return l.Reserved, err
	}

	move, err := e.ledger.CreateMove(ctx, ledger.CreateMove{
		Product:  l.Product,
		Quantity: delta,
		Route:    e.route,
		LineID:   uuid.NullUUID{UUID: l.ID, Valid: true},
		Origin:   l.OrderRef,
	})
	if err != nil {
		return l.Reserved, errors.Wrap(err, "create move")
	}

	if err := e.ledger.Confirm(ctx, move.ID); err != nil {
		if derr := e.ledger.Discard(ctx, move.ID); derr != nil {
			return l.Reserved, errors.Wrapf(derr, "discard after failed confirm: %s", err)
		}
		return l.Reserved, errors.Wrap(err, "confirm move")
	}

	state, err := e.ledger.Assign(ctx, move.ID)
	if err != nil {
		return l.Reserved, errors.Wrap(err, "assign move")
	}
	if state != ledger.StateAssigned {
		if err := e.ledger.Cancel(ctx, move.ID); err != nil {
			return l.Reserved, errors.Wrap(err, "cancel unassigned move")
		}
		if err := e.ledger.Discard(ctx, move.ID); err != nil {
			return l.Reserved, errors.Wrap(err, "discard unassigned move")
		}
		return l.Reserved, &FailedError{Product: l.Product, Quantity: delta}
	}

	return l.Reserved.Add(delta), nil
}

// release drops excess units from the line's reservation, most recently
// created moves first: whole moves whose quantity fits in the remaining
// excess are cancelled, and the first larger move is reduced in place.
// Older moves stay intact so the earliest promises keep their stock.
func (e *Engine) release(ctx context.Context, l Line, excess decimal.Decimal) (decimal.Decimal, error) {
	moves, err := e.ledger.MovesForLine(ctx, l.ID)
	if err != nil {
		return l.Reserved, errors.Wrap(err, "list moves")
	}

	remaining := excess
	for _, m := range moves {
		if remaining.Sign() <= 0 {
			break
		}
		if m.State != ledger.StateAssigned && m.State != ledger.StateConfirmed {
			continue
		}

		if m.Quantity.LessThanOrEqual(remaining) {
			if err := e.ledger.Cancel(ctx, m.ID); err != nil {
				return l.Reserved, errors.Wrapf(err, "cancel move %s", m.ID)
			}
			remaining = remaining.Sub(m.Quantity)
			continue
		}

		if err := e.ledger.Reduce(ctx, m.ID, m.Quantity.Sub(remaining)); err != nil {
			return l.Reserved, errors.Wrapf(err, "reduce move %s", m.ID)
		}
		remaining = decimal.Zero
	}

	return l.Reserved.Sub(excess), nil
}
