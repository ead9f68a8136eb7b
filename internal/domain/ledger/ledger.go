// Package ledger defines the inventory ledger contract: available-quantity
// lookups and the lifecycle primitives for stock moves. Everything above it
// (reservation engine, blanket orders, reporting) talks to inventory only
// through this interface.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the ledger cannot service a request
// because the product or location configuration is missing or invalid.
var ErrUnavailable = errors.New("ledger unavailable")

// ErrMoveNotFound is returned when a referenced move does not exist.
var ErrMoveNotFound = errors.New("move not found")

// MoveState is the lifecycle state of a stock move.
type MoveState string

const (
	StateDraft     MoveState = "draft"
	StateWaiting   MoveState = "waiting"
	StateConfirmed MoveState = "confirmed"
	StateAssigned  MoveState = "assigned"
	StateCancelled MoveState = "cancelled"
	StateDone      MoveState = "done"
)

// Terminal reports whether the state admits no further transitions.
func (s MoveState) Terminal() bool {
	return s == StateCancelled || s == StateDone
}

// Route identifies the source and destination locations of a move.
// Locations are always passed explicitly; the ledger never resolves them
// from ambient configuration.
type Route struct {
	Source string
	Dest   string
}

// Move is an inventory movement record. Moves created for a blanket order
// line carry the line ID in LineID; moves handed over to a fulfillment
// order carry its reference in FulfillmentRef.
type Move struct {
	ID             uuid.UUID
	Product        string
	Quantity       decimal.Decimal
	Source         string
	Dest           string
	State          MoveState
	LineID         uuid.NullUUID
	FulfillmentRef string
	Origin         string
	CreatedAt      time.Time
}

// CreateMove holds the inputs for creating a draft move.
type CreateMove struct {
	Product  string
	Quantity decimal.Decimal
	Route    Route
	LineID   uuid.NullUUID
	Origin   string
}

// Adapter is the inventory ledger interface.
//
// Assign never fails for insufficient stock: it returns the resulting state
// and the caller inspects it. Cancel is an idempotent no-op on moves that
// are already cancelled or done. Discard permanently removes a move that
// was never confirmed or has been cancelled.
type Adapter interface {
	// AvailableQuantity returns the unreserved on-hand quantity of the
	// product at the given location.
	AvailableQuantity(ctx context.Context, product, location string) (decimal.Decimal, error)

	// CreateMove creates a move in draft state.
	CreateMove(ctx context.Context, req CreateMove) (*Move, error)

	// Confirm transitions a draft move to confirmed. Returns ErrUnavailable
	// when the product or location configuration is invalid.
	Confirm(ctx context.Context, id uuid.UUID) error

	// Assign attempts to allocate physical stock to a confirmed move and
	// returns the resulting state: StateAssigned on success, the previous
	// state otherwise.
	Assign(ctx context.Context, id uuid.UUID) (MoveState, error)

	// Cancel transitions a move to cancelled from any non-terminal state.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Discard removes a never-confirmed or cancelled move permanently.
	Discard(ctx context.Context, id uuid.UUID) error

	// Reduce lowers the requested quantity of a move in place.
	Reduce(ctx context.Context, id uuid.UUID, quantity decimal.Decimal) error

	// MovesForLine returns the moves requested by a blanket order line,
	// most recently created first.
	MovesForLine(ctx context.Context, lineID uuid.UUID) ([]Move, error)

	// Reassign attaches the given moves to a fulfillment order reference.
	Reassign(ctx context.Context, ids []uuid.UUID, fulfillmentRef string) error
}
