// Package blanket holds the blanket order aggregate: the order header, its
// lines, and the service that owns the order lifecycle and delegates
// reservation work to the reservation engine.
package blanket

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a blanket order.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Sentinel errors for order lifecycle violations.
var (
	ErrNotFound     = errors.New("blanket order not found")
	ErrLineNotFound = errors.New("blanket order line not found")
	ErrNotDraft     = errors.New("only draft orders can be confirmed")
	ErrNotConfirmed = errors.New("only confirmed orders can be closed")
	ErrClosed       = errors.New("order is done or cancelled")
)

// PastDateError indicates an order-before date in the past.
type PastDateError struct {
	Date time.Time
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("order before date %s must not be in the past", e.Date.Format("2006-01-02"))
}

// InvalidQuantityError indicates a negative line quantity.
type InvalidQuantityError struct {
	Quantity decimal.Decimal
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must not be negative, got %s", e.Quantity)
}

// BelowDeliveredError indicates a quantity update below what the line has
// already delivered.
type BelowDeliveredError struct {
	Quantity  decimal.Decimal
	Delivered decimal.Decimal
}

func (e *BelowDeliveredError) Error() string {
	return fmt.Sprintf("quantity %s is below the delivered quantity %s", e.Quantity, e.Delivered)
}

// Order is a standing multi-line agreement to supply products over time.
// The amounts are always the sums of the line-level values; they are never
// written directly.
type Order struct {
	ID            uuid.UUID
	Reference     string
	Partner       string
	Currency      string
	OrderDate     time.Time
	Status        Status
	AmountUntaxed decimal.Decimal
	AmountTax     decimal.Decimal
	AmountTotal   decimal.Decimal
	Lines         []Line
	CreatedAt     time.Time
}

// Line is one product commitment on a blanket order. ReservedQty is
// mutated only through the reservation engine; DeliveredQty only through
// partial conversion.
type Line struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	Product      string
	Description  string
	Quantity     decimal.Decimal
	PriceUnit    decimal.Decimal
	Taxes        []string
	Currency     string
	OrderBefore  time.Time
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	DeliveredQty decimal.Decimal
	ReservedQty  decimal.Decimal
	CreatedAt    time.Time
}

// Remaining returns the quantity not yet converted to fulfillment orders.
func (l *Line) Remaining() decimal.Decimal {
	return l.Quantity.Sub(l.DeliveredQty)
}

// Repository defines persistence operations for blanket orders and lines.
// Lines are owned exclusively by their order and cascade on delete.
type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateOrderAmounts(ctx context.Context, id uuid.UUID, untaxed, tax, total decimal.Decimal) error

	CreateLine(ctx context.Context, l *Line) error
	GetLine(ctx context.Context, id uuid.UUID) (*Line, error)
	UpdateLine(ctx context.Context, l *Line) error
	UpdateLineReserved(ctx context.Context, id uuid.UUID, reserved decimal.Decimal) error
	UpdateLineDelivered(ctx context.Context, id uuid.UUID, delivered decimal.Decimal) error
}
