package fulfillment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
)

// LineStore is the slice of blanket order persistence the converter needs.
type LineStore interface {
	GetLine(ctx context.Context, id uuid.UUID) (*blanket.Line, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*blanket.Order, error)
	UpdateLineDelivered(ctx context.Context, id uuid.UUID, delivered decimal.Decimal) error
}

// Converter emits fulfillment orders for partial amounts of a line.
// Delivered and reserved quantities are tracked independently: converting
// never touches reservation state.
type Converter struct {
	lines  LineStore
	orders Creator
}

// NewConverter constructs a Converter.
func NewConverter(lines LineStore, orders Creator) *Converter {
	return &Converter{lines: lines, orders: orders}
}

// ConvertPartial converts qty units of the line's remaining quantity into
// a fulfillment order for delivery on targetDate, then bumps the line's
// delivered quantity. Fails with InvalidQuantityError when qty is not
// positive or exceeds the remaining quantity.
func (c *Converter) ConvertPartial(ctx context.Context, lineID uuid.UUID, qty decimal.Decimal, targetDate time.Time) (*Order, error) {
	line, err := c.lines.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	o, err := c.lines.GetOrder(ctx, line.OrderID)
	if err != nil {
		return nil, err
	}

	remaining := line.Remaining()
	if !qty.IsPositive() || qty.GreaterThan(remaining) {
		return nil, &InvalidQuantityError{Requested: qty, Remaining: remaining}
	}

	fo, err := c.orders.CreateOrder(ctx, o.Partner, []OrderLine{{
		Product:     line.Product,
		Quantity:    qty,
		UnitPrice:   line.PriceUnit,
		Taxes:       line.Taxes,
		Description: line.Description,
	}}, targetDate, o.Reference)
	if err != nil {
		return nil, errors.Wrap(err, "create fulfillment order")
	}

	delivered := line.DeliveredQty.Add(qty)
	if err := c.lines.UpdateLineDelivered(ctx, line.ID, delivered); err != nil {
		return nil, errors.Wrap(err, "update delivered qty")
	}
	return fo, nil
}
