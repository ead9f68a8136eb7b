// Package fulfillment turns part of a blanket order line's promised
// quantity into a concrete fulfillment order and tracks the cumulative
// delivered quantity on the line.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is one line of a fulfillment order. The JSON tags define the
// storage representation in the JSONB lines column.
type OrderLine struct {
	Product     string          `json:"product"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Taxes       []string        `json:"taxes,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Order is a fulfillment order emitted from a partial conversion. Origin
// carries the blanket order reference it was converted from.
type Order struct {
	ID         uuid.UUID
	Reference  string
	Partner    string
	TargetDate time.Time
	Origin     string
	Lines      []OrderLine
	CreatedAt  time.Time
}

// Creator is the external fulfillment-order service contract.
type Creator interface {
	CreateOrder(ctx context.Context, partner string, lines []OrderLine, targetDate time.Time, origin string) (*Order, error)
}

// InvalidQuantityError indicates a conversion quantity that is not positive
// or exceeds the line's remaining quantity.
type InvalidQuantityError struct {
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("cannot convert %s units: remaining quantity is %s",
		e.Requested, e.Remaining)
}
