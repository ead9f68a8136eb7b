// Package report exposes the reservation reporting view: a read-only
// projection over currently assigned ledger moves, classified by the kind
// of commitment that requested them.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type classifies the commitment behind a reservation.
type Type string

const (
	// TypeBlanket marks moves requested by a blanket order line.
	TypeBlanket Type = "blanket"
	// TypeSales marks moves whose origin matches the sales order naming
	// pattern (SO prefix).
	TypeSales Type = "sales"
	// TypeOther marks everything else.
	TypeOther Type = "other"
)

// Row is one assigned move joined back to its originating commitment.
// Rows are reconstructed on every query; nothing is persisted.
type Row struct {
	MoveID    uuid.UUID
	Product   string
	Location  string
	Quantity  decimal.Decimal
	Type      Type
	Reference string
	Date      time.Time
}

// Repository produces the current reservation rows.
type Repository interface {
	Rows(ctx context.Context) ([]Row, error)
}
