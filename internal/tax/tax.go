// Package tax defines the tax computation contract consumed by blanket
// order lines, plus a rate-table implementation good enough for services
// that do not delegate to a dedicated tax engine.
package tax

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Totals is the result of a tax computation over one order line.
type Totals struct {
	// Excluded is the line total before taxes.
	Excluded decimal.Decimal
	// Included is the line total with all applicable taxes added.
	Included decimal.Decimal
}

// Tax returns the tax portion of the totals.
func (t Totals) Tax() decimal.Decimal {
	return t.Included.Sub(t.Excluded)
}

// Input describes one line to compute taxes for.
type Input struct {
	UnitPrice decimal.Decimal
	Currency  string
	Quantity  decimal.Decimal
	Product   string
	Partner   string
	Taxes     []string
}

// Calculator computes excluded/included totals for a line.
type Calculator interface {
	Compute(ctx context.Context, in Input) (Totals, error)
}

// UnknownTaxError indicates a tax code with no configured rate.
type UnknownTaxError struct {
	Code string
}

func (e *UnknownTaxError) Error() string {
	return fmt.Sprintf("unknown tax code %q", e.Code)
}

// RateTable implements Calculator from a static map of tax code to
// fractional rate (0.15 for 15%). All rates apply on the untaxed base.
type RateTable struct {
	rates map[string]decimal.Decimal
}

// NewRateTable creates a RateTable from fractional rates.
func NewRateTable(rates map[string]decimal.Decimal) *RateTable {
	return &RateTable{rates: rates}
}

// DefaultRates returns the rate table used when none is configured.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"standard": decimal.NewFromFloat(0.15),
		"reduced":  decimal.NewFromFloat(0.05),
		"zero":     decimal.Zero,
	}
}

// Compute multiplies unit price by quantity and applies the summed rate of
// every tax code on the line. Results are rounded to 2 decimal places.
func (rt *RateTable) Compute(_ context.Context, in Input) (Totals, error) {
	base := in.UnitPrice.Mul(in.Quantity)

	rate := decimal.Zero
	for _, code := range in.Taxes {
		r, ok := rt.rates[code]
		if !ok {
			return Totals{}, &UnknownTaxError{Code: code}
		}
		rate = rate.Add(r)
	}

	excluded := base.Round(2)
	included := base.Mul(decimal.NewFromInt(1).Add(rate)).Round(2)

	return Totals{Excluded: excluded, Included: included}, nil
}
