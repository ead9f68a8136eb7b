// Package sequence defines the reference generation contract. Blanket
// orders and fulfillment orders each draw from their own series.
package sequence

import "context"

// Series keys used by the service.
const (
	SeriesBlanket     = "blanket"
	SeriesFulfillment = "fulfillment"
)

// Generator produces the next unique reference for a series.
type Generator interface {
	Next(ctx context.Context, series string) (string, error)
}
