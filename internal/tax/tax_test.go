package tax

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateTable_NoTaxes(t *testing.T) {
	rt := NewRateTable(DefaultRates())

	totals, err := rt.Compute(context.Background(), Input{
		UnitPrice: decimal.RequireFromString("9.99"),
		Quantity:  decimal.NewFromInt(3),
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("29.97").Equal(totals.Excluded))
	assert.True(t, totals.Included.Equal(totals.Excluded))
	assert.True(t, totals.Tax().IsZero())
}

func TestRateTable_StandardRate(t *testing.T) {
	rt := NewRateTable(DefaultRates())

	totals, err := rt.Compute(context.Background(), Input{
		UnitPrice: decimal.RequireFromString("10.00"),
		Quantity:  decimal.NewFromInt(10),
		Taxes:     []string{"standard"},
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(totals.Excluded))
	assert.True(t, decimal.RequireFromString("115.00").Equal(totals.Included))
	assert.True(t, decimal.RequireFromString("15.00").Equal(totals.Tax()))
}

func TestRateTable_StackedRates(t *testing.T) {
	rt := NewRateTable(map[string]decimal.Decimal{
		"vat": decimal.RequireFromString("0.2"),
		"eco": decimal.RequireFromString("0.01"),
	})

	totals, err := rt.Compute(context.Background(), Input{
		UnitPrice: decimal.RequireFromString("50.00"),
		Quantity:  decimal.NewFromInt(2),
		Taxes:     []string{"vat", "eco"},
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("121.00").Equal(totals.Included))
}

func TestRateTable_UnknownCode(t *testing.T) {
	rt := NewRateTable(DefaultRates())

	_, err := rt.Compute(context.Background(), Input{
		UnitPrice: decimal.NewFromInt(1),
		Quantity:  decimal.NewFromInt(1),
		Taxes:     []string{"luxury"},
	})

	var unknownErr *UnknownTaxError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "luxury", unknownErr.Code)
}
