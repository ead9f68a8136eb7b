package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
	"github.com/xenking/blanket-orders/internal/domain/fulfillment"
	"github.com/xenking/blanket-orders/internal/domain/ledger"
	"github.com/xenking/blanket-orders/internal/domain/reservation"
	"github.com/xenking/blanket-orders/internal/tax"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "past date",
			err:    &blanket.PastDateError{},
			status: http.StatusBadRequest,
		},
		{
			name:   "negative quantity",
			err:    &blanket.InvalidQuantityError{Quantity: decimal.NewFromInt(-1)},
			status: http.StatusBadRequest,
		},
		{
			name:   "quantity below delivered",
			err:    &blanket.BelowDeliveredError{Quantity: decimal.NewFromInt(5), Delivered: decimal.NewFromInt(8)},
			status: http.StatusBadRequest,
		},
		{
			name:   "conversion quantity",
			err:    &fulfillment.InvalidQuantityError{Requested: decimal.NewFromInt(9), Remaining: decimal.NewFromInt(2)},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown tax",
			err:    &tax.UnknownTaxError{Code: "luxury"},
			status: http.StatusBadRequest,
		},
		{
			name:   "order not found",
			err:    blanket.ErrNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "wrapped line not found",
			err:    errors.Wrap(blanket.ErrLineNotFound, "get line"),
			status: http.StatusNotFound,
		},
		{
			name:   "insufficient stock",
			err:    &reservation.InsufficientStockError{Product: "PANEL", Required: decimal.NewFromInt(5), Available: decimal.NewFromInt(2)},
			status: http.StatusConflict,
		},
		{
			name:   "not draft",
			err:    blanket.ErrNotDraft,
			status: http.StatusConflict,
		},
		{
			name:   "not confirmed",
			err:    blanket.ErrNotConfirmed,
			status: http.StatusConflict,
		},
		{
			name:   "ledger unavailable",
			err:    errors.Wrap(ledger.ErrUnavailable, "confirm move"),
			status: http.StatusInternalServerError,
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			writeDomainError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestDecodeDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `12.5`, want: "12.5"},
		{in: `"12.5"`, want: "12.5"},
		{in: `0`, want: "0"},
	}
	for _, tt := range tests {
		v, err := decodeDecimal(jx.DecodeStr(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, v.String(), tt.in)
	}

	_, err := decodeDecimal(jx.DecodeStr(`"abc"`))
	assert.Error(t, err)
}
