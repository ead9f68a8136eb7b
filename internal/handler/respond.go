package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
	"github.com/xenking/blanket-orders/internal/domain/fulfillment"
	"github.com/xenking/blanket-orders/internal/domain/ledger"
	"github.com/xenking/blanket-orders/internal/domain/reservation"
	"github.com/xenking/blanket-orders/internal/tax"
)

// writeJSON renders an encoded body with the given status.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError renders the {code, message} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// writeDomainError maps domain errors to HTTP statuses: validation errors
// are 400, missing records 404, lifecycle and stock conflicts 409, ledger
// failures and everything unexpected 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pastErr     *blanket.PastDateError
		qtyErr      *blanket.InvalidQuantityError
		delivErr    *blanket.BelowDeliveredError
		convErr     *fulfillment.InvalidQuantityError
		taxErr      *tax.UnknownTaxError
		stockErr    *reservation.InsufficientStockError
		reservedErr *reservation.FailedError
	)
	switch {
	case errors.As(err, &pastErr),
		errors.As(err, &qtyErr),
		errors.As(err, &delivErr),
		errors.As(err, &convErr),
		errors.As(err, &taxErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, blanket.ErrNotFound),
		errors.Is(err, blanket.ErrLineNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr),
		errors.As(err, &reservedErr),
		errors.Is(err, blanket.ErrNotDraft),
		errors.Is(err, blanket.ErrNotConfirmed),
		errors.Is(err, blanket.ErrClosed),
		errors.Is(err, blanket.ErrNothingReserved),
		errors.Is(err, reservation.ErrNoAssignedMoves):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		zctx.From(r.Context()).Error("ledger unavailable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "inventory ledger unavailable")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeDecimal reads a JSON number (or numeric string) into a decimal.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	raw, err := d.Raw()
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(strings.Trim(raw.String(), `"`))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

// encodeDecimal writes a decimal as a plain JSON number.
func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.RawStr(v.String())
}
