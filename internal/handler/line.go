package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
	"github.com/xenking/blanket-orders/internal/domain/fulfillment"
)

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	in, err := decodeLineInput(jx.DecodeBytes(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request").Error())
		return
	}

	line, err := h.orders.AddLine(r.Context(), orderID, in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeLine(e, line)
	})
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid line id")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var req blanket.UpdateLineRequest
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product":
			var v string
			if v, err = d.Str(); err == nil {
				req.Product = &v
			}
		case "description":
			var v string
			if v, err = d.Str(); err == nil {
				req.Description = &v
			}
		case "quantity":
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				req.Quantity = &v
			}
		case "price_unit":
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				req.PriceUnit = &v
			}
		case "taxes":
			taxes := []string{}
			err = d.Arr(func(d *jx.Decoder) error {
				t, err := d.Str()
				if err != nil {
					return err
				}
				taxes = append(taxes, t)
				return nil
			})
			if err == nil {
				req.Taxes = &taxes
			}
		case "order_before":
			var s string
			if s, err = d.Str(); err == nil {
				var v time.Time
				if v, err = time.Parse(dateLayout, s); err == nil {
					req.OrderBefore = &v
				}
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request").Error())
		return
	}

	line, err := h.orders.UpdateLine(r.Context(), lineID, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeLine(e, line)
	})
}

func (h *Handler) convertLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid line id")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var (
		qty        decimal.Decimal
		targetDate time.Time
	)
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "quantity":
			qty, err = decodeDecimal(d)
		case "target_date":
			var s string
			if s, err = d.Str(); err == nil {
				targetDate, err = time.Parse(dateLayout, s)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request").Error())
		return
	}
	if targetDate.IsZero() {
		writeError(w, http.StatusBadRequest, "target_date is required")
		return
	}

	fo, err := h.converter.ConvertPartial(r.Context(), lineID, qty, targetDate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeFulfillmentOrder(e, fo)
	})
}

func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid line id")
		return
	}

	ref, err := h.orders.CreateDelivery(r.Context(), lineID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("reference")
		e.Str(ref)
		e.ObjEnd()
	})
}

func encodeFulfillmentOrder(e *jx.Encoder, o *fulfillment.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID.String())
	e.FieldStart("reference")
	e.Str(o.Reference)
	e.FieldStart("partner")
	e.Str(o.Partner)
	e.FieldStart("target_date")
	e.Str(o.TargetDate.Format(dateLayout))
	e.FieldStart("origin")
	e.Str(o.Origin)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("product")
		e.Str(l.Product)
		e.FieldStart("quantity")
		encodeDecimal(e, l.Quantity)
		e.FieldStart("unit_price")
		encodeDecimal(e, l.UnitPrice)
		e.FieldStart("description")
		e.Str(l.Description)
		e.FieldStart("taxes")
		e.ArrStart()
		for _, t := range l.Taxes {
			e.Str(t)
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
