package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
)

const dateLayout = "2006-01-02"

// decodeLineInput decodes one line of a create/add-line request.
func decodeLineInput(d *jx.Decoder) (blanket.LineInput, error) {
	var in blanket.LineInput
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product":
			in.Product, err = d.Str()
		case "description":
			in.Description, err = d.Str()
		case "quantity":
			in.Quantity, err = decodeDecimal(d)
		case "price_unit":
			in.PriceUnit, err = decodeDecimal(d)
		case "taxes":
			err = d.Arr(func(d *jx.Decoder) error {
				t, err := d.Str()
				if err != nil {
					return err
				}
				in.Taxes = append(in.Taxes, t)
				return nil
			})
		case "order_before":
			var s string
			if s, err = d.Str(); err == nil {
				in.OrderBefore, err = time.Parse(dateLayout, s)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	return in, err
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var req blanket.CreateOrderRequest
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "partner":
			req.Partner, err = d.Str()
		case "currency":
			req.Currency, err = d.Str()
		case "reference":
			req.Reference, err = d.Str()
		case "lines":
			err = d.Arr(func(d *jx.Decoder) error {
				in, err := decodeLineInput(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, in)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request").Error())
		return
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.orders.Confirm)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.orders.Cancel)
}

func (h *Handler) closeOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.orders.Done)
}

// orderAction runs a lifecycle transition and returns the updated order.
func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := action(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func encodeOrder(e *jx.Encoder, o *blanket.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID.String())
	e.FieldStart("reference")
	e.Str(o.Reference)
	e.FieldStart("partner")
	e.Str(o.Partner)
	e.FieldStart("currency")
	e.Str(o.Currency)
	e.FieldStart("order_date")
	e.Str(o.OrderDate.UTC().Format(time.RFC3339))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("amount_untaxed")
	encodeDecimal(e, o.AmountUntaxed)
	e.FieldStart("amount_tax")
	encodeDecimal(e, o.AmountTax)
	e.FieldStart("amount_total")
	encodeDecimal(e, o.AmountTotal)
	if o.Lines != nil {
		e.FieldStart("lines")
		e.ArrStart()
		for i := range o.Lines {
			encodeLine(e, &o.Lines[i])
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l *blanket.Line) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(l.ID.String())
	e.FieldStart("order_id")
	e.Str(l.OrderID.String())
	e.FieldStart("product")
	e.Str(l.Product)
	e.FieldStart("description")
	e.Str(l.Description)
	e.FieldStart("quantity")
	encodeDecimal(e, l.Quantity)
	e.FieldStart("price_unit")
	encodeDecimal(e, l.PriceUnit)
	e.FieldStart("taxes")
	e.ArrStart()
	for _, t := range l.Taxes {
		e.Str(t)
	}
	e.ArrEnd()
	e.FieldStart("currency")
	e.Str(l.Currency)
	e.FieldStart("order_before")
	e.Str(l.OrderBefore.Format(dateLayout))
	e.FieldStart("subtotal")
	encodeDecimal(e, l.Subtotal)
	e.FieldStart("tax")
	encodeDecimal(e, l.Tax)
	e.FieldStart("total")
	encodeDecimal(e, l.Total)
	e.FieldStart("delivered_qty")
	encodeDecimal(e, l.DeliveredQty)
	e.FieldStart("reserved_qty")
	encodeDecimal(e, l.ReservedQty)
	e.ObjEnd()
}
