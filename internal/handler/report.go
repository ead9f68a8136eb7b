package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
)

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reports.Rows(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("reservations")
		e.ArrStart()
		for _, row := range rows {
			e.ObjStart()
			e.FieldStart("move_id")
			e.Str(row.MoveID.String())
			e.FieldStart("product")
			e.Str(row.Product)
			e.FieldStart("location")
			e.Str(row.Location)
			e.FieldStart("quantity")
			encodeDecimal(e, row.Quantity)
			e.FieldStart("type")
			e.Str(string(row.Type))
			e.FieldStart("reference")
			e.Str(row.Reference)
			e.FieldStart("date")
			e.Str(row.Date.Format(time.RFC3339))
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
