// Package handler exposes the HTTP surface of the service: blanket order
// lifecycle, line edits, partial conversion, and the reservation report.
package handler

import (
	"net/http"

	"github.com/xenking/blanket-orders/internal/domain/blanket"
	"github.com/xenking/blanket-orders/internal/domain/fulfillment"
	"github.com/xenking/blanket-orders/internal/domain/report"
)

// Handler wires HTTP routes to the domain services.
type Handler struct {
	orders    *blanket.Service
	converter *fulfillment.Converter
	reports   report.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *blanket.Service, converter *fulfillment.Converter, reports report.Repository) *Handler {
	return &Handler{
		orders:    orders,
		converter: converter,
		reports:   reports,
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/blanket-orders", h.createOrder)
	mux.HandleFunc("GET /api/blanket-orders", h.listOrders)
	mux.HandleFunc("GET /api/blanket-orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/blanket-orders/{id}/confirm", h.confirmOrder)
	mux.HandleFunc("POST /api/blanket-orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /api/blanket-orders/{id}/done", h.closeOrder)
	mux.HandleFunc("POST /api/blanket-orders/{id}/lines", h.addLine)
	mux.HandleFunc("PATCH /api/lines/{id}", h.updateLine)
	mux.HandleFunc("POST /api/lines/{id}/convert", h.convertLine)
	mux.HandleFunc("POST /api/lines/{id}/delivery", h.createDelivery)
	mux.HandleFunc("GET /api/reservations", h.reservations)
}
