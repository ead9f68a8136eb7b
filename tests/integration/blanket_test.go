//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func createOrder(t *testing.T, req orderRequest) orderResponse {
	t.Helper()

	resp := doPost(t, "/api/blanket-orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func getOrder(t *testing.T, id string) orderResponse {
	t.Helper()

	resp := doGet(t, "/api/blanket-orders/"+id)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestCreateOrder_Totals(t *testing.T) {
	order := createOrder(t, orderRequest{
		Partner: "Acme Construction",
		Lines: []lineRequest{{
			Product:     "PANEL-OAK-120",
			Quantity:    "10",
			PriceUnit:   "40",
			Taxes:       []string{"standard"},
			OrderBefore: futureDate(30),
		}},
	})

	if order.Status != "draft" {
		t.Errorf("status: got %q, want draft", order.Status)
	}
	if order.Reference == "" {
		t.Error("reference: expected generated reference")
	}
	if order.AmountUntaxed != 400 {
		t.Errorf("amount_untaxed: got %v, want 400", order.AmountUntaxed)
	}
	if order.AmountTax != 60 {
		t.Errorf("amount_tax: got %v, want 60", order.AmountTax)
	}
	if order.AmountTotal != 460 {
		t.Errorf("amount_total: got %v, want 460", order.AmountTotal)
	}
}

func TestCreateOrder_PastOrderBefore(t *testing.T) {
	resp := doPost(t, "/api/blanket-orders", orderRequest{
		Partner: "Acme Construction",
		Lines: []lineRequest{{
			Product:     "PANEL-OAK-120",
			Quantity:    "5",
			PriceUnit:   "40",
			OrderBefore: "2020-01-01",
		}},
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	e := decodeJSON[errorResponse](t, resp)
	if e.Message == "" {
		t.Error("expected error message")
	}
}

func TestConfirm_ReservesStock(t *testing.T) {
	order := createOrder(t, orderRequest{
		Partner: "Northwind Traders",
		Lines: []lineRequest{{
			Product:     "BEAM-PINE-300",
			Quantity:    "20",
			PriceUnit:   "12.50",
			Taxes:       []string{"standard"},
			OrderBefore: futureDate(60),
		}},
	})

	resp := doPost(t, "/api/blanket-orders/"+order.ID+"/confirm", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}

	confirmed := getOrder(t, order.ID)
	if confirmed.Status != "confirmed" {
		t.Errorf("status: got %q, want confirmed", confirmed.Status)
	}
	if len(confirmed.Lines) != 1 {
		t.Fatalf("lines: got %d, want 1", len(confirmed.Lines))
	}
	if confirmed.Lines[0].ReservedQty != 20 {
		t.Errorf("reserved_qty: got %v, want 20", confirmed.Lines[0].ReservedQty)
	}

	// The reservation must surface in the report, classified as blanket.
	rresp := doGet(t, "/api/reservations")
	defer rresp.Body.Close()
	report := decodeJSON[reservationsResponse](t, rresp)

	found := false
	for _, row := range report.Reservations {
		if row.Reference == confirmed.Reference {
			found = true
			if row.Type != "blanket" {
				t.Errorf("type: got %q, want blanket", row.Type)
			}
			if row.Product != "BEAM-PINE-300" {
				t.Errorf("product: got %q", row.Product)
			}
		}
	}
	if !found {
		t.Errorf("reservation for %s not in report", confirmed.Reference)
	}
}

func TestConfirm_InsufficientStock(t *testing.T) {
	order := createOrder(t, orderRequest{
		Partner: "Oversize Ltd",
		Lines: []lineRequest{{
			Product:     "VARNISH-CLEAR-5L",
			Quantity:    "100000",
			PriceUnit:   "18",
			OrderBefore: futureDate(14),
		}},
	})

	resp := doPost(t, "/api/blanket-orders/"+order.ID+"/confirm", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestUpdateLine_AdjustsReservation(t *testing.T) {
	order := createOrder(t, orderRequest{
		Partner: "Contoso",
		Lines: []lineRequest{{
			Product:     "BRACKET-STD",
			Quantity:    "50",
			PriceUnit:   "2",
			OrderBefore: futureDate(45),
		}},
	})

	resp := doPost(t, "/api/blanket-orders/"+order.ID+"/confirm", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}

	lineID := getOrder(t, order.ID).Lines[0].ID

	presp := doJSON(t, http.MethodPatch, "/api/lines/"+lineID, map[string]any{
		"quantity": "30",
	})
	defer presp.Body.Close()
	if presp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", presp.StatusCode)
	}

	line := decodeJSON[lineResponse](t, presp)
	if line.Quantity != 30 {
		t.Errorf("quantity: got %v, want 30", line.Quantity)
	}
	if line.ReservedQty != 30 {
		t.Errorf("reserved_qty: got %v, want 30", line.ReservedQty)
	}
}

func TestConvertPartial(t *testing.T) {
	order := createOrder(t, orderRequest{
		Partner: "Fabrikam",
		Lines: []lineRequest{{
			Product:     "PANEL-OAK-240",
			Quantity:    "8",
			PriceUnit:   "95",
			Taxes:       []string{"reduced"},
			OrderBefore: futureDate(90),
		}},
	})

	resp := doPost(t, "/api/blanket-orders/"+order.ID+"/confirm", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}

	lineID := getOrder(t, order.ID).Lines[0].ID

	cresp := doPost(t, "/api/lines/"+lineID+"/convert", map[string]any{
		"quantity":    "3",
		"target_date": futureDate(7),
	})
	defer cresp.Body.Close()
	if cresp.StatusCode != http.StatusCreated {
		t.Fatalf("convert: expected 201, got %d", cresp.StatusCode)
	}

	fo := decodeJSON[fulfillmentResponse](t, cresp)
	if fo.Reference == "" {
		t.Error("expected fulfillment reference")
	}
	if fo.Origin != order.Reference {
		t.Errorf("origin: got %q, want %q", fo.Origin, order.Reference)
	}

	line := getOrder(t, order.ID).Lines[0]
	if line.DeliveredQty != 3 {
		t.Errorf("delivered_qty: got %v, want 3", line.DeliveredQty)
	}

	// Converting more than the remaining 5 units must fail.
	over := doPost(t, "/api/lines/"+lineID+"/convert", map[string]any{
		"quantity":    "6",
		"target_date": futureDate(7),
	})
	defer over.Body.Close()
	if over.StatusCode != http.StatusBadRequest {
		t.Fatalf("over-convert: expected 400, got %d", over.StatusCode)
	}
}

func TestCancel_ReleasesReservation(t *testing.T) {
	order := createOrder(t, orderRequest{
		Partner: "Wingtip Toys",
		Lines: []lineRequest{{
			Product:     "BOLT-M8-50",
			Quantity:    "500",
			PriceUnit:   "0.10",
			OrderBefore: futureDate(20),
		}},
	})

	resp := doPost(t, "/api/blanket-orders/"+order.ID+"/confirm", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}

	cresp := doPost(t, "/api/blanket-orders/"+order.ID+"/cancel", nil)
	defer cresp.Body.Close()
	if cresp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", cresp.StatusCode)
	}

	cancelled := getOrder(t, order.ID)
	if cancelled.Status != "cancelled" {
		t.Errorf("status: got %q, want cancelled", cancelled.Status)
	}
	if got := cancelled.Lines[0].ReservedQty; got != 0 {
		t.Errorf("reserved_qty: got %v, want 0", got)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	resp := doGet(t, "/api/blanket-orders/00000000-0000-0000-0000-000000000000")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListOrders(t *testing.T) {
	created := createOrder(t, orderRequest{
		Partner: "List Partner",
		Lines: []lineRequest{{
			Product:     "PANEL-OAK-120",
			Quantity:    "1",
			PriceUnit:   "40",
			OrderBefore: futureDate(10),
		}},
	})

	resp := doGet(t, "/api/blanket-orders")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	orders := decodeJSON[[]orderResponse](t, resp)
	found := false
	for _, o := range orders {
		if o.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("created order %s not in list", created.ID)
	}
}
