package blanket

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/blanket-orders/internal/domain/reservation"
	"github.com/xenking/blanket-orders/internal/sequence"
	"github.com/xenking/blanket-orders/internal/tax"
)

// ErrNothingReserved is returned when a delivery is requested for a line
// without any assigned moves.
var ErrNothingReserved = errors.New("no reserved stock to deliver")

// LineInput holds the caller-supplied values for a new order line.
type LineInput struct {
	Product     string
	Description string
	Quantity    decimal.Decimal
	PriceUnit   decimal.Decimal
	Taxes       []string
	OrderBefore time.Time
}

// CreateOrderRequest holds the input for creating a blanket order.
type CreateOrderRequest struct {
	Partner   string
	Currency  string
	Reference string // optional; sequence-generated when empty
	Lines     []LineInput
}

// UpdateLineRequest holds partial updates for a line. Nil fields are left
// unchanged.
type UpdateLineRequest struct {
	Product     *string
	Description *string
	Quantity    *decimal.Decimal
	PriceUnit   *decimal.Decimal
	Taxes       *[]string
	OrderBefore *time.Time
}

// Service owns the blanket order lifecycle and delegates all reservation
// work to the reservation engine, one line at a time. Reservation
// mutations on a line are serialized through a per-line lock.
type Service struct {
	repo   Repository
	engine *reservation.Engine
	refs   sequence.Generator
	taxes  tax.Calculator
	now    func() time.Time
	locks  lineLocks
}

// NewService constructs a Service with the required collaborators.
func NewService(repo Repository, engine *reservation.Engine, refs sequence.Generator, taxes tax.Calculator) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		refs:   refs,
		taxes:  taxes,
		now:    time.Now,
		locks:  lineLocks{m: make(map[uuid.UUID]*sync.Mutex)},
	}
}

// Create validates the request, assigns a sequence reference when none is
// supplied, computes line and order amounts, and persists the order in
// draft state.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Partner == "" {
		return nil, errors.New("partner is required")
	}

	ref := req.Reference
	if ref == "" {
		var err error
		ref, err = s.refs.Next(ctx, sequence.SeriesBlanket)
		if err != nil {
			return nil, errors.Wrap(err, "next reference")
		}
	}

	o := &Order{
		ID:        uuid.New(),
		Reference: ref,
		Partner:   req.Partner,
		Currency:  req.Currency,
		OrderDate: s.now(),
		Status:    StatusDraft,
	}

	for _, in := range req.Lines {
		line, err := s.buildLine(ctx, o, in)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, *line)
	}
	sumAmounts(o)

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns all orders without lines.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.repo.ListOrders(ctx)
}

// Confirm transitions a draft order to confirmed and reserves stock for
// every line. The first line whose reservation fails aborts the operation;
// lines reserved before the failure stay reserved and the error reports
// the shortfall to the caller.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) error {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != StatusDraft {
		return ErrNotDraft
	}

	if err := s.repo.UpdateOrderStatus(ctx, o.ID, StatusConfirmed); err != nil {
		return errors.Wrap(err, "update status")
	}

	for i := range o.Lines {
		line := &o.Lines[i]
		if err := s.reserveLine(ctx, o.Reference, line, func(eng *reservation.Engine, l reservation.Line) (decimal.Decimal, error) {
			return eng.ReserveFull(ctx, l)
		}); err != nil {
			return errors.Wrapf(err, "reserve line %s", line.ID)
		}
	}
	return nil
}

// Cancel unreserves every line and transitions the order to cancelled.
// Cancellation of moves is idempotent, so Cancel always succeeds on a
// reachable ledger.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	for i := range o.Lines {
		line := &o.Lines[i]
		if err := s.reserveLine(ctx, o.Reference, line, func(eng *reservation.Engine, l reservation.Line) (decimal.Decimal, error) {
			return eng.UnreserveAll(ctx, l)
		}); err != nil {
			return errors.Wrapf(err, "unreserve line %s", line.ID)
		}
	}

	if err := s.repo.UpdateOrderStatus(ctx, o.ID, StatusCancelled); err != nil {
		return errors.Wrap(err, "update status")
	}
	return nil
}

// Done transitions a confirmed order to done.
func (s *Service) Done(ctx context.Context, id uuid.UUID) error {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != StatusConfirmed {
		return ErrNotConfirmed
	}
	return s.repo.UpdateOrderStatus(ctx, o.ID, StatusDone)
}

// AddLine appends a line to an existing order. On a confirmed order the
// new line is reserved immediately.
func (s *Service) AddLine(ctx context.Context, orderID uuid.UUID, in LineInput) (*Line, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDone || o.Status == StatusCancelled {
		return nil, ErrClosed
	}

	line, err := s.buildLine(ctx, o, in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateLine(ctx, line); err != nil {
		return nil, errors.Wrap(err, "create line")
	}
	if err := s.refreshAmounts(ctx, o.ID); err != nil {
		return nil, err
	}

	if o.Status == StatusConfirmed {
		if err := s.reserveLine(ctx, o.Reference, line, func(eng *reservation.Engine, l reservation.Line) (decimal.Decimal, error) {
			return eng.Adjust(ctx, l)
		}); err != nil {
			return nil, errors.Wrapf(err, "reserve line %s", line.ID)
		}
	}
	return line, nil
}

// UpdateLine applies partial updates to a line. Field values are validated
// before any reservation work happens; on a confirmed order a quantity or
// product change triggers a synchronous reservation adjustment. A product
// change on a reserved line releases the old reservation first and blocks
// when the new product cannot cover the requested quantity.
func (s *Service) UpdateLine(ctx context.Context, lineID uuid.UUID, req UpdateLineRequest) (*Line, error) {
	unlock := s.locks.lock(lineID)
	defer unlock()

	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.GetOrder(ctx, line.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDone || o.Status == StatusCancelled {
		return nil, ErrClosed
	}

	if req.OrderBefore != nil {
		if err := s.validateOrderBefore(*req.OrderBefore); err != nil {
			return nil, err
		}
	}
	if req.Quantity != nil {
		if req.Quantity.IsNegative() {
			return nil, &InvalidQuantityError{Quantity: *req.Quantity}
		}
		if req.Quantity.LessThan(line.DeliveredQty) {
			return nil, &BelowDeliveredError{Quantity: *req.Quantity, Delivered: line.DeliveredQty}
		}
	}

	newQty := line.Quantity
	if req.Quantity != nil {
		newQty = *req.Quantity
	}
	productChanged := req.Product != nil && *req.Product != line.Product
	qtyChanged := req.Quantity != nil && !req.Quantity.Equal(line.Quantity)

	if productChanged {
		// Release the reservation held for the old product before looking
		// at the new one.
		if line.ReservedQty.IsPositive() {
			reserved, err := s.engine.UnreserveAll(ctx, engineLine(o.Reference, line))
			if err != nil {
				return nil, errors.Wrap(err, "unreserve old product")
			}
			line.ReservedQty = reserved
			if err := s.repo.UpdateLineReserved(ctx, line.ID, reserved); err != nil {
				return nil, errors.Wrap(err, "persist reserved qty")
			}
		}
		// Advisory pre-check only; the adjustment below does the actual
		// reservation on confirmed orders.
		if newQty.IsPositive() {
			if err := s.engine.CheckAvailable(ctx, *req.Product, newQty); err != nil {
				return nil, err
			}
		}
		line.Product = *req.Product
		if req.Description == nil {
			line.Description = *req.Product
		}
	}

	if req.Description != nil {
		line.Description = *req.Description
	}
	if req.Quantity != nil {
		line.Quantity = *req.Quantity
	}
	if req.PriceUnit != nil {
		line.PriceUnit = *req.PriceUnit
	}
	if req.Taxes != nil {
		line.Taxes = *req.Taxes
	}
	if req.OrderBefore != nil {
		line.OrderBefore = *req.OrderBefore
	}

	if err := s.computeLineAmounts(ctx, o, line); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLine(ctx, line); err != nil {
		return nil, errors.Wrap(err, "update line")
	}
	if err := s.refreshAmounts(ctx, o.ID); err != nil {
		return nil, err
	}

	if o.Status == StatusConfirmed && (qtyChanged || productChanged) {
		reserved, err := s.engine.Adjust(ctx, engineLine(o.Reference, line))
		if err != nil {
			return nil, err
		}
		line.ReservedQty = reserved
		if err := s.repo.UpdateLineReserved(ctx, line.ID, reserved); err != nil {
			return nil, errors.Wrap(err, "persist reserved qty")
		}
	}
	return line, nil
}

// CreateDelivery hands the line's assigned moves over to a new fulfillment
// reference. The reservation counter is left untouched; reconciling it
// with deliveries is a separate concern.
func (s *Service) CreateDelivery(ctx context.Context, lineID uuid.UUID) (string, error) {
	unlock := s.locks.lock(lineID)
	defer unlock()

	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return "", err
	}
	if !line.ReservedQty.IsPositive() {
		return "", ErrNothingReserved
	}

	ref, err := s.refs.Next(ctx, sequence.SeriesFulfillment)
	if err != nil {
		return "", errors.Wrap(err, "next reference")
	}
	if err := s.engine.Deliver(ctx, line.ID, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// reserveLine runs a reservation engine operation on one line under its
// lock and persists the resulting reserved quantity.
func (s *Service) reserveLine(
	ctx context.Context,
	orderRef string,
	line *Line,
	op func(*reservation.Engine, reservation.Line) (decimal.Decimal, error),
) error {
	unlock := s.locks.lock(line.ID)
	defer unlock()

	reserved, err := op(s.engine, engineLine(orderRef, line))
	if err != nil {
		return err
	}
	line.ReservedQty = reserved
	if err := s.repo.UpdateLineReserved(ctx, line.ID, reserved); err != nil {
		return errors.Wrap(err, "persist reserved qty")
	}
	return nil
}

func (s *Service) buildLine(ctx context.Context, o *Order, in LineInput) (*Line, error) {
	if in.Quantity.IsNegative() {
		return nil, &InvalidQuantityError{Quantity: in.Quantity}
	}
	if err := s.validateOrderBefore(in.OrderBefore); err != nil {
		return nil, err
	}

	desc := in.Description
	if desc == "" {
		desc = in.Product
	}
	line := &Line{
		ID:           uuid.New(),
		OrderID:      o.ID,
		Product:      in.Product,
		Description:  desc,
		Quantity:     in.Quantity,
		PriceUnit:    in.PriceUnit,
		Taxes:        in.Taxes,
		Currency:     o.Currency,
		OrderBefore:  in.OrderBefore,
		DeliveredQty: decimal.Zero,
		ReservedQty:  decimal.Zero,
	}
	if err := s.computeLineAmounts(ctx, o, line); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *Service) computeLineAmounts(ctx context.Context, o *Order, line *Line) error {
	totals, err := s.taxes.Compute(ctx, tax.Input{
		UnitPrice: line.PriceUnit,
		Currency:  line.Currency,
		Quantity:  line.Quantity,
		Product:   line.Product,
		Partner:   o.Partner,
		Taxes:     line.Taxes,
	})
	if err != nil {
		return errors.Wrap(err, "compute taxes")
	}
	line.Subtotal = totals.Excluded
	line.Tax = totals.Tax()
	line.Total = totals.Included
	return nil
}

// refreshAmounts recomputes the order totals from its current lines.
func (s *Service) refreshAmounts(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	sumAmounts(o)
	if err := s.repo.UpdateOrderAmounts(ctx, o.ID, o.AmountUntaxed, o.AmountTax, o.AmountTotal); err != nil {
		return errors.Wrap(err, "update amounts")
	}
	return nil
}

func sumAmounts(o *Order) {
	untaxed, taxAmt := decimal.Zero, decimal.Zero
	for i := range o.Lines {
		untaxed = untaxed.Add(o.Lines[i].Subtotal)
		taxAmt = taxAmt.Add(o.Lines[i].Tax)
	}
	o.AmountUntaxed = untaxed
	o.AmountTax = taxAmt
	o.AmountTotal = untaxed.Add(taxAmt)
}

// validateOrderBefore rejects missing dates and dates before today.
func (s *Service) validateOrderBefore(d time.Time) error {
	if d.IsZero() {
		return errors.New("order before date is required")
	}
	y, m, day := s.now().Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	dy, dm, dd := d.Date()
	if time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC).Before(today) {
		return &PastDateError{Date: d}
	}
	return nil
}

// lineLocks serializes reservation mutations per line. Entries are never
// removed; the map is bounded by the number of lines the process touches.
type lineLocks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*sync.Mutex
}

func (ll *lineLocks) lock(id uuid.UUID) func() {
	ll.mu.Lock()
	lm, ok := ll.m[id]
	if !ok {
		lm = &sync.Mutex{}
		ll.m[id] = lm
	}
	ll.mu.Unlock()
	lm.Lock()
	return lm.Unlock
}

func engineLine(orderRef string, l *Line) reservation.Line {
	return reservation.Line{
		ID:       l.ID,
		OrderRef: orderRef,
		Product:  l.Product,
		Quantity: l.Quantity,
		Reserved: l.ReservedQty,
	}
}
