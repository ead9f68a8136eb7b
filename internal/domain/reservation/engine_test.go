package reservation

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/blanket-orders/internal/domain/ledger"
)

// --- Mock ledger ---

// mockLedger is an in-memory ledger.Adapter. Available quantity is on-hand
// minus the sum of assigned move quantities.
type mockLedger struct {
	onHand   map[string]decimal.Decimal
	moves    map[uuid.UUID]*ledger.Move
	seq      int
	created  time.Time
	failNext bool // next Assign leaves the move unassigned
}

func newMockLedger(onHand map[string]decimal.Decimal) *mockLedger {
	return &mockLedger{
		onHand:  onHand,
		moves:   make(map[uuid.UUID]*ledger.Move),
		created: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *mockLedger) assignedTotal(product string) decimal.Decimal {
	total := decimal.Zero
	for _, mv := range m.moves {
		if mv.Product == product && mv.State == ledger.StateAssigned {
			total = total.Add(mv.Quantity)
		}
	}
	return total
}

func (m *mockLedger) AvailableQuantity(_ context.Context, product, _ string) (decimal.Decimal, error) {
	return m.onHand[product].Sub(m.assignedTotal(product)), nil
}

func (m *mockLedger) CreateMove(_ context.Context, req ledger.CreateMove) (*ledger.Move, error) {
	m.seq++
	mv := &ledger.Move{
		ID:        uuid.New(),
		Product:   req.Product,
		Quantity:  req.Quantity,
		Source:    req.Route.Source,
		Dest:      req.Route.Dest,
		State:     ledger.StateDraft,
		LineID:    req.LineID,
		Origin:    req.Origin,
		CreatedAt: m.created.Add(time.Duration(m.seq) * time.Minute),
	}
	m.moves[mv.ID] = mv
	return mv, nil
}

func (m *mockLedger) Confirm(_ context.Context, id uuid.UUID) error {
	mv, ok := m.moves[id]
	if !ok {
		return ledger.ErrMoveNotFound
	}
	if mv.State != ledger.StateDraft {
		return ledger.ErrUnavailable
	}
	mv.State = ledger.StateConfirmed
	return nil
}

func (m *mockLedger) Assign(_ context.Context, id uuid.UUID) (ledger.MoveState, error) {
	mv, ok := m.moves[id]
	if !ok {
		return "", ledger.ErrMoveNotFound
	}
	if m.failNext {
		m.failNext = false
		return mv.State, nil
	}
	available := m.onHand[mv.Product].Sub(m.assignedTotal(mv.Product))
	if available.LessThan(mv.Quantity) {
		return mv.State, nil
	}
	mv.State = ledger.StateAssigned
	return mv.State, nil
}

func (m *mockLedger) Cancel(_ context.Context, id uuid.UUID) error {
	mv, ok := m.moves[id]
	if !ok {
		return ledger.ErrMoveNotFound
	}
	if !mv.State.Terminal() {
		mv.State = ledger.StateCancelled
	}
	return nil
}

func (m *mockLedger) Discard(_ context.Context, id uuid.UUID) error {
	delete(m.moves, id)
	return nil
}

func (m *mockLedger) Reduce(_ context.Context, id uuid.UUID, qty decimal.Decimal) error {
	mv, ok := m.moves[id]
	if !ok {
		return ledger.ErrMoveNotFound
	}
	mv.Quantity = qty
	return nil
}

func (m *mockLedger) MovesForLine(_ context.Context, lineID uuid.UUID) ([]ledger.Move, error) {
	var out []ledger.Move
	for _, mv := range m.moves {
		if mv.LineID.Valid && mv.LineID.UUID == lineID {
			out = append(out, *mv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *mockLedger) Reassign(_ context.Context, ids []uuid.UUID, ref string) error {
	for _, id := range ids {
		if mv, ok := m.moves[id]; ok {
			mv.FulfillmentRef = ref
		}
	}
	return nil
}

// movesInState returns the line's moves in the given state, oldest first.
func (m *mockLedger) movesInState(lineID uuid.UUID, state ledger.MoveState) []ledger.Move {
	all, _ := m.MovesForLine(context.Background(), lineID)
	var out []ledger.Move
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].State == state {
			out = append(out, all[i])
		}
	}
	return out
}

// --- Helpers ---

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLine(quantity, reserved string) Line {
	return Line{
		ID:       uuid.New(),
		OrderRef: "BO00042",
		Product:  "widget",
		Quantity: qty(quantity),
		Reserved: qty(reserved),
	}
}

var testRoute = ledger.Route{Source: "WH/Stock", Dest: "Customers"}

// --- Tests ---

func TestReserveFull_Success(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	eng := NewEngine(ml, testRoute)
	line := testLine("10", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)

	require.NoError(t, err)
	assert.True(t, qty("10").Equal(reserved))

	assigned := ml.movesInState(line.ID, ledger.StateAssigned)
	require.Len(t, assigned, 1)
	assert.True(t, qty("10").Equal(assigned[0].Quantity))
	assert.Equal(t, "BO00042", assigned[0].Origin)
}

func TestReserveFull_AlreadyReserved(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	eng := NewEngine(ml, testRoute)
	line := testLine("5", "5")

	reserved, err := eng.ReserveFull(context.Background(), line)

	require.NoError(t, err)
	assert.True(t, qty("5").Equal(reserved))
	assert.Empty(t, ml.moves)
}

func TestReserveFull_InsufficientStock(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("5")})
	eng := NewEngine(ml, testRoute)
	line := testLine("10", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)

	var insufficientErr *InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.True(t, qty("10").Equal(insufficientErr.Required))
	assert.True(t, qty("5").Equal(insufficientErr.Available))
	assert.True(t, qty("0").Equal(reserved))
	assert.Empty(t, ml.moves, "no surviving move after failed reservation")
}

func TestReserveFull_AssignFails(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	ml.failNext = true
	eng := NewEngine(ml, testRoute)
	line := testLine("10", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)

	var failedErr *FailedError
	require.ErrorAs(t, err, &failedErr)
	assert.True(t, qty("0").Equal(reserved))
	assert.Empty(t, ml.moves, "move discarded after failed assign")
}

func TestAdjust_ReserveMore(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("20")})
	eng := NewEngine(ml, testRoute)
	line := testLine("10", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)
	require.NoError(t, err)

	line.Reserved = reserved
	line.Quantity = qty("15")
	reserved, err = eng.Adjust(context.Background(), line)

	require.NoError(t, err)
	assert.True(t, qty("15").Equal(reserved))
	assert.Len(t, ml.movesInState(line.ID, ledger.StateAssigned), 2)
}

func TestAdjust_Equal(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	eng := NewEngine(ml, testRoute)
	line := testLine("5", "5")

	reserved, err := eng.Adjust(context.Background(), line)

	require.NoError(t, err)
	assert.True(t, qty("5").Equal(reserved))
	assert.Empty(t, ml.moves)
}

// Two assigned moves of 4 then 6, quantity lowered by 7: the most recent
// move (6) is cancelled outright, the older move (4) is reduced to 3.
func TestAdjust_PartialUnreserveLIFO(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	eng := NewEngine(ml, testRoute)
	line := testLine("4", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)
	require.NoError(t, err)
	line.Reserved = reserved

	line.Quantity = qty("10")
	reserved, err = eng.Adjust(context.Background(), line)
	require.NoError(t, err)
	require.True(t, qty("10").Equal(reserved))
	line.Reserved = reserved

	line.Quantity = qty("3")
	reserved, err = eng.Adjust(context.Background(), line)
	require.NoError(t, err)
	assert.True(t, qty("3").Equal(reserved))

	assigned := ml.movesInState(line.ID, ledger.StateAssigned)
	require.Len(t, assigned, 1, "only the oldest move survives")
	assert.True(t, qty("3").Equal(assigned[0].Quantity), "oldest move reduced in place")

	cancelled := ml.movesInState(line.ID, ledger.StateCancelled)
	require.Len(t, cancelled, 1)
	assert.True(t, qty("6").Equal(cancelled[0].Quantity), "most recent move cancelled whole")
}

func TestAdjust_CancelMultipleWholeMoves(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("12")})
	eng := NewEngine(ml, testRoute)
	line := testLine("4", "0")

	// Build up three moves: 4, 4, 4.
	for _, q := range []string{"4", "8", "12"} {
		line.Quantity = qty(q)
		reserved, err := eng.Adjust(context.Background(), line)
		require.NoError(t, err)
		line.Reserved = reserved
	}

	line.Quantity = qty("4")
	reserved, err := eng.Adjust(context.Background(), line)
	require.NoError(t, err)
	assert.True(t, qty("4").Equal(reserved))

	assigned := ml.movesInState(line.ID, ledger.StateAssigned)
	require.Len(t, assigned, 1)
	assert.True(t, qty("4").Equal(assigned[0].Quantity))
	assert.Len(t, ml.movesInState(line.ID, ledger.StateCancelled), 2)
}

func TestUnreserveAll_Idempotent(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	eng := NewEngine(ml, testRoute)
	line := testLine("10", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)
	require.NoError(t, err)
	line.Reserved = reserved

	reserved, err = eng.UnreserveAll(context.Background(), line)
	require.NoError(t, err)
	assert.True(t, reserved.IsZero())
	assert.Empty(t, ml.movesInState(line.ID, ledger.StateAssigned))

	line.Reserved = reserved
	reserved, err = eng.UnreserveAll(context.Background(), line)
	require.NoError(t, err)
	assert.True(t, reserved.IsZero())
}

// Unreserving everything and re-reserving with the same availability must
// reproduce the original assigned move count and reserved quantity.
func TestUnreserveReserve_RoundTrip(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("10")})
	eng := NewEngine(ml, testRoute)
	line := testLine("10", "0")

	reserved, err := eng.ReserveFull(context.Background(), line)
	require.NoError(t, err)
	line.Reserved = reserved
	before := len(ml.movesInState(line.ID, ledger.StateAssigned))

	reserved, err = eng.UnreserveAll(context.Background(), line)
	require.NoError(t, err)
	line.Reserved = reserved

	reserved, err = eng.ReserveFull(context.Background(), line)
	require.NoError(t, err)

	assert.True(t, qty("10").Equal(reserved))
	assert.Equal(t, before, len(ml.movesInState(line.ID, ledger.StateAssigned)))
}

func TestCheckAvailable(t *testing.T) {
	ml := newMockLedger(map[string]decimal.Decimal{"widget": qty("5")})
	eng := NewEngine(ml, testRoute)

	require.NoError(t, eng.CheckAvailable(context.Background(), "widget", qty("5")))

	err := eng.CheckAvailable(context.Background(), "widget", qty("6"))
	var insufficientErr *InsufficientStockError
	require.ErrorAs(t, err, &insufficientErr)
	assert.True(t, qty("5").Equal(insufficientErr.Available))
}
