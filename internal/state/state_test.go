package state_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/state"
)

// ============================================================================
// Test: cycle phase transitions
// ============================================================================

func TestCycleState_Transitions(t *testing.T) {
	cases := []struct {
		from, to state.CycleState
		want     bool
	}{
		{state.CycleStateActive, state.CycleStateRebalancingOffchain, true},
		{state.CycleStateActive, state.CycleStateRebalancingOnchain, false},
		{state.CycleStateActive, state.CycleStateHalted, true},
		{state.CycleStateRebalancingOffchain, state.CycleStateRebalancingOnchain, true},
		{state.CycleStateRebalancingOffchain, state.CycleStateActive, true},
		{state.CycleStateRebalancingOffchain, state.CycleStateHalted, true},
		{state.CycleStateRebalancingOnchain, state.CycleStateActive, true},
		{state.CycleStateRebalancingOnchain, state.CycleStateRebalancingOffchain, false},
		{state.CycleStateRebalancingOnchain, state.CycleStateHalted, true},
		{state.CycleStateHalted, state.CycleStateActive, true},
		{state.CycleStateHalted, state.CycleStateRebalancingOffchain, false},
		{state.CycleStateHalted, state.CycleStateRebalancingOnchain, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCycle_ObservePrice(t *testing.T) {
	c := state.NewCycle(1, time.Now())
	c.ObservePrice(100, 10)
	c.ObservePrice(120, 10)
	c.ObservePrice(90, 10)

	if c.PriceHigh != 120 {
		t.Errorf("high: got %d, want 120", c.PriceHigh)
	}
	if c.PriceLow != 90 {
		t.Errorf("low: got %d, want 90", c.PriceLow)
	}
	// Equal weights: average of 100, 120, 90 with banker's rounding.
	if got := c.WeightedPrice.Average(0); got != 103 {
		t.Errorf("weighted average: got %d, want 103", got)
	}
}

// ============================================================================
// Test: cycle history
// ============================================================================

func TestCycleHistory_AppendAndGet(t *testing.T) {
	h := state.NewCycleHistory()
	h.Append(state.CycleRecord{Index: 1, SettlementPrice: 100})
	h.Append(state.CycleRecord{Index: 2, SettlementPrice: 110})

	rec, ok := h.Get(2)
	if !ok {
		t.Fatal("cycle 2 should exist")
	}
	if rec.SettlementPrice != 110 {
		t.Errorf("price: got %d, want 110", rec.SettlementPrice)
	}

	if _, ok := h.Get(0); ok {
		t.Error("cycle 0 should not exist")
	}
	if _, ok := h.Get(3); ok {
		t.Error("cycle 3 should not exist")
	}
	if h.Len() != 2 {
		t.Errorf("len: got %d, want 2", h.Len())
	}
}

func TestCycleHistory_GapPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on index gap")
		}
	}()
	h := state.NewCycleHistory()
	h.Append(state.CycleRecord{Index: 2})
}

// ============================================================================
// Test: LP registry
// ============================================================================

func TestLPRegistry_AddGetRemove(t *testing.T) {
	r := state.NewLPRegistry()
	id := uuid.New()

	if !r.Add(state.LPPosition{ID: id, RegisteredCycle: 1}) {
		t.Fatal("first add should succeed")
	}
	if r.Add(state.LPPosition{ID: id}) {
		t.Fatal("duplicate add should fail")
	}

	pos, ok := r.Get(id)
	if !ok || pos.RegisteredCycle != 1 {
		t.Fatalf("get: ok=%v pos=%+v", ok, pos)
	}

	if !r.Remove(id) {
		t.Fatal("remove should succeed")
	}
	if r.Remove(id) {
		t.Fatal("second remove should fail")
	}
	if _, ok := r.Get(id); ok {
		t.Fatal("removed LP should not resolve")
	}
}

func TestLPRegistry_SlotReuse(t *testing.T) {
	r := state.NewLPRegistry()
	a, b := uuid.New(), uuid.New()

	r.Add(state.LPPosition{ID: a})
	r.Add(state.LPPosition{ID: b})
	r.Remove(a)

	c := uuid.New()
	r.Add(state.LPPosition{ID: c, RegisteredCycle: 7})

	if r.Len() != 2 {
		t.Fatalf("len: got %d, want 2", r.Len())
	}
	pos, ok := r.Get(c)
	if !ok || pos.RegisteredCycle != 7 {
		t.Fatalf("reused slot lost data: ok=%v pos=%+v", ok, pos)
	}
	if _, ok := r.Get(a); ok {
		t.Fatal("stale identity resolved after slot reuse")
	}
}

func TestLPRegistry_AllSortedByIdentity(t *testing.T) {
	r := state.NewLPRegistry()
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	mid := uuid.MustParse("80000000-0000-0000-0000-000000000000")

	r.Add(state.LPPosition{ID: high})
	r.Add(state.LPPosition{ID: low})
	r.Add(state.LPPosition{ID: mid})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("len: got %d, want 3", len(all))
	}
	if all[0].ID != low || all[1].ID != mid || all[2].ID != high {
		t.Errorf("order: got %v, %v, %v", all[0].ID, all[1].ID, all[2].ID)
	}
}

func TestLPRegistry_AllPointersMutate(t *testing.T) {
	r := state.NewLPRegistry()
	id := uuid.New()
	r.Add(state.LPPosition{ID: id})

	r.All()[0].LastRebalancedCycle = 9

	pos, _ := r.Get(id)
	if pos.LastRebalancedCycle != 9 {
		t.Error("All() must return live pointers into the registry")
	}
}

// ============================================================================
// Test: user ledger
// ============================================================================

func TestUserLedger_PendingTotals(t *testing.T) {
	ul := state.NewUserLedger()

	ul.Get(uuid.New()).Pending = &state.UserRequest{
		Kind: state.UserRequestDeposit, Amount: 100, RequestCycle: 3,
	}
	ul.Get(uuid.New()).Pending = &state.UserRequest{
		Kind: state.UserRequestRedeem, Amount: 40, RequestCycle: 3,
	}
	// Settled and wrong-cycle requests are excluded.
	ul.Get(uuid.New()).Pending = &state.UserRequest{
		Kind: state.UserRequestDeposit, Amount: 999, RequestCycle: 3, Settled: true,
	}
	ul.Get(uuid.New()).Pending = &state.UserRequest{
		Kind: state.UserRequestDeposit, Amount: 500, RequestCycle: 2,
	}

	deposits, redemptions := ul.PendingTotals(3)
	if deposits != 100 {
		t.Errorf("deposits: got %d, want 100", deposits)
	}
	if redemptions != 40 {
		t.Errorf("redemptions: got %d, want 40", redemptions)
	}
}

func TestUserLedger_GetCreatesLookupDoesNot(t *testing.T) {
	ul := state.NewUserLedger()
	id := uuid.New()

	if _, ok := ul.Lookup(id); ok {
		t.Fatal("lookup must not create")
	}
	ul.Get(id)
	if _, ok := ul.Lookup(id); !ok {
		t.Fatal("get must create")
	}
	if ul.Len() != 1 {
		t.Errorf("len: got %d, want 1", ul.Len())
	}

	ul.Remove(id)
	if _, ok := ul.Lookup(id); ok {
		t.Fatal("removed position should not resolve")
	}
}
