package engine_test

import (
	"testing"

	"SynthLedger/internal/engine"
)

const (
	reserveUnit = int64(1_000_000)
	priceUnit   = int64(100_000_000)
)

// ============================================================================
// Test: ComputeRebalance
// ============================================================================

func TestComputeRebalance_NetDeposits(t *testing.T) {
	// 100,000 reserve deposits, no redemptions, price 100.0.
	r := engine.ComputeRebalance(100_000*reserveUnit, 0, 100*priceUnit)

	if r.RebalanceAmount != 100_000*reserveUnit {
		t.Errorf("rebalance amount: got %d, want %d", r.RebalanceAmount, 100_000*reserveUnit)
	}
	if r.AssetDelta != 1_000*reserveUnit {
		t.Errorf("asset delta: got %d, want %d", r.AssetDelta, 1_000*reserveUnit)
	}
}

func TestComputeRebalance_NetRedemptions(t *testing.T) {
	// 500 asset tokens redeemed, no deposits, price 100.0.
	r := engine.ComputeRebalance(0, 500*reserveUnit, 100*priceUnit)

	if r.RebalanceAmount != -50_000*reserveUnit {
		t.Errorf("rebalance amount: got %d, want %d", r.RebalanceAmount, -50_000*reserveUnit)
	}
	if r.AssetDelta != -500*reserveUnit {
		t.Errorf("asset delta: got %d, want %d", r.AssetDelta, -500*reserveUnit)
	}
}

func TestComputeRebalance_Netting(t *testing.T) {
	// Deposits worth exactly the redemption value cancel out.
	r := engine.ComputeRebalance(50_000*reserveUnit, 500*reserveUnit, 100*priceUnit)
	if r.RebalanceAmount != 0 {
		t.Errorf("rebalance amount: got %d, want 0", r.RebalanceAmount)
	}
	if r.AssetDelta != 0 {
		t.Errorf("asset delta: got %d, want 0", r.AssetDelta)
	}
}

func TestComputeRebalance_NeverOverstates(t *testing.T) {
	// Truncating conversions: the redemption value never rounds up, so the
	// rebalance amount never demands more from LPs than the deposits brought.
	price := int64(333_333_333) // 3.33333333
	r := engine.ComputeRebalance(1_000_000, 299_999, price)

	redemptionValue := int64(1_000_000) - r.RebalanceAmount
	if redemptionValue < 0 {
		t.Fatalf("redemption value negative: %d", redemptionValue)
	}
	// 299,999 * 333,333,333 / 100,000,000 = 999,996.66... truncated
	if redemptionValue != 999_996 {
		t.Errorf("redemption value: got %d, want 999_996", redemptionValue)
	}
}

// ============================================================================
// Test: AllocateShare
// ============================================================================

func TestAllocateShare_ProportionalWithRemainder(t *testing.T) {
	// 100 units across three equal LPs: 33 + 33 + 34.
	total := int64(100)
	weights := []int64{10, 10, 10}

	var allocated int64
	var shares []int64
	for i, w := range weights {
		s := engine.AllocateShare(total, w, 30, allocated, i == len(weights)-1)
		shares = append(shares, s)
		allocated += s
	}

	if shares[0] != 33 || shares[1] != 33 || shares[2] != 34 {
		t.Errorf("shares: got %v, want [33 33 34]", shares)
	}
	if allocated != total {
		t.Errorf("allocated: got %d, want %d", allocated, total)
	}
}

func TestAllocateShare_NegativeTotal(t *testing.T) {
	total := int64(-100)
	weights := []int64{10, 10, 10}

	var allocated int64
	var shares []int64
	for i, w := range weights {
		s := engine.AllocateShare(total, w, 30, allocated, i == len(weights)-1)
		shares = append(shares, s)
		allocated += s
	}

	if shares[0] != -33 || shares[1] != -33 || shares[2] != -34 {
		t.Errorf("shares: got %v, want [-33 -33 -34]", shares)
	}
	if allocated != total {
		t.Errorf("allocated: got %d, want %d", allocated, total)
	}
}

func TestAllocateShare_UnequalWeights(t *testing.T) {
	// Weights 1:3 over total 7: truncated 1, remainder to last = 6.
	first := engine.AllocateShare(7, 1, 4, 0, false)
	last := engine.AllocateShare(7, 3, 4, first, true)

	if first != 1 {
		t.Errorf("first: got %d, want 1", first)
	}
	if last != 6 {
		t.Errorf("last: got %d, want 6", last)
	}
}

func TestAllocateShare_ZeroTotalWeight(t *testing.T) {
	if got := engine.AllocateShare(100, 0, 0, 0, false); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	// The last participant still absorbs the full total.
	if got := engine.AllocateShare(100, 0, 0, 0, true); got != 100 {
		t.Errorf("last: got %d, want 100", got)
	}
}

func TestAllocateShare_SumExactOverManyParticipants(t *testing.T) {
	total := int64(999_999_999)
	weights := []int64{7, 13, 29, 101, 997, 5_000, 123_456}

	var totalWeight int64
	for _, w := range weights {
		totalWeight += w
	}

	var allocated int64
	for i, w := range weights {
		allocated += engine.AllocateShare(total, w, totalWeight, allocated, i == len(weights)-1)
	}
	if allocated != total {
		t.Errorf("allocated: got %d, want %d", allocated, total)
	}
}
