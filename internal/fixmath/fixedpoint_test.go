package fixmath_test

import (
	"testing"

	"SynthLedger/internal/fixmath"
)

// ============================================================================
// Test: DivideInt128 rounding modes
// ============================================================================

func TestDivideInt128_RoundDown(t *testing.T) {
	cases := []struct {
		a, b, denom int64
		want        int64
	}{
		{7, 1, 2, 3},
		{-7, 1, 2, -3}, // toward zero, not floor
		{9, 1, 3, 3},
		{10, 3, 4, 7}, // 30/4 = 7.5
	}
	for _, tc := range cases {
		num := fixmath.MultiplyInt128(tc.a, tc.b)
		got := fixmath.DivideInt128(num, tc.denom, fixmath.RoundDown)
		if got != tc.want {
			t.Errorf("RoundDown(%d*%d/%d): got %d, want %d", tc.a, tc.b, tc.denom, got, tc.want)
		}
	}
}

func TestDivideInt128_RoundUp(t *testing.T) {
	cases := []struct {
		a, denom int64
		want     int64
	}{
		{7, 2, 4},
		{-7, 2, -4}, // away from zero
		{6, 2, 3},   // exact
	}
	for _, tc := range cases {
		num := fixmath.MultiplyInt128(tc.a, 1)
		got := fixmath.DivideInt128(num, tc.denom, fixmath.RoundUp)
		if got != tc.want {
			t.Errorf("RoundUp(%d/%d): got %d, want %d", tc.a, tc.denom, got, tc.want)
		}
	}
}

func TestDivideInt128_RoundHalfEven(t *testing.T) {
	cases := []struct {
		a, denom int64
		want     int64
	}{
		{5, 2, 2},  // 2.5 -> even 2
		{7, 2, 4},  // 3.5 -> even 4
		{-5, 2, -2},
		{-7, 2, -4},
		{11, 4, 3}, // 2.75 rounds up
		{9, 4, 2},  // 2.25 rounds down
	}
	for _, tc := range cases {
		num := fixmath.MultiplyInt128(tc.a, 1)
		got := fixmath.DivideInt128(num, tc.denom, fixmath.RoundHalfEven)
		if got != tc.want {
			t.Errorf("RoundHalfEven(%d/%d): got %d, want %d", tc.a, tc.denom, got, tc.want)
		}
	}
}

func TestMulDiv_TruncatesTowardZero(t *testing.T) {
	if got := fixmath.MulDiv(100, 1, 3); got != 33 {
		t.Errorf("got %d, want 33", got)
	}
	if got := fixmath.MulDiv(-100, 1, 3); got != -33 {
		t.Errorf("got %d, want -33", got)
	}
}

func TestMulDiv_NoIntermediateOverflow(t *testing.T) {
	// a*b overflows int64; the int128 intermediate must not.
	a := int64(9_000_000_000_000)
	b := int64(5_000_000_000)
	got := fixmath.MulDiv(a, b, b)
	if got != a {
		t.Errorf("got %d, want %d", got, a)
	}
}

// ============================================================================
// Test: price conversions
// ============================================================================

func TestConvertReserveToAsset(t *testing.T) {
	// 100,000 reserve at price 100.0 -> 1,000 asset tokens
	reserve := int64(100_000 * 1_000_000)
	price := int64(100 * 100_000_000)
	got := fixmath.ConvertReserveToAsset(reserve, price)
	want := int64(1_000 * 1_000_000)
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestConvertAssetToReserve(t *testing.T) {
	// 1,000 asset tokens at price 100.0 -> 100,000 reserve
	asset := int64(1_000 * 1_000_000)
	price := int64(100 * 100_000_000)
	got := fixmath.ConvertAssetToReserve(asset, price)
	want := int64(100_000 * 1_000_000)
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestConvert_RoundTripNeverGains(t *testing.T) {
	// Both conversions truncate, so a round trip can only lose value.
	price := int64(123_456_789) // 1.23456789
	for _, reserve := range []int64{1, 999, 1_000_001, 77_777_777} {
		asset := fixmath.ConvertReserveToAsset(reserve, price)
		back := fixmath.ConvertAssetToReserve(asset, price)
		if back > reserve {
			t.Errorf("round trip gained value: %d -> %d -> %d", reserve, asset, back)
		}
	}
}

func TestConvertReserveToAsset_NonPositivePrice(t *testing.T) {
	if got := fixmath.ConvertReserveToAsset(1_000_000, 0); got != 0 {
		t.Errorf("zero price: got %d, want 0", got)
	}
	if got := fixmath.ConvertReserveToAsset(1_000_000, -1); got != 0 {
		t.Errorf("negative price: got %d, want 0", got)
	}
}

// ============================================================================
// Test: interest
// ============================================================================

func TestComputeInterest_FullYear(t *testing.T) {
	// 100,000 reserve exposure at 10% annual for exactly one year.
	exposure := int64(100_000 * 1_000_000)
	rate := int64(100_000) // 10%
	got := fixmath.ComputeInterest(exposure, rate, fixmath.SecondsPerYear)
	want := int64(10_000 * 1_000_000)
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestComputeInterest_OneDay(t *testing.T) {
	exposure := int64(100_000 * 1_000_000)
	rate := int64(100_000)
	got := fixmath.ComputeInterest(exposure, rate, 86_400)
	// 10,000e6 * 86400 / 31,536,000 truncated
	want := int64(27_397_260)
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestComputeInterest_ZeroInputs(t *testing.T) {
	if got := fixmath.ComputeInterest(0, 100_000, 1000); got != 0 {
		t.Errorf("zero exposure: got %d", got)
	}
	if got := fixmath.ComputeInterest(1_000_000, 0, 1000); got != 0 {
		t.Errorf("zero rate: got %d", got)
	}
	if got := fixmath.ComputeInterest(1_000_000, 100_000, 0); got != 0 {
		t.Errorf("zero elapsed: got %d", got)
	}
}

// ============================================================================
// Test: deviation band
// ============================================================================

func TestWithinDeviation(t *testing.T) {
	ref := int64(100 * 100_000_000)
	tol := int64(30_000) // 3%

	cases := []struct {
		proposed int64
		want     bool
	}{
		{ref, true},
		{ref + 3*100_000_000, true},  // exactly +3%
		{ref - 3*100_000_000, true},  // exactly -3%
		{ref + 3*100_000_000 + 1, false},
		{ref - 3*100_000_000 - 1, false},
	}
	for _, tc := range cases {
		if got := fixmath.WithinDeviation(tc.proposed, ref, tol); got != tc.want {
			t.Errorf("WithinDeviation(%d, %d, %d): got %v, want %v",
				tc.proposed, ref, tol, got, tc.want)
		}
	}
}

func TestWithinDeviation_NonPositiveReference(t *testing.T) {
	if fixmath.WithinDeviation(100, 0, 30_000) {
		t.Error("zero reference should never pass")
	}
}

// ============================================================================
// Test: weighted price
// ============================================================================

func TestWeightedPrice_Average(t *testing.T) {
	wp := fixmath.NewWeightedPrice()
	wp.Observe(100, 1)
	wp.Observe(200, 3)
	// (100 + 600) / 4 = 175
	if got := wp.Average(0); got != 175 {
		t.Errorf("got %d, want 175", got)
	}
}

func TestWeightedPrice_FallbackWhenEmpty(t *testing.T) {
	wp := fixmath.NewWeightedPrice()
	if got := wp.Average(42); got != 42 {
		t.Errorf("got %d, want fallback 42", got)
	}
}

func TestWeightedPrice_ZeroWeightCountsAsOne(t *testing.T) {
	wp := fixmath.NewWeightedPrice()
	wp.Observe(100, 0)
	if got := wp.Average(0); got != 100 {
		t.Errorf("got %d, want 100", got)
	}
	if got := wp.Observations(); got != 1 {
		t.Errorf("observations: got %d, want 1", got)
	}
}

func TestWeightedPrice_NegativeWeightUsesMagnitude(t *testing.T) {
	wp := fixmath.NewWeightedPrice()
	wp.Observe(100, -2)
	wp.Observe(400, 2)
	if got := wp.Average(0); got != 250 {
		t.Errorf("got %d, want 250", got)
	}
}
