package rates

import "SynthLedger/internal/fixmath"

// Strategy maps utilization to an annualized interest rate. Both sides use
// the ratio scale (1_000_000 = 100%).
type Strategy interface {
	RateForUtilization(utilization int64) int64
}

// TieredStrategy is a two-slope kink model: a gentle slope below the optimal
// utilization point, a steep slope above it.
//
//	rate = base + u * slope1 / optimal                    (u <= optimal)
//	rate = base + slope1 + (u - optimal) * slope2 / (1 - optimal)   (u > optimal)
type TieredStrategy struct {
	BaseRate           int64 // Annual rate at 0% utilization
	Slope1             int64 // Rate added across [0, optimal]
	Slope2             int64 // Rate added across (optimal, 100%]
	OptimalUtilization int64 // Kink point
}

// DefaultTieredStrategy mirrors common money-market parameters:
// 1% base, +4% to the 80% kink, +60% beyond it.
func DefaultTieredStrategy() *TieredStrategy {
	return &TieredStrategy{
		BaseRate:           10_000,  // 1%
		Slope1:             40_000,  // 4%
		Slope2:             600_000, // 60%
		OptimalUtilization: 800_000, // 80%
	}
}

func (s *TieredStrategy) RateForUtilization(utilization int64) int64 {
	if utilization <= 0 {
		return s.BaseRate
	}
	if utilization > fixmath.RatioConfig.Scale {
		utilization = fixmath.RatioConfig.Scale
	}

	if utilization <= s.OptimalUtilization {
		return s.BaseRate + fixmath.MulDiv(utilization, s.Slope1, s.OptimalUtilization)
	}

	excess := utilization - s.OptimalUtilization
	span := fixmath.RatioConfig.Scale - s.OptimalUtilization
	if span <= 0 {
		return s.BaseRate + s.Slope1 + s.Slope2
	}
	return s.BaseRate + s.Slope1 + fixmath.MulDiv(excess, s.Slope2, span)
}

// FlatStrategy charges the same annual rate at any utilization.
type FlatStrategy struct {
	Rate int64
}

func (s *FlatStrategy) RateForUtilization(int64) int64 {
	return s.Rate
}
