package collateral

import "SynthLedger/internal/fixmath"

// Health classifies a position's collateral coverage
type Health int

const (
	HealthHealthy Health = iota
	HealthWarning
	HealthLiquidatable
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "Healthy"
	case HealthWarning:
		return "Warning"
	case HealthLiquidatable:
		return "Liquidatable"
	default:
		return "Unknown"
	}
}

// Policy holds the ratio constants for one class of principal. User and LP
// positions use distinct policies with identical classification rules.
type Policy struct {
	HealthyRatio         int64 // Ratio scale; e.g. 200_000 = 20%
	LiquidationThreshold int64 // Ratio scale; strictly below HealthyRatio
	LiquidationReward    int64 // Fraction of collateral paid to the liquidator
}

// DefaultUserPolicy: 20% healthy, 12% liquidation threshold, 5% reward.
func DefaultUserPolicy() Policy {
	return Policy{
		HealthyRatio:         200_000,
		LiquidationThreshold: 120_000,
		LiquidationReward:    50_000,
	}
}

// DefaultLPPolicy: 30% healthy, 20% liquidation threshold, 5% reward.
func DefaultLPPolicy() Policy {
	return Policy{
		HealthyRatio:         300_000,
		LiquidationThreshold: 200_000,
		LiquidationReward:    50_000,
	}
}

// Evaluate classifies a position given the reserve value of its exposure,
// its posted collateral, and outstanding debt.
//
// Boundary semantics: collateral exactly equal to
// exposureValue*threshold + debt is Warning, not Liquidatable; one unit less
// is Liquidatable.
func (p Policy) Evaluate(exposureValue, postedCollateral, debt int64) Health {
	healthyFloor := fixmath.MulDiv(exposureValue, p.HealthyRatio, fixmath.RatioConfig.Scale) + debt
	if postedCollateral >= healthyFloor {
		return HealthHealthy
	}

	liquidationFloor := fixmath.MulDiv(exposureValue, p.LiquidationThreshold, fixmath.RatioConfig.Scale) + debt
	if postedCollateral >= liquidationFloor {
		return HealthWarning
	}

	return HealthLiquidatable
}

// RewardSplit divides collateral between the liquidator reward and the
// amount retained by the protocol.
func (p Policy) RewardSplit(postedCollateral int64) (reward, retained int64) {
	reward = fixmath.MulDiv(postedCollateral, p.LiquidationReward, fixmath.RatioConfig.Scale)
	retained = postedCollateral - reward
	return reward, retained
}
