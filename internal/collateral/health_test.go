package collateral_test

import (
	"testing"

	"SynthLedger/internal/collateral"
)

func TestEvaluate_Classification(t *testing.T) {
	p := collateral.DefaultUserPolicy() // 20% healthy, 12% liquidation

	exposure := int64(100_000 * 1_000_000)
	cases := []struct {
		name     string
		posted   int64
		debt     int64
		want     collateral.Health
	}{
		{"well collateralized", 50_000_000_000, 0, collateral.HealthHealthy},
		{"exactly healthy floor", 20_000_000_000, 0, collateral.HealthHealthy},
		{"one below healthy floor", 19_999_999_999, 0, collateral.HealthWarning},
		{"exactly liquidation floor", 12_000_000_000, 0, collateral.HealthWarning},
		{"one below liquidation floor", 11_999_999_999, 0, collateral.HealthLiquidatable},
		{"debt raises both floors", 20_000_000_000, 1, collateral.HealthWarning},
	}
	for _, tc := range cases {
		if got := p.Evaluate(exposure, tc.posted, tc.debt); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestEvaluate_ZeroExposure(t *testing.T) {
	p := collateral.DefaultUserPolicy()
	if got := p.Evaluate(0, 0, 0); got != collateral.HealthHealthy {
		t.Errorf("no exposure, no debt: got %s, want Healthy", got)
	}
	if got := p.Evaluate(0, 0, 1); got != collateral.HealthLiquidatable {
		t.Errorf("uncovered debt: got %s, want Liquidatable", got)
	}
}

func TestRewardSplit(t *testing.T) {
	p := collateral.DefaultUserPolicy() // 5% reward

	reward, retained := p.RewardSplit(20_000_000_000)
	if reward != 1_000_000_000 {
		t.Errorf("reward: got %d, want 1_000_000_000", reward)
	}
	if retained != 19_000_000_000 {
		t.Errorf("retained: got %d, want 19_000_000_000", retained)
	}
	if reward+retained != 20_000_000_000 {
		t.Error("split must conserve the collateral")
	}
}

func TestRewardSplit_TruncationFavorsRetained(t *testing.T) {
	p := collateral.DefaultUserPolicy()
	reward, retained := p.RewardSplit(19) // 5% of 19 truncates to 0
	if reward != 0 {
		t.Errorf("reward: got %d, want 0", reward)
	}
	if retained != 19 {
		t.Errorf("retained: got %d, want 19", retained)
	}
}

func TestDefaultPolicies_ThresholdOrdering(t *testing.T) {
	for _, p := range []collateral.Policy{
		collateral.DefaultUserPolicy(),
		collateral.DefaultLPPolicy(),
	} {
		if p.LiquidationThreshold >= p.HealthyRatio {
			t.Errorf("liquidation threshold %d must sit below healthy ratio %d",
				p.LiquidationThreshold, p.HealthyRatio)
		}
	}
}
