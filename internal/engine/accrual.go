package engine

import (
	"time"

	"SynthLedger/internal/fixmath"
	"SynthLedger/internal/reserve"
)

// accrualResult summarizes one interest accrual pass.
type accrualResult struct {
	ElapsedSeconds int64
	Utilization    int64 // ratio scale
	AnnualRate     int64 // ratio scale
	Interest       int64 // total charged to users
	Collected      int64 // portion actually taken from collateral
	Fee            int64 // protocol fee plus distribution residual
}

// accrueInterest charges interest on outstanding exposure for the elapsed
// period and distributes the collected amount: protocol fee first, the rest
// pro-rata to LP commitments. The interest pool is a transient clearing
// account and must return to zero within the same batch.
//
// Caller holds the engine lock and supplies the batch the journals join.
func (e *Engine) accrueInterest(b *batchBuilder, now time.Time) accrualResult {
	res := accrualResult{
		ElapsedSeconds: int64(now.Sub(e.lastAccrualTime) / time.Second),
	}
	e.lastAccrualTime = now

	if res.ElapsedSeconds <= 0 {
		return res
	}

	price := e.deps.Oracle.Price()
	totalSupply := e.deps.Token.TotalSupply()
	totalCommitment := e.totalCommitment()
	exposureValue := fixmath.ConvertAssetToReserve(totalSupply, price)

	if totalCommitment > 0 {
		res.Utilization = fixmath.MulDiv(exposureValue, fixmath.RatioConfig.Scale, totalCommitment)
	}
	res.AnnualRate = e.deps.Rates.RateForUtilization(res.Utilization)

	if totalSupply <= 0 || exposureValue <= 0 {
		return res
	}

	totalInterest := fixmath.ComputeInterest(exposureValue, res.AnnualRate, res.ElapsedSeconds)
	if totalInterest <= 0 {
		return res
	}

	interestPool := reserve.NewSystemAccountKey(reserve.SubTypeSystemInterestPool)
	feeAccount := reserve.NewSystemAccountKey(reserve.SubTypeSystemFees)

	// Charge each exposed user its proportional share, truncated toward
	// zero: the aggregate charged never exceeds totalInterest. What the
	// user's collateral cannot cover becomes interest debt.
	for _, pos := range e.users.All() {
		exposure := e.userExposure(pos)
		if exposure <= 0 {
			continue
		}

		charged := fixmath.MulDiv(totalInterest, exposure, totalSupply)
		if charged <= 0 {
			continue
		}
		res.Interest += charged

		available := e.tracker.UserCollateral(pos.ID)
		collected := charged
		if collected > available {
			collected = available
		}
		if collected > 0 {
			b.add(
				interestPool,
				reserve.NewUserAccountKey(pos.ID, reserve.SubTypeCollateral),
				collected, reserve.JournalTypeInterestCharge,
			)
			res.Collected += collected
		}
		if shortfall := charged - collected; shortfall > 0 {
			pos.ScaledInterestDebt += shortfall
		}
	}

	if res.Collected <= 0 {
		return res
	}

	fee := fixmath.MulDiv(res.Collected, e.cfg.ProtocolFee, fixmath.RatioConfig.Scale)
	distributable := res.Collected - fee

	var distributed int64
	if totalCommitment > 0 {
		for _, lp := range e.lps.All() {
			share := fixmath.MulDiv(distributable, e.tracker.LPCommitment(lp.ID), totalCommitment)
			if share <= 0 {
				continue
			}
			b.add(
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeInterestAccrued),
				interestPool,
				share, reserve.JournalTypeInterestDistribute,
			)
			distributed += share
		}
	}

	// Fee plus the rounding residual; drains the interest pool to zero.
	res.Fee = res.Collected - distributed
	b.add(feeAccount, interestPool, res.Fee, reserve.JournalTypeInterestFee)

	e.cycle.InterestAccrued += res.Interest

	if m := e.deps.Metrics; m != nil {
		m.InterestAccrued.Add(float64(res.Interest))
		m.InterestCollected.Add(float64(res.Collected))
		m.InterestFees.Add(float64(res.Fee))
		m.UtilizationRatio.Set(float64(res.Utilization))
		m.AnnualRate.Set(float64(res.AnnualRate))
	}

	return res
}
