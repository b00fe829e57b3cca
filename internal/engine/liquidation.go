package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/collateral"
	"SynthLedger/internal/event"
	"SynthLedger/internal/fixmath"
	"SynthLedger/internal/reserve"
	"SynthLedger/internal/state"
)

// LiquidateUser closes an undercollateralized user position: the target's
// minted tokens are burned, the liquidator takes the reward slice of the
// collateral, and the protocol retains the rest. A tokens-in-escrow
// redemption is untouched; its payout is already reserve-bound.
func (e *Engine) LiquidateUser(liquidatorID, targetID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "liquidate_user"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}

	pos, ok := e.users.Lookup(targetID)
	if !ok {
		return e.opRejected(op, fmt.Errorf("%w: user %s", ErrUnknownPrincipal, targetID))
	}

	price := e.deps.Oracle.Price()
	exposure := e.userExposure(pos)
	exposureValue := fixmath.ConvertAssetToReserve(exposure, price)
	posted := e.tracker.UserCollateral(targetID)

	health := e.cfg.UserPolicy.Evaluate(exposureValue, posted, pos.ScaledInterestDebt)
	if health != collateral.HealthLiquidatable {
		return e.opRejected(op, fmt.Errorf("%w: user %s is %s (exposure=%d collateral=%d debt=%d)",
			ErrPositionNotLiquidatable, targetID, health, exposureValue, posted, pos.ScaledInterestDebt))
	}

	reward, retained := e.cfg.UserPolicy.RewardSplit(posted)
	e.users.Get(liquidatorID)

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	targetCollateral := reserve.NewUserAccountKey(targetID, reserve.SubTypeCollateral)
	b.add(
		reserve.NewUserAccountKey(liquidatorID, reserve.SubTypeCollateral),
		targetCollateral,
		reward, reserve.JournalTypeLiquidationReward,
	)
	b.add(
		reserve.NewSystemAccountKey(reserve.SubTypeSystemFees),
		targetCollateral,
		retained, reserve.JournalTypeLiquidationRetained,
	)
	e.apply(b)

	if held := e.deps.Token.BalanceOf(targetID); held > 0 {
		if err := e.deps.Token.Burn(targetID, held, price); err != nil {
			panic(fmt.Sprintf("liquidation burn failed for %s: %v", targetID, err))
		}
	}

	pos.ScaledInterestDebt = 0
	if pos.Pending == nil {
		e.users.Remove(targetID)
	}

	e.emit(seq, event.EventTypePositionLiquidated, event.PositionLiquidated{
		CycleIndex: e.cycle.Index,
		Principal:  targetID,
		Liquidator: liquidatorID,
		IsLP:       false,
		Reward:     reward,
		Retained:   retained,
		Exposure:   exposureValue,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.LiquidationsTotal.WithLabelValues("user").Inc()
	}
	e.opApplied(op, start)
	return nil
}

// LiquidateLP removes an undercollateralized liquidity provider. The LP's
// commitment reverts to the pool as orphaned backing, the liquidator takes
// the reward slice of the collateral, and the protocol retains the rest.
// Queued liquidity and accrued interest stay claimable by the former LP.
// Rejected while a settlement is in flight: the participating set is fixed.
func (e *Engine) LiquidateLP(liquidatorID, targetID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "liquidate_lp"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State == state.CycleStateRebalancingOnchain {
		return e.opRejected(op, fmt.Errorf("%w: settlement in flight", ErrCycleInProgress))
	}

	if _, ok := e.lps.Get(targetID); !ok {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrNotRegisteredLP, targetID))
	}

	price := e.deps.Oracle.Price()
	totalExposureValue := fixmath.ConvertAssetToReserve(e.deps.Token.TotalSupply(), price)
	totalCommitment := e.totalCommitment()
	commitment := e.tracker.LPCommitment(targetID)
	posted := e.tracker.LPCollateral(targetID)

	var exposureShare int64
	if totalCommitment > 0 {
		exposureShare = fixmath.MulDiv(totalExposureValue, commitment, totalCommitment)
	}

	health := e.cfg.LPPolicy.Evaluate(exposureShare, posted, 0)
	if health != collateral.HealthLiquidatable {
		return e.opRejected(op, fmt.Errorf("%w: lp %s is %s (exposure=%d collateral=%d)",
			ErrPositionNotLiquidatable, targetID, health, exposureShare, posted))
	}

	reward, retained := e.cfg.LPPolicy.RewardSplit(posted)
	e.users.Get(liquidatorID)

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	targetCollateral := reserve.NewLPAccountKey(targetID, reserve.SubTypeLPCollateral)
	b.add(
		reserve.NewUserAccountKey(liquidatorID, reserve.SubTypeCollateral),
		targetCollateral,
		reward, reserve.JournalTypeLiquidationReward,
	)
	b.add(
		reserve.NewSystemAccountKey(reserve.SubTypeSystemFees),
		targetCollateral,
		retained, reserve.JournalTypeLiquidationRetained,
	)
	b.add(
		reserve.NewSystemAccountKey(reserve.SubTypeSystemPool),
		reserve.NewLPAccountKey(targetID, reserve.SubTypeCommitment),
		commitment, reserve.JournalTypeLiquidationRetained,
	)
	// Never-committed queued liquidity returns to the LP as a payout.
	b.add(
		reserve.NewLPAccountKey(targetID, reserve.SubTypeLPPayout),
		reserve.NewLPAccountKey(targetID, reserve.SubTypePendingLiquidity),
		e.tracker.LPPendingLiquidity(targetID), reserve.JournalTypeLPExitSettle,
	)
	e.apply(b)

	e.lps.Remove(targetID)

	e.emit(seq, event.EventTypePositionLiquidated, event.PositionLiquidated{
		CycleIndex: e.cycle.Index,
		Principal:  targetID,
		Liquidator: liquidatorID,
		IsLP:       true,
		Reward:     reward,
		Retained:   retained,
		Exposure:   exposureShare,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.LiquidationsTotal.WithLabelValues("lp").Inc()
	}
	e.opApplied(op, start)
	return nil
}
