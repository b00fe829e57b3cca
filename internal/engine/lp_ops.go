package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixmath"
	"SynthLedger/internal/reserve"
	"SynthLedger/internal/state"
)

// RegisterLP admits a new liquidity provider with an initial commitment and
// collateral. Registration is rejected while a settlement is in flight: the
// participating LP set is fixed when the on-chain phase begins.
func (e *Engine) RegisterLP(lpID uuid.UUID, commitment, collateralAmount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "lp_register"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State == state.CycleStateRebalancingOnchain {
		return e.opRejected(op, fmt.Errorf("%w: settlement in flight", ErrCycleInProgress))
	}
	if commitment <= 0 || collateralAmount <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: commitment=%d collateral=%d",
			ErrZeroAmount, commitment, collateralAmount))
	}
	if commitment < e.cfg.MinLPCommitment {
		return e.opRejected(op, fmt.Errorf("%w: %d below minimum %d",
			ErrBelowMinimumCommitment, commitment, e.cfg.MinLPCommitment))
	}

	// Collateral must cover the healthy ratio on the full commitment, the
	// LP's worst-case exposure share.
	healthyFloor := fixmath.MulDiv(commitment, e.cfg.LPPolicy.HealthyRatio, fixmath.RatioConfig.Scale)
	if collateralAmount < healthyFloor {
		return e.opRejected(op, fmt.Errorf("%w: %d collateral below healthy floor %d",
			ErrInsufficientCollateral, collateralAmount, healthyFloor))
	}

	pos := state.LPPosition{
		ID:              lpID,
		RegisteredCycle: e.cycle.Index,
		// Eligible for the current cycle's settlement.
		LastRebalancedCycle: e.cycle.Index - 1,
	}
	if !e.lps.Add(pos) {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrLPAlreadyRegistered, lpID))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	b.add(
		reserve.NewLPAccountKey(lpID, reserve.SubTypeCommitment),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		commitment, reserve.JournalTypeLPRegister,
	)
	b.add(
		reserve.NewLPAccountKey(lpID, reserve.SubTypeLPCollateral),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		collateralAmount, reserve.JournalTypeLPCollateral,
	)
	e.apply(b)

	e.emit(seq, event.EventTypeLPRegistered, event.LPRegistered{
		CycleIndex: e.cycle.Index,
		LPID:       lpID,
		Commitment: commitment,
		Collateral: collateralAmount,
	}, b, now)

	e.opApplied(op, start)
	return nil
}

// DepositLPCollateral posts additional LP collateral.
func (e *Engine) DepositLPCollateral(lpID uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "lp_collateral_deposit"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if amount <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: collateral amount %d", ErrZeroAmount, amount))
	}
	if _, ok := e.lps.Get(lpID); !ok {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrNotRegisteredLP, lpID))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	b.add(
		reserve.NewLPAccountKey(lpID, reserve.SubTypeLPCollateral),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		amount, reserve.JournalTypeLPCollateral,
	)
	e.apply(b)

	e.emit(seq, event.EventTypeRequestSubmitted, event.RequestSubmitted{
		CycleIndex: e.cycle.Index,
		Principal:  lpID,
		Kind:       "lp_collateral_deposit",
		Amount:     amount,
	}, b, now)

	e.opApplied(op, start)
	return nil
}

// SubmitLPRequest queues a liquidity change resolved at the next cycle
// settlement: add liquidity, reduce the commitment, or exit entirely.
func (e *Engine) SubmitLPRequest(lpID uuid.UUID, kind state.LPRequestKind, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "lp_request"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State != state.CycleStateActive {
		return e.opRejected(op, fmt.Errorf("%w: requests accepted only while active, state=%s",
			ErrInvalidCycleState, e.cycle.State))
	}

	pos, ok := e.lps.Get(lpID)
	if !ok {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrNotRegisteredLP, lpID))
	}
	if pos.Pending != nil {
		return e.opRejected(op, fmt.Errorf("%w: %s already pending",
			ErrRequestPending, pos.Pending.Kind))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)

	switch kind {
	case state.LPRequestAddLiquidity:
		if amount <= 0 {
			return e.opRejected(op, fmt.Errorf("%w: add amount %d", ErrZeroAmount, amount))
		}
		b.add(
			reserve.NewLPAccountKey(lpID, reserve.SubTypePendingLiquidity),
			reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
			amount, reserve.JournalTypeLPAddLiquidity,
		)
	case state.LPRequestReduceLiquidity:
		if amount <= 0 {
			return e.opRejected(op, fmt.Errorf("%w: reduce amount %d", ErrZeroAmount, amount))
		}
		committed := e.tracker.LPCommitment(lpID)
		if amount > committed {
			return e.opRejected(op, fmt.Errorf("%w: committed %d, reducing %d",
				ErrInsufficientLiquidity, committed, amount))
		}
		if committed-amount > 0 && committed-amount < e.cfg.MinLPCommitment {
			return e.opRejected(op, fmt.Errorf("%w: %d would remain below minimum %d",
				ErrBelowMinimumCommitment, committed-amount, e.cfg.MinLPCommitment))
		}
		if err := e.checkExitLeavesBacking(amount); err != nil {
			return e.opRejected(op, err)
		}
	case state.LPRequestLiquidate:
		// Full exit; amount is ignored.
		amount = 0
		if err := e.checkExitLeavesBacking(e.tracker.LPCommitment(lpID)); err != nil {
			return e.opRejected(op, err)
		}
	default:
		return e.opRejected(op, fmt.Errorf("%w: unknown request kind %d", ErrZeroAmount, kind))
	}

	e.apply(b)
	pos.Pending = &state.LPRequest{
		Kind:         kind,
		Amount:       amount,
		RequestCycle: e.cycle.Index,
	}

	e.emit(seq, event.EventTypeRequestSubmitted, event.RequestSubmitted{
		CycleIndex: e.cycle.Index,
		Principal:  lpID,
		Kind:       kind.String(),
		Amount:     amount,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsSubmitted.WithLabelValues(kind.String()).Inc()
	}
	e.opApplied(op, start)
	return nil
}

// checkExitLeavesBacking rejects a reduction or exit that would leave the
// committed liquidity, net of changes already queued by other LPs, below the
// reserve value of the outstanding token supply.
func (e *Engine) checkExitLeavesBacking(leaving int64) error {
	backing := fixmath.ConvertAssetToReserve(e.deps.Token.TotalSupply(), e.deps.Oracle.Price())
	remaining := e.totalCommitment() - e.pendingReductionTotal() - leaving
	if remaining < backing {
		return fmt.Errorf("%w: %d committed would remain against %d outstanding exposure",
			ErrInsufficientLiquidity, remaining, backing)
	}
	return nil
}

// CancelLPRequest withdraws the caller's pending liquidity change.
func (e *Engine) CancelLPRequest(lpID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "lp_cancel"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State == state.CycleStateRebalancingOnchain {
		return e.opRejected(op, fmt.Errorf("%w: settlement in flight", ErrCycleInProgress))
	}

	pos, ok := e.lps.Get(lpID)
	if !ok {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrNotRegisteredLP, lpID))
	}
	if pos.Pending == nil {
		return e.opRejected(op, fmt.Errorf("%w: lp %s", ErrNothingToCancel, lpID))
	}
	req := pos.Pending

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	if req.Kind == state.LPRequestAddLiquidity {
		b.add(
			reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
			reserve.NewLPAccountKey(lpID, reserve.SubTypePendingLiquidity),
			req.Amount, reserve.JournalTypeLPAddLiquidityCancel,
		)
	}
	e.apply(b)
	pos.Pending = nil

	e.emit(seq, event.EventTypeRequestCancelled, event.RequestCancelled{
		CycleIndex: e.cycle.Index,
		Principal:  lpID,
		Kind:       req.Kind.String(),
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsCancelled.WithLabelValues(req.Kind.String()).Inc()
	}
	e.opApplied(op, start)
	return nil
}

// ClaimLPPayout withdraws everything owed to the LP: settled reductions,
// exit proceeds, and accrued interest. Valid after exit as well, which is
// why it keys on balances rather than registration.
func (e *Engine) ClaimLPPayout(lpID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "lp_claim"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}

	payout := e.tracker.LPPayout(lpID)
	interest := e.tracker.LPInterestAccrued(lpID)
	if payout <= 0 && interest <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: lp %s", ErrNothingToClaim, lpID))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	b.add(
		reserve.NewExternalAccountKey(reserve.SubTypeExternalWithdrawals),
		reserve.NewLPAccountKey(lpID, reserve.SubTypeLPPayout),
		payout, reserve.JournalTypeLPPayoutClaim,
	)
	b.add(
		reserve.NewExternalAccountKey(reserve.SubTypeExternalWithdrawals),
		reserve.NewLPAccountKey(lpID, reserve.SubTypeInterestAccrued),
		interest, reserve.JournalTypeLPPayoutClaim,
	)
	e.apply(b)

	e.emit(seq, event.EventTypeRequestClaimed, event.RequestClaimed{
		CycleIndex: e.cycle.Index,
		Principal:  lpID,
		Kind:       "lp_payout",
		Amount:     payout + interest,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsClaimed.WithLabelValues("lp_payout").Inc()
	}
	e.opApplied(op, start)
	return nil
}
