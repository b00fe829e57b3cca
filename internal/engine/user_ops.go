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
	"SynthLedger/internal/token"
)

// DepositUserCollateral posts additional collateral for a user.
func (e *Engine) DepositUserCollateral(userID uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "user_collateral_deposit"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if amount <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: collateral amount %d", ErrZeroAmount, amount))
	}

	e.users.Get(userID)

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	b.add(
		reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		amount, reserve.JournalTypeUserCollateral,
	)
	e.apply(b)

	e.emit(seq, event.EventTypeRequestSubmitted, event.RequestSubmitted{
		CycleIndex: e.cycle.Index,
		Principal:  userID,
		Kind:       "collateral_deposit",
		Amount:     amount,
	}, b, now)

	e.opApplied(op, start)
	return nil
}

// WithdrawUserCollateral releases collateral, provided the position stays
// at or above the healthy ratio afterwards.
func (e *Engine) WithdrawUserCollateral(userID uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "user_collateral_withdraw"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if amount <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: withdraw amount %d", ErrZeroAmount, amount))
	}

	pos, ok := e.users.Lookup(userID)
	if !ok {
		return e.opRejected(op, fmt.Errorf("%w: user %s", ErrUnknownPrincipal, userID))
	}

	posted := e.tracker.UserCollateral(userID)
	if posted < amount {
		return e.opRejected(op, fmt.Errorf("%w: have %d, withdrawing %d",
			ErrInsufficientCollateral, posted, amount))
	}

	exposureValue := fixmath.ConvertAssetToReserve(e.userExposure(pos), e.deps.Oracle.Price())
	remaining := posted - amount
	if e.cfg.UserPolicy.Evaluate(exposureValue, remaining, pos.ScaledInterestDebt) != collateral.HealthHealthy {
		return e.opRejected(op, fmt.Errorf("%w: %d would fall below healthy floor for exposure %d",
			ErrInsufficientCollateral, remaining, exposureValue))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	b.add(
		reserve.NewExternalAccountKey(reserve.SubTypeExternalWithdrawals),
		reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral),
		amount, reserve.JournalTypeUserCollateralWithdraw,
	)
	e.apply(b)

	e.emit(seq, event.EventTypeRequestSubmitted, event.RequestSubmitted{
		CycleIndex: e.cycle.Index,
		Principal:  userID,
		Kind:       "collateral_withdraw",
		Amount:     amount,
	}, b, now)

	e.opApplied(op, start)
	return nil
}

// SubmitDeposit queues a mint request: amount reserve units to convert into
// asset tokens at the next settlement price, plus collateral covering the
// prospective exposure at the healthy ratio.
func (e *Engine) SubmitDeposit(userID uuid.UUID, amount, collateralAmount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "user_deposit"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State != state.CycleStateActive {
		return e.opRejected(op, fmt.Errorf("%w: requests accepted only while active, state=%s",
			ErrInvalidCycleState, e.cycle.State))
	}
	if amount <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: deposit amount %d", ErrZeroAmount, amount))
	}
	if collateralAmount < 0 {
		return e.opRejected(op, fmt.Errorf("%w: negative collateral", ErrZeroAmount))
	}

	pos := e.users.Get(userID)
	if pos.Pending != nil {
		return e.opRejected(op, fmt.Errorf("%w: %s already pending",
			ErrRequestPending, pos.Pending.Kind))
	}

	// The position must be healthy against its prospective exposure: current
	// exposure plus the full deposit value, priced at the current oracle price.
	exposureValue := fixmath.ConvertAssetToReserve(e.userExposure(pos), e.deps.Oracle.Price())
	totalCollateral := e.tracker.UserCollateral(userID) + collateralAmount
	if e.cfg.UserPolicy.Evaluate(exposureValue+amount, totalCollateral, pos.ScaledInterestDebt) != collateral.HealthHealthy {
		return e.opRejected(op, fmt.Errorf("%w: %d collateral for prospective exposure %d",
			ErrInsufficientCollateral, totalCollateral, exposureValue+amount))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	b.add(
		reserve.NewUserAccountKey(userID, reserve.SubTypePendingDeposit),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		amount, reserve.JournalTypeUserDeposit,
	)
	b.add(
		reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral),
		reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
		collateralAmount, reserve.JournalTypeUserCollateral,
	)
	e.apply(b)

	pos.Pending = &state.UserRequest{
		Kind:             state.UserRequestDeposit,
		Amount:           amount,
		CollateralAmount: collateralAmount,
		RequestCycle:     e.cycle.Index,
	}

	e.emit(seq, event.EventTypeRequestSubmitted, event.RequestSubmitted{
		CycleIndex: e.cycle.Index,
		Principal:  userID,
		Kind:       "deposit",
		Amount:     amount,
		Collateral: collateralAmount,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsSubmitted.WithLabelValues("deposit").Inc()
	}
	e.opApplied(op, start)
	return nil
}

// SubmitRedeem queues a redemption: amount asset tokens are escrowed and
// converted to reserve at the next settlement price.
func (e *Engine) SubmitRedeem(userID uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "user_redeem"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State != state.CycleStateActive {
		return e.opRejected(op, fmt.Errorf("%w: requests accepted only while active, state=%s",
			ErrInvalidCycleState, e.cycle.State))
	}
	if amount <= 0 {
		return e.opRejected(op, fmt.Errorf("%w: redeem amount %d", ErrZeroAmount, amount))
	}

	pos := e.users.Get(userID)
	if pos.Pending != nil {
		return e.opRejected(op, fmt.Errorf("%w: %s already pending",
			ErrRequestPending, pos.Pending.Kind))
	}

	if held := e.deps.Token.BalanceOf(userID); held < amount {
		return e.opRejected(op, fmt.Errorf("%w: hold %d tokens, redeeming %d",
			ErrInsufficientLiquidity, held, amount))
	}
	if err := e.deps.Token.Transfer(userID, token.EscrowAccount, amount); err != nil {
		return e.opRejected(op, fmt.Errorf("%w: escrow transfer: %v", ErrInsufficientLiquidity, err))
	}

	pos.Pending = &state.UserRequest{
		Kind:         state.UserRequestRedeem,
		Amount:       amount,
		RequestCycle: e.cycle.Index,
	}

	seq := e.nextSequence()
	e.emit(seq, event.EventTypeRequestSubmitted, event.RequestSubmitted{
		CycleIndex: e.cycle.Index,
		Principal:  userID,
		Kind:       "redeem",
		Amount:     amount,
	}, nil, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsSubmitted.WithLabelValues("redeem").Inc()
	}
	e.opApplied(op, start)
	return nil
}

// CancelUserRequest withdraws the caller's pending request. Rejected once
// the on-chain phase has fixed the cycle's settlement totals.
func (e *Engine) CancelUserRequest(userID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "user_cancel"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State == state.CycleStateRebalancingOnchain {
		return e.opRejected(op, fmt.Errorf("%w: settlement totals are fixed", ErrCycleInProgress))
	}

	pos, ok := e.users.Lookup(userID)
	if !ok || pos.Pending == nil || pos.Pending.Settled {
		return e.opRejected(op, fmt.Errorf("%w: user %s", ErrNothingToCancel, userID))
	}
	req := pos.Pending

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)

	switch req.Kind {
	case state.UserRequestDeposit:
		b.add(
			reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
			reserve.NewUserAccountKey(userID, reserve.SubTypePendingDeposit),
			req.Amount, reserve.JournalTypeUserDepositCancel,
		)
		b.add(
			reserve.NewExternalAccountKey(reserve.SubTypeExternalDeposits),
			reserve.NewUserAccountKey(userID, reserve.SubTypeCollateral),
			req.CollateralAmount, reserve.JournalTypeUserDepositCancel,
		)
		e.apply(b)
	case state.UserRequestRedeem:
		if err := e.deps.Token.Transfer(token.EscrowAccount, userID, req.Amount); err != nil {
			panic(fmt.Sprintf("escrow release failed for %s: %v", userID, err))
		}
	}

	pos.Pending = nil

	e.emit(seq, event.EventTypeRequestCancelled, event.RequestCancelled{
		CycleIndex: e.cycle.Index,
		Principal:  userID,
		Kind:       req.Kind.String(),
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsCancelled.WithLabelValues(req.Kind.String()).Inc()
	}
	e.opApplied(op, start)
	return nil
}

// ClaimUserRequest resolves a settled request: deposits mint asset tokens at
// the cycle's liquidity-weighted settlement price; redemptions burn the
// escrowed tokens and release the reserve payout. The payout itself was
// journaled at the cycle's oracle price, the price that fixed the rebalance
// amount the pool was funded with; the deviation band bounds the gap between
// the two.
func (e *Engine) ClaimUserRequest(userID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "user_claim"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}

	pos, ok := e.users.Lookup(userID)
	if !ok || pos.Pending == nil || !pos.Pending.Settled {
		return e.opRejected(op, fmt.Errorf("%w: user %s", ErrNothingToClaim, userID))
	}
	req := pos.Pending

	record, ok := e.history.Get(req.RequestCycle)
	if !ok {
		return e.opRejected(op, fmt.Errorf("%w: cycle %d not archived",
			ErrNothingToClaim, req.RequestCycle))
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)

	switch req.Kind {
	case state.UserRequestDeposit:
		minted := fixmath.ConvertReserveToAsset(req.Amount, record.WeightedLPPrice)
		if err := e.deps.Token.Mint(userID, minted, record.WeightedLPPrice); err != nil {
			panic(fmt.Sprintf("mint failed for %s: %v", userID, err))
		}
	case state.UserRequestRedeem:
		if err := e.deps.Token.Burn(token.EscrowAccount, req.Amount, record.WeightedLPPrice); err != nil {
			panic(fmt.Sprintf("escrow burn failed for %s: %v", userID, err))
		}
		payout := e.tracker.UserRedemptionPayout(userID)
		b.add(
			reserve.NewExternalAccountKey(reserve.SubTypeExternalWithdrawals),
			reserve.NewUserAccountKey(userID, reserve.SubTypeRedemptionPayout),
			payout, reserve.JournalTypeRedemptionPayout,
		)
		e.apply(b)
	}

	pos.Pending = nil

	e.emit(seq, event.EventTypeRequestClaimed, event.RequestClaimed{
		CycleIndex:      e.cycle.Index,
		RequestCycle:    req.RequestCycle,
		Principal:       userID,
		Kind:            req.Kind.String(),
		Amount:          req.Amount,
		SettlementPrice: record.WeightedLPPrice,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RequestsClaimed.WithLabelValues(req.Kind.String()).Inc()
	}
	e.opApplied(op, start)
	return nil
}
