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

// InitiateOffchainRebalance closes the active window: interest is accrued up
// to now and LPs enter the off-chain grace period to reposition privately.
func (e *Engine) InitiateOffchainRebalance() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "offchain_initiate"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if e.cycle.State != state.CycleStateActive {
		return e.opRejected(op, fmt.Errorf("%w: state=%s", ErrInvalidCycleState, e.cycle.State))
	}
	if now.Before(e.cycle.LastActionTime.Add(e.cfg.ActiveDuration)) {
		return e.opRejected(op, fmt.Errorf("%w: active window open until %s",
			ErrCycleInProgress, e.cycle.LastActionTime.Add(e.cfg.ActiveDuration).Format(time.RFC3339)))
	}

	seq := e.nextSequence()
	b := e.newBatch("interest_accrual", seq, now)
	res := e.accrueInterest(b, now)
	e.apply(b)
	if err := e.validator.ValidateInterestPoolZero(); err != nil {
		panic(fmt.Sprintf("interest pool not drained: %v", err))
	}

	e.emit(seq, event.EventTypeInterestAccrued, event.InterestAccrued{
		CycleIndex:     e.cycle.Index,
		ElapsedSeconds: res.ElapsedSeconds,
		Utilization:    res.Utilization,
		AnnualRate:     res.AnnualRate,
		Interest:       res.Interest,
		Collected:      res.Collected,
		ProtocolFee:    res.Fee,
	}, b, now)

	e.transition(state.CycleStateRebalancingOffchain, now)
	e.cycle.OffchainStartedAt = now

	e.emit(e.nextSequence(), event.EventTypeOffchainRebalanceInitiated, event.OffchainRebalanceInitiated{
		CycleIndex:      e.cycle.Index,
		InterestAccrued: res.Interest,
	}, nil, now)

	e.opApplied(op, start)
	return nil
}

// checkSettlementPreconditions enforces the shared freshness gates for
// leaving the off-chain phase: oracle updated after the window began, and a
// closed market for scheduled assets.
func (e *Engine) checkSettlementPreconditions(now time.Time) error {
	if e.cycle.State != state.CycleStateRebalancingOffchain {
		return fmt.Errorf("%w: state=%s", ErrInvalidCycleState, e.cycle.State)
	}
	if now.Before(e.cycle.OffchainStartedAt.Add(e.cfg.OffchainWindow)) {
		return fmt.Errorf("%w: off-chain window open until %s",
			ErrCycleInProgress, e.cycle.OffchainStartedAt.Add(e.cfg.OffchainWindow).Format(time.RFC3339))
	}
	if !e.deps.Oracle.LastUpdated().After(e.cycle.OffchainStartedAt) {
		return fmt.Errorf("%w: last oracle update %s predates window start",
			ErrOracleNotUpdated, e.deps.Oracle.LastUpdated().Format(time.RFC3339))
	}
	if e.deps.Oracle.Price() <= 0 {
		return fmt.Errorf("%w: no positive price", ErrOracleNotUpdated)
	}
	if e.cfg.ScheduledMarket && e.deps.Oracle.IsMarketOpen() {
		return fmt.Errorf("%w: settlement requires a closed market", ErrMarketOpen)
	}
	return nil
}

// InitiateOnchainRebalance fixes the cycle's settlement: the oracle price,
// pending totals and the signed rebalance amount, plus the LP deadline.
// Queued deposit reserve moves into the pool here so that every positive LP
// share is funded before it is allocated.
func (e *Engine) InitiateOnchainRebalance() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "onchain_initiate"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if err := e.checkSettlementPreconditions(now); err != nil {
		return e.opRejected(op, err)
	}

	price := e.deps.Oracle.Price()
	deposits, redemptions := e.users.PendingTotals(e.cycle.Index)
	result := ComputeRebalance(deposits, redemptions, price)

	seq := e.nextSequence()
	b := e.newBatch("onchain_initiate", seq, now)
	pool := reserve.NewSystemAccountKey(reserve.SubTypeSystemPool)

	for _, pos := range e.users.All() {
		req := pos.Pending
		if req == nil || req.Settled || req.RequestCycle != e.cycle.Index {
			continue
		}
		if req.Kind == state.UserRequestDeposit {
			b.add(
				pool,
				reserve.NewUserAccountKey(pos.ID, reserve.SubTypePendingDeposit),
				req.Amount, reserve.JournalTypeDepositSettle,
			)
		}
	}
	e.apply(b)

	c := e.cycle
	c.OraclePrice = price
	c.RebalanceAmount = result.RebalanceAmount
	c.PendingDeposits = deposits
	c.PendingRedemptions = redemptions
	c.RebalanceDeadline = now.Add(e.cfg.RebalanceWindow)
	c.RebalancedLPCount = 0
	c.AllocatedSoFar = 0

	// Snapshot commitments: shares are allocated proportionally against the
	// totals as they stood here, not against a ledger the earlier settlers
	// have already moved.
	e.settleCommitments = make(map[uuid.UUID]int64, e.lps.Len())
	e.settleTotal = 0
	for _, lp := range e.lps.All() {
		committed := e.tracker.LPCommitment(lp.ID)
		e.settleCommitments[lp.ID] = committed
		e.settleTotal += committed
	}
	e.settledShares = make(map[uuid.UUID]appliedShare, e.lps.Len())

	e.transition(state.CycleStateRebalancingOnchain, now)

	if m := e.deps.Metrics; m != nil {
		m.RebalanceAmount.Set(float64(result.RebalanceAmount))
		m.SettlementPrice.Set(float64(price))
		m.RebalancedLPs.Set(0)
	}

	e.emit(seq, event.EventTypeOnchainRebalanceInitiated, event.OnchainRebalanceInitiated{
		CycleIndex:      c.Index,
		OraclePrice:     price,
		RebalanceAmount: result.RebalanceAmount,
		PendingDeposits: deposits,
		PendingRedeems:  redemptions,
		RegisteredLPs:   e.lps.Len(),
	}, b, now)

	if e.lps.Len() == 0 {
		if c.RebalanceAmount == 0 {
			e.advanceCycle(now, false)
		} else {
			e.haltProtocol("non-zero rebalance with no registered LPs", now)
		}
	}

	e.opApplied(op, start)
	return nil
}

// StartNewCycle skips the on-chain phase entirely when there is nothing to
// settle: no queued deposits and no queued redemptions.
func (e *Engine) StartNewCycle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "start_new_cycle"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	if err := e.checkSettlementPreconditions(now); err != nil {
		return e.opRejected(op, err)
	}

	deposits, redemptions := e.users.PendingTotals(e.cycle.Index)
	if deposits != 0 || redemptions != 0 {
		return e.opRejected(op, fmt.Errorf("%w: pending requests require on-chain settlement",
			ErrCycleInProgress))
	}

	e.cycle.OraclePrice = e.deps.Oracle.Price()
	e.advanceCycle(now, false)

	e.opApplied(op, start)
	return nil
}

// RebalancePool settles one LP's proportional share of the cycle's
// rebalance amount. A positive share moves pooled deposit reserve into the
// LP's commitment; a negative share draws the LP's commitment (then
// collateral) into the pool to fund redemptions. The final LP's settlement
// advances the cycle.
func (e *Engine) RebalancePool(lpID uuid.UUID, proposedPrice int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "rebalance_pool"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	c := e.cycle
	if c.State != state.CycleStateRebalancingOnchain {
		return e.opRejected(op, fmt.Errorf("%w: state=%s", ErrInvalidCycleState, c.State))
	}
	if now.After(c.RebalanceDeadline) {
		return e.opRejected(op, fmt.Errorf("%w: deadline was %s",
			ErrRebalancingExpired, c.RebalanceDeadline.Format(time.RFC3339)))
	}

	lp, ok := e.lps.Get(lpID)
	if !ok {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrNotRegisteredLP, lpID))
	}
	if lp.LastRebalancedCycle >= c.Index {
		return e.opRejected(op, fmt.Errorf("%w: lp %s settled cycle %d",
			ErrAlreadyRebalanced, lpID, c.Index))
	}
	if !fixmath.WithinDeviation(proposedPrice, c.OraclePrice, e.cfg.DeviationTolerance) {
		return e.opRejected(op, fmt.Errorf("%w: proposed %d vs oracle %d (tolerance %d)",
			ErrPriceDeviationTooHigh, proposedPrice, c.OraclePrice, e.cfg.DeviationTolerance))
	}

	remaining := e.lps.Len() - int(c.RebalancedLPCount)
	share := AllocateShare(
		c.RebalanceAmount,
		e.settleCommitments[lpID],
		e.settleTotal,
		c.AllocatedSoFar,
		remaining == 1,
	)

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)
	applied, err := e.addShareJournals(b, lpID, share)
	if err != nil {
		return e.opRejected(op, err)
	}
	e.apply(b)
	if err := e.validator.ValidatePoolNonNegative(); err != nil {
		panic(fmt.Sprintf("pool overdrawn settling lp %s: %v", lpID, err))
	}

	e.settledShares[lpID] = applied
	c.AllocatedSoFar += share
	c.RebalancedLPCount++
	lp.LastRebalancedCycle = c.Index

	weight := share
	if weight < 0 {
		weight = -weight
	}
	c.ObservePrice(proposedPrice, weight)

	e.emit(seq, event.EventTypeLPRebalanced, event.LPRebalanced{
		CycleIndex:    c.Index,
		LPID:          lpID,
		ProposedPrice: proposedPrice,
		Share:         share,
		Remaining:     uint32(e.lps.Len()) - c.RebalancedLPCount,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.RebalanceSettlements.Inc()
		m.RebalancedLPs.Set(float64(c.RebalancedLPCount))
	}

	if int(c.RebalancedLPCount) == e.lps.Len() {
		e.advanceCycle(now, false)
	}

	e.opApplied(op, start)
	return nil
}

// addShareJournals emits the reserve movements for one LP share and returns
// the legs it applied. Negative shares draw commitment first, then
// collateral; an LP that cannot cover its share via either is rejected.
func (e *Engine) addShareJournals(b *batchBuilder, lpID uuid.UUID, share int64) (appliedShare, error) {
	pool := reserve.NewSystemAccountKey(reserve.SubTypeSystemPool)
	commitment := reserve.NewLPAccountKey(lpID, reserve.SubTypeCommitment)

	switch {
	case share > 0:
		b.add(commitment, pool, share, reserve.JournalTypeRebalanceContribution)
		return appliedShare{commitment: share}, nil
	case share < 0:
		need := -share
		fromCommitment := min(need, e.tracker.LPCommitment(lpID))
		fromCollateral := need - fromCommitment
		if fromCollateral > e.tracker.LPCollateral(lpID) {
			return appliedShare{}, fmt.Errorf("%w: lp %s owes %d, commitment %d collateral %d",
				ErrInsufficientCollateral, lpID, need,
				e.tracker.LPCommitment(lpID), e.tracker.LPCollateral(lpID))
		}
		b.add(pool, commitment, fromCommitment, reserve.JournalTypeRebalanceWithdrawal)
		b.add(pool, reserve.NewLPAccountKey(lpID, reserve.SubTypeLPCollateral),
			fromCollateral, reserve.JournalTypeRebalanceWithdrawal)
		return appliedShare{commitment: -fromCommitment, collateral: fromCollateral}, nil
	}
	return appliedShare{}, nil
}

// SettlePool is the forced path: callable by any registered LP once the
// rebalance deadline has passed, it settles every remaining LP at the
// cycle's oracle price and advances the cycle. If a swept LP cannot cover
// its share even from collateral the protocol is insolvent and halts.
func (e *Engine) SettlePool(callerID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "forced_settle"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	c := e.cycle
	if c.State != state.CycleStateRebalancingOnchain {
		return e.opRejected(op, fmt.Errorf("%w: state=%s", ErrInvalidCycleState, c.State))
	}
	if !now.After(c.RebalanceDeadline) {
		return e.opRejected(op, fmt.Errorf("%w: deadline %s not reached",
			ErrRebalancingNotExpired, c.RebalanceDeadline.Format(time.RFC3339)))
	}
	if _, ok := e.lps.Get(callerID); !ok {
		return e.opRejected(op, fmt.Errorf("%w: %s", ErrNotRegisteredLP, callerID))
	}

	var unsettled []*state.LPPosition
	for _, lp := range e.lps.All() {
		if lp.LastRebalancedCycle < c.Index {
			unsettled = append(unsettled, lp)
		}
	}

	seq := e.nextSequence()
	b := e.newBatch(op, seq, now)

	shares := make([]int64, len(unsettled))
	applied := make([]appliedShare, len(unsettled))
	allocated := c.AllocatedSoFar
	for i, lp := range unsettled {
		share := AllocateShare(
			c.RebalanceAmount,
			e.settleCommitments[lp.ID],
			e.settleTotal,
			allocated,
			i == len(unsettled)-1,
		)
		legs, err := e.addShareJournals(b, lp.ID, share)
		if err != nil {
			e.haltProtocol(fmt.Sprintf("forced settlement shortfall: %v", err), now)
			e.opApplied(op, start)
			return nil
		}
		shares[i] = share
		applied[i] = legs
		allocated += share
	}
	e.apply(b)
	if err := e.validator.ValidatePoolNonNegative(); err != nil {
		panic(fmt.Sprintf("pool overdrawn in forced settlement: %v", err))
	}

	for i, lp := range unsettled {
		lp.LastRebalancedCycle = c.Index
		c.RebalancedLPCount++
		e.settledShares[lp.ID] = applied[i]
		// A swept LP settles at the oracle price, which carries that LP's
		// liquidity weight in the cycle's weighted settlement price.
		c.ObservePrice(c.OraclePrice, shares[i])
	}
	c.AllocatedSoFar = allocated

	e.emit(seq, event.EventTypeCycleForceSettled, event.CycleForceSettled{
		CycleIndex:  c.Index,
		CalledBy:    callerID,
		SweptLPs:    len(unsettled),
		OraclePrice: c.OraclePrice,
	}, b, now)

	if m := e.deps.Metrics; m != nil {
		m.ForcedSettlements.Inc()
		m.RebalancedLPs.Set(float64(c.RebalancedLPCount))
	}

	e.advanceCycle(now, true)

	e.opApplied(op, start)
	return nil
}

// advanceCycle completes the current cycle: redemption payouts leave the
// pool at the cycle's oracle price, queued liquidity changes settle, the
// cycle is archived, and the next cycle opens. Caller holds the engine lock
// and has already applied every LP share.
func (e *Engine) advanceCycle(now time.Time, forced bool) {
	c := e.cycle
	weighted := c.WeightedPrice.Average(c.OraclePrice)

	seq := e.nextSequence()
	b := e.newBatch("cycle_advance", seq, now)
	pool := reserve.NewSystemAccountKey(reserve.SubTypeSystemPool)

	for _, pos := range e.users.All() {
		req := pos.Pending
		if req == nil || req.Settled || req.RequestCycle != c.Index {
			continue
		}
		if req.Kind == state.UserRequestRedeem {
			payout := fixmath.ConvertAssetToReserve(req.Amount, c.OraclePrice)
			b.add(
				reserve.NewUserAccountKey(pos.ID, reserve.SubTypeRedemptionPayout),
				pool,
				payout, reserve.JournalTypeRedemptionSettle,
			)
		}
		req.Settled = true
	}

	var exited []uuid.UUID
	for _, lp := range e.lps.All() {
		req := lp.Pending
		if req == nil {
			continue
		}
		switch req.Kind {
		case state.LPRequestAddLiquidity:
			b.add(
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeCommitment),
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypePendingLiquidity),
				e.tracker.LPPendingLiquidity(lp.ID), reserve.JournalTypeLPLiquiditySettle,
			)
		case state.LPRequestReduceLiquidity:
			amount := min(req.Amount, e.tracker.LPCommitment(lp.ID))
			b.add(
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeLPPayout),
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeCommitment),
				amount, reserve.JournalTypeLPReduceSettle,
			)
		case state.LPRequestLiquidate:
			b.add(
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeLPPayout),
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeCommitment),
				e.tracker.LPCommitment(lp.ID), reserve.JournalTypeLPExitSettle,
			)
			b.add(
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeLPPayout),
				reserve.NewLPAccountKey(lp.ID, reserve.SubTypeLPCollateral),
				e.tracker.LPCollateral(lp.ID), reserve.JournalTypeLPExitSettle,
			)
			exited = append(exited, lp.ID)
		}
		lp.Pending = nil
	}

	e.apply(b)
	if err := e.validator.ValidateInterestPoolZero(); err != nil {
		panic(fmt.Sprintf("interest pool not drained at cycle %d advance: %v", c.Index, err))
	}
	if err := e.validator.ValidatePoolNonNegative(); err != nil {
		panic(fmt.Sprintf("pool overdrawn at cycle %d advance: %v", c.Index, err))
	}

	for _, id := range exited {
		e.lps.Remove(id)
	}

	e.history.Append(state.CycleRecord{
		Index:           c.Index,
		SettlementPrice: c.OraclePrice,
		WeightedLPPrice: weighted,
		PriceHigh:       c.PriceHigh,
		PriceLow:        c.PriceLow,
		RebalanceAmount: c.RebalanceAmount,
		InterestAccrued: c.InterestAccrued,
		Forced:          forced,
		CompletedAt:     now,
	})

	e.transition(state.CycleStateActive, now)
	e.cycle = state.NewCycle(c.Index+1, now)
	e.settleCommitments = nil
	e.settleTotal = 0
	e.settledShares = nil

	e.deps.Logger.Info().
		Uint64("completed_cycle", c.Index).
		Int64("settlement_price", c.OraclePrice).
		Int64("rebalance_amount", c.RebalanceAmount).
		Bool("forced", forced).
		Msg("cycle advanced")

	e.emit(seq, event.EventTypeCycleStarted, event.CycleStarted{
		CycleIndex:      c.Index + 1,
		PreviousCycle:   c.Index,
		SettlementPrice: c.OraclePrice,
		WeightedLPPrice: weighted,
		PriceHigh:       c.PriceHigh,
		PriceLow:        c.PriceLow,
		RebalanceAmount: c.RebalanceAmount,
		InterestAccrued: c.InterestAccrued,
		Forced:          forced,
	}, b, now)
}

// haltProtocol enters the absorbing halted state. Caller holds the lock.
func (e *Engine) haltProtocol(reason string, now time.Time) {
	e.haltReason = reason
	e.haltedFrom = e.cycle.State
	e.transition(state.CycleStateHalted, now)

	e.deps.Logger.Warn().Str("reason", reason).Msg("protocol halted")

	e.emit(e.nextSequence(), event.EventTypeProtocolHalted, event.ProtocolHalted{
		CycleIndex: e.cycle.Index,
		Reason:     reason,
	}, nil, now)
}

// EmergencyHalt suspends every state-changing operation until Resume.
func (e *Engine) EmergencyHalt(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "emergency_halt"

	if err := e.rejectHalted(); err != nil {
		return e.opRejected(op, err)
	}
	e.haltProtocol(reason, now)
	e.opApplied(op, start)
	return nil
}

// Resume restores the engine to the Active phase. A settlement that was in
// flight when the halt occurred is unwound first, so the reopened cycle's
// requests stay cancellable and the next settlement starts from scratch.
// The active window restarts from now.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	now := e.now()
	const op = "resume"

	if e.cycle.State != state.CycleStateHalted {
		return e.opRejected(op, fmt.Errorf("%w: state=%s", ErrNotHalted, e.cycle.State))
	}

	seq := e.nextSequence()
	var b *batchBuilder
	if e.haltedFrom == state.CycleStateRebalancingOnchain {
		b = e.unwindSettlement(seq, now)
	}

	e.haltReason = ""
	e.haltedFrom = state.CycleStateActive
	e.transition(state.CycleStateActive, now)

	e.emit(seq, event.EventTypeProtocolResumed, event.ProtocolResumed{
		CycleIndex: e.cycle.Index,
	}, b, now)

	e.opApplied(op, start)
	return nil
}

// unwindSettlement reverses every reserve movement of an abandoned on-chain
// settlement: pooled deposits return to the users' pending accounts and each
// applied LP share is backed out. Pending requests survive intact, so a
// re-initiated settlement sweeps and allocates exactly once.
func (e *Engine) unwindSettlement(seq int64, now time.Time) *batchBuilder {
	c := e.cycle
	b := e.newBatch("settlement_unwind", seq, now)
	pool := reserve.NewSystemAccountKey(reserve.SubTypeSystemPool)

	for _, pos := range e.users.All() {
		req := pos.Pending
		if req == nil || req.Settled || req.RequestCycle != c.Index {
			continue
		}
		if req.Kind == state.UserRequestDeposit {
			b.add(
				reserve.NewUserAccountKey(pos.ID, reserve.SubTypePendingDeposit),
				pool, req.Amount, reserve.JournalTypeAdjustment,
			)
		}
	}

	for _, lp := range e.lps.All() {
		legs, ok := e.settledShares[lp.ID]
		if ok {
			commitment := reserve.NewLPAccountKey(lp.ID, reserve.SubTypeCommitment)
			switch {
			case legs.commitment > 0:
				b.add(pool, commitment, legs.commitment, reserve.JournalTypeAdjustment)
			case legs.commitment < 0:
				b.add(commitment, pool, -legs.commitment, reserve.JournalTypeAdjustment)
			}
			b.add(reserve.NewLPAccountKey(lp.ID, reserve.SubTypeLPCollateral), pool,
				legs.collateral, reserve.JournalTypeAdjustment)
		}
		if lp.LastRebalancedCycle == c.Index {
			lp.LastRebalancedCycle = c.Index - 1
		}
	}

	e.apply(b)
	if err := e.validator.ValidatePoolNonNegative(); err != nil {
		panic(fmt.Sprintf("pool overdrawn unwinding cycle %d settlement: %v", c.Index, err))
	}

	c.OraclePrice = 0
	c.RebalanceAmount = 0
	c.PendingDeposits = 0
	c.PendingRedemptions = 0
	c.RebalanceDeadline = time.Time{}
	c.RebalancedLPCount = 0
	c.AllocatedSoFar = 0
	c.PriceHigh = 0
	c.PriceLow = 0
	c.WeightedPrice = fixmath.NewWeightedPrice()
	e.settleCommitments = nil
	e.settleTotal = 0
	e.settledShares = nil

	e.deps.Logger.Info().
		Uint64("cycle", c.Index).
		Int("journals", len(b.batch.Journals)).
		Msg("abandoned settlement unwound")

	return b
}
