package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixmath"
	"SynthLedger/internal/state"
)

// CycleStatus is a read-only snapshot of the live cycle.
type CycleStatus struct {
	Index              uint64    `json:"index"`
	State              string    `json:"state"`
	LastActionTime     time.Time `json:"last_action_time"`
	OffchainStartedAt  time.Time `json:"offchain_started_at,omitempty"`
	RebalanceDeadline  time.Time `json:"rebalance_deadline,omitempty"`
	OraclePrice        int64     `json:"oracle_price"`
	RebalanceAmount    int64     `json:"rebalance_amount"`
	PendingDeposits    int64     `json:"pending_deposits"`
	PendingRedemptions int64     `json:"pending_redemptions"`
	InterestAccrued    int64     `json:"interest_accrued"`
	RebalancedLPCount  uint32    `json:"rebalanced_lp_count"`
	RegisteredLPs      int       `json:"registered_lps"`
	PoolBalance        int64     `json:"pool_balance"`
	TotalCommitment    int64     `json:"total_commitment"`
	TotalSupply        int64     `json:"total_supply"`
	HaltReason         string    `json:"halt_reason,omitempty"`
}

// Status returns the live cycle snapshot.
func (e *Engine) Status() CycleStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.cycle
	return CycleStatus{
		Index:              c.Index,
		State:              c.State.String(),
		LastActionTime:     c.LastActionTime,
		OffchainStartedAt:  c.OffchainStartedAt,
		RebalanceDeadline:  c.RebalanceDeadline,
		OraclePrice:        c.OraclePrice,
		RebalanceAmount:    c.RebalanceAmount,
		PendingDeposits:    c.PendingDeposits,
		PendingRedemptions: c.PendingRedemptions,
		InterestAccrued:    c.InterestAccrued,
		RebalancedLPCount:  c.RebalancedLPCount,
		RegisteredLPs:      e.lps.Len(),
		PoolBalance:        e.tracker.PoolBalance(),
		TotalCommitment:    e.totalCommitment(),
		TotalSupply:        e.deps.Token.TotalSupply(),
		HaltReason:         e.haltReason,
	}
}

// CycleRecordAt returns the archive entry for a completed cycle.
func (e *Engine) CycleRecordAt(index uint64) (state.CycleRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Get(index)
}

// CompletedCycles returns how many cycles have been archived.
func (e *Engine) CompletedCycles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// PendingRequest describes an in-flight request in status responses.
type PendingRequest struct {
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	RequestCycle uint64 `json:"request_cycle"`
	Settled      bool   `json:"settled,omitempty"`
}

// LPStatus is a read-only snapshot of one liquidity provider.
type LPStatus struct {
	ID                  uuid.UUID       `json:"id"`
	Commitment          int64           `json:"commitment"`
	Collateral          int64           `json:"collateral"`
	InterestAccrued     int64           `json:"interest_accrued"`
	PendingLiquidity    int64           `json:"pending_liquidity"`
	Payout              int64           `json:"payout"`
	LastRebalancedCycle uint64          `json:"last_rebalanced_cycle"`
	RegisteredCycle     uint64          `json:"registered_cycle"`
	Health              string          `json:"health"`
	Pending             *PendingRequest `json:"pending_request,omitempty"`
}

// LPStatusOf returns one LP's snapshot.
func (e *Engine) LPStatusOf(lpID uuid.UUID) (LPStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lp, ok := e.lps.Get(lpID)
	if !ok {
		return LPStatus{}, fmt.Errorf("%w: %s", ErrNotRegisteredLP, lpID)
	}

	commitment := e.tracker.LPCommitment(lpID)
	posted := e.tracker.LPCollateral(lpID)

	var exposureShare int64
	if total := e.totalCommitment(); total > 0 {
		totalExposureValue := fixmath.ConvertAssetToReserve(
			e.deps.Token.TotalSupply(), e.deps.Oracle.Price())
		exposureShare = fixmath.MulDiv(totalExposureValue, commitment, total)
	}

	status := LPStatus{
		ID:                  lpID,
		Commitment:          commitment,
		Collateral:          posted,
		InterestAccrued:     e.tracker.LPInterestAccrued(lpID),
		PendingLiquidity:    e.tracker.LPPendingLiquidity(lpID),
		Payout:              e.tracker.LPPayout(lpID),
		LastRebalancedCycle: lp.LastRebalancedCycle,
		RegisteredCycle:     lp.RegisteredCycle,
		Health:              e.cfg.LPPolicy.Evaluate(exposureShare, posted, 0).String(),
	}
	if req := lp.Pending; req != nil {
		status.Pending = &PendingRequest{
			Kind:         req.Kind.String(),
			Amount:       req.Amount,
			RequestCycle: req.RequestCycle,
		}
	}
	return status, nil
}

// UserStatus is a read-only snapshot of one user position.
type UserStatus struct {
	ID               uuid.UUID       `json:"id"`
	Collateral       int64           `json:"collateral"`
	PendingDeposit   int64           `json:"pending_deposit"`
	RedemptionPayout int64           `json:"redemption_payout"`
	TokenBalance     int64           `json:"token_balance"`
	InterestDebt     int64           `json:"interest_debt"`
	Health           string          `json:"health"`
	Pending          *PendingRequest `json:"pending_request,omitempty"`
}

// UserStatusOf returns one user's snapshot.
func (e *Engine) UserStatusOf(userID uuid.UUID) (UserStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.users.Lookup(userID)
	if !ok {
		return UserStatus{}, fmt.Errorf("%w: user %s", ErrUnknownPrincipal, userID)
	}

	posted := e.tracker.UserCollateral(userID)
	exposureValue := fixmath.ConvertAssetToReserve(e.userExposure(pos), e.deps.Oracle.Price())

	status := UserStatus{
		ID:               userID,
		Collateral:       posted,
		PendingDeposit:   e.tracker.UserPendingDeposit(userID),
		RedemptionPayout: e.tracker.UserRedemptionPayout(userID),
		TokenBalance:     e.deps.Token.BalanceOf(userID),
		InterestDebt:     pos.ScaledInterestDebt,
		Health:           e.cfg.UserPolicy.Evaluate(exposureValue, posted, pos.ScaledInterestDebt).String(),
	}
	if req := pos.Pending; req != nil {
		status.Pending = &PendingRequest{
			Kind:         req.Kind.String(),
			Amount:       req.Amount,
			RequestCycle: req.RequestCycle,
			Settled:      req.Settled,
		}
	}
	return status, nil
}

// HeldReserve returns the reserve currently held by the system, i.e. every
// internal account balance excluding the external boundary.
func (e *Engine) HeldReserve() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.ComputeHeldReserve()
}
