package event

import "github.com/google/uuid"

// CycleStarted is emitted when a new cycle opens for requests. It carries
// the completed cycle's archive record so observers (and the event-log
// projection) never need a separate read to reconstruct cycle history.
type CycleStarted struct {
	CycleIndex      uint64 `json:"cycle_index"`
	PreviousCycle   uint64 `json:"previous_cycle,omitempty"`
	SettlementPrice int64  `json:"settlement_price,omitempty"`
	WeightedLPPrice int64  `json:"weighted_lp_price,omitempty"`
	PriceHigh       int64  `json:"price_high,omitempty"`
	PriceLow        int64  `json:"price_low,omitempty"`
	RebalanceAmount int64  `json:"rebalance_amount,omitempty"`
	InterestAccrued int64  `json:"interest_accrued,omitempty"`
	Forced          bool   `json:"forced,omitempty"`
}

// OffchainRebalanceInitiated marks the start of the LP grace window.
type OffchainRebalanceInitiated struct {
	CycleIndex      uint64 `json:"cycle_index"`
	InterestAccrued int64  `json:"interest_accrued"`
}

// OnchainRebalanceInitiated fixes the cycle's settlement requirement.
type OnchainRebalanceInitiated struct {
	CycleIndex       uint64 `json:"cycle_index"`
	OraclePrice      int64  `json:"oracle_price"`
	RebalanceAmount  int64  `json:"rebalance_amount"`
	PendingDeposits  int64  `json:"pending_deposits"`
	PendingRedeems   int64  `json:"pending_redemptions"`
	RegisteredLPs    int    `json:"registered_lps"`
}

// LPRebalanced records one LP's settlement within the on-chain phase.
type LPRebalanced struct {
	CycleIndex    uint64    `json:"cycle_index"`
	LPID          uuid.UUID `json:"lp_id"`
	ProposedPrice int64     `json:"proposed_price"`
	Share         int64     `json:"share"`
	Remaining     uint32    `json:"remaining_lps"`
}

// CycleForceSettled is emitted when the deadline path completed the cycle.
type CycleForceSettled struct {
	CycleIndex   uint64    `json:"cycle_index"`
	CalledBy     uuid.UUID `json:"called_by"`
	SweptLPs     int       `json:"swept_lps"`
	OraclePrice  int64     `json:"oracle_price"`
}

// InterestAccrued summarizes one accrual pass.
type InterestAccrued struct {
	CycleIndex     uint64 `json:"cycle_index"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Utilization    int64  `json:"utilization"`
	AnnualRate     int64  `json:"annual_rate"`
	Interest       int64  `json:"interest"`
	Collected      int64  `json:"collected"`
	ProtocolFee    int64  `json:"protocol_fee"`
}

// LPRegistered records a new liquidity provider.
type LPRegistered struct {
	CycleIndex uint64    `json:"cycle_index"`
	LPID       uuid.UUID `json:"lp_id"`
	Commitment int64     `json:"commitment"`
	Collateral int64     `json:"collateral"`
}

// RequestSubmitted covers both user and LP request submission.
type RequestSubmitted struct {
	CycleIndex uint64    `json:"cycle_index"`
	Principal  uuid.UUID `json:"principal"`
	Kind       string    `json:"kind"`
	Amount     int64     `json:"amount"`
	Collateral int64     `json:"collateral,omitempty"`
}

// RequestCancelled covers both user and LP request cancellation.
type RequestCancelled struct {
	CycleIndex uint64    `json:"cycle_index"`
	Principal  uuid.UUID `json:"principal"`
	Kind       string    `json:"kind"`
}

// RequestClaimed records a resolved request claim.
type RequestClaimed struct {
	CycleIndex      uint64    `json:"cycle_index"`
	RequestCycle    uint64    `json:"request_cycle"`
	Principal       uuid.UUID `json:"principal"`
	Kind            string    `json:"kind"`
	Amount          int64     `json:"amount"`
	SettlementPrice int64     `json:"settlement_price"`
}

// PositionLiquidated covers both user and LP liquidation.
type PositionLiquidated struct {
	CycleIndex uint64    `json:"cycle_index"`
	Principal  uuid.UUID `json:"principal"`
	Liquidator uuid.UUID `json:"liquidator"`
	IsLP       bool      `json:"is_lp"`
	Reward     int64     `json:"reward"`
	Retained   int64     `json:"retained"`
	Exposure   int64     `json:"exposure_closed"`
}

// ProtocolHalted marks entry into the absorbing halted state.
type ProtocolHalted struct {
	CycleIndex uint64 `json:"cycle_index"`
	Reason     string `json:"reason"`
}

// ProtocolResumed marks an admin-driven exit from the halted state.
type ProtocolResumed struct {
	CycleIndex uint64 `json:"cycle_index"`
}
