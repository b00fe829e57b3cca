package state

import (
	"time"

	"SynthLedger/internal/fixmath"
)

// CycleState tracks the phase of the active cycle
type CycleState int32

const (
	CycleStateActive CycleState = iota
	CycleStateRebalancingOffchain
	CycleStateRebalancingOnchain
	CycleStateHalted
)

func (cs CycleState) String() string {
	switch cs {
	case CycleStateActive:
		return "Active"
	case CycleStateRebalancingOffchain:
		return "RebalancingOffchain"
	case CycleStateRebalancingOnchain:
		return "RebalancingOnchain"
	case CycleStateHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates cycle phase transitions. Halted is absorbing
// except for the explicit admin resume path.
func (cs CycleState) CanTransitionTo(next CycleState) bool {
	validTransitions := map[CycleState][]CycleState{
		CycleStateActive: {
			CycleStateRebalancingOffchain,
			CycleStateHalted,
		},
		CycleStateRebalancingOffchain: {
			CycleStateRebalancingOnchain,
			CycleStateActive, // startNewCycle shortcut (zero net rebalance)
			CycleStateHalted,
		},
		CycleStateRebalancingOnchain: {
			CycleStateActive, // all LPs settled, or forced settlement
			CycleStateHalted,
		},
		CycleStateHalted: {
			CycleStateActive, // admin resume
		},
	}

	allowed, ok := validTransitions[cs]
	if !ok {
		return false
	}

	for _, allowedState := range allowed {
		if next == allowedState {
			return true
		}
	}

	return false
}

// Cycle is the live cycle being sequenced by the state machine.
// Mutated only by the engine; completed cycles are archived as CycleRecords.
type Cycle struct {
	Index             uint64
	State             CycleState
	LastActionTime    time.Time
	OffchainStartedAt time.Time
	RebalanceDeadline time.Time

	// Fixed at initiateOnchainRebalance
	OraclePrice        int64
	RebalanceAmount    int64 // Signed: positive = LPs contribute reserve
	PendingDeposits    int64 // Aggregate reserve units queued for minting
	PendingRedemptions int64 // Aggregate asset units queued for redemption

	// Accumulated during on-chain rebalancing
	PriceHigh         int64
	PriceLow          int64
	InterestAccrued   int64
	RebalancedLPCount uint32
	AllocatedSoFar    int64 // Sum of shares applied so far (conservation)

	WeightedPrice *fixmath.WeightedPrice
}

// NewCycle creates cycle number index in the Active phase.
func NewCycle(index uint64, now time.Time) *Cycle {
	return &Cycle{
		Index:          index,
		State:          CycleStateActive,
		LastActionTime: now,
		WeightedPrice:  fixmath.NewWeightedPrice(),
	}
}

// ObservePrice folds an LP's proposed price into the cycle's high/low
// watermarks and the weighted settlement price.
func (c *Cycle) ObservePrice(price, weight int64) {
	if c.PriceHigh == 0 || price > c.PriceHigh {
		c.PriceHigh = price
	}
	if c.PriceLow == 0 || price < c.PriceLow {
		c.PriceLow = price
	}
	c.WeightedPrice.Observe(price, weight)
}

// CycleRecord is the immutable archive entry for a completed cycle.
// Claims price against the settlement price recorded here.
type CycleRecord struct {
	Index           uint64
	SettlementPrice int64 // Oracle price fixed at on-chain initiation
	WeightedLPPrice int64 // Share-weighted average of LP proposed prices
	PriceHigh       int64
	PriceLow        int64
	RebalanceAmount int64
	InterestAccrued int64
	Forced          bool
	CompletedAt     time.Time
}

// CycleHistory is the append-only archive of completed cycles, indexed by
// cycle index. Cycle indices start at 1 and never skip.
type CycleHistory struct {
	records []CycleRecord
}

func NewCycleHistory() *CycleHistory {
	return &CycleHistory{}
}

// Append archives a completed cycle. Panics on an index gap: a skipped or
// repeated cycle index means the monotonicity invariant is already broken.
func (h *CycleHistory) Append(rec CycleRecord) {
	if rec.Index != uint64(len(h.records))+1 {
		panic("cycle history gap: archive out of order")
	}
	h.records = append(h.records, rec)
}

// Get returns the record for a completed cycle.
func (h *CycleHistory) Get(index uint64) (CycleRecord, bool) {
	if index == 0 || index > uint64(len(h.records)) {
		return CycleRecord{}, false
	}
	return h.records[index-1], true
}

// Len returns the number of completed cycles.
func (h *CycleHistory) Len() int {
	return len(h.records)
}
