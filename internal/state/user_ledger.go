package state

import (
	"sort"

	"github.com/google/uuid"
)

// UserPosition is one user's record. Reserve balances live in the reserve
// ledger; the position tracks the pending request and interest debt that has
// been charged but not yet collected from collateral.
type UserPosition struct {
	ID                 uuid.UUID
	ScaledInterestDebt int64
	Pending            *UserRequest
}

// UserLedger holds per-user positions and the aggregate pending request
// totals the rebalance calculator consumes.
type UserLedger struct {
	positions map[uuid.UUID]*UserPosition
}

func NewUserLedger() *UserLedger {
	return &UserLedger{
		positions: make(map[uuid.UUID]*UserPosition),
	}
}

// Get returns the position for a user, creating it on first touch.
func (ul *UserLedger) Get(id uuid.UUID) *UserPosition {
	pos, ok := ul.positions[id]
	if !ok {
		pos = &UserPosition{ID: id}
		ul.positions[id] = pos
	}
	return pos
}

// Lookup returns the position without creating it.
func (ul *UserLedger) Lookup(id uuid.UUID) (*UserPosition, bool) {
	pos, ok := ul.positions[id]
	return pos, ok
}

// Remove drops a position. Called when exposure, collateral and debt have
// all reached zero.
func (ul *UserLedger) Remove(id uuid.UUID) {
	delete(ul.positions, id)
}

// PendingTotals sums the unsettled requests submitted during the given
// cycle: deposits in reserve units, redemptions in asset units.
func (ul *UserLedger) PendingTotals(cycleIndex uint64) (deposits, redemptions int64) {
	for _, pos := range ul.positions {
		req := pos.Pending
		if req == nil || req.Settled || req.RequestCycle != cycleIndex {
			continue
		}
		switch req.Kind {
		case UserRequestDeposit:
			deposits += req.Amount
		case UserRequestRedeem:
			redemptions += req.Amount
		}
	}
	return deposits, redemptions
}

// All returns every position sorted by identity bytes for deterministic
// settlement and accrual ordering.
func (ul *UserLedger) All() []*UserPosition {
	result := make([]*UserPosition, 0, len(ul.positions))
	for _, pos := range ul.positions {
		result = append(result, pos)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].ID, result[j].ID
		for k := 0; k < 16; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})

	return result
}

// Len returns the number of tracked users.
func (ul *UserLedger) Len() int {
	return len(ul.positions)
}
