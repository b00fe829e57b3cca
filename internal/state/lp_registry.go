package state

import (
	"sort"

	"github.com/google/uuid"
)

// LPPosition is one liquidity provider's record. Reserve balances
// (commitment, collateral, accrued interest) live in the reserve ledger;
// the registry tracks identity, the pending request, and cycle bookkeeping.
type LPPosition struct {
	ID                  uuid.UUID
	Pending             *LPRequest
	LastRebalancedCycle uint64
	RegisteredCycle     uint64
}

type lpSlot struct {
	pos  LPPosition
	used bool
}

// LPRegistry is an arena of LP positions: a dense slot vector plus an
// identity→index map. Removal frees the slot for reuse instead of shifting,
// so indices held elsewhere stay stable.
type LPRegistry struct {
	slots []lpSlot
	index map[uuid.UUID]int
	free  []int
}

func NewLPRegistry() *LPRegistry {
	return &LPRegistry{
		index: make(map[uuid.UUID]int),
	}
}

// Add registers a new LP. Returns false if the identity already exists.
func (r *LPRegistry) Add(pos LPPosition) bool {
	if _, exists := r.index[pos.ID]; exists {
		return false
	}

	var slot int
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[slot] = lpSlot{pos: pos, used: true}
	} else {
		slot = len(r.slots)
		r.slots = append(r.slots, lpSlot{pos: pos, used: true})
	}

	r.index[pos.ID] = slot
	return true
}

// Get returns the LP position for an identity.
func (r *LPRegistry) Get(id uuid.UUID) (*LPPosition, bool) {
	slot, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return &r.slots[slot].pos, true
}

// Remove frees an LP's slot. The slot is recycled on the next Add.
func (r *LPRegistry) Remove(id uuid.UUID) bool {
	slot, ok := r.index[id]
	if !ok {
		return false
	}

	r.slots[slot] = lpSlot{}
	r.free = append(r.free, slot)
	delete(r.index, id)
	return true
}

// Len returns the number of registered LPs.
func (r *LPRegistry) Len() int {
	return len(r.index)
}

// All returns every registered LP sorted by identity bytes. Deterministic
// ordering matters wherever the registry drives settlement arithmetic.
func (r *LPRegistry) All() []*LPPosition {
	result := make([]*LPPosition, 0, len(r.index))
	for _, slot := range r.index {
		result = append(result, &r.slots[slot].pos)
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
