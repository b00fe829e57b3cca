package reserve

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory reserve balances per account.
// The ledger is zero-sum: reserve entering the system is journalized against
// the external boundary accounts, so the global sum is always zero.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// === User balance queries ===

func (bt *BalanceTracker) UserCollateral(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeCollateral))
}

func (bt *BalanceTracker) UserPendingDeposit(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypePendingDeposit))
}

func (bt *BalanceTracker) UserRedemptionPayout(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, SubTypeRedemptionPayout))
}

// === LP balance queries ===

func (bt *BalanceTracker) LPCommitment(lpID uuid.UUID) int64 {
	return bt.GetBalance(NewLPAccountKey(lpID, SubTypeCommitment))
}

func (bt *BalanceTracker) LPCollateral(lpID uuid.UUID) int64 {
	return bt.GetBalance(NewLPAccountKey(lpID, SubTypeLPCollateral))
}

func (bt *BalanceTracker) LPInterestAccrued(lpID uuid.UUID) int64 {
	return bt.GetBalance(NewLPAccountKey(lpID, SubTypeInterestAccrued))
}

func (bt *BalanceTracker) LPPendingLiquidity(lpID uuid.UUID) int64 {
	return bt.GetBalance(NewLPAccountKey(lpID, SubTypePendingLiquidity))
}

func (bt *BalanceTracker) LPPayout(lpID uuid.UUID) int64 {
	return bt.GetBalance(NewLPAccountKey(lpID, SubTypeLPPayout))
}

// === System balance queries ===

func (bt *BalanceTracker) PoolBalance() int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemPool))
}

func (bt *BalanceTracker) InterestPoolBalance() int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemInterestPool))
}

func (bt *BalanceTracker) FeeBalance() int64 {
	return bt.GetBalance(NewSystemAccountKey(SubTypeSystemFees))
}

// === Invariant checks ===

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateSufficient checks that an account holds at least required
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required int64) error {
	balance := bt.GetBalance(key)
	if balance < required {
		return fmt.Errorf("insufficient balance on %s: have=%d, need=%d",
			key.AccountPath(), balance, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (zero for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// ComputeHeldReserve sums every account except the external boundary,
// i.e. the reserve currently held by the system: user collateral and
// pending amounts, LP commitment/collateral/interest, and system accounts.
func (bt *BalanceTracker) ComputeHeldReserve() int64 {
	var total int64
	for key, balance := range bt.balances {
		if key.Scope == AccountScopeExternal {
			continue
		}
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// SetBalance directly sets an account balance (snapshot restore only)
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}
