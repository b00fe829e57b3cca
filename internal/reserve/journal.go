package reserve

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeUserDeposit JournalType = iota
	JournalTypeUserDepositCancel
	JournalTypeUserCollateral
	JournalTypeUserCollateralWithdraw
	JournalTypeDepositSettle
	JournalTypeRedemptionSettle
	JournalTypeRedemptionPayout
	JournalTypeLPRegister
	JournalTypeLPCollateral
	JournalTypeLPAddLiquidity
	JournalTypeLPAddLiquidityCancel
	JournalTypeLPLiquiditySettle
	JournalTypeLPReduceSettle
	JournalTypeLPExitSettle
	JournalTypeLPPayoutClaim
	JournalTypeRebalanceContribution
	JournalTypeRebalanceWithdrawal
	JournalTypeInterestCharge
	JournalTypeInterestDistribute
	JournalTypeInterestFee
	JournalTypeLiquidationReward
	JournalTypeLiquidationRetained
	JournalTypeAdjustment
)

// Journal represents a single double-entry journal entry.
// Applying a journal increases the debit account and decreases the credit
// account by the same amount, so every entry is balanced by construction.
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries from one operation
	EventRef      string      // Reference to the emitting operation/event
	Sequence      int64       // Global event sequence
	CycleIndex    uint64      // Cycle during which the entry was generated
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Fixed-point reserve amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Epoch microseconds
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID    uuid.UUID
	EventRef   string
	Sequence   int64
	CycleIndex uint64
	Timestamp  int64
	Journals   []Journal
}

// Validate ensures the batch is well-formed. Each entry is a balanced
// transfer by construction (one positive amount from credit to debit), so
// Σ debits == Σ credits holds per-entry; multi-leg operations use multiple
// entries under one batch_id.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
