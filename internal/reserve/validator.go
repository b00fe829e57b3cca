package reserve

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies a batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum: no reserve value is
// created or destroyed by any sequence of operations.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	total := v.tracker.ComputeGlobalBalance()
	if total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateInterestPoolZero verifies the interest transit pool drained to zero
// after an accrual pass: everything collected from users must have been
// distributed to LPs or skimmed to fees.
func (v *InvariantValidator) ValidateInterestPoolZero() error {
	balance := v.tracker.InterestPoolBalance()
	if balance != 0 {
		return fmt.Errorf("interest pool has non-zero balance: %d", balance)
	}
	return nil
}

// ValidateUserCollateralNonNegative checks user collateral >= 0
func (v *InvariantValidator) ValidateUserCollateralNonNegative(userID uuid.UUID) error {
	return v.tracker.ValidateNonNegative(NewUserAccountKey(userID, SubTypeCollateral))
}

// ValidateLPNonNegative checks all LP balances >= 0
func (v *InvariantValidator) ValidateLPNonNegative(lpID uuid.UUID) error {
	for _, subType := range []AccountSubType{
		SubTypeCommitment, SubTypeLPCollateral, SubTypeInterestAccrued,
		SubTypePendingLiquidity, SubTypeLPPayout,
	} {
		if err := v.tracker.ValidateNonNegative(NewLPAccountKey(lpID, subType)); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePoolNonNegative checks the backing pool has not been overdrawn
func (v *InvariantValidator) ValidatePoolNonNegative() error {
	return v.tracker.ValidateNonNegative(NewSystemAccountKey(SubTypeSystemPool))
}
