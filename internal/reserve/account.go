package reserve

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeLP
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCollateral AccountSubType = iota
	SubTypePendingDeposit
	SubTypeRedemptionPayout

	// LP sub-types
	SubTypeCommitment
	SubTypeLPCollateral
	SubTypeInterestAccrued
	SubTypePendingLiquidity
	SubTypeLPPayout

	// System sub-types
	SubTypeSystemPool
	SubTypeSystemInterestPool
	SubTypeSystemFees

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AccountKey is the in-memory key for balance tracking.
// The ledger carries a single reserve currency, so keys do not carry an asset
// dimension the way a multi-asset ledger would.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users and LPs, name bytes for system accounts
	SubType  AccountSubType
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
	}
}

// NewLPAccountKey creates a key for liquidity-provider accounts
func NewLPAccountKey(lpID uuid.UUID, subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:    AccountScopeLP,
		EntityID: lpID,
		SubType:  subType,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s", uid.String(), k.subTypeName())
	case AccountScopeLP:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("lp:%s:%s", uid.String(), k.subTypeName())
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s", k.subTypeName())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCollateral:
		return "collateral"
	case SubTypePendingDeposit:
		return "pending_deposit"
	case SubTypeRedemptionPayout:
		return "redemption_payout"
	case SubTypeCommitment:
		return "commitment"
	case SubTypeLPCollateral:
		return "collateral"
	case SubTypeInterestAccrued:
		return "interest_accrued"
	case SubTypePendingLiquidity:
		return "pending_liquidity"
	case SubTypeLPPayout:
		return "payout"
	case SubTypeSystemPool:
		return "pool"
	case SubTypeSystemInterestPool:
		return "interest_pool"
	case SubTypeSystemFees:
		return "fees"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
