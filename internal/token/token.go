package token

import (
	"fmt"

	"github.com/google/uuid"
)

// Minter is the mint/burn boundary to the asset-token contract. Invoked only
// by the cycle engine at claim and liquidation time; referencePrice is the
// settlement price the amounts were computed at.
type Minter interface {
	Mint(account uuid.UUID, amount, referencePrice int64) error
	Burn(account uuid.UUID, amount, referencePrice int64) error
	Transfer(from, to uuid.UUID, amount int64) error
	BalanceOf(account uuid.UUID) int64
	TotalSupply() int64
}

// EscrowAccount holds asset tokens locked by pending redemption requests.
var EscrowAccount = uuid.MustParse("00000000-0000-0000-0000-00000000e5c0")

// SyntheticToken is an in-memory fungible token. It stands in for the
// external token contract in dev mode and tests; outstanding exposure is
// its total supply.
type SyntheticToken struct {
	balances    map[uuid.UUID]int64
	totalSupply int64
}

func NewSyntheticToken() *SyntheticToken {
	return &SyntheticToken{
		balances: make(map[uuid.UUID]int64),
	}
}

func (t *SyntheticToken) Mint(account uuid.UUID, amount, referencePrice int64) error {
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", amount)
	}
	t.balances[account] += amount
	t.totalSupply += amount
	return nil
}

func (t *SyntheticToken) Burn(account uuid.UUID, amount, referencePrice int64) error {
	if amount <= 0 {
		return fmt.Errorf("burn amount must be positive, got %d", amount)
	}
	if t.balances[account] < amount {
		return fmt.Errorf("burn exceeds balance: have=%d, need=%d", t.balances[account], amount)
	}
	t.balances[account] -= amount
	t.totalSupply -= amount
	return nil
}

func (t *SyntheticToken) Transfer(from, to uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("transfer exceeds balance: have=%d, need=%d", t.balances[from], amount)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

func (t *SyntheticToken) BalanceOf(account uuid.UUID) int64 {
	return t.balances[account]
}

func (t *SyntheticToken) TotalSupply() int64 {
	return t.totalSupply
}
