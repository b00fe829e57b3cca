package state

// LPRequestKind discriminates liquidity change requests
type LPRequestKind int32

const (
	LPRequestAddLiquidity LPRequestKind = iota
	LPRequestReduceLiquidity
	LPRequestLiquidate // Voluntary full exit, resolved at next settlement
)

func (k LPRequestKind) String() string {
	switch k {
	case LPRequestAddLiquidity:
		return "AddLiquidity"
	case LPRequestReduceLiquidity:
		return "ReduceLiquidity"
	case LPRequestLiquidate:
		return "Liquidate"
	default:
		return "Unknown"
	}
}

// LPRequest is the at-most-one pending liquidity change per LP.
type LPRequest struct {
	Kind         LPRequestKind
	Amount       int64
	RequestCycle uint64
}

// UserRequestKind discriminates user deposit/redemption requests
type UserRequestKind int32

const (
	UserRequestDeposit UserRequestKind = iota
	UserRequestRedeem
)

func (k UserRequestKind) String() string {
	switch k {
	case UserRequestDeposit:
		return "Deposit"
	case UserRequestRedeem:
		return "Redeem"
	default:
		return "Unknown"
	}
}

// UserRequest is the at-most-one pending mint/redeem per user.
// Deposit amounts are reserve units; redemption amounts are asset units.
type UserRequest struct {
	Kind             UserRequestKind
	Amount           int64
	CollateralAmount int64
	RequestCycle     uint64
	Settled          bool // Set when the request cycle completes; claimable
}
