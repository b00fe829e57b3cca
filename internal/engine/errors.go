package engine

import "fmt"

// ErrorKind is the coarse error taxonomy surfaced to callers. Off-chain
// clients branch on the kind: retry with different input (Validation),
// wait for a deadline (State), or give up (Authorization).
type ErrorKind int

const (
	KindState ErrorKind = iota
	KindAuthorization
	KindValidation
	KindSolvency
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindState:
		return "StateError"
	case KindAuthorization:
		return "AuthorizationError"
	case KindValidation:
		return "ValidationError"
	case KindSolvency:
		return "SolvencyError"
	case KindConflict:
		return "ConflictError"
	default:
		return "Unknown"
	}
}

// EngineError is a named, typed rejection. Sentinel instances below are
// wrapped with fmt.Errorf("%w: ...") to attach context while staying
// errors.Is-comparable.
type EngineError struct {
	Kind ErrorKind
	Code string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s/%s", e.Kind, e.Code)
}

var (
	// State errors
	ErrInvalidCycleState     = &EngineError{Kind: KindState, Code: "InvalidCycleState"}
	ErrCycleInProgress       = &EngineError{Kind: KindState, Code: "CycleInProgress"}
	ErrAlreadyRebalanced     = &EngineError{Kind: KindState, Code: "AlreadyRebalanced"}
	ErrRebalancingExpired    = &EngineError{Kind: KindState, Code: "RebalancingExpired"}
	ErrRebalancingNotExpired = &EngineError{Kind: KindState, Code: "RebalancingNotExpired"}
	ErrProtocolHalted        = &EngineError{Kind: KindState, Code: "ProtocolHalted"}
	ErrNotHalted             = &EngineError{Kind: KindState, Code: "NotHalted"}

	// Authorization errors
	ErrNotRegisteredLP  = &EngineError{Kind: KindAuthorization, Code: "NotRegisteredLP"}
	ErrUnknownPrincipal = &EngineError{Kind: KindAuthorization, Code: "UnknownPrincipal"}

	// Validation errors
	ErrZeroAmount             = &EngineError{Kind: KindValidation, Code: "ZeroAmount"}
	ErrPriceDeviationTooHigh  = &EngineError{Kind: KindValidation, Code: "PriceDeviationTooHigh"}
	ErrOracleNotUpdated       = &EngineError{Kind: KindValidation, Code: "OracleNotUpdated"}
	ErrMarketOpen             = &EngineError{Kind: KindValidation, Code: "MarketOpen"}
	ErrBelowMinimumCommitment = &EngineError{Kind: KindValidation, Code: "BelowMinimumCommitment"}

	// Solvency errors
	ErrInsufficientCollateral  = &EngineError{Kind: KindSolvency, Code: "InsufficientCollateral"}
	ErrInsufficientLiquidity   = &EngineError{Kind: KindSolvency, Code: "InsufficientLiquidity"}
	ErrPositionNotLiquidatable = &EngineError{Kind: KindSolvency, Code: "PositionNotLiquidatable"}

	// Conflict errors
	ErrRequestPending      = &EngineError{Kind: KindConflict, Code: "RequestPending"}
	ErrNothingToCancel     = &EngineError{Kind: KindConflict, Code: "NothingToCancel"}
	ErrNothingToClaim      = &EngineError{Kind: KindConflict, Code: "NothingToClaim"}
	ErrLPAlreadyRegistered = &EngineError{Kind: KindConflict, Code: "LPAlreadyRegistered"}
)

// KindOf extracts the taxonomy kind from any error chain, defaulting to
// ValidationError for non-engine errors.
func KindOf(err error) ErrorKind {
	for e := err; e != nil; {
		if ee, ok := e.(*EngineError); ok {
			return ee.Kind
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return KindValidation
}
