package event

import "time"

// EventType discriminator for emitted event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeCycleStarted
	EventTypeOffchainRebalanceInitiated
	EventTypeOnchainRebalanceInitiated
	EventTypeLPRebalanced
	EventTypeCycleForceSettled
	EventTypeInterestAccrued
	EventTypeLPRegistered
	EventTypeRequestSubmitted
	EventTypeRequestCancelled
	EventTypeRequestClaimed
	EventTypePositionLiquidated
	EventTypeProtocolHalted
	EventTypeProtocolResumed
)

// Envelope wraps every emitted event. Every event carries the cycle index so
// off-chain observers can correlate settlement, interest, and request flow.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Event type discriminator
	EventType EventType

	// Cycle the event belongs to
	CycleIndex uint64

	// Engine clock at emission
	Timestamp time.Time

	// Event-specific payload (JSON-encoded for the outbound publisher
	// and the event log)
	Payload interface{}
}

func (et EventType) String() string {
	switch et {
	case EventTypeCycleStarted:
		return "CycleStarted"
	case EventTypeOffchainRebalanceInitiated:
		return "OffchainRebalanceInitiated"
	case EventTypeOnchainRebalanceInitiated:
		return "OnchainRebalanceInitiated"
	case EventTypeLPRebalanced:
		return "LPRebalanced"
	case EventTypeCycleForceSettled:
		return "CycleForceSettled"
	case EventTypeInterestAccrued:
		return "InterestAccrued"
	case EventTypeLPRegistered:
		return "LPRegistered"
	case EventTypeRequestSubmitted:
		return "RequestSubmitted"
	case EventTypeRequestCancelled:
		return "RequestCancelled"
	case EventTypeRequestClaimed:
		return "RequestClaimed"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	case EventTypeProtocolHalted:
		return "ProtocolHalted"
	case EventTypeProtocolResumed:
		return "ProtocolResumed"
	default:
		return "Unknown"
	}
}

// Subject returns the NATS subject suffix for this event type.
func (et EventType) Subject() string {
	switch et {
	case EventTypeCycleStarted:
		return "cycle_started"
	case EventTypeOffchainRebalanceInitiated:
		return "offchain_rebalance_initiated"
	case EventTypeOnchainRebalanceInitiated:
		return "onchain_rebalance_initiated"
	case EventTypeLPRebalanced:
		return "lp_rebalanced"
	case EventTypeCycleForceSettled:
		return "cycle_force_settled"
	case EventTypeInterestAccrued:
		return "interest_accrued"
	case EventTypeLPRegistered:
		return "lp_registered"
	case EventTypeRequestSubmitted:
		return "request_submitted"
	case EventTypeRequestCancelled:
		return "request_cancelled"
	case EventTypeRequestClaimed:
		return "request_claimed"
	case EventTypePositionLiquidated:
		return "position_liquidated"
	case EventTypeProtocolHalted:
		return "protocol_halted"
	case EventTypeProtocolResumed:
		return "protocol_resumed"
	default:
		return "unknown"
	}
}
