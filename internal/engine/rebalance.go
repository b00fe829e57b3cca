package engine

import (
	"SynthLedger/internal/fixmath"
)

// RebalanceResult is the fixed outcome computed at on-chain initiation.
// RebalanceAmount is signed in reserve units: positive means LPs owe the
// pool (net deposits), negative means the pool owes LPs (net redemptions).
type RebalanceResult struct {
	PendingDeposits    int64 // reserve units
	PendingRedemptions int64 // asset units
	RebalanceAmount    int64 // reserve units, signed
	AssetDelta         int64 // asset units, signed; tokens to mint (+) or burn (-)
}

// ComputeRebalance nets queued deposits against queued redemptions at the
// oracle price. Conversions round toward zero, so the rebalance amount never
// overstates what either side is owed.
func ComputeRebalance(pendingDeposits, pendingRedemptions, price int64) RebalanceResult {
	redemptionValue := fixmath.ConvertAssetToReserve(pendingRedemptions, price)
	depositAssets := fixmath.ConvertReserveToAsset(pendingDeposits, price)
	return RebalanceResult{
		PendingDeposits:    pendingDeposits,
		PendingRedemptions: pendingRedemptions,
		RebalanceAmount:    pendingDeposits - redemptionValue,
		AssetDelta:         depositAssets - pendingRedemptions,
	}
}

// AllocateShare splits total pro-rata by weight/totalWeight, rounding toward
// zero, with the accumulated remainder assigned to the last participant so
// the shares sum exactly to total. Works for either sign of total.
func AllocateShare(total, weight, totalWeight, allocatedSoFar int64, last bool) int64 {
	if last {
		return total - allocatedSoFar
	}
	if totalWeight == 0 {
		return 0
	}
	return fixmath.MulDiv(total, weight, totalWeight)
}
