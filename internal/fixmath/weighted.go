package fixmath

import "math/big"

// WeightedPrice accumulates liquidity-weighted price observations during
// on-chain rebalancing. Each LP's proposed price is weighted by the absolute
// amount that LP moved; the average becomes the cycle's settlement price.
type WeightedPrice struct {
	priceWeightSum *big.Int
	weightSum      int64
}

func NewWeightedPrice() *WeightedPrice {
	return &WeightedPrice{priceWeightSum: new(big.Int)}
}

// Observe records one LP's proposed price with the given weight.
// Zero weights are recorded with weight 1 so pure-pass-through settlements
// (rebalance share rounded to zero) still influence the average.
func (wp *WeightedPrice) Observe(price, weight int64) {
	if weight < 0 {
		weight = -weight
	}
	if weight == 0 {
		weight = 1
	}

	term := MultiplyInt128(price, weight)
	wp.priceWeightSum.Add(wp.priceWeightSum, term)
	putInt128(term)

	wp.weightSum += weight
}

// Average returns the weighted average price, or fallback when no
// observations were recorded.
func (wp *WeightedPrice) Average(fallback int64) int64 {
	if wp.weightSum == 0 {
		return fallback
	}
	return DivideInt128(wp.priceWeightSum, wp.weightSum, RoundHalfEven)
}

// Observations returns the total recorded weight.
func (wp *WeightedPrice) Observations() int64 {
	return wp.weightSum
}
