package fixmath

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	ReserveConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // 0.000001 reserve units
	AssetConfig   = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // 0.000001 asset tokens
	PriceConfig   = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000}   // 0.00000001 (oracle price)
	RatioConfig   = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}     // ratios, rates, fees
)

// SecondsPerYear is the accrual-period denominator for annualized rates.
const SecondsPerYear int64 = 31_536_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown                         // Toward zero
	RoundUp
)

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.QuoRem(numerator, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		half := big.NewInt(denominator / 2)
		rem := new(big.Int).Abs(remainder)
		cmp := rem.Cmp(half)

		if cmp > 0 {
			result = stepAway(result, numerator.Sign())
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result = stepAway(result, numerator.Sign())
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result = stepAway(result, numerator.Sign())
		}
	case RoundDown:
		// QuoRem already truncates toward zero
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

func stepAway(v int64, sign int) int64 {
	if sign < 0 {
		return v - 1
	}
	return v + 1
}

// MulDiv computes a * b / denominator in int128, rounding toward zero.
// Used for proportional shares where the remainder is assigned explicitly.
func MulDiv(a, b, denominator int64) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, RoundDown)
	putInt128(num)
	return result
}

// ConvertReserveToAsset converts a reserve amount to asset-token units at
// the given price: asset = reserve * priceScale / price, rounded toward zero.
func ConvertReserveToAsset(reserveAmount, price int64) int64 {
	if price <= 0 {
		return 0
	}
	num := MultiplyInt128(reserveAmount, PriceConfig.Scale)
	result := DivideInt128(num, price, RoundDown)
	putInt128(num)
	return result
}

// ConvertAssetToReserve converts an asset-token amount to reserve units at
// the given price: reserve = asset * price / priceScale, rounded toward zero.
func ConvertAssetToReserve(assetAmount, price int64) int64 {
	num := MultiplyInt128(assetAmount, price)
	result := DivideInt128(num, PriceConfig.Scale, RoundDown)
	putInt128(num)
	return result
}

// ComputeInterest calculates interest on outstanding exposure value for an
// elapsed duration at an annualized rate (ratio scale).
// interest = exposureValue * rate * elapsedSeconds / (ratioScale * secondsPerYear)
func ComputeInterest(exposureValue, annualRate, elapsedSeconds int64) int64 {
	if exposureValue <= 0 || annualRate <= 0 || elapsedSeconds <= 0 {
		return 0
	}

	temp := MultiplyInt128(exposureValue, annualRate)
	temp.Mul(temp, big.NewInt(elapsedSeconds))

	denomBig := new(big.Int).Mul(big.NewInt(RatioConfig.Scale), big.NewInt(SecondsPerYear))
	result := new(big.Int).Quo(temp, denomBig).Int64()

	putInt128(temp)

	return result
}

// WithinDeviation reports whether proposed is within tolerance of reference.
// tolerance is a ratio-scale fraction (e.g. 30_000 = 3%).
func WithinDeviation(proposed, reference, tolerance int64) bool {
	if reference <= 0 {
		return false
	}
	diff := proposed - reference
	if diff < 0 {
		diff = -diff
	}
	bound := MulDiv(reference, tolerance, RatioConfig.Scale)
	return diff <= bound
}
