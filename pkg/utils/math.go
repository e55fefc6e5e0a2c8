package utils

// math.go - shared numeric helpers used across subscription sizing, the
// option-chain cache's price synthesis, and the execution engine's slippage
// model.

import "math"

// RoundToLotSize rounds qty down to the nearest multiple of lotSize. A
// non-positive lotSize returns qty unchanged.
func RoundToLotSize(qty float64, lotSize float64) float64 {
	if lotSize <= 0 {
		return qty
	}
	return math.Floor(qty/lotSize) * lotSize
}

// CalculateSpread returns the percentage spread between two prices:
// (priceHigh - priceLow) / priceLow * 100. Returns 0 if priceLow is not
// positive.
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateNetSpread subtracts round-trip fees (feeA + feeB, each already
// expressed in the same percentage units as spread) from a gross spread.
func CalculateNetSpread(spread, feeA, feeB float64) float64 {
	return spread - 2*(feeA+feeB)
}

// CalculateWeightedAverage computes the quantity-weighted average of prices,
// used for order-book depth walks and position-fill averaging. len(prices)
// must equal len(quantities); returns 0 if either is empty or their total
// quantity is 0.
func CalculateWeightedAverage(prices, quantities []float64) float64 {
	if len(prices) == 0 || len(prices) != len(quantities) {
		return 0
	}
	var sumPQ, sumQ float64
	for i, p := range prices {
		sumPQ += p * quantities[i]
		sumQ += quantities[i]
	}
	if sumQ == 0 {
		return 0
	}
	return sumPQ / sumQ
}
