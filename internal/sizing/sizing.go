// Package sizing turns a portfolio value, a fraction of it and a price into a
// whole share quantity.
package sizing

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxQty = decimal.NewFromInt(math.MaxInt)

// Size returns floor(portfolioValue*fraction/price). Non-positive or
// non-finite inputs size to 0, which callers treat as "do not trade", and so
// does a quantity too large for an int.
func Size(portfolioValue, fraction, price float64) int {
	qty, ok := floorQty(portfolioValue, fraction, price)
	if !ok || !qty.IsPositive() {
		return 0
	}
	return int(qty.IntPart())
}

// SizeAtLeastOne is Size with a floor of one share whenever the allocation
// and the price are both positive.
func SizeAtLeastOne(portfolioValue, fraction, price float64) int {
	qty, ok := floorQty(portfolioValue, fraction, price)
	if !ok {
		return 0
	}
	if !qty.IsPositive() {
		return 1
	}
	return int(qty.IntPart())
}

// floorQty reports false for invalid inputs and for quantities above math.MaxInt.
func floorQty(portfolioValue, fraction, price float64) (decimal.Decimal, bool) {
	if !valid(portfolioValue) || !valid(fraction) || !valid(price) {
		return decimal.Zero, false
	}
	qty := decimal.NewFromFloat(portfolioValue).
		Mul(decimal.NewFromFloat(fraction)).
		Div(decimal.NewFromFloat(price)).
		Floor()
	if qty.GreaterThan(maxQty) {
		return decimal.Zero, false
	}
	return qty, true
}

func valid(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
