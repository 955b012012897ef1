// Package fixedpoint implements 18-decimal fixed-point arithmetic over 256-bit unsigned integers.
//
// All divisions truncate toward zero. Accumulated truncation error is part of
// the accounting contract and must not be "corrected" by callers.
package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of decimals carried by the scale factor.
const Decimals = 18

// SecondsPerDay is the time unit of the coin-time accumulator.
const SecondsPerDay = 86400

var (
	scale      = uint256.NewInt(1_000_000_000_000_000_000)
	day        = uint256.NewInt(SecondsPerDay)
	maxUint256 = new(uint256.Int).SetAllOne()
)

// Scale returns a fresh copy of 10^18.
func Scale() *uint256.Int {
	return new(uint256.Int).Set(scale)
}

// MulDiv returns x*y/d using a 512-bit intermediate product.
// A zero divisor yields zero. A quotient wider than 256 bits saturates to the maximum value.
func MulDiv(x, y, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		return new(uint256.Int)
	}

	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return new(uint256.Int).Set(maxUint256)
	}

	return z
}

// Ratio returns amount*1e18/base, or zero when base is zero.
func Ratio(amount, base *uint256.Int) *uint256.Int {
	return MulDiv(amount, scale, base)
}

// ApplyRatio returns value*ratio/1e18.
func ApplyRatio(value, ratio *uint256.Int) *uint256.Int {
	return MulDiv(value, ratio, scale)
}

// DayFraction returns elapsed seconds expressed in days, scaled by 1e18.
func DayFraction(elapsed uint64) *uint256.Int {
	return MulDiv(uint256.NewInt(elapsed), scale, day)
}

// SubFloor returns x-y, or zero when y > x.
func SubFloor(x, y *uint256.Int) *uint256.Int {
	if y.Gt(x) {
		return new(uint256.Int)
	}

	return new(uint256.Int).Sub(x, y)
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}

	return new(uint256.Int).Set(y)
}

// FromBig converts a big.Int into a uint256, saturating on overflow and clamping negatives to zero.
func FromBig(b *big.Int) *uint256.Int {
	if b == nil || b.Sign() <= 0 {
		return new(uint256.Int)
	}

	z, overflow := uint256.FromBig(b)
	if overflow {
		return new(uint256.Int).Set(maxUint256)
	}

	return z
}

// ToDecimal renders a raw integer amount with the given number of decimals.
func ToDecimal(x *uint256.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(x.ToBig(), -decimals)
}
