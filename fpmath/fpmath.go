// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fpmath provides the unsigned fixed-point arithmetic shared by the
// threshold, boost and distribution engines. Every operation truncates toward
// zero and saturates instead of overflowing; nothing in here returns an error.
package fpmath

import (
	"github.com/holiman/uint256"
)

// Scales
const (
	// BasisPoints is 100% expressed in basis points.
	BasisPoints uint64 = 10_000

	// ProbabilityScale is 100% expressed in parts per million.
	ProbabilityScale uint64 = 1_000_000

	precision uint64 = 1_000_000_000_000_000_000
)

var (
	// Precision is 1.0 in 18-decimal fixed point (WAD).
	Precision = uint256.NewInt(precision)

	maxUint256 = new(uint256.Int).SetAllOne()
)

// One returns a fresh 1.0 WAD.
func One() *uint256.Int {
	return uint256.NewInt(precision)
}

// Wad returns n * 1e18.
func Wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), Precision)
}

// Bps converts basis points to WAD (1 bps = 1e14).
func Bps(bps uint64) *uint256.Int {
	return MulDiv(uint256.NewInt(bps), Precision, uint256.NewInt(BasisPoints))
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
// A result that does not fit saturates to the maximum uint256, d == 0 yields 0.
func MulDiv(x, y, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		return new(uint256.Int)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return maxUint256.Clone()
	}
	return z
}

// MulWad returns floor(x*y/1e18).
func MulWad(x, y *uint256.Int) *uint256.Int {
	return MulDiv(x, y, Precision)
}

// MulBps returns floor(x*bps/10000).
func MulBps(x *uint256.Int, bps uint64) *uint256.Int {
	return MulDiv(x, uint256.NewInt(bps), uint256.NewInt(BasisPoints))
}

// SatAdd returns x+y, saturating at the maximum uint256.
func SatAdd(x, y *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return maxUint256.Clone()
	}
	return z
}

// SatSub returns x-y, or zero when y > x.
func SatSub(x, y *uint256.Int) *uint256.Int {
	if y.Gt(x) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// Min returns a copy of the smaller operand.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// Max returns a copy of the larger operand.
func Max(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// Clamp bounds x to [lo, hi]. When lo > hi the upper bound wins.
func Clamp(x, lo, hi *uint256.Int) *uint256.Int {
	return Min(Max(x, lo), hi)
}

// Cbrt returns floor(cbrt(x)).
func Cbrt(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return new(uint256.Int)
	}
	// 2^ceil(bits/3) is strictly above the root; Newton decreases from there.
	r := new(uint256.Int).Lsh(uint256.NewInt(1), uint((x.BitLen()+2)/3))
	three := uint256.NewInt(3)
	for {
		y := new(uint256.Int).Div(x, new(uint256.Int).Mul(r, r))
		y.Add(y, new(uint256.Int).Lsh(r, 1))
		y.Div(y, three)
		if !y.Lt(r) {
			return r
		}
		r = y
	}
}

// CbrtWad returns the cube root of a WAD value as a WAD value.
// Inputs above 1e40 are clamped so the 1e36 rescale cannot overflow.
func CbrtWad(x *uint256.Int) *uint256.Int {
	v := Min(x, cbrtWadInputCap)
	v.Mul(v, wadSquared)
	return Cbrt(v)
}

var (
	wadSquared      = new(uint256.Int).Mul(Precision, Precision)
	cbrtWadInputCap = new(uint256.Int).Mul(Wad(precision), uint256.NewInt(10_000)) // 1e40
)
