// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package probability turns a swap's reference value and boost into a win
// threshold in parts per million. The functions are pure over Params so they
// can be evaluated off-chain exactly as the trigger evaluates them.
package probability

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/jackpot/fpmath"
)

var ErrInvalidParams = errors.New("invalid threshold params")

// Params bound the threshold curve. Thresholds are parts per million and
// values are reference currency with 18 decimals.
type Params struct {
	MinThreshold uint64       `json:"minThreshold" yaml:"minThreshold"`
	MaxThreshold uint64       `json:"maxThreshold" yaml:"maxThreshold"`
	Ceiling      uint64       `json:"ceiling" yaml:"ceiling"`
	MinValue     *uint256.Int `json:"minValue" yaml:"minValue"`
	MaxValue     *uint256.Int `json:"maxValue" yaml:"maxValue"`
	DustFloor    *uint256.Int `json:"dustFloor" yaml:"dustFloor"`
}

// DefaultParams: 0.0004% at $1 rising linearly to 4% at $10,000, boosted
// thresholds capped at 10%.
func DefaultParams() Params {
	return Params{
		MinThreshold: 4,
		MaxThreshold: 40_000,
		Ceiling:      100_000,
		MinValue:     fpmath.Wad(1),
		MaxValue:     fpmath.Wad(10_000),
		DustFloor:    fpmath.Wad(1),
	}
}

func (p Params) Verify() error {
	switch {
	case p.MinValue == nil || p.MaxValue == nil || p.DustFloor == nil:
		return fmt.Errorf("%w: missing value bound", ErrInvalidParams)
	case !p.MinValue.Lt(p.MaxValue):
		return fmt.Errorf("%w: min value %s not below max value %s", ErrInvalidParams, p.MinValue.Dec(), p.MaxValue.Dec())
	case p.MinThreshold > p.MaxThreshold:
		return fmt.Errorf("%w: min threshold %d above max %d", ErrInvalidParams, p.MinThreshold, p.MaxThreshold)
	case p.MaxThreshold > p.Ceiling:
		return fmt.Errorf("%w: max threshold %d above ceiling %d", ErrInvalidParams, p.MaxThreshold, p.Ceiling)
	case p.Ceiling > fpmath.ProbabilityScale:
		return fmt.Errorf("%w: ceiling %d above 100%%", ErrInvalidParams, p.Ceiling)
	}
	return nil
}

// Base interpolates the unboosted threshold for value: the dust floor is
// applied first, then MinThreshold..MaxThreshold over MinValue..MaxValue,
// saturating outside the range.
func Base(p Params, value *uint256.Int) uint64 {
	v := fpmath.Max(value, p.DustFloor)
	if !v.Gt(p.MinValue) {
		return p.MinThreshold
	}
	if !v.Lt(p.MaxValue) {
		return p.MaxThreshold
	}
	span := new(uint256.Int).Sub(p.MaxValue, p.MinValue)
	offset := new(uint256.Int).Sub(v, p.MinValue)
	rise := fpmath.MulDiv(offset, uint256.NewInt(p.MaxThreshold-p.MinThreshold), span)
	return p.MinThreshold + rise.Uint64()
}

// Apply scales base by multiplier (WAD) and caps the result at the ceiling.
func Apply(p Params, base uint64, multiplier *uint256.Int) uint64 {
	boosted := fpmath.MulWad(uint256.NewInt(base), multiplier)
	if !boosted.IsUint64() || boosted.Uint64() > p.Ceiling {
		return p.Ceiling
	}
	return boosted.Uint64()
}

// Threshold is Apply(Base(value), multiplier).
func Threshold(p Params, value, multiplier *uint256.Int) uint64 {
	return Apply(p, Base(p, value), multiplier)
}

// IsWinner reports randomness mod 1e6 < threshold.
func IsWinner(randomness *uint256.Int, threshold uint64) bool {
	if randomness == nil {
		return false
	}
	roll := new(uint256.Int).Mod(randomness, uint256.NewInt(fpmath.ProbabilityScale))
	return roll.Uint64() < threshold
}

// Roll returns randomness mod 1e6, the value compared against a threshold.
func Roll(randomness *uint256.Int) uint64 {
	if randomness == nil {
		return 0
	}
	return new(uint256.Int).Mod(randomness, uint256.NewInt(fpmath.ProbabilityScale)).Uint64()
}
