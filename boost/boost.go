// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package boost computes the win-probability multiplier of a user. Two
// additive bonuses sit on a 1.0x base: a cube-root liquidity bonus over
// locked voting power and a curated partner bonus. Each bonus and the
// total are capped.
package boost

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/luxfi/jackpot/fpmath"
)

var (
	ErrInvalidParams        = errors.New("invalid boost params")
	ErrPartnerBoostTooHigh  = errors.New("partner boost above cap")
	ErrUnknownPartner       = errors.New("unknown partner")
	ErrVotingPowerTooLarge  = errors.New("voting power exceeds locked amount")
	ErrNegativeLockDuration = errors.New("negative lock duration")
)

// Params configure the multiplier. All WAD values use 18 decimals.
type Params struct {
	MaxLiquidityBonus *uint256.Int `json:"maxLiquidityBonus" yaml:"maxLiquidityBonus"`
	ScaleFactor       uint64       `json:"scaleFactor" yaml:"scaleFactor"`
	MaxPartnerBps     uint64       `json:"maxPartnerBps" yaml:"maxPartnerBps"`
	MaxMultiplier     *uint256.Int `json:"maxMultiplier" yaml:"maxMultiplier"`
}

// DefaultParams: liquidity bonus up to 1.5x at cbrt/10, partners up to 6.9%,
// total capped at 2.5x.
func DefaultParams() Params {
	return Params{
		MaxLiquidityBonus: fpmath.Bps(15_000),
		ScaleFactor:       10,
		MaxPartnerBps:     690,
		MaxMultiplier:     fpmath.Bps(25_000),
	}
}

func (p Params) Verify() error {
	if p.MaxLiquidityBonus == nil || p.MaxMultiplier == nil {
		return fmt.Errorf("%w: missing caps", ErrInvalidParams)
	}
	if p.ScaleFactor == 0 {
		return fmt.Errorf("%w: zero scale factor", ErrInvalidParams)
	}
	if p.MaxPartnerBps > fpmath.BasisPoints {
		return fmt.Errorf("%w: partner cap %d bps", ErrInvalidParams, p.MaxPartnerBps)
	}
	if p.MaxMultiplier.Lt(fpmath.Precision) {
		return fmt.Errorf("%w: multiplier cap below 1.0", ErrInvalidParams)
	}
	return nil
}

// Profile is the lock position of a user. VotingPower never exceeds
// LockedAmount; their ratio is the time-decay fraction of the lock.
type Profile struct {
	LockedAmount  *uint256.Int
	VotingPower   *uint256.Int
	LockRemaining time.Duration
}

func (p Profile) Verify() error {
	if p.LockRemaining < 0 {
		return ErrNegativeLockDuration
	}
	if p.LockedAmount != nil && p.VotingPower != nil && p.VotingPower.Gt(p.LockedAmount) {
		return ErrVotingPowerTooLarge
	}
	return nil
}

// EffectiveVotingPower returns min(VotingPower, LockedAmount), or zero when
// either is unset.
func (p Profile) EffectiveVotingPower() *uint256.Int {
	if p.LockedAmount == nil || p.VotingPower == nil {
		return new(uint256.Int)
	}
	return fpmath.Min(p.VotingPower, p.LockedAmount)
}

// TimeFraction returns VotingPower / LockedAmount as WAD.
func (p Profile) TimeFraction() *uint256.Int {
	if p.LockedAmount == nil || p.LockedAmount.IsZero() {
		return new(uint256.Int)
	}
	return fpmath.MulDiv(p.EffectiveVotingPower(), fpmath.Precision, p.LockedAmount)
}

// LiquidityBonus returns min(MaxLiquidityBonus, cbrt(power) / ScaleFactor)
// where power is effective voting power in 18-decimal token units.
func LiquidityBonus(p Params, profile Profile) *uint256.Int {
	power := profile.EffectiveVotingPower()
	if power.IsZero() || p.ScaleFactor == 0 {
		return new(uint256.Int)
	}
	bonus := fpmath.CbrtWad(power)
	bonus.Div(bonus, uint256.NewInt(p.ScaleFactor))
	return fpmath.Min(bonus, p.MaxLiquidityBonus)
}

// PartnerBonus converts a partner boost in bps to WAD, capped.
func PartnerBonus(p Params, bps uint64) *uint256.Int {
	if bps > p.MaxPartnerBps {
		bps = p.MaxPartnerBps
	}
	return fpmath.Bps(bps)
}

// Combine returns 1.0 + liquidity + partner, capped at MaxMultiplier.
func Combine(p Params, liquidity, partner *uint256.Int) *uint256.Int {
	total := fpmath.SatAdd(fpmath.One(), liquidity)
	total = fpmath.SatAdd(total, partner)
	return fpmath.Min(total, p.MaxMultiplier)
}
