// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package distributor splits a jackpot win between the winner, the most
// recent other participants and the whole cycle.
//
// Of a pool B only A = B*DistributionBps is paid out. The main share follows
//
//	curve(A) = floor + (ceiling - floor) * S / (S + A)
//
// which is the ceiling for an empty pool and tends to the floor as A grows
// past the scale S. Broad participation lowers it further (never below the
// floor); what main does not take is split 80/20 between secondary and
// participation prizes.
package distributor

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/jackpot/fpmath"
)

var ErrInvalidParams = errors.New("invalid distribution params")

type Params struct {
	// DistributionBps is the fraction of the pool paid per win.
	DistributionBps uint64 `json:"distributionBps" yaml:"distributionBps"`
	// MainFloor and MainCeiling bound the main share (WAD).
	MainFloor   *uint256.Int `json:"mainFloor" yaml:"mainFloor"`
	MainCeiling *uint256.Int `json:"mainCeiling" yaml:"mainCeiling"`
	// CurveScale is the distributable amount at which main sits halfway
	// between ceiling and floor.
	CurveScale *uint256.Int `json:"curveScale" yaml:"curveScale"`
	// SecondaryBps is the secondary cut of the non-main remainder.
	SecondaryBps uint64 `json:"secondaryBps" yaml:"secondaryBps"`

	ParticipantThreshold uint64       `json:"participantThreshold" yaml:"participantThreshold"`
	PerParticipant       *uint256.Int `json:"perParticipant" yaml:"perParticipant"`
	MaxParticipantFactor *uint256.Int `json:"maxParticipantFactor" yaml:"maxParticipantFactor"`

	// SecondaryWinners caps how many recent participants share secondary.
	SecondaryWinners int `json:"secondaryWinners" yaml:"secondaryWinners"`
}

func DefaultParams() Params {
	return Params{
		DistributionBps:      6_900,
		MainFloor:            fpmath.Bps(7_000),
		MainCeiling:          fpmath.Bps(9_500),
		CurveScale:           fpmath.Wad(10_000),
		SecondaryBps:         8_000,
		ParticipantThreshold: 10,
		PerParticipant:       fpmath.Bps(30),
		MaxParticipantFactor: fpmath.Bps(3_000),
		SecondaryWinners:     5,
	}
}

func (p Params) Verify() error {
	switch {
	case p.MainFloor == nil || p.MainCeiling == nil || p.CurveScale == nil ||
		p.PerParticipant == nil || p.MaxParticipantFactor == nil:
		return fmt.Errorf("%w: missing field", ErrInvalidParams)
	case p.DistributionBps == 0 || p.DistributionBps > fpmath.BasisPoints:
		return fmt.Errorf("%w: distribution %d bps", ErrInvalidParams, p.DistributionBps)
	case p.MainFloor.Gt(p.MainCeiling):
		return fmt.Errorf("%w: main floor %s above ceiling %s", ErrInvalidParams, p.MainFloor.Dec(), p.MainCeiling.Dec())
	case p.MainCeiling.Gt(fpmath.Precision):
		return fmt.Errorf("%w: main ceiling %s above 1.0", ErrInvalidParams, p.MainCeiling.Dec())
	case p.CurveScale.IsZero():
		return fmt.Errorf("%w: zero curve scale", ErrInvalidParams)
	case p.SecondaryBps > fpmath.BasisPoints:
		return fmt.Errorf("%w: secondary %d bps", ErrInvalidParams, p.SecondaryBps)
	case p.MaxParticipantFactor.Gt(fpmath.Precision):
		return fmt.Errorf("%w: participant factor %s above 1.0", ErrInvalidParams, p.MaxParticipantFactor.Dec())
	case p.SecondaryWinners < 0:
		return fmt.Errorf("%w: negative secondary winners", ErrInvalidParams)
	}
	return nil
}

// Curve returns the un-penalized main share for distributable amount a.
func Curve(p Params, a *uint256.Int) *uint256.Int {
	spread := new(uint256.Int).Sub(p.MainCeiling, p.MainFloor)
	denom := fpmath.SatAdd(p.CurveScale, a)
	return new(uint256.Int).Add(p.MainFloor, fpmath.MulDiv(spread, p.CurveScale, denom))
}

// ParticipantFactor is min(MaxParticipantFactor, n*PerParticipant) once n
// exceeds ParticipantThreshold, zero otherwise.
func ParticipantFactor(p Params, n uint64) *uint256.Int {
	if n <= p.ParticipantThreshold {
		return new(uint256.Int)
	}
	f := fpmath.MulDiv(uint256.NewInt(n), p.PerParticipant, uint256.NewInt(1))
	return fpmath.Min(f, p.MaxParticipantFactor)
}

// Shares are WAD fractions of the distributable amount, summing to exactly 1.
type Shares struct {
	Main          *uint256.Int
	Secondary     *uint256.Int
	Participation *uint256.Int
}

func ComputeShares(p Params, a *uint256.Int, participants uint64) Shares {
	penalty := new(uint256.Int).Sub(fpmath.Precision, ParticipantFactor(p, participants))
	main := fpmath.Clamp(fpmath.MulWad(Curve(p, a), penalty), p.MainFloor, p.MainCeiling)

	rest := new(uint256.Int).Sub(fpmath.Precision, main)
	secondary := fpmath.MulBps(rest, p.SecondaryBps)
	return Shares{
		Main:          main,
		Secondary:     secondary,
		Participation: new(uint256.Int).Sub(rest, secondary),
	}
}

// Split is the division of one pool balance.
type Split struct {
	Balance       *uint256.Int
	Distributable *uint256.Int
	Retained      *uint256.Int
	Main          *uint256.Int
	Secondary     *uint256.Int
	Participation *uint256.Int
	Shares        Shares
}

// Compute splits balance for a cycle with the given participant count. The
// three prize amounts add up to Distributable, and Distributable plus
// Retained to the balance.
func Compute(p Params, balance *uint256.Int, participants uint64) Split {
	a := fpmath.MulBps(balance, p.DistributionBps)
	shares := ComputeShares(p, a, participants)
	main := fpmath.MulWad(a, shares.Main)
	secondary := fpmath.MulWad(a, shares.Secondary)
	participation := new(uint256.Int).Sub(a, main)
	participation.Sub(participation, secondary)
	return Split{
		Balance:       balance.Clone(),
		Distributable: a,
		Retained:      new(uint256.Int).Sub(balance, a),
		Main:          main,
		Secondary:     secondary,
		Participation: participation,
		Shares:        shares,
	}
}
