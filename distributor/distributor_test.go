// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package distributor

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/luxfi/jackpot/fpmath"
)

func u(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func TestUnpenalizedCycle(t *testing.T) {
	p := DefaultParams()
	split := Compute(p, uint256.NewInt(100_000), 0)

	require.Equal(t, uint256.NewInt(69_000), split.Distributable)
	require.Equal(t, uint256.NewInt(31_000), split.Retained)
	require.Equal(t, Curve(p, uint256.NewInt(69_000)), split.Shares.Main)

	sum := new(uint256.Int).Add(split.Main, split.Secondary)
	sum.Add(sum, split.Participation)
	require.Equal(t, split.Distributable, sum)
}

func TestComputeLargePool(t *testing.T) {
	p := DefaultParams()
	split := Compute(p, fpmath.Wad(100_000), 0)

	require.Equal(t, fpmath.Wad(69_000), split.Distributable)
	require.Equal(t, u("731645569620253164"), split.Shares.Main)
	require.Equal(t, u("214683544303797468"), split.Shares.Secondary)
	require.Equal(t, u("53670886075949368"), split.Shares.Participation)
	require.Equal(t, u("50483544303797468316000"), split.Main)
	require.Equal(t, u("14813164556962025292000"), split.Secondary)
	require.Equal(t, u("3703291139240506392000"), split.Participation)
}

func TestCurveBounds(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, p.MainCeiling, Curve(p, new(uint256.Int)))
	require.Equal(t, fpmath.Bps(8_250), Curve(p, p.CurveScale), "halfway at the scale")
	huge := new(uint256.Int).SetAllOne()
	require.Equal(t, p.MainFloor, Curve(p, huge))
}

func TestParticipantFactor(t *testing.T) {
	p := DefaultParams()
	require.True(t, ParticipantFactor(p, 0).IsZero())
	require.True(t, ParticipantFactor(p, 10).IsZero())
	require.Equal(t, fpmath.Bps(330), ParticipantFactor(p, 11))
	require.Equal(t, fpmath.Bps(3_000), ParticipantFactor(p, 100))
	require.Equal(t, fpmath.Bps(3_000), ParticipantFactor(p, 1_000_000))

	// 0.7316 * (1 - 0.06) is below the floor
	shares := ComputeShares(p, fpmath.Wad(69_000), 20)
	require.Equal(t, p.MainFloor, shares.Main)
	require.Equal(t, fpmath.Bps(2_400), shares.Secondary)
	require.Equal(t, fpmath.Bps(600), shares.Participation)
}

func TestParamsVerify(t *testing.T) {
	require.NoError(t, DefaultParams().Verify())

	for name, mutate := range map[string]func(*Params){
		"zero distribution":   func(p *Params) { p.DistributionBps = 0 },
		"over distribution":   func(p *Params) { p.DistributionBps = 10_001 },
		"floor above ceiling": func(p *Params) { p.MainFloor = fpmath.Bps(9_600) },
		"ceiling above one":   func(p *Params) { p.MainCeiling = fpmath.Bps(10_001) },
		"zero scale":          func(p *Params) { p.CurveScale = new(uint256.Int) },
		"missing":             func(p *Params) { p.PerParticipant = nil },
		"negative winners":    func(p *Params) { p.SecondaryWinners = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			require.ErrorIs(t, p.Verify(), ErrInvalidParams)
		})
	}
}

func TestSharesSumToOne(t *testing.T) {
	p := DefaultParams()
	rapid.Check(t, func(tt *rapid.T) {
		balance := new(uint256.Int).Mul(
			uint256.NewInt(rapid.Uint64().Draw(tt, "hi")),
			uint256.NewInt(rapid.Uint64().Draw(tt, "lo")),
		)
		n := rapid.Uint64Range(0, 10_000).Draw(tt, "participants")

		split := Compute(p, balance, n)
		s := split.Shares
		total := new(uint256.Int).Add(s.Main, s.Secondary)
		total.Add(total, s.Participation)
		if !total.Eq(fpmath.Precision) {
			tt.Fatalf("shares sum to %s", total.Dec())
		}
		if s.Main.Lt(p.MainFloor) || s.Main.Gt(p.MainCeiling) {
			tt.Fatalf("main share %s out of bounds", s.Main.Dec())
		}

		amounts := new(uint256.Int).Add(split.Main, split.Secondary)
		amounts.Add(amounts, split.Participation)
		if !amounts.Eq(split.Distributable) {
			tt.Fatalf("amounts %s != distributable %s", amounts.Dec(), split.Distributable.Dec())
		}
		if kept := new(uint256.Int).Add(split.Distributable, split.Retained); !kept.Eq(balance) {
			tt.Fatalf("leak: %s != %s", kept.Dec(), balance.Dec())
		}
	})
}

func TestCurveDecreasing(t *testing.T) {
	p := DefaultParams()
	rapid.Check(t, func(tt *rapid.T) {
		a := fpmath.Wad(rapid.Uint64Range(0, 1_000_000_000).Draw(tt, "a"))
		b := fpmath.Wad(rapid.Uint64Range(0, 1_000_000_000).Draw(tt, "b"))
		if b.Lt(a) {
			a, b = b, a
		}
		if Curve(p, a).Lt(Curve(p, b)) {
			tt.Fatalf("curve increases between %s and %s", a.Dec(), b.Dec())
		}
	})
}

func TestAllocate(t *testing.T) {
	var (
		winner = common.HexToAddress("0x0000000000000000000000000000000000000001")
		a      = common.HexToAddress("0x000000000000000000000000000000000000000a")
		b      = common.HexToAddress("0x000000000000000000000000000000000000000b")
		c      = common.HexToAddress("0x000000000000000000000000000000000000000c")
	)
	split := Split{
		Main:          uint256.NewInt(100),
		Secondary:     uint256.NewInt(10),
		Participation: uint256.NewInt(7),
	}

	plan := Allocate(split, winner, []common.Address{a, b, c, winner}, 2)
	require.Equal(t, []Payout{
		{winner, TierMain, uint256.NewInt(100)},
		{c, TierSecondary, uint256.NewInt(5)},
		{b, TierSecondary, uint256.NewInt(5)},
		{a, TierParticipation, uint256.NewInt(1)},
		{b, TierParticipation, uint256.NewInt(1)},
		{c, TierParticipation, uint256.NewInt(1)},
		{winner, TierParticipation, uint256.NewInt(1)},
	}, plan.Payouts)
	require.Equal(t, uint256.NewInt(114), plan.Paid)
	require.Equal(t, uint256.NewInt(3), plan.Dust)

	alone := Allocate(split, winner, []common.Address{winner}, 5)
	require.Len(t, alone.Payouts, 2)
	require.Equal(t, uint256.NewInt(107), alone.Paid)
	require.Equal(t, uint256.NewInt(10), alone.Dust, "no one else to take secondary")
	require.Equal(t, "secondary", TierSecondary.String())
}
