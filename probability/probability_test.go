// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package probability

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/fpmath"
)

var owner = common.HexToAddress("0x0000000000000000000000000000000000000A01")

func TestScenarios(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name       string
		value      *uint256.Int
		multiplier *uint256.Int
		want       uint64
	}{
		{"floor value, no boost", fpmath.Wad(1), fpmath.One(), 4},
		{"ceiling value, no boost", fpmath.Wad(10_000), fpmath.One(), 40_000},
		{"ceiling value, max boost", fpmath.Wad(10_000), fpmath.Bps(25_000), 100_000},
		{"dust", uint256.NewInt(1), fpmath.One(), 4},
		{"above range", fpmath.Wad(1_000_000), fpmath.One(), 40_000},
		{"midpoint", fpmath.Wad(5_000), fpmath.One(), 4 + 4999*39_996/9999},
		{"floor value, max boost", fpmath.Wad(1), fpmath.Bps(25_000), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Threshold(p, tt.value, tt.multiplier))
		})
	}
}

func TestApplyCapsAtCeiling(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, p.Ceiling, Apply(p, p.MaxThreshold, fpmath.Wad(100)))
	require.Equal(t, p.Ceiling, Apply(p, p.MaxThreshold, new(uint256.Int).SetAllOne()))
	require.Equal(t, uint64(6), Apply(p, 4, fpmath.Bps(15_000)))
	require.Equal(t, uint64(4), Apply(p, 4, fpmath.Bps(10_001)), "rounds down")
}

func TestIsWinner(t *testing.T) {
	require.True(t, IsWinner(uint256.NewInt(3), 4))
	require.False(t, IsWinner(uint256.NewInt(4), 4))
	require.True(t, IsWinner(uint256.NewInt(2_000_003), 4), "compared mod 1e6")
	require.False(t, IsWinner(uint256.NewInt(0), 0))
	require.False(t, IsWinner(nil, 100))
	require.Equal(t, uint64(3), Roll(uint256.NewInt(7_000_003)))
}

func TestParamsVerify(t *testing.T) {
	require.NoError(t, DefaultParams().Verify())

	p := DefaultParams()
	p.MaxThreshold = p.Ceiling + 1
	require.ErrorIs(t, p.Verify(), ErrInvalidParams)

	p = DefaultParams()
	p.MinValue = p.MaxValue
	require.ErrorIs(t, p.Verify(), ErrInvalidParams)

	p = DefaultParams()
	p.Ceiling = fpmath.ProbabilityScale + 1
	require.ErrorIs(t, p.Verify(), ErrInvalidParams)

	p = DefaultParams()
	p.DustFloor = nil
	require.ErrorIs(t, p.Verify(), ErrInvalidParams)
}

func TestSaturationProperty(t *testing.T) {
	p := DefaultParams()
	rapid.Check(t, func(tt *rapid.T) {
		boost := uint256.NewInt(rapid.Uint64Range(1_000_000_000_000_000_000, 2_500_000_000_000_000_000).Draw(tt, "boost"))
		extra := fpmath.Wad(rapid.Uint64Range(0, 1_000_000_000).Draw(tt, "extra"))

		high := new(uint256.Int).Add(p.MaxValue, extra)
		if got, want := Threshold(p, high, boost), Apply(p, p.MaxThreshold, boost); got != want {
			tt.Fatalf("above range: got %d, want %d", got, want)
		}
		low := fpmath.SatSub(p.MinValue, extra)
		if got, want := Threshold(p, low, boost), Apply(p, p.MinThreshold, boost); got != want {
			tt.Fatalf("below range: got %d, want %d", got, want)
		}
	})
}

func TestMonotonicProperty(t *testing.T) {
	p := DefaultParams()
	rapid.Check(t, func(tt *rapid.T) {
		a := fpmath.Wad(rapid.Uint64Range(0, 20_000).Draw(tt, "a"))
		b := fpmath.Wad(rapid.Uint64Range(0, 20_000).Draw(tt, "b"))
		if b.Lt(a) {
			a, b = b, a
		}
		m1 := uint256.NewInt(rapid.Uint64Range(1_000_000_000_000_000_000, 3_000_000_000_000_000_000).Draw(tt, "m1"))
		m2 := uint256.NewInt(rapid.Uint64Range(1_000_000_000_000_000_000, 3_000_000_000_000_000_000).Draw(tt, "m2"))
		if m2.Lt(m1) {
			m1, m2 = m2, m1
		}

		if Threshold(p, a, m1) > Threshold(p, b, m1) {
			tt.Fatalf("not monotonic in value")
		}
		if Threshold(p, a, m1) > Threshold(p, a, m2) {
			tt.Fatalf("not monotonic in boost")
		}
		if th := Threshold(p, b, m2); th < p.MinThreshold || th > p.Ceiling {
			tt.Fatalf("threshold %d out of bounds", th)
		}
	})
}

func TestDeterministicOutcome(t *testing.T) {
	p := DefaultParams()
	rapid.Check(t, func(tt *rapid.T) {
		r := uint256.NewInt(rapid.Uint64().Draw(tt, "randomness"))
		v := fpmath.Wad(rapid.Uint64Range(0, 20_000).Draw(tt, "value"))
		th := Threshold(p, v, fpmath.One())
		if IsWinner(r, th) != IsWinner(r.Clone(), Threshold(p, v.Clone(), fpmath.One())) {
			tt.Fatalf("outcome not deterministic")
		}
	})
}

type fixedOracle struct {
	price *uint256.Int
	err   error
}

func (f fixedOracle) ReferenceValue(_ context.Context, amount *uint256.Int) (*uint256.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fpmath.MulWad(amount, f.price), nil
}

func TestEngine(t *testing.T) {
	// $0.50 per token: 20,000 tokens are worth $10,000
	e, err := NewEngine(access.NewOwnable(owner), fixedOracle{price: fpmath.Bps(5_000)}, DefaultParams())
	require.NoError(t, err)

	res, err := e.Threshold(context.Background(), fpmath.Wad(20_000), fpmath.One())
	require.NoError(t, err)
	require.Equal(t, fpmath.Wad(10_000), res.ReferenceValue)
	require.Equal(t, uint64(40_000), res.Base)
	require.Equal(t, uint64(40_000), res.Threshold)

	require.Equal(t, uint64(100_000), e.Apply(res.Base, fpmath.Bps(25_000)))

	p := DefaultParams()
	p.MaxThreshold = 50_000
	require.ErrorIs(t, e.SetParams(common.Address{1}, p), access.ErrUnauthorized)
	require.NoError(t, e.SetParams(owner, p))
	require.Equal(t, uint64(50_000), e.Params().MaxThreshold)

	failing, err := NewEngine(access.NewOwnable(owner), fixedOracle{err: errors.New("down")}, DefaultParams())
	require.NoError(t, err)
	_, err = failing.Threshold(context.Background(), fpmath.Wad(1), fpmath.One())
	require.Error(t, err)
}
