// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jackpot

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/metrics"
	"github.com/luxfi/jackpot/state"
)

var (
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000069069")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func newVault(t *testing.T) (*Vault, *state.MemoryDB, *metrics.Metrics) {
	t.Helper()
	db := state.NewMemoryDB()
	m := metrics.New(prometheus.NewRegistry())
	return NewVault(vaultAddr, db, access.NewOwnable(owner), nil, m), db, m
}

func TestDepositAndCredit(t *testing.T) {
	v, db, m := newVault(t)
	db.AddBalance(alice, fpmath.Wad(100), tracing.BalanceChangeTransfer)

	require.ErrorIs(t, v.Deposit(alice, fpmath.Wad(101)), ErrInsufficientFunds)
	require.ErrorIs(t, v.Deposit(alice, new(uint256.Int)), ErrZeroAmount)
	require.NoError(t, v.Deposit(alice, fpmath.Wad(60)))
	require.Equal(t, fpmath.Wad(60), v.Balance())
	require.Equal(t, fpmath.Wad(40), db.GetBalance(alice))

	v.Credit(fpmath.Wad(15))
	require.Equal(t, fpmath.Wad(75), v.Balance())
	require.InDelta(t, 75.0, testutil.ToFloat64(m.JackpotBalance), 1e-9)

	logs := codec.Filter(db.Logs(), codec.EventJackpotDeposited)
	require.Len(t, logs, 1)
	require.Equal(t, common.BytesToHash(alice.Bytes()), logs[0].Topics[1])
	args, err := codec.UnpackEventData(codec.EventJackpotDeposited, logs[0].Data)
	require.NoError(t, err)
	require.Equal(t, fpmath.Wad(60).ToBig(), args[0].(*big.Int))
}

func TestDisburseAll(t *testing.T) {
	v, db, _ := newVault(t)
	v.Credit(fpmath.Wad(100))

	require.NoError(t, v.DisburseAll([]distributor.Payout{
		{Recipient: alice, Amount: fpmath.Wad(30)},
		{Recipient: bob, Amount: fpmath.Wad(20)},
		{Recipient: bob, Amount: new(uint256.Int)},
	}))
	require.Equal(t, fpmath.Wad(50), v.Balance())
	require.Equal(t, fpmath.Wad(30), db.GetBalance(alice))
	require.Equal(t, fpmath.Wad(20), db.GetBalance(bob))

	require.NoError(t, v.Disburse(alice, fpmath.Wad(50)))
	require.True(t, v.Balance().IsZero())
}

func TestOverdrawHalts(t *testing.T) {
	v, db, m := newVault(t)
	v.Credit(fpmath.Wad(10))

	err := v.DisburseAll([]distributor.Payout{
		{Recipient: alice, Amount: fpmath.Wad(6)},
		{Recipient: bob, Amount: fpmath.Wad(6)},
	})
	require.ErrorIs(t, err, ErrOverdraw)
	require.True(t, v.Halted())
	require.Equal(t, fpmath.Wad(10), v.Balance(), "nothing paid")
	require.True(t, db.GetBalance(alice).IsZero())
	require.Len(t, codec.Filter(db.Logs(), codec.EventDistributionHalted), 1)
	require.Equal(t, 1.0, testutil.ToFloat64(m.Halts))

	require.ErrorIs(t, v.Disburse(alice, fpmath.Wad(1)), ErrHalted)

	require.ErrorIs(t, v.Resume(alice), access.ErrUnauthorized)
	require.NoError(t, v.Resume(owner))
	require.False(t, v.Halted())
	require.ErrorIs(t, v.Resume(owner), ErrNotHalted)
	require.NoError(t, v.Disburse(alice, fpmath.Wad(1)))
}

func TestTokens(t *testing.T) {
	require.InDelta(t, 1.5, Tokens(fpmath.Bps(15_000)), 1e-12)
	require.Zero(t, Tokens(new(uint256.Int)))
}
