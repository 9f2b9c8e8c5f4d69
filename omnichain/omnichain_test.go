// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package omnichain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	log "github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/config"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/messenger"
	"github.com/luxfi/jackpot/randomness"
	"github.com/luxfi/jackpot/trigger"
	"github.com/luxfi/jackpot/vrf"
)

var (
	t0       = time.Unix(1_700_000_000, 0)
	funder   = common.HexToAddress("0x000000000000000000000000000000000000F00D")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	attacker = common.HexToAddress("0x000000000000000000000000000000000000bad1")

	losingWord  = uint256.NewInt(999_999)
	winningWord = uint256.NewInt(0)
)

func deploy(t *testing.T, cfg config.Config) *Deployment {
	t.Helper()
	d, err := Deploy(cfg, Options{
		Logger:     log.NewTestLogger(log.InfoLevel),
		Registerer: prometheus.NewRegistry(),
		Clock:      func() time.Time { return t0 },
		Entropy:    common.HexToHash("0xfeed"),
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// fulfillWith answers every pending coordinator request with word.
func fulfillWith(t *testing.T, d *Deployment, words ...*uint256.Int) {
	t.Helper()
	coordinator, ok := d.Provider.(*vrf.Coordinator)
	require.True(t, ok)
	pending := coordinator.Pending()
	require.Len(t, pending, len(words))
	for i, id := range pending {
		word := words[i]
		require.NoError(t, d.Compute.Execute(context.Background(), func(ctx context.Context) error {
			return coordinator.FulfillWithWords(ctx, id, []*uint256.Int{word})
		}))
	}
}

func TestRoundTripLoss(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())
	require.NoError(d.Fund(ctx, funder, fpmath.Wad(1_000)))

	receipt, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	require.True(receipt.Requested)
	require.Equal(uint64(40), receipt.BaseThreshold)
	require.Equal(1, d.Bus.Pending())

	require.NoError(d.Relay(ctx))
	fulfillWith(t, d, losingWord)
	require.NoError(d.Relay(ctx))

	out, ok := d.Trigger.Outcome(receipt.RequestID)
	require.True(ok)
	require.False(out.Won)
	require.Equal(uint64(999_999), out.Roll)
	require.Equal(uint64(40), out.Threshold)
	require.False(d.Trigger.Pending(receipt.RequestID))

	fee := fpmath.MulBps(fpmath.Wad(10), 690)
	require.Equal(new(uint256.Int).Add(fpmath.Wad(1_000), fee), d.Vault.Balance())
	require.Equal(float64(1), testutil.ToFloat64(d.Metrics.SwapsDetected))
	require.Equal(float64(1), testutil.ToFloat64(d.Metrics.Losses))
	require.Equal([]common.Address{alice}, d.Trigger.Participants())
}

func TestRoundTripWin(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())
	require.NoError(d.Fund(ctx, funder, fpmath.Wad(1_000)))

	first, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	second, err := d.Swap(ctx, bob, fpmath.Wad(10))
	require.NoError(err)
	require.NoError(d.Relay(ctx))
	fulfillWith(t, d, losingWord, winningWord)

	pool := d.Vault.Balance()
	require.NoError(d.Relay(ctx))

	lost, ok := d.Trigger.Outcome(first.RequestID)
	require.True(ok)
	require.False(lost.Won)

	won, ok := d.Trigger.Outcome(second.RequestID)
	require.True(ok)
	require.True(won.Won)
	require.False(won.Halted)
	require.Equal(bob, won.User)

	params := d.Config.DistributionParams()
	split := distributor.Compute(params, pool, 2)
	plan := distributor.Allocate(split, bob, []common.Address{alice, bob}, params.SecondaryWinners)
	require.Equal(split, won.Split)
	require.Equal(plan.Paid, won.Paid)

	paid := new(uint256.Int).Add(d.Balance(alice), d.Balance(bob))
	require.Equal(won.Paid, paid)
	require.True(d.Balance(bob).Gt(d.Balance(alice)))
	require.Equal(new(uint256.Int).Sub(pool, won.Paid), d.Vault.Balance())

	require.Empty(d.Trigger.Participants(), "cycle resets after a win")
	require.Len(codec.Filter(d.Home.State().Logs(), codec.EventJackpotWon), 1)
	require.Equal(uint64(1), d.Trigger.Stats().Wins)
}

func TestLostRequestReplayed(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())

	receipt, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)

	inFlight := d.Bus.InFlight()
	require.Len(inFlight, 1)
	require.True(d.Bus.Drop(inFlight[0].ID()))
	require.NoError(d.Relay(ctx))
	n, err := d.FulfillAll(ctx)
	require.NoError(err)
	require.Zero(n)
	require.Equal(randomness.StatusPending, d.Consumer.Status(receipt.RequestID))

	require.NoError(d.Replay(ctx, receipt.RequestID))
	require.NoError(d.Settle(ctx))

	_, ok := d.Trigger.Outcome(receipt.RequestID)
	require.True(ok)
	require.Equal(randomness.StatusFulfilled, d.Consumer.Status(receipt.RequestID))
	require.Len(codec.Filter(d.Home.State().Logs(), codec.EventRequestReplayed), 1)
}

func TestDuplicateResponseRejected(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())

	receipt, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	require.NoError(d.Replay(ctx, receipt.RequestID))
	require.NoError(d.Relay(ctx))

	n, err := d.FulfillAll(ctx)
	require.NoError(err)
	require.Equal(2, n)

	err = d.Relay(ctx)
	require.ErrorIs(err, randomness.ErrUnknownRequest)

	stats := d.Trigger.Stats()
	require.Equal(uint64(1), stats.Wins+stats.Losses)
}

func TestDuplicateWinningResponseLeavesPoolUnchanged(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())
	require.NoError(d.Fund(ctx, funder, fpmath.Wad(1_000)))

	receipt, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	require.NoError(d.Replay(ctx, receipt.RequestID))
	require.NoError(d.Relay(ctx))
	fulfillWith(t, d, winningWord, winningWord)
	require.Equal(2, d.Bus.Pending())

	_, ok, err := d.Bus.DeliverNext(ctx)
	require.NoError(err)
	require.True(ok)
	won, ok := d.Trigger.Outcome(receipt.RequestID)
	require.True(ok)
	require.True(won.Won)
	require.False(won.Paid.IsZero())

	pool := d.Vault.Balance()
	winner := d.Balance(alice)
	require.Equal(won.Paid, winner)
	logs := len(d.Home.State().Logs())

	_, ok, err = d.Bus.DeliverNext(ctx)
	require.True(ok)
	require.ErrorIs(err, randomness.ErrUnknownRequest)

	require.Equal(pool, d.Vault.Balance())
	require.Equal(winner, d.Balance(alice))
	require.Len(d.Home.State().Logs(), logs)
	require.Zero(d.Bus.Pending())
	stats := d.Trigger.Stats()
	require.Equal(uint64(1), stats.Wins)
	require.Zero(stats.Losses)
	require.Equal(won.Paid, stats.TotalPaid)
}

func TestOutOfOrderResponses(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())

	first, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	second, err := d.Swap(ctx, bob, fpmath.Wad(10))
	require.NoError(err)
	require.NoError(d.Relay(ctx))
	fulfillWith(t, d, losingWord, losingWord)

	require.Equal(2, d.Bus.Pending())
	d.Bus.Reverse()
	require.NoError(d.Relay(ctx))

	for _, id := range []uint64{first.RequestID, second.RequestID} {
		out, ok := d.Trigger.Outcome(id)
		require.True(ok)
		require.False(out.Won)
	}
}

func TestUntrustedRemoteRejected(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())

	receipt, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	require.NoError(d.Relay(ctx))

	forged, err := codec.EncodeResponse(codec.Response{
		RequestID:  receipt.RequestID,
		User:       alice,
		Randomness: winningWord,
	})
	require.NoError(err)
	require.NoError(d.Bus.Submit(ctx, messenger.Packet{
		SrcChainID: d.Compute.ID(),
		DstChainID: d.Home.ID(),
		Path:       messenger.Path(attacker, d.Addresses.Consumer),
		Nonce:      1,
		Payload:    forged,
	}))

	require.ErrorIs(d.Relay(ctx), messenger.ErrInvalidSource)
	require.True(d.Trigger.Pending(receipt.RequestID))
	require.Equal(randomness.StatusPending, d.Consumer.Status(receipt.RequestID))
}

func TestSignedProviderRound(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	key, err := bls.NewSecretKey()
	require.NoError(err)

	cfg := config.Default()
	cfg.Provider.Kind = vrf.KindSigned.String()
	d, err := Deploy(cfg, Options{SignerKey: key, Clock: func() time.Time { return t0 }})
	require.NoError(err)
	t.Cleanup(d.Close)

	out, err := d.Round(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	require.Equal(alice, out.User)

	signed, ok := d.Provider.(*vrf.SignedProvider)
	require.True(ok)
	require.Equal(bls.PublicKeyToCompressedBytes(key.PublicKey()), bls.PublicKeyToCompressedBytes(signed.Signer()))
	proof, ok := signed.ProofOf(1)
	require.True(ok)
	require.NoError(vrf.Verify(signed.Signer(), proof, []*uint256.Int{out.Randomness}))
}

func TestReportingSecondary(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	cfg := config.Default()
	cfg.Oracle.Secondary = config.SecondaryReporting
	d := deploy(t, cfg)
	require.Nil(d.Pyth)
	require.NotNil(d.Reporting)

	require.NoError(d.SetPrice(ctx, fpmath.Bps(5_000)))
	receipt, err := d.Swap(ctx, alice, fpmath.Wad(10))
	require.NoError(err)
	require.Equal(fpmath.Wad(5), receipt.ReferenceValue)

	price, _ := d.Reporting.Price()
	require.Equal(fpmath.Bps(5_000), price)
}

func TestPartnerBoostApplied(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	partner := DeriveAddress("partner-pair")
	cfg := config.Default()
	cfg.Boost.Partners = []config.Partner{{Address: partner.Hex(), Bps: 690}}
	d := deploy(t, cfg)

	_, err := d.SwapVia(ctx, partner, alice, fpmath.Wad(10))
	require.ErrorIs(err, trigger.ErrUnknownSource)

	require.NoError(d.Trigger.SetSwapSource(d.Addresses.Owner, partner, true))
	receipt, err := d.SwapVia(ctx, partner, alice, fpmath.Wad(10))
	require.NoError(err)
	require.NoError(d.Relay(ctx))
	fulfillWith(t, d, losingWord)
	require.NoError(d.Relay(ctx))

	out, ok := d.Trigger.Outcome(receipt.RequestID)
	require.True(ok)
	require.Equal(partner, out.Partner)
	require.True(out.Multiplier.Gt(fpmath.One()))
	require.Greater(out.Threshold, receipt.BaseThreshold)
}

func TestBelowMinimumIgnored(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	d := deploy(t, config.Default())

	_, err := d.Round(ctx, alice, fpmath.Wad(1))
	require.ErrorIs(err, ErrIgnored)
	require.Zero(d.Bus.Pending())
	require.Equal(uint64(1), d.Trigger.Stats().Ignored)
}

func TestDeployRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Compute.ID = cfg.Home.ID
	_, err := Deploy(cfg, Options{})
	require.ErrorIs(t, err, config.ErrInvalidChain)
}

func TestChainExecute(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	chain := NewChain(7, "test", messenger.NewBus(nil), nil, nil)

	require.NoError(chain.Execute(ctx, func(context.Context) error {
		chain.State().AddBalance(alice, uint256.NewInt(5), tracing.BalanceChangeUnspecified)
		return nil
	}))
	require.Equal(uint256.NewInt(5), chain.State().GetBalance(alice))

	errBoom := errors.New("boom")
	err := chain.Execute(ctx, func(context.Context) error {
		chain.State().AddBalance(alice, uint256.NewInt(5), tracing.BalanceChangeUnspecified)
		return errBoom
	})
	require.ErrorIs(err, errBoom)
	require.Equal(uint256.NewInt(5), chain.State().GetBalance(alice), "reverted")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(chain.Execute(canceled, func(context.Context) error { return nil }), context.Canceled)

	chain.Stop()
	require.ErrorIs(chain.Execute(ctx, func(context.Context) error { return nil }), ErrStopped)
}
