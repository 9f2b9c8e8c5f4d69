// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/luxfi/jackpot/boost"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/oracle"
	"github.com/luxfi/jackpot/probability"
	"github.com/luxfi/jackpot/trigger"
	"github.com/luxfi/jackpot/vrf"
)

func TestDefaultMatchesComponents(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Verify())

	require.Equal(t, probability.DefaultParams(), cfg.ThresholdParams())
	require.Equal(t, boost.DefaultParams(), cfg.BoostParams())
	require.Equal(t, distributor.DefaultParams(), cfg.DistributionParams())
	require.Equal(t, trigger.DefaultParams(), cfg.TriggerParams())

	agg, err := cfg.AggregatorParams()
	require.NoError(t, err)
	require.Equal(t, oracle.DefaultAggregatorParams(), agg)

	pc, err := cfg.RandomnessProvider()
	require.NoError(t, err)
	require.Equal(t, uint16(3), pc.MinConfirmations)
	require.Equal(t, uint32(500_000), pc.CallbackGasLimit)
	require.Equal(t, uint32(1), pc.NumWords)
	require.Equal(t, vrf.KindCoordinator, cfg.ProviderKind())
	require.Equal(t, fpmath.One(), cfg.TokenPrice())
}

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(`
home:
  id: 30101
  name: ethereum
provider:
  kind: signed
oracle:
  secondary: reporting
  tokenPriceCents: 50
boost:
  partners:
    - address: "0x000000000000000000000000000000000000da1e"
      bps: 250
trigger:
  minSwapTokens: 100
`), "yaml")
	require.NoError(t, err)
	require.Equal(t, uint32(30101), cfg.Home.ID)
	require.Equal(t, uint32(110), cfg.Compute.ID, "defaults kept")
	require.Equal(t, vrf.KindSigned, cfg.ProviderKind())
	require.Equal(t, fpmath.Bps(5_000), cfg.TokenPrice())
	require.Equal(t, SecondaryReporting, cfg.Oracle.Secondary)
	require.Equal(t, fpmath.Wad(100), cfg.TriggerParams().MinSwapAmount)

	partners, err := cfg.Partners()
	require.NoError(t, err)
	require.Equal(t, map[common.Address]uint64{
		common.HexToAddress("0x000000000000000000000000000000000000da1e"): 250,
	}, partners)
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"distribution":{"distributionBps":5000,"secondaryWinners":3}}`), "json")
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), cfg.DistributionParams().DistributionBps)
	require.Equal(t, 3, cfg.DistributionParams().SecondaryWinners)
	require.Equal(t, fpmath.Bps(7_000), cfg.DistributionParams().MainFloor)

	_, err = Parse([]byte(`{}`), "toml")
	require.ErrorIs(t, err, ErrUnknownFormat)
	_, err = Parse([]byte(`{`), "json")
	require.Error(t, err)
}

func TestVerifyReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.Compute.ID = cfg.Home.ID
	cfg.Provider.Kind = "quantum"
	cfg.Provider.NumWords = 0
	cfg.Oracle.TokenPriceCents = 0
	cfg.Threshold.Ceiling = 10
	cfg.Boost.Partners = []Partner{{Address: "nope", Bps: 1}, {Address: "0x000000000000000000000000000000000000da1e", Bps: 5_000}}

	err := cfg.Verify()
	require.ErrorIs(t, err, ErrInvalidChain)
	require.ErrorIs(t, err, vrf.ErrUnknownProviderKind)
	require.ErrorIs(t, err, vrf.ErrInvalidNumWords)
	require.ErrorIs(t, err, ErrInvalidPrice)
	require.ErrorIs(t, err, probability.ErrInvalidParams)
	require.ErrorIs(t, err, boost.ErrPartnerBoostTooHigh)
	require.Len(t, multierr.Errors(err), 7)

	cfg = Default()
	cfg.Provider.KeyHash = "0x1234"
	require.ErrorIs(t, cfg.Verify(), ErrInvalidKey)

	cfg = Default()
	cfg.Oracle.Secondary = "band"
	require.ErrorIs(t, cfg.Verify(), ErrUnknownSource)

	cfg = Default()
	cfg.Oracle.MaxStaleness = "soon"
	require.Error(t, cfg.Verify())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jackpot.yml")
	require.NoError(t, os.WriteFile(path, []byte("trigger:\n  feeBps: 100\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(100), cfg.TriggerParams().FeeBps)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
