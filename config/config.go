// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config describes a two-chain jackpot deployment. Amounts are
// whole tokens or dollars and fractions are basis points so files stay
// readable; the accessors convert to the fixed-point params each component
// takes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/boost"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/oracle"
	"github.com/luxfi/jackpot/probability"
	"github.com/luxfi/jackpot/randomness"
	"github.com/luxfi/jackpot/trigger"
	"github.com/luxfi/jackpot/vrf"
)

var (
	ErrUnknownFormat = errors.New("unknown config format")
	ErrInvalidChain  = errors.New("invalid chain config")
	ErrInvalidPrice  = errors.New("invalid token price")
	ErrInvalidKey    = errors.New("invalid key hash")
	ErrUnknownSource = errors.New("unknown secondary price source")
)

// Secondary price sources
const (
	SecondaryPyth      = "pyth"
	SecondaryReporting = "reporting"
	SecondaryNone      = "none"
)

type Config struct {
	Home         Chain              `json:"home" yaml:"home"`
	Compute      Chain              `json:"compute" yaml:"compute"`
	Provider     ProviderConfig     `json:"provider" yaml:"provider"`
	Oracle       OracleConfig       `json:"oracle" yaml:"oracle"`
	Threshold    ThresholdConfig    `json:"threshold" yaml:"threshold"`
	Boost        BoostConfig        `json:"boost" yaml:"boost"`
	Distribution DistributionConfig `json:"distribution" yaml:"distribution"`
	Trigger      TriggerConfig      `json:"trigger" yaml:"trigger"`
}

// Chain is a messaging endpoint id and a display name.
type Chain struct {
	ID   uint32 `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type ProviderConfig struct {
	// Kind is "coordinator" or "signed".
	Kind             string `json:"kind" yaml:"kind"`
	KeyHash          string `json:"keyHash" yaml:"keyHash"`
	SubscriptionID   uint64 `json:"subscriptionId" yaml:"subscriptionId"`
	Confirmations    uint16 `json:"confirmations" yaml:"confirmations"`
	CallbackGasLimit uint32 `json:"callbackGasLimit" yaml:"callbackGasLimit"`
	NumWords         uint32 `json:"numWords" yaml:"numWords"`
}

type OracleConfig struct {
	// Strategy is "average" or "primary".
	Strategy string `json:"strategy" yaml:"strategy"`
	// Secondary is the fallback source: "pyth", "reporting" or "none".
	Secondary       string `json:"secondary" yaml:"secondary"`
	MaxDeviationBps uint64 `json:"maxDeviationBps" yaml:"maxDeviationBps"`
	MaxStaleness    string `json:"maxStaleness" yaml:"maxStaleness"`
	// TokenPriceCents seeds the price feeds.
	TokenPriceCents uint64 `json:"tokenPriceCents" yaml:"tokenPriceCents"`
}

type ThresholdConfig struct {
	MinThreshold uint64 `json:"minThreshold" yaml:"minThreshold"`
	MaxThreshold uint64 `json:"maxThreshold" yaml:"maxThreshold"`
	Ceiling      uint64 `json:"ceiling" yaml:"ceiling"`
	MinValueUSD  uint64 `json:"minValueUsd" yaml:"minValueUsd"`
	MaxValueUSD  uint64 `json:"maxValueUsd" yaml:"maxValueUsd"`
	DustFloorUSD uint64 `json:"dustFloorUsd" yaml:"dustFloorUsd"`
}

type Partner struct {
	Address string `json:"address" yaml:"address"`
	Bps     uint64 `json:"bps" yaml:"bps"`
}

type BoostConfig struct {
	MaxLiquidityBonusBps uint64    `json:"maxLiquidityBonusBps" yaml:"maxLiquidityBonusBps"`
	ScaleFactor          uint64    `json:"scaleFactor" yaml:"scaleFactor"`
	MaxPartnerBps        uint64    `json:"maxPartnerBps" yaml:"maxPartnerBps"`
	MaxMultiplierBps     uint64    `json:"maxMultiplierBps" yaml:"maxMultiplierBps"`
	Partners             []Partner `json:"partners" yaml:"partners"`
}

type DistributionConfig struct {
	DistributionBps         uint64 `json:"distributionBps" yaml:"distributionBps"`
	MainFloorBps            uint64 `json:"mainFloorBps" yaml:"mainFloorBps"`
	MainCeilingBps          uint64 `json:"mainCeilingBps" yaml:"mainCeilingBps"`
	CurveScaleTokens        uint64 `json:"curveScaleTokens" yaml:"curveScaleTokens"`
	SecondaryBps            uint64 `json:"secondaryBps" yaml:"secondaryBps"`
	ParticipantThreshold    uint64 `json:"participantThreshold" yaml:"participantThreshold"`
	PerParticipantBps       uint64 `json:"perParticipantBps" yaml:"perParticipantBps"`
	MaxParticipantFactorBps uint64 `json:"maxParticipantFactorBps" yaml:"maxParticipantFactorBps"`
	SecondaryWinners        int    `json:"secondaryWinners" yaml:"secondaryWinners"`
}

type TriggerConfig struct {
	MinSwapTokens uint64 `json:"minSwapTokens" yaml:"minSwapTokens"`
	FeeBps        uint64 `json:"feeBps" yaml:"feeBps"`
}

// Default is the Sonic home chain paired with Arbitrum for randomness.
func Default() Config {
	return Config{
		Home:    Chain{ID: 146, Name: "sonic"},
		Compute: Chain{ID: 110, Name: "arbitrum"},
		Provider: ProviderConfig{
			Kind:             vrf.KindCoordinator.String(),
			KeyHash:          "0x8472ba59cf7134dfe321f4d61a430c4857e8b19cdd5230b09952a92671c24409",
			SubscriptionID:   1,
			Confirmations:    3,
			CallbackGasLimit: 500_000,
			NumWords:         1,
		},
		Oracle: OracleConfig{
			Strategy:        oracle.StrategyAverage.String(),
			Secondary:       SecondaryPyth,
			MaxDeviationBps: 500,
			MaxStaleness:    "1h",
			TokenPriceCents: 100,
		},
		Threshold: ThresholdConfig{
			MinThreshold: 4,
			MaxThreshold: 40_000,
			Ceiling:      100_000,
			MinValueUSD:  1,
			MaxValueUSD:  10_000,
			DustFloorUSD: 1,
		},
		Boost: BoostConfig{
			MaxLiquidityBonusBps: 15_000,
			ScaleFactor:          10,
			MaxPartnerBps:        690,
			MaxMultiplierBps:     25_000,
		},
		Distribution: DistributionConfig{
			DistributionBps:         6_900,
			MainFloorBps:            7_000,
			MainCeilingBps:          9_500,
			CurveScaleTokens:        10_000,
			SecondaryBps:            8_000,
			ParticipantThreshold:    10,
			PerParticipantBps:       30,
			MaxParticipantFactorBps: 3_000,
			SecondaryWinners:        5,
		},
		Trigger: TriggerConfig{
			MinSwapTokens: 10,
			FeeBps:        690,
		},
	}
}

// Load reads a YAML or JSON file, chosen by extension, over Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in format ("yaml", "yml" or "json") over Default and
// verifies the result.
func Parse(data []byte, format string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := cfg.Verify(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Verify reports every problem in the config at once.
func (c Config) Verify() error {
	var errs error
	if c.Home.ID == 0 || c.Compute.ID == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: zero chain id", ErrInvalidChain))
	} else if c.Home.ID == c.Compute.ID {
		errs = multierr.Append(errs, fmt.Errorf("%w: home and compute share id %d", ErrInvalidChain, c.Home.ID))
	}

	if _, err := vrf.ParseKind(c.Provider.Kind); err != nil {
		errs = multierr.Append(errs, err)
	}
	if pc, err := c.RandomnessProvider(); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		errs = multierr.Append(errs, pc.Verify())
	}

	if _, err := c.AggregatorParams(); err != nil {
		errs = multierr.Append(errs, err)
	}
	switch c.Oracle.Secondary {
	case SecondaryPyth, SecondaryReporting, SecondaryNone:
	default:
		errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrUnknownSource, c.Oracle.Secondary))
	}
	if c.Oracle.TokenPriceCents == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: zero", ErrInvalidPrice))
	}

	errs = multierr.Append(errs, c.ThresholdParams().Verify())
	errs = multierr.Append(errs, c.BoostParams().Verify())
	if _, err := c.Partners(); err != nil {
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, c.TriggerParams().Verify())
	return errs
}

// ProviderKind is the parsed provider variant.
func (c Config) ProviderKind() vrf.Kind {
	k, _ := vrf.ParseKind(c.Provider.Kind)
	return k
}

func (c Config) RandomnessProvider() (randomness.ProviderConfig, error) {
	raw := strings.TrimPrefix(c.Provider.KeyHash, "0x")
	if len(raw) != 2*common.HashLength {
		return randomness.ProviderConfig{}, fmt.Errorf("%w: %q", ErrInvalidKey, c.Provider.KeyHash)
	}
	return randomness.ProviderConfig{
		KeyHash:          common.HexToHash(raw),
		SubscriptionID:   c.Provider.SubscriptionID,
		MinConfirmations: c.Provider.Confirmations,
		CallbackGasLimit: c.Provider.CallbackGasLimit,
		NumWords:         c.Provider.NumWords,
	}, nil
}

func (c Config) AggregatorParams() (oracle.AggregatorParams, error) {
	strategy, err := oracle.ParseStrategy(c.Oracle.Strategy)
	if err != nil {
		return oracle.AggregatorParams{}, err
	}
	var staleness time.Duration
	if c.Oracle.MaxStaleness != "" {
		staleness, err = time.ParseDuration(c.Oracle.MaxStaleness)
		if err != nil {
			return oracle.AggregatorParams{}, fmt.Errorf("max staleness: %w", err)
		}
	}
	p := oracle.AggregatorParams{
		Strategy:        strategy,
		MaxDeviationBps: c.Oracle.MaxDeviationBps,
		MaxStaleness:    staleness,
	}
	return p, p.Verify()
}

// TokenPrice is the seed price as an 18-decimal dollar amount.
func (c Config) TokenPrice() *uint256.Int {
	return fpmath.MulDiv(uint256.NewInt(c.Oracle.TokenPriceCents), fpmath.Precision, uint256.NewInt(100))
}

func (c Config) ThresholdParams() probability.Params {
	t := c.Threshold
	return probability.Params{
		MinThreshold: t.MinThreshold,
		MaxThreshold: t.MaxThreshold,
		Ceiling:      t.Ceiling,
		MinValue:     fpmath.Wad(t.MinValueUSD),
		MaxValue:     fpmath.Wad(t.MaxValueUSD),
		DustFloor:    fpmath.Wad(t.DustFloorUSD),
	}
}

func (c Config) BoostParams() boost.Params {
	b := c.Boost
	return boost.Params{
		MaxLiquidityBonus: fpmath.Bps(b.MaxLiquidityBonusBps),
		ScaleFactor:       b.ScaleFactor,
		MaxPartnerBps:     b.MaxPartnerBps,
		MaxMultiplier:     fpmath.Bps(b.MaxMultiplierBps),
	}
}

// Partners parses the partner list, rejecting bad addresses and bonuses
// above the partner cap.
func (c Config) Partners() (map[common.Address]uint64, error) {
	out := make(map[common.Address]uint64, len(c.Boost.Partners))
	var errs error
	for _, p := range c.Boost.Partners {
		if !common.IsHexAddress(p.Address) {
			errs = multierr.Append(errs, fmt.Errorf("partner %q: %w", p.Address, access.ErrInvalidAddress))
			continue
		}
		if p.Bps > c.Boost.MaxPartnerBps {
			errs = multierr.Append(errs, fmt.Errorf("partner %s: %w", p.Address, boost.ErrPartnerBoostTooHigh))
			continue
		}
		out[common.HexToAddress(p.Address)] = p.Bps
	}
	return out, errs
}

func (c Config) DistributionParams() distributor.Params {
	d := c.Distribution
	return distributor.Params{
		DistributionBps:      d.DistributionBps,
		MainFloor:            fpmath.Bps(d.MainFloorBps),
		MainCeiling:          fpmath.Bps(d.MainCeilingBps),
		CurveScale:           fpmath.Wad(d.CurveScaleTokens),
		SecondaryBps:         d.SecondaryBps,
		ParticipantThreshold: d.ParticipantThreshold,
		PerParticipant:       fpmath.Bps(d.PerParticipantBps),
		MaxParticipantFactor: fpmath.Bps(d.MaxParticipantFactorBps),
		SecondaryWinners:     d.SecondaryWinners,
	}
}

// TriggerParams includes the distribution params.
func (c Config) TriggerParams() trigger.Params {
	return trigger.Params{
		MinSwapAmount: fpmath.Wad(c.Trigger.MinSwapTokens),
		FeeBps:        c.Trigger.FeeBps,
		Distribution:  c.DistributionParams(),
	}
}
