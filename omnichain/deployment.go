// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package omnichain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	log "github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/boost"
	"github.com/luxfi/jackpot/config"
	"github.com/luxfi/jackpot/jackpot"
	"github.com/luxfi/jackpot/messenger"
	"github.com/luxfi/jackpot/metrics"
	"github.com/luxfi/jackpot/oracle"
	"github.com/luxfi/jackpot/probability"
	"github.com/luxfi/jackpot/randomness"
	"github.com/luxfi/jackpot/trigger"
	"github.com/luxfi/jackpot/vrf"
)

var (
	ErrIgnored    = errors.New("swap below minimum")
	ErrNotSettled = errors.New("request not settled")
)

// feedDecimals is the precision of the Chainlink and Pyth style feeds.
const feedDecimals = 8

// PriceFeedID names the JACKPOT/USD Pyth feed.
var PriceFeedID = common.BytesToHash(crypto.Keccak256([]byte("JACKPOT/USD")))

// Addresses of the deployed contracts.
type Addresses struct {
	Owner     common.Address
	Pair      common.Address
	Vault     common.Address
	Trigger   common.Address
	Consumer  common.Address
	Requester common.Address
	Provider  common.Address
}

// DeriveAddress returns the deterministic address of a named contract.
func DeriveAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("jackpot/" + name))[12:])
}

func DefaultAddresses() Addresses {
	return Addresses{
		Owner:     DeriveAddress("owner"),
		Pair:      DeriveAddress("pair"),
		Vault:     DeriveAddress("vault"),
		Trigger:   DeriveAddress("trigger"),
		Consumer:  DeriveAddress("consumer"),
		Requester: DeriveAddress("requester"),
		Provider:  DeriveAddress("provider"),
	}
}

type Options struct {
	Logger     log.Logger
	Registerer prometheus.Registerer
	Clock      func() time.Time
	// Entropy seeds the coordinator; the signed provider ignores it.
	Entropy common.Hash
	// SignerKey signs fulfillments of the signed provider. A fresh key is
	// generated when nil.
	SignerKey *bls.SecretKey
}

// fulfiller is a provider driven by the deployment.
type fulfiller interface {
	vrf.Provider
	Pending() []uint64
	Fulfill(ctx context.Context, id uint64) error
}

// Deployment is a wired home and compute chain pair.
type Deployment struct {
	Config    config.Config
	Addresses Addresses

	Bus     *messenger.Bus
	Home    *Chain
	Compute *Chain
	Owner   *access.Ownable
	Metrics *metrics.Metrics

	Feed       *oracle.ManualFeed
	Pyth       *oracle.ManualPyth
	Reporting  *oracle.ReportingOracle
	Aggregator *oracle.Aggregator

	Ledger  *boost.Ledger
	Booster *boost.Calculator
	Engine  *probability.Engine
	Vault   *jackpot.Vault
	Trigger *trigger.Trigger

	Consumer  *randomness.Consumer
	Requester *randomness.Requester
	Provider  vrf.Provider

	provider fulfiller
	homeDB   database.Database
	now      func() time.Time
	log      log.Logger
}

// Deploy builds both chains from cfg and wires every contract.
func Deploy(cfg config.Config, opts Options) (*Deployment, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
	}

	addrs := DefaultAddresses()
	bus := messenger.NewBus(logger)
	d := &Deployment{
		Config:    cfg,
		Addresses: addrs,
		Bus:       bus,
		Home:      NewChain(cfg.Home.ID, cfg.Home.Name, bus, logger, m),
		Compute:   NewChain(cfg.Compute.ID, cfg.Compute.Name, bus, logger, m),
		Owner:     access.NewOwnable(addrs.Owner),
		Metrics:   m,
		homeDB:    memdb.New(),
		now:       clock,
		log:       logger,
	}
	bus.Attach(d.Home.Endpoint(), d.Home)
	bus.Attach(d.Compute.Endpoint(), d.Compute)

	if err := d.deployHome(m); err != nil {
		d.Close()
		return nil, fmt.Errorf("home chain: %w", err)
	}
	if err := d.deployCompute(opts, m); err != nil {
		d.Close()
		return nil, fmt.Errorf("compute chain: %w", err)
	}
	if err := d.connect(); err != nil {
		d.Close()
		return nil, err
	}

	logger.Info("jackpot deployed",
		"home", cfg.Home.Name,
		"compute", cfg.Compute.Name,
		"provider", cfg.ProviderKind(),
		"secondaryOracle", cfg.Oracle.Secondary,
	)
	return d, nil
}

func (d *Deployment) deployHome(m *metrics.Metrics) error {
	cfg, addrs := d.Config, d.Addresses
	price := cfg.TokenPrice()

	d.Feed = oracle.NewManualFeed(feedDecimals)
	var secondary oracle.Source
	switch cfg.Oracle.Secondary {
	case config.SecondaryPyth:
		d.Pyth = oracle.NewManualPyth()
		secondary = oracle.NewPythSource(d.Pyth, PriceFeedID)
	case config.SecondaryReporting:
		d.Reporting = oracle.NewReportingOracle(price, d.Owner, d.now, d.log)
		secondary = d.Reporting
	}
	if err := d.publish(price); err != nil {
		return err
	}
	aggParams, err := cfg.AggregatorParams()
	if err != nil {
		return err
	}
	d.Aggregator, err = oracle.NewAggregator(oracle.NewChainlinkSource(d.Feed), secondary, aggParams, d.now, d.log, m)
	if err != nil {
		return err
	}

	boostParams := cfg.BoostParams()
	partners, err := cfg.Partners()
	if err != nil {
		return err
	}
	registry := boost.NewPartnerRegistry(d.Owner, boostParams.MaxPartnerBps)
	for partner, bps := range partners {
		if err := registry.SetPartner(addrs.Owner, partner, bps); err != nil {
			return err
		}
	}
	d.Ledger = boost.NewLedger()
	d.Booster, err = boost.NewCalculator(d.Owner, boostParams, d.Ledger, registry, d.log)
	if err != nil {
		return err
	}
	d.Engine, err = probability.NewEngine(d.Owner, d.Aggregator, cfg.ThresholdParams())
	if err != nil {
		return err
	}

	d.Vault = jackpot.NewVault(addrs.Vault, d.Home.State(), d.Owner, d.log, m)
	d.Consumer = randomness.NewConsumer(addrs.Consumer, d.Owner, d.Home.Endpoint(), d.homeDB, d.Home.State(), d.now, d.log, m)
	d.Trigger, err = trigger.New(
		addrs.Trigger,
		d.Owner,
		d.Consumer,
		d.Booster,
		d.Engine,
		d.Vault,
		d.homeDB,
		d.Home.State(),
		cfg.TriggerParams(),
		d.log,
		m,
	)
	if err != nil {
		return err
	}
	if err := d.Trigger.SetSwapSource(addrs.Owner, addrs.Pair, true); err != nil {
		return err
	}
	return d.Home.Endpoint().Register(addrs.Consumer, d.Consumer)
}

func (d *Deployment) deployCompute(opts Options, m *metrics.Metrics) error {
	cfg, addrs := d.Config, d.Addresses
	pc, err := cfg.RandomnessProvider()
	if err != nil {
		return err
	}

	switch cfg.ProviderKind() {
	case vrf.KindCoordinator:
		coordinator := vrf.NewCoordinator(addrs.Provider, opts.Entropy, d.log)
		pc.SubscriptionID = coordinator.CreateSubscription(addrs.Owner)
		if err := coordinator.AddConsumer(addrs.Owner, pc.SubscriptionID, addrs.Requester); err != nil {
			return err
		}
		d.provider = coordinator
	case vrf.KindSigned:
		key := opts.SignerKey
		if key == nil {
			if key, err = bls.NewSecretKey(); err != nil {
				return err
			}
		}
		d.provider = vrf.NewSignedProvider(addrs.Provider, key, d.log)
	default:
		return vrf.ErrUnknownProviderKind
	}
	d.Provider = d.provider

	d.Requester = randomness.NewRequester(addrs.Requester, d.Owner, d.Compute.Endpoint(), memdb.New(), d.Compute.State(), d.log, m)
	if err := d.Requester.SetProvider(addrs.Owner, d.provider); err != nil {
		return err
	}
	if err := d.Requester.SetProviderConfig(addrs.Owner, pc); err != nil {
		return err
	}
	return d.Compute.Endpoint().Register(addrs.Requester, d.Requester)
}

// connect makes the consumer and the requester each other's only trusted
// remote and registers the trigger for settlements.
func (d *Deployment) connect() error {
	addrs, owner := d.Addresses, d.Addresses.Owner
	var errs error
	errs = multierr.Append(errs, d.Consumer.SetRemote(owner, d.Compute.ID(), addrs.Requester))
	errs = multierr.Append(errs, d.Consumer.SetTrigger(owner, d.Trigger))
	errs = multierr.Append(errs, d.Requester.SetHomeConsumer(owner, d.Home.ID(), addrs.Consumer))
	return errs
}

// Fund mints amount to from on the home chain and deposits it into the pool.
func (d *Deployment) Fund(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return d.Home.Execute(ctx, func(context.Context) error {
		d.Home.State().AddBalance(from, amount, tracing.BalanceChangeUnspecified)
		return d.Vault.Deposit(from, amount)
	})
}

// SetPrice publishes price (18 decimals) to every configured source.
func (d *Deployment) SetPrice(ctx context.Context, price *uint256.Int) error {
	return d.Home.Execute(ctx, func(context.Context) error {
		return d.publish(price)
	})
}

func (d *Deployment) publish(price *uint256.Int) error {
	now := d.now()
	answer := new(uint256.Int).Div(price, uint256.NewInt(1e10))
	if answer.IsZero() || !answer.IsUint64() || answer.Uint64() > 1<<63-1 {
		return fmt.Errorf("%w: %s", oracle.ErrInvalidPrice, price.Dec())
	}
	d.Feed.Push(answer.ToBig(), now)
	if d.Pyth != nil {
		d.Pyth.Update(PriceFeedID, oracle.PythPrice{
			Price:       int64(answer.Uint64()),
			Expo:        -feedDecimals,
			PublishTime: now,
		})
	}
	if d.Reporting != nil {
		return d.Reporting.EmergencyUpdate(d.Addresses.Owner, price)
	}
	return nil
}

// Swap reports a swap by user through the default pair.
func (d *Deployment) Swap(ctx context.Context, user common.Address, amount *uint256.Int) (trigger.Receipt, error) {
	return d.SwapVia(ctx, d.Addresses.Pair, user, amount)
}

// SwapVia reports a swap through source, which is also the boost partner.
func (d *Deployment) SwapVia(ctx context.Context, source, user common.Address, amount *uint256.Int) (trigger.Receipt, error) {
	var receipt trigger.Receipt
	err := d.Home.Execute(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = d.Trigger.OnSwap(ctx, source, user, amount)
		return err
	})
	return receipt, err
}

// Relay delivers every message in flight, including those produced by the
// deliveries themselves.
func (d *Deployment) Relay(ctx context.Context) error {
	return d.Bus.Flush(ctx)
}

// FulfillAll answers every pending provider request on the compute chain.
func (d *Deployment) FulfillAll(ctx context.Context) (int, error) {
	var (
		n    int
		errs error
	)
	for _, id := range d.provider.Pending() {
		err := d.Compute.Execute(ctx, func(ctx context.Context) error {
			return d.provider.Fulfill(ctx, id)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fulfill %d: %w", id, err))
			continue
		}
		n++
	}
	return n, errs
}

// Settle relays requests, fulfills them and relays the responses back.
func (d *Deployment) Settle(ctx context.Context) error {
	if err := d.Relay(ctx); err != nil {
		return err
	}
	if _, err := d.FulfillAll(ctx); err != nil {
		return err
	}
	return d.Relay(ctx)
}

// Round runs one swap through the full cross-chain cycle.
func (d *Deployment) Round(ctx context.Context, user common.Address, amount *uint256.Int) (trigger.Outcome, error) {
	receipt, err := d.Swap(ctx, user, amount)
	if err != nil {
		return trigger.Outcome{}, err
	}
	if !receipt.Requested {
		return trigger.Outcome{}, ErrIgnored
	}
	if err := d.Settle(ctx); err != nil {
		return trigger.Outcome{}, err
	}
	out, ok := d.Trigger.Outcome(receipt.RequestID)
	if !ok {
		return trigger.Outcome{}, fmt.Errorf("%w: %d", ErrNotSettled, receipt.RequestID)
	}
	return out, nil
}

// Replay re-sends request id from the consumer.
func (d *Deployment) Replay(ctx context.Context, id uint64) error {
	return d.Home.Execute(ctx, func(ctx context.Context) error {
		return d.Consumer.Replay(ctx, d.Addresses.Owner, id)
	})
}

// RetryPayout pays a win left unpaid by a halted vault.
func (d *Deployment) RetryPayout(ctx context.Context, id uint64) error {
	return d.Home.Execute(ctx, func(ctx context.Context) error {
		return d.Trigger.RetryPayout(ctx, d.Addresses.Owner, id)
	})
}

// Balance returns the home chain balance of addr.
func (d *Deployment) Balance(addr common.Address) *uint256.Int {
	return d.Home.State().GetBalance(addr)
}

func (d *Deployment) Close() {
	d.Home.Stop()
	d.Compute.Stop()
	if err := d.homeDB.Close(); err != nil {
		d.log.Debug("closing home database", "err", err)
	}
}
