// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package trigger is the home-chain entrypoint of the lottery. Swap sources
// report qualifying swaps, each of which opens a randomness request; the
// consumer calls back into Settle once the response arrives, and Settle
// decides the outcome and pays a win out of the vault.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/metrics"
	"github.com/luxfi/jackpot/probability"
)

var (
	ErrUnknownSource  = errors.New("caller is not an authorised swap source")
	ErrOnlyConsumer   = errors.New("caller is not the randomness consumer")
	ErrUnknownRequest = errors.New("unknown request")
	ErrUserMismatch   = errors.New("user does not match request")
	ErrNotHaltedWin   = errors.New("request has no unpaid win")
	ErrInvalidParams  = errors.New("invalid trigger params")
	ErrCorruptRecord  = errors.New("corrupt swap record")
)

// Consumer opens randomness requests on behalf of the trigger.
type Consumer interface {
	Address() common.Address
	RequestRandomness(ctx context.Context, caller, user common.Address) (uint64, error)
}

// Booster returns the probability multiplier (WAD) of a user swapping
// through partner.
type Booster interface {
	Calculate(ctx context.Context, user, partner common.Address) *uint256.Int
}

// ThresholdEngine prices swaps and boosts thresholds.
type ThresholdEngine interface {
	Value(ctx context.Context, amount *uint256.Int) (*uint256.Int, uint64, error)
	Apply(base uint64, multiplier *uint256.Int) uint64
	SetParams(caller common.Address, params probability.Params) error
}

// Pool is the jackpot vault.
type Pool interface {
	Balance() *uint256.Int
	Credit(amount *uint256.Int)
	DisburseAll(payouts []distributor.Payout) error
}

// Params are the trigger's own tunables.
type Params struct {
	// MinSwapAmount is the smallest swap, in native units, that enters the draw.
	MinSwapAmount *uint256.Int `json:"minSwapAmount" yaml:"minSwapAmount"`
	// FeeBps is the share of each qualifying swap credited to the pool.
	FeeBps       uint64             `json:"feeBps" yaml:"feeBps"`
	Distribution distributor.Params `json:"distribution" yaml:"distribution"`
}

func DefaultParams() Params {
	return Params{
		MinSwapAmount: fpmath.Wad(10),
		FeeBps:        690,
		Distribution:  distributor.DefaultParams(),
	}
}

func (p Params) Verify() error {
	if p.MinSwapAmount == nil {
		return fmt.Errorf("%w: missing min swap amount", ErrInvalidParams)
	}
	if p.FeeBps > fpmath.BasisPoints {
		return fmt.Errorf("%w: fee %d bps", ErrInvalidParams, p.FeeBps)
	}
	return p.Distribution.Verify()
}

// Stats are lifetime counters.
type Stats struct {
	Swaps     uint64
	Ignored   uint64
	Requests  uint64
	Wins      uint64
	Losses    uint64
	TotalPaid *uint256.Int
}

// Trigger is the swap trigger and settlement contract.
type Trigger struct {
	address  common.Address
	owner    *access.Ownable
	consumer Consumer
	booster  Booster
	engine   ThresholdEngine
	pool     Pool
	db       database.Database
	events   codec.LogSink

	params Params
	// sources, cycle and stats live in memory only; a reverted chain
	// transaction does not roll them back.
	sources map[common.Address]bool
	cycle   *cycle
	stats   Stats

	log     log.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

func New(
	address common.Address,
	owner *access.Ownable,
	consumer Consumer,
	booster Booster,
	engine ThresholdEngine,
	pool Pool,
	db database.Database,
	events codec.LogSink,
	params Params,
	logger log.Logger,
	m *metrics.Metrics,
) (*Trigger, error) {
	if err := params.Verify(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Trigger{
		address:  address,
		owner:    owner,
		consumer: consumer,
		booster:  booster,
		engine:   engine,
		pool:     pool,
		db:       db,
		events:   events,
		params:   params,
		sources:  make(map[common.Address]bool),
		cycle:    newCycle(),
		stats:    Stats{TotalPaid: new(uint256.Int)},
		log:      logger,
		metrics:  m,
	}, nil
}

func (t *Trigger) Address() common.Address {
	return t.address
}

// SetSwapSource allows or revokes a swap source. A source's address is also
// its partner identity for boosts.
func (t *Trigger) SetSwapSource(caller, source common.Address, allowed bool) error {
	if err := t.owner.Authorize(caller); err != nil {
		return err
	}
	if source == (common.Address{}) {
		return access.ErrInvalidAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if allowed {
		t.sources[source] = true
	} else {
		delete(t.sources, source)
	}
	t.log.Info("swap source updated", "source", source, "allowed", allowed)
	return nil
}

func (t *Trigger) IsSwapSource(source common.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sources[source]
}

func (t *Trigger) SetMinSwapAmount(caller common.Address, amount *uint256.Int) error {
	if err := t.owner.Authorize(caller); err != nil {
		return err
	}
	if amount == nil {
		return fmt.Errorf("%w: missing min swap amount", ErrInvalidParams)
	}
	t.mu.Lock()
	t.params.MinSwapAmount = amount.Clone()
	t.mu.Unlock()
	t.log.Info("min swap amount set", "amount", amount.Dec())
	return nil
}

func (t *Trigger) SetFeeBps(caller common.Address, bps uint64) error {
	if err := t.owner.Authorize(caller); err != nil {
		return err
	}
	if bps > fpmath.BasisPoints {
		return fmt.Errorf("%w: fee %d bps", ErrInvalidParams, bps)
	}
	t.mu.Lock()
	t.params.FeeBps = bps
	t.mu.Unlock()
	return nil
}

// SetThresholdParams forwards to the threshold engine.
func (t *Trigger) SetThresholdParams(caller common.Address, params probability.Params) error {
	return t.engine.SetParams(caller, params)
}

func (t *Trigger) SetDistributionParams(caller common.Address, params distributor.Params) error {
	if err := t.owner.Authorize(caller); err != nil {
		return err
	}
	if err := params.Verify(); err != nil {
		return err
	}
	t.mu.Lock()
	t.params.Distribution = params
	t.mu.Unlock()
	t.log.Info("distribution params set",
		"distributionBps", params.DistributionBps,
		"secondaryWinners", params.SecondaryWinners,
	)
	return nil
}

func (t *Trigger) Params() Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

func (t *Trigger) Pause(caller common.Address) error {
	return t.owner.Pause(caller)
}

func (t *Trigger) Unpause(caller common.Address) error {
	return t.owner.Unpause(caller)
}

func (t *Trigger) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.TotalPaid = t.stats.TotalPaid.Clone()
	return s
}

// Participants returns the current cycle, oldest activity first.
func (t *Trigger) Participants() []common.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycle.members()
}
