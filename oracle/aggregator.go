// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/fpmath"
	"github.com/luxfi/jackpot/metrics"
)

var (
	ErrUnknownStrategy = errors.New("unknown aggregation strategy")
	ErrInvalidParams   = errors.New("invalid aggregator params")
	ErrUnhealthy       = errors.New("source unhealthy")
)

// Strategy chooses how the primary and secondary sources are combined.
type Strategy uint8

const (
	// StrategyAverage averages both sources when they agree and falls back to
	// the primary when they deviate.
	StrategyAverage Strategy = iota
	// StrategyPrimary reads the primary and only uses the secondary when the
	// primary is unhealthy.
	StrategyPrimary
)

func (s Strategy) String() string {
	switch s {
	case StrategyAverage:
		return "average"
	case StrategyPrimary:
		return "primary"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "":
		return StrategyAverage, nil
	case "primary":
		return StrategyPrimary, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// AggregatorParams configure source health and combination.
type AggregatorParams struct {
	Strategy        Strategy
	MaxDeviationBps uint64        // allowed disagreement for averaging
	MaxStaleness    time.Duration // zero disables the age check
}

func DefaultAggregatorParams() AggregatorParams {
	return AggregatorParams{
		Strategy:        StrategyAverage,
		MaxDeviationBps: 500,
		MaxStaleness:    time.Hour,
	}
}

func (p AggregatorParams) Verify() error {
	if p.Strategy > StrategyPrimary {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, p.Strategy)
	}
	if p.MaxDeviationBps == 0 || p.MaxDeviationBps > fpmath.BasisPoints {
		return fmt.Errorf("%w: deviation %d bps", ErrInvalidParams, p.MaxDeviationBps)
	}
	return nil
}

// Aggregator combines a primary and an optional secondary source. When no
// source is healthy it serves the last price it produced.
type Aggregator struct {
	primary   Source
	secondary Source
	params    AggregatorParams
	now       func() time.Time

	last *Quote

	log     log.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

var _ Source = (*Aggregator)(nil)

// NewAggregator creates an aggregator over primary and secondary; secondary may be nil
func NewAggregator(
	primary, secondary Source,
	params AggregatorParams,
	clock func() time.Time,
	logger log.Logger,
	m *metrics.Metrics,
) (*Aggregator, error) {
	if primary == nil {
		return nil, fmt.Errorf("%w: no primary source", ErrInvalidParams)
	}
	if err := params.Verify(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Aggregator{
		primary:   primary,
		secondary: secondary,
		params:    params,
		now:       clock,
		log:       logger,
		metrics:   m,
	}, nil
}

// Latest returns the aggregated price, or the frozen last price when every
// source fails.
func (a *Aggregator) Latest(ctx context.Context) (Quote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, perr := a.read(ctx, a.primary)
	var (
		s    Quote
		serr = ErrUnhealthy
	)
	if a.secondary != nil {
		s, serr = a.read(ctx, a.secondary)
	}

	var (
		q  Quote
		ok = true
	)
	switch {
	case perr == nil && serr == nil && a.params.Strategy == StrategyAverage:
		q = a.average(p, s)
	case perr == nil:
		q = p
	case serr == nil:
		a.metrics.OracleFallback("fallback")
		a.log.Warn("primary price source unhealthy, using secondary", "err", perr)
		q = s
	default:
		ok = false
	}

	if ok {
		frozen := q
		frozen.Price = q.Price.Clone()
		a.last = &frozen
		return q, nil
	}

	if a.last == nil {
		a.log.Error("no price source healthy and no frozen price", "primaryErr", perr, "secondaryErr", serr)
		return Quote{}, fmt.Errorf("%w: primary: %v, secondary: %v", ErrNoPrice, perr, serr)
	}
	a.metrics.OracleFallback("frozen")
	a.log.Warn("no price source healthy, serving frozen price",
		"price", a.last.Price.Dec(),
		"updatedAt", a.last.UpdatedAt,
		"primaryErr", perr,
		"secondaryErr", serr,
	)
	return Quote{Price: a.last.Price.Clone(), UpdatedAt: a.last.UpdatedAt}, nil
}

func (a *Aggregator) average(p, s Quote) Quote {
	diff := new(uint256.Int)
	if p.Price.Gt(s.Price) {
		diff.Sub(p.Price, s.Price)
	} else {
		diff.Sub(s.Price, p.Price)
	}
	devBps := fpmath.MulDiv(diff, uint256.NewInt(fpmath.BasisPoints), p.Price)
	if devBps.GtUint64(a.params.MaxDeviationBps) {
		a.log.Warn("price sources disagree, using primary",
			"primary", p.Price.Dec(),
			"secondary", s.Price.Dec(),
			"deviationBps", devBps.Dec(),
		)
		return p
	}
	sum := fpmath.SatAdd(p.Price, s.Price)
	updated := p.UpdatedAt
	if s.UpdatedAt.Before(updated) {
		updated = s.UpdatedAt
	}
	return Quote{Price: sum.Rsh(sum, 1), UpdatedAt: updated}
}

func (a *Aggregator) read(ctx context.Context, src Source) (Quote, error) {
	q, err := src.Latest(ctx)
	if err != nil {
		return Quote{}, err
	}
	if q.Price == nil || q.Price.IsZero() {
		return Quote{}, fmt.Errorf("%w: zero price", ErrUnhealthy)
	}
	if a.params.MaxStaleness > 0 {
		if age := a.now().Sub(q.UpdatedAt); age > a.params.MaxStaleness {
			return Quote{}, fmt.Errorf("%w: price is %s old", ErrUnhealthy, age)
		}
	}
	return q, nil
}

// Frozen returns the last price the aggregator produced.
func (a *Aggregator) Frozen() (Quote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return Quote{}, false
	}
	return Quote{Price: a.last.Price.Clone(), UpdatedAt: a.last.UpdatedAt}, true
}

// ReferenceValue converts a native amount (18 decimals) to reference value.
func (a *Aggregator) ReferenceValue(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	q, err := a.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return ValueOf(amount, q.Price), nil
}

// SetParams replaces the aggregation parameters.
func (a *Aggregator) SetParams(params AggregatorParams) error {
	if err := params.Verify(); err != nil {
		return err
	}
	a.mu.Lock()
	a.params = params
	a.mu.Unlock()
	return nil
}
