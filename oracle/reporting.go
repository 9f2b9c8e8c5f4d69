// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/fpmath"
)

const (
	maxConfidence  = 100
	maxTWAPPoints  = 24
	maxDeviationPc = 50
)

var (
	ErrSourceExists          = errors.New("source already authorized")
	ErrSourceUnknown         = errors.New("source not authorized")
	ErrInvalidConfidence     = errors.New("confidence must be 0-100")
	ErrInvalidDeviation      = errors.New("deviation must be 1-50%")
	ErrInvalidMinSources     = errors.New("need at least 1 source")
	ErrPriceDeviation        = errors.New("reported price deviates too far")
	ErrInsufficientReporters = errors.New("not enough confident fresh reports")
)

// SafetyParams bound what the reporting oracle accepts.
type SafetyParams struct {
	MaxDeviationPct uint8
	MinConfidence   uint8
	MinSources      int
	MaxReportAge    time.Duration
}

func DefaultSafetyParams() SafetyParams {
	return SafetyParams{
		MaxDeviationPct: 20,
		MinConfidence:   70,
		MinSources:      1,
		MaxReportAge:    time.Hour,
	}
}

func (p SafetyParams) Verify() error {
	if p.MaxDeviationPct < 1 || p.MaxDeviationPct > maxDeviationPc {
		return ErrInvalidDeviation
	}
	if p.MinConfidence > maxConfidence {
		return ErrInvalidConfidence
	}
	if p.MinSources < 1 {
		return ErrInvalidMinSources
	}
	return nil
}

// Report is one reporter's latest submission.
type Report struct {
	Price      *uint256.Int
	Confidence uint8
	At         time.Time
}

type twapPoint struct {
	price *uint256.Int
	at    time.Time
}

// ReportingOracle aggregates prices pushed by authorised reporters into a
// confidence-weighted average.
type ReportingOracle struct {
	auth access.Authority
	now  func() time.Time

	price      *uint256.Int
	confidence uint8
	updatedAt  time.Time

	params  SafetyParams
	sources map[common.Address]bool
	reports map[common.Address]Report
	history []twapPoint

	log log.Logger

	mu sync.RWMutex
}

var _ Source = (*ReportingOracle)(nil)

// NewReportingOracle starts at initial (18 decimals) with full confidence.
func NewReportingOracle(initial *uint256.Int, auth access.Authority, clock func() time.Time, logger log.Logger) *ReportingOracle {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	o := &ReportingOracle{
		auth:       auth,
		now:        clock,
		price:      initial.Clone(),
		confidence: maxConfidence,
		updatedAt:  clock(),
		params:     DefaultSafetyParams(),
		sources:    make(map[common.Address]bool),
		reports:    make(map[common.Address]Report),
		log:        logger,
	}
	o.recordLocked()
	return o
}

func (o *ReportingOracle) AddSource(caller, source common.Address) error {
	if err := o.auth.Authorize(caller); err != nil {
		return err
	}
	if source == (common.Address{}) {
		return access.ErrInvalidAddress
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sources[source] {
		return ErrSourceExists
	}
	o.sources[source] = true
	return nil
}

func (o *ReportingOracle) RemoveSource(caller, source common.Address) error {
	if err := o.auth.Authorize(caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.sources[source] {
		return ErrSourceUnknown
	}
	delete(o.sources, source)
	delete(o.reports, source)
	return nil
}

// IsSource reports whether source may submit prices.
func (o *ReportingOracle) IsSource(source common.Address) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sources[source]
}

// ReportPrice records a submission from an authorised source and refreshes
// the aggregate when enough confident reports are fresh.
func (o *ReportingOracle) ReportPrice(caller common.Address, price *uint256.Int, confidence uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.sources[caller] {
		return fmt.Errorf("%w: %s", ErrSourceUnknown, caller)
	}
	if confidence > maxConfidence {
		return ErrInvalidConfidence
	}
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	if dev := deviationPct(o.price, price); dev > uint64(o.params.MaxDeviationPct) {
		o.log.Warn("rejected deviating price report",
			"source", caller,
			"price", price.Dec(),
			"current", o.price.Dec(),
			"deviationPct", dev,
		)
		return fmt.Errorf("%w: %d%%", ErrPriceDeviation, dev)
	}

	o.reports[caller] = Report{Price: price.Clone(), Confidence: confidence, At: o.now()}
	if err := o.aggregateLocked(); err != nil && !errors.Is(err, ErrInsufficientReporters) {
		return err
	}
	return nil
}

// ForceUpdate recomputes the aggregate from the current reports.
func (o *ReportingOracle) ForceUpdate(caller common.Address) error {
	if err := o.auth.Authorize(caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aggregateLocked()
}

func (o *ReportingOracle) aggregateLocked() error {
	now := o.now()
	var (
		weighted = new(uint256.Int)
		weights  uint64
		n        int
	)
	for _, r := range o.reports {
		if r.Confidence < o.params.MinConfidence {
			continue
		}
		if o.params.MaxReportAge > 0 && now.Sub(r.At) > o.params.MaxReportAge {
			continue
		}
		weighted = fpmath.SatAdd(weighted, new(uint256.Int).Mul(r.Price, uint256.NewInt(uint64(r.Confidence))))
		weights += uint64(r.Confidence)
		n++
	}
	if n < o.params.MinSources || weights == 0 {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientReporters, n, o.params.MinSources)
	}

	o.price = weighted.Div(weighted, uint256.NewInt(weights))
	o.confidence = uint8(weights / uint64(n))
	o.updatedAt = now
	o.recordLocked()
	o.log.Debug("price aggregated", "price", o.price.Dec(), "confidence", o.confidence, "reports", n)
	return nil
}

// EmergencyUpdate sets the price directly with full confidence. A large
// move is logged but still applied.
func (o *ReportingOracle) EmergencyUpdate(caller common.Address, price *uint256.Int) error {
	if err := o.auth.Authorize(caller); err != nil {
		return err
	}
	if price == nil || price.IsZero() {
		return ErrInvalidPrice
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if dev := deviationPct(o.price, price); dev > uint64(o.params.MaxDeviationPct) {
		o.log.Warn("price deviation detected on emergency update",
			"old", o.price.Dec(),
			"new", price.Dec(),
			"deviationPct", dev,
		)
	}
	o.price = price.Clone()
	o.confidence = maxConfidence
	o.updatedAt = o.now()
	o.recordLocked()
	return nil
}

func (o *ReportingOracle) UpdateSafetyParams(caller common.Address, params SafetyParams) error {
	if err := o.auth.Authorize(caller); err != nil {
		return err
	}
	if err := params.Verify(); err != nil {
		return err
	}
	o.mu.Lock()
	o.params = params
	o.mu.Unlock()
	return nil
}

func (o *ReportingOracle) SafetyParams() SafetyParams {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.params
}

// Price returns the aggregate price and its confidence.
func (o *ReportingOracle) Price() (*uint256.Int, uint8) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price.Clone(), o.confidence
}

// ReportOf returns the latest report of source.
func (o *ReportingOracle) ReportOf(source common.Address) (Report, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.reports[source]
	if !ok {
		return Report{}, false
	}
	r.Price = r.Price.Clone()
	return r, true
}

func (o *ReportingOracle) Latest(context.Context) (Quote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Quote{Price: o.price.Clone(), UpdatedAt: o.updatedAt}, nil
}

// ToReference converts a native amount to reference value.
func (o *ReportingOracle) ToReference(amount *uint256.Int) *uint256.Int {
	price, _ := o.Price()
	return ValueOf(amount, price)
}

// FromReference converts a reference value back to a native amount.
func (o *ReportingOracle) FromReference(value *uint256.Int) *uint256.Int {
	price, _ := o.Price()
	return fpmath.MulDiv(value, fpmath.Precision, price)
}

func (o *ReportingOracle) recordLocked() {
	o.history = append(o.history, twapPoint{price: o.price.Clone(), at: o.updatedAt})
	if len(o.history) > maxTWAPPoints {
		o.history = o.history[len(o.history)-maxTWAPPoints:]
	}
}

// TWAP returns the time-weighted average of the recorded prices up to now.
// Each price is weighted by how long it stood.
func (o *ReportingOracle) TWAP() *uint256.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	points := make([]twapPoint, len(o.history))
	copy(points, o.history)
	sort.SliceStable(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })

	now := o.now()
	var (
		acc   = new(uint256.Int)
		total uint64
	)
	for i, p := range points {
		end := now
		if i+1 < len(points) {
			end = points[i+1].at
		}
		if !end.After(p.at) {
			continue
		}
		secs := uint64(end.Sub(p.at) / time.Second)
		acc = fpmath.SatAdd(acc, new(uint256.Int).Mul(p.price, uint256.NewInt(secs)))
		total += secs
	}
	if total == 0 {
		return o.price.Clone()
	}
	return acc.Div(acc, uint256.NewInt(total))
}

// deviationPct returns |b - a| * 100 / a.
func deviationPct(a, b *uint256.Int) uint64 {
	if a.IsZero() {
		return 0
	}
	diff := new(uint256.Int)
	if a.Gt(b) {
		diff.Sub(a, b)
	} else {
		diff.Sub(b, a)
	}
	dev := fpmath.MulDiv(diff, uint256.NewInt(100), a)
	if !dev.IsUint64() {
		return ^uint64(0)
	}
	return dev.Uint64()
}
