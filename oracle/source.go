// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle converts native token amounts to reference-currency value.
// All prices are normalised to 18 decimals regardless of the feed format.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/jackpot/fpmath"
)

// PriceDecimals is the fixed-point precision of every Quote.
const PriceDecimals = 18

var (
	ErrNoPrice            = errors.New("no price available")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrStaleRound         = errors.New("round answered in an earlier round")
	ErrExponentOutOfRange = errors.New("price exponent out of range")
)

// Quote is a price in 18 decimals and the time it was observed.
type Quote struct {
	Price     *uint256.Int
	UpdatedAt time.Time
}

// Source produces the latest native token price.
type Source interface {
	Latest(ctx context.Context) (Quote, error)
}

// Round is a Chainlink aggregator round.
type Round struct {
	RoundID         uint64
	Answer          *big.Int
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// RoundReader reads a Chainlink aggregator.
type RoundReader interface {
	LatestRoundData(ctx context.Context) (Round, error)
	Decimals() uint8
}

// ChainlinkSource adapts a Chainlink round feed.
type ChainlinkSource struct {
	feed RoundReader
}

var _ Source = (*ChainlinkSource)(nil)

func NewChainlinkSource(feed RoundReader) *ChainlinkSource {
	return &ChainlinkSource{feed: feed}
}

func (c *ChainlinkSource) Latest(ctx context.Context) (Quote, error) {
	round, err := c.feed.LatestRoundData(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("chainlink: %w", err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return Quote{}, fmt.Errorf("chainlink: %w: %v", ErrInvalidPrice, round.Answer)
	}
	if round.AnsweredInRound < round.RoundID {
		return Quote{}, fmt.Errorf("chainlink: %w: %d < %d", ErrStaleRound, round.AnsweredInRound, round.RoundID)
	}
	price, err := scale(round.Answer, -int32(c.feed.Decimals()))
	if err != nil {
		return Quote{}, fmt.Errorf("chainlink: %w", err)
	}
	return Quote{Price: price, UpdatedAt: round.UpdatedAt}, nil
}

// PythPrice is a Pyth price update: Price × 10^Expo.
type PythPrice struct {
	Price       int64
	Conf        uint64
	Expo        int32
	PublishTime time.Time
}

// PriceReader reads a Pyth price feed by id.
type PriceReader interface {
	GetPriceUnsafe(ctx context.Context, id common.Hash) (PythPrice, error)
}

// PythSource adapts one Pyth price feed.
type PythSource struct {
	reader PriceReader
	feed   common.Hash
}

var _ Source = (*PythSource)(nil)

func NewPythSource(reader PriceReader, feed common.Hash) *PythSource {
	return &PythSource{reader: reader, feed: feed}
}

func (p *PythSource) Latest(ctx context.Context) (Quote, error) {
	pp, err := p.reader.GetPriceUnsafe(ctx, p.feed)
	if err != nil {
		return Quote{}, fmt.Errorf("pyth: %w", err)
	}
	if pp.Price <= 0 {
		return Quote{}, fmt.Errorf("pyth: %w: %d", ErrInvalidPrice, pp.Price)
	}
	price, err := scale(big.NewInt(pp.Price), pp.Expo)
	if err != nil {
		return Quote{}, fmt.Errorf("pyth: %w", err)
	}
	return Quote{Price: price, UpdatedAt: pp.PublishTime}, nil
}

// scale converts v × 10^expo to 18 decimals, truncating.
func scale(v *big.Int, expo int32) (*uint256.Int, error) {
	shift := int64(expo) + PriceDecimals
	if shift < -PriceDecimals || shift > 2*PriceDecimals {
		return nil, fmt.Errorf("%w: %d", ErrExponentOutOfRange, expo)
	}
	out := new(big.Int).Set(v)
	if shift >= 0 {
		out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil))
	} else {
		out.Div(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(-shift), nil))
	}
	price, overflow := uint256.FromBig(out)
	if overflow {
		return nil, fmt.Errorf("%w: overflow", ErrInvalidPrice)
	}
	if price.IsZero() {
		return nil, fmt.Errorf("%w: zero after scaling", ErrInvalidPrice)
	}
	return price, nil
}

// StaticSource serves a settable price; it backs tests, simulations and
// deployments without a live feed.
type StaticSource struct {
	price *uint256.Int
	at    time.Time
	err   error

	mu sync.RWMutex
}

var _ Source = (*StaticSource)(nil)

func NewStaticSource(price *uint256.Int, at time.Time) *StaticSource {
	return &StaticSource{price: price.Clone(), at: at}
}

// Set replaces the price and its timestamp and clears any failure.
func (s *StaticSource) Set(price *uint256.Int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price.Clone()
	s.at = at
	s.err = nil
}

// Fail makes Latest return err until the next Set.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSource) Latest(context.Context) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return Quote{}, s.err
	}
	return Quote{Price: s.price.Clone(), UpdatedAt: s.at}, nil
}

// ManualFeed is an in-memory Chainlink aggregator.
type ManualFeed struct {
	decimals uint8
	round    Round

	mu sync.RWMutex
}

var _ RoundReader = (*ManualFeed)(nil)

func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Push publishes answer as a new round.
func (f *ManualFeed) Push(answer *big.Int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round = Round{
		RoundID:         f.round.RoundID + 1,
		Answer:          new(big.Int).Set(answer),
		UpdatedAt:       at,
		AnsweredInRound: f.round.RoundID + 1,
	}
}

func (f *ManualFeed) LatestRoundData(context.Context) (Round, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.round.RoundID == 0 {
		return Round{}, ErrNoPrice
	}
	r := f.round
	r.Answer = new(big.Int).Set(f.round.Answer)
	return r, nil
}

func (f *ManualFeed) Decimals() uint8 {
	return f.decimals
}

// ManualPyth is an in-memory Pyth contract.
type ManualPyth struct {
	prices map[common.Hash]PythPrice

	mu sync.RWMutex
}

var _ PriceReader = (*ManualPyth)(nil)

func NewManualPyth() *ManualPyth {
	return &ManualPyth{prices: make(map[common.Hash]PythPrice)}
}

func (m *ManualPyth) Update(id common.Hash, p PythPrice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[id] = p
}

func (m *ManualPyth) GetPriceUnsafe(_ context.Context, id common.Hash) (PythPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prices[id]
	if !ok {
		return PythPrice{}, fmt.Errorf("%w: feed %s", ErrNoPrice, id.Hex())
	}
	return p, nil
}

// ValueOf returns amount × price / 1e18.
func ValueOf(amount, price *uint256.Int) *uint256.Int {
	return fpmath.MulWad(amount, price)
}
