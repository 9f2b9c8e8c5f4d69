// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vrf

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Subscription groups consumers that may request from a Coordinator.
type Subscription struct {
	ID        uint64
	Owner     common.Address
	Consumers []common.Address
	Requests  uint64 // requests opened, used as the seed nonce
}

// Coordinator is a subscription-based provider: request ids start at 1, each
// request is answered by a later Fulfill call, and words are derived from a
// per-request seed and the coordinator's entropy.
type Coordinator struct {
	address common.Address
	entropy common.Hash

	subs          map[uint64]*subscription
	nextSubID     uint64
	nextRequestID uint64
	pending       map[uint64]*pendingRequest

	log log.Logger

	mu sync.Mutex
}

type subscription struct {
	owner     common.Address
	consumers map[common.Address]bool
	requests  uint64
}

type pendingRequest struct {
	req  Request
	seed common.Hash
}

var _ Provider = (*Coordinator)(nil)

// NewCoordinator creates a coordinator deployed at address
func NewCoordinator(address common.Address, entropy common.Hash, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Coordinator{
		address:       address,
		entropy:       entropy,
		subs:          make(map[uint64]*subscription),
		nextSubID:     1,
		nextRequestID: 1,
		pending:       make(map[uint64]*pendingRequest),
		log:           logger,
	}
}

func (c *Coordinator) Address() common.Address {
	return c.address
}

// CreateSubscription opens a subscription owned by owner and returns its id.
func (c *Coordinator) CreateSubscription(owner common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = &subscription{owner: owner, consumers: make(map[common.Address]bool)}
	return id
}

// AddConsumer authorises consumer to request on subID.
func (c *Coordinator) AddConsumer(caller common.Address, subID uint64, consumer common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, err := c.ownedSubLocked(caller, subID)
	if err != nil {
		return err
	}
	sub.consumers[consumer] = true
	return nil
}

func (c *Coordinator) RemoveConsumer(caller common.Address, subID uint64, consumer common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, err := c.ownedSubLocked(caller, subID)
	if err != nil {
		return err
	}
	if !sub.consumers[consumer] {
		return ErrInvalidConsumer
	}
	delete(sub.consumers, consumer)
	return nil
}

func (c *Coordinator) ownedSubLocked(caller common.Address, subID uint64) (*subscription, error) {
	sub, ok := c.subs[subID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	if sub.owner != caller {
		return nil, ErrNotSubscriptionOwner
	}
	return sub, nil
}

// GetSubscription returns a copy of subscription subID.
func (c *Coordinator) GetSubscription(subID uint64) (Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return Subscription{}, false
	}
	out := Subscription{ID: subID, Owner: sub.owner, Requests: sub.requests}
	for consumer := range sub.consumers {
		out.Consumers = append(out.Consumers, consumer)
	}
	sort.Slice(out.Consumers, func(i, j int) bool {
		return out.Consumers[i].Cmp(out.Consumers[j]) < 0
	})
	return out, true
}

// RequestRandomWords validates req against its subscription and queues it.
func (c *Coordinator) RequestRandomWords(_ context.Context, req Request) (*uint256.Int, error) {
	if err := validateShape(req); err != nil {
		return nil, err
	}
	if req.MinConfirmations < MinRequestConfirmations || req.MinConfirmations > MaxRequestConfirmations {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConfirmations, req.MinConfirmations)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[req.SubscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubscription, req.SubscriptionID)
	}
	if !sub.consumers[req.Consumer] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConsumer, req.Consumer)
	}

	sub.requests++
	id := c.nextRequestID
	c.nextRequestID++

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], sub.requests)
	seed := common.BytesToHash(crypto.Keccak256(
		req.KeyHash.Bytes(),
		req.Consumer.Bytes(),
		uint256.NewInt(req.SubscriptionID).Bytes(),
		nonce[:],
	))
	c.pending[id] = &pendingRequest{req: req, seed: seed}

	c.log.Debug("vrf request queued",
		"id", id,
		"consumer", req.Consumer,
		"subscription", req.SubscriptionID,
		"words", req.NumWords,
	)
	return uint256.NewInt(id), nil
}

// Pending returns the ids of unanswered requests in ascending order.
func (c *Coordinator) Pending() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fulfill answers request id with words derived from its seed.
func (c *Coordinator) Fulfill(ctx context.Context, id uint64) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVRFRequest, id)
	}
	return c.FulfillWithWords(ctx, id, DeriveWords(c.entropy, p.seed, p.req.NumWords))
}

// FulfillWithWords answers request id with the given words. The request is
// consumed even if the consumer callback fails.
func (c *Coordinator) FulfillWithWords(ctx context.Context, id uint64, words []*uint256.Int) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownVRFRequest, id)
	}
	if uint32(len(words)) != p.req.NumWords {
		c.mu.Unlock()
		return fmt.Errorf("%w: got %d, want %d", ErrWordCountMismatch, len(words), p.req.NumWords)
	}
	delete(c.pending, id)
	c.mu.Unlock()

	if err := p.req.Callback.FulfillRandomWords(ctx, c.address, uint256.NewInt(id), words); err != nil {
		c.log.Warn("vrf callback failed", "id", id, "consumer", p.req.Consumer, "err", err)
		return fmt.Errorf("%w: request %d: %w", ErrCallbackFailed, id, err)
	}
	return nil
}

// DeriveWords expands seed into n words: keccak256(entropy ++ seed ++ i).
func DeriveWords(entropy, seed common.Hash, n uint32) []*uint256.Int {
	words := make([]*uint256.Int, n)
	for i := uint32(0); i < n; i++ {
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], i)
		words[i] = new(uint256.Int).SetBytes(crypto.Keccak256(entropy.Bytes(), seed.Bytes(), idx[:]))
	}
	return words
}
