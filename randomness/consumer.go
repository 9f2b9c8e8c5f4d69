// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package randomness

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/messenger"
	"github.com/luxfi/jackpot/metrics"
)

// Settler is the contract allowed to open requests and the callback that
// settles them.
type Settler interface {
	Address() common.Address
	Settle(ctx context.Context, caller common.Address, requestID uint64, user common.Address, randomness *uint256.Int) error
}

// Consumer is the home-chain contract. It allocates request ids, sends
// requests to the compute chain and settles matching responses.
type Consumer struct {
	*messenger.App

	address common.Address
	auth    access.Authority
	sender  messenger.Sender
	db      database.Database
	events  codec.LogSink
	now     func() time.Time

	settler       Settler
	remoteChainID uint32
	remote        common.Address

	log     log.Logger
	metrics *metrics.Metrics

	// serializes id allocation and record updates
	mu sync.Mutex
}

// NewConsumer creates the consumer deployed at address. A nil clock uses
// the wall clock for request creation times.
func NewConsumer(
	address common.Address,
	auth access.Authority,
	sender messenger.Sender,
	db database.Database,
	events codec.LogSink,
	clock func() time.Time,
	logger log.Logger,
	m *metrics.Metrics,
) *Consumer {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	if clock == nil {
		clock = time.Now
	}
	c := &Consumer{
		address: address,
		auth:    auth,
		sender:  sender,
		db:      db,
		events:  events,
		now:     clock,
		log:     logger,
		metrics: m,
	}
	c.App = messenger.NewApp(address, auth, c.handle, logger, m)
	return c
}

// RequestRandomness allocates the next request id for user, records it as
// Pending and sends it to the requester. It returns without waiting for
// the response.
func (c *Consumer) RequestRandomness(ctx context.Context, caller, user common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settler == nil || caller != c.settler.Address() {
		c.log.Warn("rejected randomness request from non-trigger", "caller", caller)
		return 0, ErrOnlyTrigger
	}
	if c.remote == (common.Address{}) {
		return 0, ErrNoRemote
	}

	id, err := c.nextIDLocked()
	if err != nil {
		return 0, err
	}
	payload, err := codec.EncodeRequest(codec.Request{RequestID: id, User: user})
	if err != nil {
		return 0, err
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], id+1)
	rec := requestRecord{user: user, createdAt: c.now()}

	// The id is claimed before the packet leaves so a response can never
	// arrive for an id the counter would hand out again.
	batch := c.db.NewBatch()
	if err := batch.Put(counterKey, next[:]); err != nil {
		return 0, err
	}
	if err := batch.Put(requestKey(id), rec.marshal()); err != nil {
		return 0, err
	}
	if err := batch.Write(); err != nil {
		return 0, fmt.Errorf("persist request %d: %w", id, err)
	}

	handle, err := c.sender.Send(ctx, c.address, c.remoteChainID, c.remote, payload)
	if err != nil {
		if rerr := c.releaseLocked(id); rerr != nil {
			c.log.Error("failed to release request id", "requestId", id, "err", rerr)
		}
		return 0, fmt.Errorf("send request %d: %w", id, err)
	}
	if err := codec.Emit(c.events, c.address, codec.EventRandomnessRequested, id, user, c.remoteChainID); err != nil {
		return 0, err
	}

	c.metrics.RequestSent()
	c.refreshPendingLocked()
	c.log.Info("randomness requested",
		"requestId", id,
		"user", user,
		"dstChain", c.remoteChainID,
		"handle", handle,
	)
	return id, nil
}

// releaseLocked undoes the claim on id after a failed send.
func (c *Consumer) releaseLocked(id uint64) error {
	var prev [8]byte
	binary.BigEndian.PutUint64(prev[:], id)
	batch := c.db.NewBatch()
	if err := batch.Put(counterKey, prev[:]); err != nil {
		return err
	}
	if err := batch.Delete(requestKey(id)); err != nil {
		return err
	}
	return batch.Write()
}

// NextRequestID returns the id the next request will receive.
func (c *Consumer) NextRequestID() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextIDLocked()
}

func (c *Consumer) nextIDLocked() (uint64, error) {
	raw, err := c.db.Get(counterKey)
	if err == database.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, ErrCorruptRecord
	}
	return binary.BigEndian.Uint64(raw), nil
}

// handle runs after the trusted-remote check.
func (c *Consumer) handle(ctx context.Context, srcChainID uint32, _ common.Address, payload []byte) error {
	resp, err := codec.DecodeResponse(payload)
	if err != nil {
		c.metrics.Reject(metrics.ReasonMalformed)
		c.log.Warn("dropping malformed response payload", "srcChain", srcChainID, "size", len(payload), "err", err)
		return err
	}
	return c.fulfill(ctx, resp)
}

func (c *Consumer) fulfill(ctx context.Context, resp codec.Response) error {
	c.mu.Lock()
	rec, err := c.recordLocked(resp.RequestID)
	if errors.Is(err, ErrUnknownRequest) {
		c.mu.Unlock()
		c.metrics.Reject(metrics.ReasonUnknownRequest)
		c.log.Warn("response for unknown request", "requestId", resp.RequestID, "user", resp.User)
		return err
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if rec.user != resp.User {
		c.mu.Unlock()
		c.metrics.Reject(metrics.ReasonUserMismatch)
		c.log.Warn("response user mismatch",
			"requestId", resp.RequestID,
			"expected", rec.user,
			"got", resp.User,
		)
		return fmt.Errorf("%w: request %d", ErrUserMismatch, resp.RequestID)
	}
	settler := c.settler
	if settler == nil {
		c.mu.Unlock()
		return ErrNoSettler
	}
	if err := c.db.Delete(requestKey(resp.RequestID)); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := settler.Settle(ctx, c.address, resp.RequestID, resp.User, resp.Randomness); err != nil {
		// the whole delivery reverts: the request stays Pending for replay
		c.mu.Lock()
		restoreErr := c.db.Put(requestKey(resp.RequestID), rec.marshal())
		c.mu.Unlock()
		c.metrics.Reject(metrics.ReasonSettlement)
		c.log.Error("settlement failed",
			"requestId", resp.RequestID,
			"user", resp.User,
			"err", err,
		)
		if restoreErr != nil {
			return fmt.Errorf("settle request %d: %w (restore: %v)", resp.RequestID, err, restoreErr)
		}
		return fmt.Errorf("settle request %d: %w", resp.RequestID, err)
	}

	c.metrics.ResponseReceived()
	c.mu.Lock()
	c.refreshPendingLocked()
	c.mu.Unlock()
	c.log.Info("randomness received", "requestId", resp.RequestID, "user", resp.User)
	return nil
}

func (c *Consumer) recordLocked(id uint64) (requestRecord, error) {
	raw, err := c.db.Get(requestKey(id))
	if err == database.ErrNotFound {
		return requestRecord{}, fmt.Errorf("%w: %d", ErrUnknownRequest, id)
	}
	if err != nil {
		return requestRecord{}, err
	}
	return unmarshalRequestRecord(raw)
}

// Status reports whether id was never issued, is waiting, or has settled.
func (c *Consumer) Status(id uint64) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if has, err := c.db.Has(requestKey(id)); err == nil && has {
		return StatusPending
	}
	next, err := c.nextIDLocked()
	if err != nil || id >= next {
		return StatusUnknown
	}
	return StatusFulfilled
}

// UserOf returns the user recorded for a pending request.
func (c *Consumer) UserOf(id uint64) (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.recordLocked(id)
	if err != nil {
		return common.Address{}, false
	}
	return rec.user, true
}

// PendingRequests lists every pending request in id order.
func (c *Consumer) PendingRequests() ([]PendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *Consumer) pendingLocked() ([]PendingRequest, error) {
	it := c.db.NewIteratorWithPrefix(requestPrefix)
	defer it.Release()

	out := make([]PendingRequest, 0)
	for it.Next() {
		key := it.Key()
		if len(key) != len(requestPrefix)+requestIDLength {
			return nil, ErrCorruptRecord
		}
		rec, err := unmarshalRequestRecord(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, PendingRequest{
			ID:        binary.BigEndian.Uint64(key[len(requestPrefix):]),
			User:      rec.user,
			CreatedAt: rec.createdAt,
		})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Consumer) refreshPendingLocked() {
	if pending, err := c.pendingLocked(); err == nil {
		c.metrics.SetPending(len(pending))
	}
}

// Replay re-sends a pending request whose message or response was lost.
// A late first response and the replayed one are both matched by id, so
// only the first to arrive settles.
func (c *Consumer) Replay(ctx context.Context, caller common.Address, id uint64) error {
	if err := c.auth.Authorize(caller); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.recordLocked(id)
	if errors.Is(err, ErrUnknownRequest) {
		return fmt.Errorf("%w: %d", ErrNotPending, id)
	}
	if err != nil {
		return err
	}
	if c.remote == (common.Address{}) {
		return ErrNoRemote
	}

	payload, err := codec.EncodeRequest(codec.Request{RequestID: id, User: rec.user})
	if err != nil {
		return err
	}
	handle, err := c.sender.Send(ctx, c.address, c.remoteChainID, c.remote, payload)
	if err != nil {
		return fmt.Errorf("replay request %d: %w", id, err)
	}
	if err := codec.Emit(c.events, c.address, codec.EventRequestReplayed, id, rec.user); err != nil {
		return err
	}

	c.metrics.Replayed()
	c.log.Warn("request replayed",
		"requestId", id,
		"user", rec.user,
		"age", c.now().Sub(rec.createdAt),
		"handle", handle,
	)
	return nil
}

// SetTrigger registers the only contract allowed to request randomness,
// which also receives every settlement.
func (c *Consumer) SetTrigger(caller common.Address, settler Settler) error {
	if err := c.auth.Authorize(caller); err != nil {
		return err
	}
	if settler == nil || settler.Address() == (common.Address{}) {
		return access.ErrInvalidAddress
	}
	c.mu.Lock()
	c.settler = settler
	c.mu.Unlock()
	c.log.Info("trigger set", "trigger", settler.Address())
	return nil
}

// SetRemote registers the compute-chain requester as both the request
// destination and the trusted remote for chainID.
func (c *Consumer) SetRemote(caller common.Address, chainID uint32, requester common.Address) error {
	if err := c.SetTrustedRemoteAddress(caller, chainID, requester); err != nil {
		return err
	}
	c.mu.Lock()
	c.remoteChainID = chainID
	c.remote = requester
	c.mu.Unlock()
	return nil
}

// Remote returns the configured request destination.
func (c *Consumer) Remote() (uint32, common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteChainID, c.remote
}
