// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/metrics"
)

// Endpoint is a chain's attachment point to the transport. It assigns
// outbound nonces per path and routes inbound packets to registered receivers.
type Endpoint struct {
	chainID   uint32
	label     string
	transport Transport

	// registrations sorted by address for deterministic iteration
	receivers []registration

	outbound map[pathKey]uint64 // last nonce sent per path
	inbound  map[pathKey]uint64 // highest nonce seen per path

	log     log.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

type registration struct {
	address  common.Address
	receiver Receiver
}

type pathKey struct {
	chainID uint32
	path    [PathLength]byte
}

var _ Sender = (*Endpoint)(nil)

// NewEndpoint creates the endpoint of chainID on transport
func NewEndpoint(chainID uint32, transport Transport, logger log.Logger, m *metrics.Metrics) *Endpoint {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Endpoint{
		chainID:   chainID,
		label:     strconv.FormatUint(uint64(chainID), 10),
		transport: transport,
		receivers: make([]registration, 0),
		outbound:  make(map[pathKey]uint64),
		inbound:   make(map[pathKey]uint64),
		log:       logger,
		metrics:   m,
	}
}

func (e *Endpoint) ChainID() uint32 {
	return e.chainID
}

// Register binds receiver to address so packets whose path ends in address reach it.
func (e *Endpoint) Register(address common.Address, receiver Receiver) error {
	if address == (common.Address{}) {
		return ErrInvalidAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.receivers {
		if r.address == address {
			return fmt.Errorf("%w: %s", ErrDuplicate, address)
		}
	}
	e.receivers = append(e.receivers, registration{address: address, receiver: receiver})
	sort.Slice(e.receivers, func(i, j int) bool {
		return bytes.Compare(e.receivers[i].address[:], e.receivers[j].address[:]) < 0
	})
	return nil
}

// Receivers returns the registered addresses in ascending order.
func (e *Endpoint) Receivers() []common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]common.Address, len(e.receivers))
	for i, r := range e.receivers {
		out[i] = r.address
	}
	return out
}

func (e *Endpoint) receiver(address common.Address) (Receiver, bool) {
	for _, r := range e.receivers {
		if r.address == address {
			return r.receiver, true
		}
	}
	return nil, false
}

// Send hands payload from sender to dstAddress on dstChainID. It returns as
// soon as the transport accepts the packet; delivery is not guaranteed.
func (e *Endpoint) Send(
	ctx context.Context,
	sender common.Address,
	dstChainID uint32,
	dstAddress common.Address,
	payload []byte,
) (Handle, error) {
	if dstChainID == e.chainID {
		return Handle{}, ErrSameChain
	}
	if dstAddress == (common.Address{}) || sender == (common.Address{}) {
		return Handle{}, ErrInvalidAddress
	}

	pkt := Packet{
		SrcChainID: e.chainID,
		DstChainID: dstChainID,
		Path:       Path(sender, dstAddress),
		Payload:    bytes.Clone(payload),
	}
	key := newPathKey(dstChainID, pkt.Path)

	e.mu.Lock()
	pkt.Nonce = e.outbound[key] + 1
	e.outbound[key] = pkt.Nonce
	e.mu.Unlock()

	if err := e.transport.Submit(ctx, pkt); err != nil {
		e.mu.Lock()
		if e.outbound[key] == pkt.Nonce {
			e.outbound[key] = pkt.Nonce - 1
		}
		e.mu.Unlock()
		return Handle{}, fmt.Errorf("submit to chain %d: %w", dstChainID, err)
	}

	handle := pkt.ID()
	e.metrics.MessageSent(e.label)
	e.log.Debug("message sent",
		"srcChain", e.chainID,
		"dstChain", dstChainID,
		"dst", dstAddress,
		"nonce", pkt.Nonce,
		"handle", handle,
	)
	return handle, nil
}

// Deliver is invoked by the transport when pkt arrives. Out-of-order nonces
// are accepted and only reported.
func (e *Endpoint) Deliver(ctx context.Context, pkt Packet) error {
	if pkt.DstChainID != e.chainID {
		return fmt.Errorf("%w: %d", ErrWrongChain, pkt.DstChainID)
	}
	if len(pkt.Path) != PathLength {
		e.metrics.Reject(metrics.ReasonInvalidSource)
		return ErrInvalidPath
	}

	dst := pkt.Destination()
	key := newPathKey(pkt.SrcChainID, pkt.Path)

	e.mu.Lock()
	r, ok := e.receiver(dst)
	last := e.inbound[key]
	if ok && pkt.Nonce > last {
		e.inbound[key] = pkt.Nonce
	}
	e.mu.Unlock()

	if !ok {
		e.metrics.Reject(metrics.ReasonNoReceiver)
		return fmt.Errorf("%w: %s", ErrNoReceiver, dst)
	}

	switch {
	case pkt.Nonce > last+1:
		e.metrics.NonceGap(e.label, "gap")
		e.log.Warn("nonce gap on inbound path",
			"srcChain", pkt.SrcChainID,
			"sender", pkt.Sender(),
			"expected", last+1,
			"got", pkt.Nonce,
		)
	case pkt.Nonce <= last:
		e.metrics.NonceGap(e.label, "late")
		e.log.Warn("late delivery on inbound path",
			"srcChain", pkt.SrcChainID,
			"sender", pkt.Sender(),
			"highest", last,
			"got", pkt.Nonce,
		)
	}

	ctx = WithDelivery(ctx, pkt.SrcChainID, pkt.Nonce)
	if err := r.Receive(ctx, pkt.SrcChainID, pkt.Path, pkt.Nonce, pkt.Payload); err != nil {
		return err
	}
	e.metrics.MessageDelivered(e.label)
	return nil
}

// OutboundNonce returns the last nonce sent from sender to dstAddress on dstChainID.
func (e *Endpoint) OutboundNonce(dstChainID uint32, sender, dstAddress common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outbound[newPathKey(dstChainID, Path(sender, dstAddress))]
}

// InboundNonce returns the highest nonce delivered on the given inbound path.
func (e *Endpoint) InboundNonce(srcChainID uint32, path []byte) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inbound[newPathKey(srcChainID, path)]
}

func newPathKey(chainID uint32, path []byte) pathKey {
	key := pathKey{chainID: chainID}
	copy(key.path[:], path)
	return key
}
