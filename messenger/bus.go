// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ef-ds/deque"
	log "github.com/luxfi/log"
	"go.uber.org/multierr"
)

// Executor runs fn as one transaction on a chain.
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// Bus is an in-memory transport. Packets queue in submission order until the
// caller pumps them with DeliverNext or Flush; tests can drop or reorder
// packets in flight.
//
// Caution: the Bus never retries. A packet whose delivery fails is gone.
type Bus struct {
	endpoints map[uint32]*Endpoint
	executors map[uint32]Executor
	queue     deque.Deque

	delivered uint64
	failed    uint64

	log log.Logger

	mu sync.Mutex
}

var _ Transport = (*Bus)(nil)

func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Bus{
		endpoints: make(map[uint32]*Endpoint),
		executors: make(map[uint32]Executor),
		log:       logger,
	}
}

// Attach connects endpoint to the bus. When exec is not nil every delivery
// to the endpoint runs through it.
func (b *Bus) Attach(endpoint *Endpoint, exec Executor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[endpoint.ChainID()] = endpoint
	if exec != nil {
		b.executors[endpoint.ChainID()] = exec
	}
}

// Submit queues pkt for delivery.
func (b *Bus) Submit(_ context.Context, pkt Packet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.endpoints[pkt.DstChainID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, pkt.DstChainID)
	}
	b.queue.PushBack(pkt)
	return nil
}

// Pending returns the number of packets in flight.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// InFlight returns a copy of the queued packets in delivery order.
func (b *Bus) InFlight() []Packet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bus) snapshotLocked() []Packet {
	out := make([]Packet, 0, b.queue.Len())
	for b.queue.Len() > 0 {
		v, _ := b.queue.PopFront()
		out = append(out, v.(Packet))
	}
	for _, pkt := range out {
		b.queue.PushBack(pkt)
	}
	return out
}

// Drop removes the packet with the given handle, simulating a lost message.
func (b *Bus) Drop(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	packets := b.snapshotLocked()
	dropped := false
	b.queue = deque.Deque{}
	for _, pkt := range packets {
		if !dropped && pkt.ID() == handle {
			dropped = true
			continue
		}
		b.queue.PushBack(pkt)
	}
	return dropped
}

// Reverse inverts the delivery order of the packets in flight.
func (b *Bus) Reverse() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var reversed deque.Deque
	for b.queue.Len() > 0 {
		v, _ := b.queue.PopFront()
		reversed.PushFront(v)
	}
	b.queue = reversed
}

// DeliverNext delivers the oldest packet in flight. It reports false when the
// queue is empty. The packet is consumed even when delivery fails.
func (b *Bus) DeliverNext(ctx context.Context) (Packet, bool, error) {
	b.mu.Lock()
	v, ok := b.queue.PopFront()
	if !ok {
		b.mu.Unlock()
		return Packet{}, false, nil
	}
	pkt := v.(Packet)
	endpoint := b.endpoints[pkt.DstChainID]
	exec := b.executors[pkt.DstChainID]
	b.mu.Unlock()

	var err error
	if exec != nil {
		err = exec.Execute(ctx, func(ctx context.Context) error {
			return endpoint.Deliver(ctx, pkt)
		})
	} else {
		err = endpoint.Deliver(ctx, pkt)
	}

	b.mu.Lock()
	if err != nil {
		b.failed++
	} else {
		b.delivered++
	}
	b.mu.Unlock()

	if err != nil {
		b.log.Warn("delivery failed",
			"srcChain", pkt.SrcChainID,
			"dstChain", pkt.DstChainID,
			"nonce", pkt.Nonce,
			"err", err,
		)
		return pkt, true, fmt.Errorf("deliver %s: %w", pkt.ID().Hex(), err)
	}
	return pkt, true, nil
}

// Flush delivers until no packet is left, including packets submitted by the
// deliveries themselves. Every delivery error is collected.
func (b *Bus) Flush(ctx context.Context) error {
	var errs error
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		_, ok, err := b.DeliverNext(ctx)
		if !ok {
			return errs
		}
		errs = multierr.Append(errs, err)
	}
}

// Stats returns the number of successful and failed deliveries.
func (b *Bus) Stats() (delivered, failed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered, b.failed
}
