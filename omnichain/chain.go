// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package omnichain runs the jackpot across two in-process chains: a home
// chain holding the pool and the trigger, and a compute chain holding the
// randomness provider. Messages between them travel over a messenger.Bus.
package omnichain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gammazero/workerpool"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/messenger"
	"github.com/luxfi/jackpot/metrics"
	"github.com/luxfi/jackpot/state"
)

var ErrStopped = errors.New("chain stopped")

// Chain is one simulated chain. Transactions run one at a time on a single
// worker; a transaction that returns an error has its state changes and
// logs reverted. Key-value records written through a database.Database are
// not journaled, nor is state a contract keeps in memory (the trigger's
// swap sources, participant cycle and counters). Contracts write their
// records last so a failed transaction leaves none behind.
type Chain struct {
	id       uint32
	name     string
	state    *state.MemoryDB
	endpoint *messenger.Endpoint
	pool     *workerpool.WorkerPool
	log      log.Logger
}

var _ messenger.Executor = (*Chain)(nil)

func NewChain(id uint32, name string, transport messenger.Transport, logger log.Logger, m *metrics.Metrics) *Chain {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Chain{
		id:       id,
		name:     name,
		state:    state.NewMemoryDB(),
		endpoint: messenger.NewEndpoint(id, transport, logger, m),
		pool:     workerpool.New(1),
		log:      logger,
	}
}

func (c *Chain) ID() uint32 { return c.id }

func (c *Chain) Name() string { return c.name }

func (c *Chain) State() *state.MemoryDB { return c.state }

func (c *Chain) Endpoint() *messenger.Endpoint { return c.endpoint }

// Execute runs fn as one transaction and waits for it. fn must not call
// Execute on the same chain.
func (c *Chain) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.pool.Stopped() {
		return fmt.Errorf("%w: %s", ErrStopped, c.name)
	}

	var err error
	c.pool.SubmitWait(func() {
		snap := c.state.Snapshot()
		if err = fn(ctx); err != nil {
			c.state.RevertToSnapshot(snap)
			c.log.Debug("transaction reverted", "chain", c.name, "err", err)
			return
		}
		c.state.DiscardSnapshot(snap)
	})
	return err
}

// Stop waits for queued transactions and shuts the worker down.
func (c *Chain) Stop() {
	c.pool.StopWait()
}
