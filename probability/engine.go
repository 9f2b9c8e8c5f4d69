// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package probability

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/jackpot/access"
)

// ReferenceOracle converts native amounts to reference value.
type ReferenceOracle interface {
	ReferenceValue(ctx context.Context, amount *uint256.Int) (*uint256.Int, error)
}

// Result is a threshold evaluation for one swap.
type Result struct {
	ReferenceValue *uint256.Int
	Base           uint64
	Threshold      uint64
}

// Engine binds the threshold functions to an oracle and admin-tunable params.
type Engine struct {
	auth   access.Authority
	oracle ReferenceOracle
	params Params

	mu sync.RWMutex
}

func NewEngine(auth access.Authority, oracle ReferenceOracle, params Params) (*Engine, error) {
	if err := params.Verify(); err != nil {
		return nil, err
	}
	return &Engine{auth: auth, oracle: oracle, params: params}, nil
}

// Value returns the reference value of amount and its unboosted threshold.
func (e *Engine) Value(ctx context.Context, amount *uint256.Int) (*uint256.Int, uint64, error) {
	value, err := e.oracle.ReferenceValue(ctx, amount)
	if err != nil {
		return nil, 0, fmt.Errorf("reference value: %w", err)
	}
	return value, Base(e.Params(), value), nil
}

// Threshold prices swapAmount and applies multiplier.
func (e *Engine) Threshold(ctx context.Context, swapAmount, multiplier *uint256.Int) (Result, error) {
	value, base, err := e.Value(ctx, swapAmount)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ReferenceValue: value,
		Base:           base,
		Threshold:      Apply(e.Params(), base, multiplier),
	}, nil
}

// Apply boosts a base threshold with the current params.
func (e *Engine) Apply(base uint64, multiplier *uint256.Int) uint64 {
	return Apply(e.Params(), base, multiplier)
}

func (e *Engine) Params() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// SetParams replaces the curve for future evaluations.
func (e *Engine) SetParams(caller common.Address, params Params) error {
	if err := e.auth.Authorize(caller); err != nil {
		return err
	}
	if err := params.Verify(); err != nil {
		return err
	}
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	return nil
}
