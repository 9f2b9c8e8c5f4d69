// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package jackpot holds the shared prize pool. The pool is the native
// balance of the vault address; every read goes to chain state so a
// settlement always sees the balance at the time it executes.
package jackpot

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/metrics"
	"github.com/luxfi/jackpot/state"
)

var (
	ErrHalted            = errors.New("distribution halted")
	ErrNotHalted         = errors.New("distribution not halted")
	ErrOverdraw          = errors.New("payout exceeds pool balance")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAmount        = errors.New("zero amount")
)

var haltedSlot = state.StorageKey([]byte("jackpot/vault"), []byte("halted"))

// Vault is the jackpot pool.
type Vault struct {
	address common.Address
	state   state.StateDB
	auth    access.Authority

	log     log.Logger
	metrics *metrics.Metrics
}

func NewVault(address common.Address, db state.StateDB, auth access.Authority, logger log.Logger, m *metrics.Metrics) *Vault {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Vault{
		address: address,
		state:   db,
		auth:    auth,
		log:     logger,
		metrics: m,
	}
}

func (v *Vault) Address() common.Address {
	return v.address
}

// Balance is the live pool balance.
func (v *Vault) Balance() *uint256.Int {
	return v.state.GetBalance(v.address)
}

// Deposit moves amount from the from account into the pool.
func (v *Vault) Deposit(from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if v.state.GetBalance(from).Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, v.state.GetBalance(from).Dec(), amount.Dec())
	}
	v.state.SubBalance(from, amount, tracing.BalanceChangeTransfer)
	v.state.AddBalance(v.address, amount, tracing.BalanceChangeTransfer)
	if err := codec.Emit(v.state, v.address, codec.EventJackpotDeposited, from, amount); err != nil {
		return err
	}
	v.observe()
	return nil
}

// Credit adds swap fee inflow to the pool.
func (v *Vault) Credit(amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	v.state.AddBalance(v.address, amount, tracing.BalanceIncreaseRewardTransactionFee)
	v.observe()
}

// Disburse pays a single transfer out of the pool.
func (v *Vault) Disburse(to common.Address, amount *uint256.Int) error {
	return v.DisburseAll([]distributor.Payout{{Recipient: to, Amount: amount}})
}

// DisburseAll pays every payout or none. A total above the live balance
// halts the vault until Resume.
func (v *Vault) DisburseAll(payouts []distributor.Payout) error {
	if v.Halted() {
		return ErrHalted
	}
	total := new(uint256.Int)
	for _, p := range payouts {
		total.Add(total, p.Amount)
	}
	if balance := v.Balance(); total.Gt(balance) {
		v.halt(total, balance)
		return fmt.Errorf("%w: %s > %s", ErrOverdraw, total.Dec(), balance.Dec())
	}
	for _, p := range payouts {
		if p.Amount.IsZero() {
			continue
		}
		v.state.SubBalance(v.address, p.Amount, tracing.BalanceChangeTransfer)
		v.state.AddBalance(p.Recipient, p.Amount, tracing.BalanceChangeTransfer)
	}
	v.observe()
	return nil
}

func (v *Vault) halt(requested, balance *uint256.Int) {
	v.state.SetState(v.address, haltedSlot, common.BytesToHash([]byte{1}))
	if err := codec.Emit(v.state, v.address, codec.EventDistributionHalted, requested, balance); err != nil {
		v.log.Error("failed to emit halt event", "err", err)
	}
	v.metrics.Halted()
	v.log.Error("payout exceeds pool balance, distribution halted",
		"requested", requested.Dec(),
		"balance", balance.Dec(),
	)
}

// Halted reports whether distribution is stopped.
func (v *Vault) Halted() bool {
	return v.state.GetState(v.address, haltedSlot) != (common.Hash{})
}

// Resume clears a halt.
func (v *Vault) Resume(caller common.Address) error {
	if err := v.auth.Authorize(caller); err != nil {
		return err
	}
	if !v.Halted() {
		return ErrNotHalted
	}
	v.state.SetState(v.address, haltedSlot, common.Hash{})
	v.log.Info("distribution resumed", "by", caller)
	return nil
}

func (v *Vault) observe() {
	v.metrics.SetBalance(Tokens(v.Balance()))
}

// Tokens converts an 18-decimal amount to whole tokens for display.
func Tokens(amount *uint256.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount.ToBig()), big.NewFloat(1e18)).Float64()
	return f
}
