// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trigger

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/fpmath"
)

var swapPrefix = []byte("trigger/swap/")

func swapKey(id uint64) []byte {
	key := make([]byte, len(swapPrefix)+8)
	copy(key, swapPrefix)
	binary.BigEndian.PutUint64(key[len(swapPrefix):], id)
	return key
}

// swapRecord is what the trigger remembers between a swap and its
// settlement: user (20) ++ partner (20) ++ amount (32) ++ value (32) ++
// base threshold (8).
type swapRecord struct {
	user    common.Address
	partner common.Address
	amount  *uint256.Int
	value   *uint256.Int
	base    uint64
}

const swapRecordLength = 2*common.AddressLength + 2*32 + 8

func (r swapRecord) marshal() []byte {
	buf := make([]byte, 0, swapRecordLength)
	buf = append(buf, r.user.Bytes()...)
	buf = append(buf, r.partner.Bytes()...)
	amount := r.amount.Bytes32()
	buf = append(buf, amount[:]...)
	value := r.value.Bytes32()
	buf = append(buf, value[:]...)
	return binary.BigEndian.AppendUint64(buf, r.base)
}

func unmarshalSwapRecord(b []byte) (swapRecord, error) {
	if len(b) != swapRecordLength {
		return swapRecord{}, ErrCorruptRecord
	}
	const a = common.AddressLength
	return swapRecord{
		user:    common.BytesToAddress(b[:a]),
		partner: common.BytesToAddress(b[a : 2*a]),
		amount:  new(uint256.Int).SetBytes32(b[2*a : 2*a+32]),
		value:   new(uint256.Int).SetBytes32(b[2*a+32 : 2*a+64]),
		base:    binary.BigEndian.Uint64(b[2*a+64:]),
	}, nil
}

// Receipt describes how a swap was handled.
type Receipt struct {
	// Requested is false for swaps below the minimum.
	Requested      bool
	RequestID      uint64
	ReferenceValue *uint256.Int
	BaseThreshold  uint64
	Fee            *uint256.Int
}

// OnSwap is called by a swap source after user swapped amount. Qualifying
// swaps credit the pool fee, join the user to the cycle and open a
// randomness request; the outcome is decided later in Settle.
func (t *Trigger) OnSwap(ctx context.Context, caller, user common.Address, amount *uint256.Int) (Receipt, error) {
	if err := t.owner.WhenNotPaused(); err != nil {
		return Receipt{}, err
	}
	if !t.IsSwapSource(caller) {
		t.log.Warn("swap from unknown source", "caller", caller, "user", user)
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownSource, caller)
	}
	if user == (common.Address{}) || amount == nil {
		return Receipt{}, fmt.Errorf("%w: empty swap", ErrInvalidParams)
	}

	params := t.Params()
	if amount.Lt(params.MinSwapAmount) {
		t.mu.Lock()
		t.stats.Ignored++
		t.mu.Unlock()
		t.metrics.SwapIgnored()
		t.log.Debug("swap below minimum", "user", user, "amount", amount.Dec())
		return Receipt{}, nil
	}

	value, base, err := t.engine.Value(ctx, amount)
	if err != nil {
		return Receipt{}, err
	}
	id, err := t.consumer.RequestRandomness(ctx, t.address, user)
	if err != nil {
		return Receipt{}, fmt.Errorf("request randomness: %w", err)
	}

	rec := swapRecord{user: user, partner: caller, amount: amount.Clone(), value: value, base: base}
	if err := t.db.Put(swapKey(id), rec.marshal()); err != nil {
		return Receipt{}, err
	}
	if err := codec.Emit(t.events, t.address, codec.EventSwapDetected, user, id, amount, value); err != nil {
		return Receipt{}, err
	}
	fee := fpmath.MulBps(amount, params.FeeBps)
	t.pool.Credit(fee)

	t.mu.Lock()
	t.cycle.touch(user)
	t.stats.Swaps++
	t.stats.Requests++
	t.mu.Unlock()

	t.metrics.SwapDetected()
	t.log.Info("swap entered draw",
		"requestId", id,
		"user", user,
		"source", caller,
		"amount", amount.Dec(),
		"referenceValue", value.Dec(),
		"baseThreshold", base,
	)
	return Receipt{
		Requested:      true,
		RequestID:      id,
		ReferenceValue: value,
		BaseThreshold:  base,
		Fee:            fee,
	}, nil
}

// Pending reports whether request id is still waiting for settlement.
func (t *Trigger) Pending(id uint64) bool {
	ok, err := t.db.Has(swapKey(id))
	return err == nil && ok
}

func (t *Trigger) loadSwap(id uint64) (swapRecord, error) {
	raw, err := t.db.Get(swapKey(id))
	if err == database.ErrNotFound {
		return swapRecord{}, fmt.Errorf("%w: %d", ErrUnknownRequest, id)
	}
	if err != nil {
		return swapRecord{}, err
	}
	return unmarshalSwapRecord(raw)
}
