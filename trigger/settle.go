// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trigger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/jackpot/codec"
	"github.com/luxfi/jackpot/distributor"
	"github.com/luxfi/jackpot/jackpot"
	"github.com/luxfi/jackpot/probability"
	"github.com/luxfi/jackpot/randomness"
)

var _ randomness.Settler = (*Trigger)(nil)

var outcomePrefix = []byte("trigger/outcome/")

// Outcome is the settled result of one request. Outcomes are kept in the
// trigger's database as JSON under outcomePrefix.
type Outcome struct {
	RequestID  uint64
	User       common.Address
	Partner    common.Address
	Randomness *uint256.Int
	Roll       uint64
	Multiplier *uint256.Int
	Threshold  uint64
	Won        bool

	// Halted marks a win the vault refused to pay. It stays payable
	// through RetryPayout once the vault resumes.
	Halted  bool
	Split   distributor.Split
	Payouts []distributor.Payout
	Paid    *uint256.Int
}

// Settle decides request id with randomness. Only the consumer may call it.
// The boost is read now, not at swap time; the pool balance is read at
// payout.
func (t *Trigger) Settle(ctx context.Context, caller common.Address, id uint64, user common.Address, r *uint256.Int) error {
	if caller != t.consumer.Address() {
		t.log.Warn("settlement from non-consumer", "caller", caller, "requestId", id)
		return ErrOnlyConsumer
	}
	rec, err := t.loadSwap(id)
	if err != nil {
		return err
	}
	if rec.user != user {
		t.log.Warn("settlement user mismatch", "requestId", id, "expected", rec.user, "got", user)
		return fmt.Errorf("%w: request %d", ErrUserMismatch, id)
	}

	multiplier := t.booster.Calculate(ctx, user, rec.partner)
	threshold := t.engine.Apply(rec.base, multiplier)
	out := Outcome{
		RequestID:  id,
		User:       user,
		Partner:    rec.partner,
		Randomness: r.Clone(),
		Roll:       probability.Roll(r),
		Multiplier: multiplier,
		Threshold:  threshold,
		Won:        probability.IsWinner(r, threshold),
		Paid:       new(uint256.Int),
	}
	if err := codec.Emit(t.events, t.address, codec.EventRandomnessReceived, id, user, r, uint256.NewInt(threshold), out.Won); err != nil {
		return err
	}

	if out.Won {
		if err := t.payout(&out); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	batch := t.db.NewBatch()
	if err := batch.Delete(swapKey(id)); err != nil {
		return err
	}
	if err := batch.Put(outcomeKey(id), raw); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("persist outcome %d: %w", id, err)
	}
	t.mu.Lock()
	if out.Won {
		t.stats.Wins++
	} else {
		t.stats.Losses++
	}
	t.mu.Unlock()

	if !out.Won {
		t.metrics.Lost()
		t.log.Debug("no win", "requestId", id, "user", user, "roll", out.Roll, "threshold", threshold)
	}
	return nil
}

// payout splits the live balance and pays it. A vault halt is recorded on
// the outcome and does not fail the settlement.
func (t *Trigger) payout(out *Outcome) error {
	t.mu.Lock()
	params := t.params.Distribution
	members := t.cycle.members()
	t.mu.Unlock()

	if !contains(members, out.User) {
		members = append(members, out.User)
	}
	split := distributor.Compute(params, t.pool.Balance(), uint64(len(members)))
	plan := distributor.Allocate(split, out.User, members, params.SecondaryWinners)
	out.Split = split

	if err := t.pool.DisburseAll(plan.Payouts); err != nil {
		if errors.Is(err, jackpot.ErrHalted) || errors.Is(err, jackpot.ErrOverdraw) {
			out.Halted = true
			t.log.Error("win left unpaid, distribution halted",
				"requestId", out.RequestID,
				"winner", out.User,
				"err", err,
			)
			return nil
		}
		return err
	}

	for _, p := range plan.Payouts {
		if err := codec.Emit(t.events, t.address, codec.EventPrizePaid, p.Recipient, uint8(p.Tier), p.Amount); err != nil {
			return err
		}
	}
	if err := codec.Emit(t.events, t.address, codec.EventJackpotWon, out.User, out.RequestID, split.Main, plan.Paid); err != nil {
		return err
	}

	out.Halted = false
	out.Payouts = plan.Payouts
	out.Paid = plan.Paid

	t.mu.Lock()
	t.cycle.reset()
	t.stats.TotalPaid.Add(t.stats.TotalPaid, plan.Paid)
	t.mu.Unlock()

	t.metrics.Won(jackpot.Tokens(plan.Paid))
	t.log.Info("jackpot won",
		"requestId", out.RequestID,
		"winner", out.User,
		"main", split.Main.Dec(),
		"paid", plan.Paid.Dec(),
		"dust", plan.Dust.Dec(),
		"participants", len(members),
	)
	return nil
}

// RetryPayout pays a win that was left unpaid by a halted vault, against
// the balance and cycle at the time of the retry.
func (t *Trigger) RetryPayout(ctx context.Context, caller common.Address, id uint64) error {
	if err := t.owner.Authorize(caller); err != nil {
		return err
	}
	out, ok := t.Outcome(id)
	if !ok || !out.Won || !out.Halted {
		return fmt.Errorf("%w: %d", ErrNotHaltedWin, id)
	}
	if err := t.payout(&out); err != nil {
		return err
	}
	if out.Halted {
		return jackpot.ErrHalted
	}
	return t.storeOutcome(out)
}

// Outcome returns the settled outcome of a request.
func (t *Trigger) Outcome(id uint64) (Outcome, bool) {
	raw, err := t.db.Get(outcomeKey(id))
	if err != nil {
		if err != database.ErrNotFound {
			t.log.Error("failed to read outcome", "requestId", id, "err", err)
		}
		return Outcome{}, false
	}
	var out Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		t.log.Error("corrupt outcome record", "requestId", id, "err", err)
		return Outcome{}, false
	}
	return out, true
}

func (t *Trigger) storeOutcome(out Outcome) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return t.db.Put(outcomeKey(out.RequestID), raw)
}

func outcomeKey(id uint64) []byte {
	key := make([]byte, len(outcomePrefix)+8)
	copy(key, outcomePrefix)
	binary.BigEndian.PutUint64(key[len(outcomePrefix):], id)
	return key
}

func contains(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
