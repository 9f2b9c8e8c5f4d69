// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package distributor

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Tier identifies a prize bucket. The values are part of the PrizePaid event.
type Tier uint8

const (
	TierMain Tier = iota
	TierSecondary
	TierParticipation
)

func (t Tier) String() string {
	switch t {
	case TierMain:
		return "main"
	case TierSecondary:
		return "secondary"
	case TierParticipation:
		return "participation"
	default:
		return "unknown"
	}
}

type Payout struct {
	Recipient common.Address
	Tier      Tier
	Amount    *uint256.Int
}

// Plan is the list of transfers for one win. Paid plus Dust equals the
// distributable amount of the split; dust stays in the pool.
type Plan struct {
	Payouts []Payout
	Paid    *uint256.Int
	Dust    *uint256.Int
}

// Allocate turns a split into payouts. participants is the cycle in order of
// last activity, oldest first. Secondary goes in equal parts to up to
// maxSecondary of the most recent participants other than the winner;
// participation in equal parts to every participant.
func Allocate(split Split, winner common.Address, participants []common.Address, maxSecondary int) Plan {
	plan := Plan{Paid: new(uint256.Int), Dust: new(uint256.Int)}

	if split.Main.Sign() > 0 {
		plan.add(winner, TierMain, split.Main)
	}

	var secondary []common.Address
	for i := len(participants) - 1; i >= 0 && len(secondary) < maxSecondary; i-- {
		if participants[i] != winner {
			secondary = append(secondary, participants[i])
		}
	}
	plan.spread(secondary, TierSecondary, split.Secondary)
	plan.spread(participants, TierParticipation, split.Participation)
	return plan
}

func (p *Plan) add(to common.Address, tier Tier, amount *uint256.Int) {
	p.Payouts = append(p.Payouts, Payout{Recipient: to, Tier: tier, Amount: amount})
	p.Paid.Add(p.Paid, amount)
}

func (p *Plan) spread(to []common.Address, tier Tier, total *uint256.Int) {
	if len(to) == 0 || total.IsZero() {
		p.Dust.Add(p.Dust, total)
		return
	}
	each := new(uint256.Int).Div(total, uint256.NewInt(uint64(len(to))))
	if each.IsZero() {
		p.Dust.Add(p.Dust, total)
		return
	}
	for _, addr := range to {
		p.add(addr, tier, each.Clone())
	}
	spent := new(uint256.Int).Mul(each, uint256.NewInt(uint64(len(to))))
	p.Dust.Add(p.Dust, new(uint256.Int).Sub(total, spent))
}
