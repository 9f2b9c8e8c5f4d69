// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package boost

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/fpmath"
)

// VotingPowerSource reads the lock position of a user.
type VotingPowerSource interface {
	Profile(ctx context.Context, user common.Address) (Profile, error)
}

// Ledger is an in-memory VotingPowerSource.
type Ledger struct {
	profiles map[common.Address]Profile

	mu sync.RWMutex
}

var _ VotingPowerSource = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{profiles: make(map[common.Address]Profile)}
}

// Set records the lock position of user.
func (l *Ledger) Set(user common.Address, p Profile) error {
	if err := p.Verify(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.profiles[user] = Profile{
		LockedAmount:  cloneOrZero(p.LockedAmount),
		VotingPower:   cloneOrZero(p.VotingPower),
		LockRemaining: p.LockRemaining,
	}
	return nil
}

func (l *Ledger) Profile(_ context.Context, user common.Address) (Profile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[user]
	if !ok {
		return Profile{LockedAmount: new(uint256.Int), VotingPower: new(uint256.Int)}, nil
	}
	return Profile{
		LockedAmount:  p.LockedAmount.Clone(),
		VotingPower:   p.VotingPower.Clone(),
		LockRemaining: p.LockRemaining,
	}, nil
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

// PartnerRegistry holds the curated partner boosts in basis points.
type PartnerRegistry struct {
	auth     access.Authority
	capBps   uint64
	partners map[common.Address]uint64

	mu sync.RWMutex
}

func NewPartnerRegistry(auth access.Authority, capBps uint64) *PartnerRegistry {
	return &PartnerRegistry{
		auth:     auth,
		capBps:   capBps,
		partners: make(map[common.Address]uint64),
	}
}

func (r *PartnerRegistry) SetPartner(caller, partner common.Address, bps uint64) error {
	if err := r.auth.Authorize(caller); err != nil {
		return err
	}
	if partner == (common.Address{}) {
		return access.ErrInvalidAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if bps > r.capBps {
		return fmt.Errorf("%w: %d > %d bps", ErrPartnerBoostTooHigh, bps, r.capBps)
	}
	r.partners[partner] = bps
	return nil
}

func (r *PartnerRegistry) RemovePartner(caller, partner common.Address) error {
	if err := r.auth.Authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.partners[partner]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPartner, partner)
	}
	delete(r.partners, partner)
	return nil
}

// BonusBps returns the boost of partner, zero for unknown partners.
func (r *PartnerRegistry) BonusBps(partner common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.partners[partner]
}

// Partners lists the registered partners in address order.
func (r *PartnerRegistry) Partners() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.partners))
	for p := range r.partners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (r *PartnerRegistry) setCap(capBps uint64) {
	r.mu.Lock()
	r.capBps = capBps
	r.mu.Unlock()
}

// Breakdown is a multiplier with its components, all WAD.
type Breakdown struct {
	Liquidity  *uint256.Int
	Partner    *uint256.Int
	Multiplier *uint256.Int
}

// Calculator combines the voting-power source and the partner registry.
type Calculator struct {
	auth     access.Authority
	source   VotingPowerSource
	partners *PartnerRegistry
	params   Params

	log log.Logger

	mu sync.RWMutex
}

func NewCalculator(auth access.Authority, params Params, source VotingPowerSource, partners *PartnerRegistry, logger log.Logger) (*Calculator, error) {
	if err := params.Verify(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	if partners == nil {
		partners = NewPartnerRegistry(auth, params.MaxPartnerBps)
	}
	return &Calculator{
		auth:     auth,
		source:   source,
		partners: partners,
		params:   params,
		log:      logger,
	}, nil
}

// Calculate returns the multiplier of user swapping through partner. It
// never fails: a missing or failing voting-power source counts as no lock.
func (c *Calculator) Calculate(ctx context.Context, user, partner common.Address) *uint256.Int {
	return c.Breakdown(ctx, user, partner).Multiplier
}

func (c *Calculator) Breakdown(ctx context.Context, user, partner common.Address) Breakdown {
	c.mu.RLock()
	params := c.params
	c.mu.RUnlock()

	liquidity := new(uint256.Int)
	if c.source != nil {
		profile, err := c.source.Profile(ctx, user)
		if err != nil {
			c.log.Warn("voting power unavailable, using neutral boost", "user", user, "err", err)
		} else {
			if verr := profile.Verify(); verr != nil {
				// voting power is clamped to the locked amount below
				c.log.Warn("inconsistent lock profile", "user", user, "err", verr)
			}
			liquidity = LiquidityBonus(params, profile)
		}
	}
	bonus := PartnerBonus(params, c.partners.BonusBps(partner))
	return Breakdown{
		Liquidity:  liquidity,
		Partner:    bonus,
		Multiplier: Combine(params, liquidity, bonus),
	}
}

// Partners returns the partner registry.
func (c *Calculator) Partners() *PartnerRegistry {
	return c.partners
}

func (c *Calculator) Params() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// SetParams replaces the boost parameters for future calculations.
func (c *Calculator) SetParams(caller common.Address, params Params) error {
	if err := c.auth.Authorize(caller); err != nil {
		return err
	}
	if err := params.Verify(); err != nil {
		return err
	}
	c.mu.Lock()
	c.params = params
	c.mu.Unlock()
	c.partners.setCap(params.MaxPartnerBps)
	c.log.Info("boost params set",
		"maxLiquidityBonus", params.MaxLiquidityBonus.Dec(),
		"scale", params.ScaleFactor,
		"maxPartnerBps", params.MaxPartnerBps,
		"maxMultiplier", params.MaxMultiplier.Dec(),
	)
	return nil
}

// Neutral is the 1.0x multiplier.
func Neutral() *uint256.Int {
	return fpmath.One()
}
