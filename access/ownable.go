// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package access holds the owner capability that gates every administrative
// entrypoint. Components receive an Authority at construction instead of
// repeating their own admin checks.
package access

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
)

var (
	ErrUnauthorized   = errors.New("unauthorized: caller is not owner")
	ErrInvalidAddress = errors.New("invalid address: cannot be zero")
	ErrPaused         = errors.New("contract is paused")
	ErrNotPaused      = errors.New("contract is not paused")
)

// Authority decides whether a caller may perform an administrative call.
type Authority interface {
	Authorize(caller common.Address) error
}

// Ownable is a single-owner Authority with a pause switch.
type Ownable struct {
	owner  common.Address
	paused bool

	mu sync.RWMutex
}

var _ Authority = (*Ownable)(nil)

// NewOwnable creates an Ownable held by owner
func NewOwnable(owner common.Address) *Ownable {
	return &Ownable{owner: owner}
}

func (o *Ownable) Owner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// Authorize returns ErrUnauthorized unless caller is the current owner.
func (o *Ownable) Authorize(caller common.Address) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if caller != o.owner || caller == (common.Address{}) {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership hands the capability to newOwner.
func (o *Ownable) TransferOwnership(caller, newOwner common.Address) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return ErrUnauthorized
	}
	if newOwner == (common.Address{}) {
		return ErrInvalidAddress
	}
	o.owner = newOwner
	return nil
}

func (o *Ownable) Pause(caller common.Address) error {
	return o.setPaused(caller, true)
}

func (o *Ownable) Unpause(caller common.Address) error {
	return o.setPaused(caller, false)
}

func (o *Ownable) setPaused(caller common.Address, paused bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return ErrUnauthorized
	}
	if o.paused == paused {
		if paused {
			return ErrPaused
		}
		return ErrNotPaused
	}
	o.paused = paused
	return nil
}

func (o *Ownable) Paused() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.paused
}

// WhenNotPaused returns ErrPaused while the switch is on.
func (o *Ownable) WhenNotPaused() error {
	if o.Paused() {
		return ErrPaused
	}
	return nil
}
