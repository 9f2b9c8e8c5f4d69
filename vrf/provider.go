// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vrf defines the chain-native randomness provider abstraction and
// its implementations. Providers answer asynchronously by calling the
// Fulfiller attached to each request, identifying themselves as Address().
package vrf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Request bounds
const (
	MinRequestConfirmations uint16 = 3
	MaxRequestConfirmations uint16 = 200
	MaxNumWords             uint32 = 500
	MaxCallbackGasLimit     uint32 = 2_500_000
)

var (
	ErrUnknownVRFRequest    = errors.New("unknown vrf request")
	ErrInvalidSubscription  = errors.New("invalid subscription")
	ErrInvalidConsumer      = errors.New("consumer not registered on subscription")
	ErrInvalidConfirmations = errors.New("request confirmations out of range")
	ErrInvalidNumWords      = errors.New("number of words out of range")
	ErrGasLimitTooHigh      = errors.New("callback gas limit too high")
	ErrNoCallback           = errors.New("request has no fulfillment callback")
	ErrNotSubscriptionOwner = errors.New("caller is not the subscription owner")
	ErrWordCountMismatch    = errors.New("fulfillment word count does not match request")
	ErrInvalidProof         = errors.New("invalid randomness proof")
	ErrUnknownProviderKind  = errors.New("unknown provider kind")
	ErrCallbackFailed       = errors.New("fulfillment callback failed")
)

// Fulfiller receives random words. Implementations must reject callers other
// than the provider they requested from.
type Fulfiller interface {
	FulfillRandomWords(ctx context.Context, caller common.Address, vrfRequestID *uint256.Int, words []*uint256.Int) error
}

// Request is the static provider configuration plus the requesting consumer.
type Request struct {
	KeyHash          common.Hash
	SubscriptionID   uint64
	MinConfirmations uint16
	CallbackGasLimit uint32
	NumWords         uint32
	Consumer         common.Address
	Callback         Fulfiller
}

// Provider opens randomness requests on the compute chain.
type Provider interface {
	// Address is the identity the provider uses when calling back.
	Address() common.Address
	RequestRandomWords(ctx context.Context, req Request) (*uint256.Int, error)
}

// Kind selects a Provider implementation from configuration.
type Kind uint8

const (
	KindCoordinator Kind = iota + 1
	KindSigned
)

func (k Kind) String() string {
	switch k {
	case KindCoordinator:
		return "coordinator"
	case KindSigned:
		return "signed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses "coordinator" or "signed".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coordinator", "chainlink", "":
		return KindCoordinator, nil
	case "signed", "bls":
		return KindSigned, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProviderKind, s)
	}
}

func validateShape(req Request) error {
	if req.Callback == nil {
		return ErrNoCallback
	}
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		return fmt.Errorf("%w: %d", ErrInvalidNumWords, req.NumWords)
	}
	if req.CallbackGasLimit > MaxCallbackGasLimit {
		return fmt.Errorf("%w: %d", ErrGasLimitTooHigh, req.CallbackGasLimit)
	}
	return nil
}
