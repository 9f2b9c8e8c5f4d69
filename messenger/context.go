// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"context"
)

// Context keys for delivery metadata
type contextKey string

const (
	srcChainIDKey contextKey = "srcChainID"
	nonceKey      contextKey = "nonce"
)

// WithDelivery adds the source chain and transport nonce of an inbound packet to the context
func WithDelivery(ctx context.Context, srcChainID uint32, nonce uint64) context.Context {
	ctx = context.WithValue(ctx, srcChainIDKey, srcChainID)
	return context.WithValue(ctx, nonceKey, nonce)
}

// SourceChainID retrieves the source chain of the packet being delivered, or 0
func SourceChainID(ctx context.Context) uint32 {
	if v, ok := ctx.Value(srcChainIDKey).(uint32); ok {
		return v
	}
	return 0
}

// DeliveryNonce retrieves the transport nonce of the packet being delivered, or 0
func DeliveryNonce(ctx context.Context) uint64 {
	if v, ok := ctx.Value(nonceKey).(uint64); ok {
		return v
	}
	return 0
}
