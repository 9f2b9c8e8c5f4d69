// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/jackpot/access"
	"github.com/luxfi/jackpot/metrics"
)

// Handler processes an authenticated inbound payload.
type Handler func(ctx context.Context, srcChainID uint32, srcAddress common.Address, payload []byte) error

// App is the receiving side of a messaging contract. It keeps the
// trusted-remote table and only hands payloads whose (chain, path) matches
// an entry exactly to its handler.
type App struct {
	address common.Address
	auth    access.Authority
	handler Handler

	trusted map[uint32][]byte // chainID -> remote address ++ local address

	log     log.Logger
	metrics *metrics.Metrics

	mu sync.RWMutex
}

var _ Receiver = (*App)(nil)

func NewApp(address common.Address, auth access.Authority, handler Handler, logger log.Logger, m *metrics.Metrics) *App {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &App{
		address: address,
		auth:    auth,
		handler: handler,
		trusted: make(map[uint32][]byte),
		log:     logger,
		metrics: m,
	}
}

// Address returns the local address of the application.
func (a *App) Address() common.Address {
	return a.address
}

// SetTrustedRemote registers the packed path accepted from chainID.
func (a *App) SetTrustedRemote(caller common.Address, chainID uint32, path []byte) error {
	if err := a.auth.Authorize(caller); err != nil {
		return err
	}
	if len(path) != PathLength {
		return ErrInvalidPath
	}
	if common.BytesToAddress(path[:common.AddressLength]) == (common.Address{}) {
		return ErrInvalidAddress
	}

	a.mu.Lock()
	a.trusted[chainID] = bytes.Clone(path)
	a.mu.Unlock()

	a.log.Info("trusted remote set", "app", a.address, "chain", chainID, "path", common.Bytes2Hex(path))
	return nil
}

// SetTrustedRemoteAddress registers remote on chainID, packed with the local address.
func (a *App) SetTrustedRemoteAddress(caller common.Address, chainID uint32, remote common.Address) error {
	return a.SetTrustedRemote(caller, chainID, Path(remote, a.address))
}

// TrustedRemote returns the path registered for chainID.
func (a *App) TrustedRemote(chainID uint32) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	path, ok := a.trusted[chainID]
	if !ok {
		return nil, false
	}
	return bytes.Clone(path), true
}

// RemoteAddress returns the remote application address registered for chainID.
func (a *App) RemoteAddress(chainID uint32) (common.Address, bool) {
	path, ok := a.TrustedRemote(chainID)
	if !ok {
		return common.Address{}, false
	}
	return common.BytesToAddress(path[:common.AddressLength]), true
}

func (a *App) IsTrustedRemote(chainID uint32, path []byte) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	trusted, ok := a.trusted[chainID]
	return ok && len(path) == PathLength && bytes.Equal(trusted, path)
}

// Receive authenticates the packet source and runs the handler.
func (a *App) Receive(ctx context.Context, srcChainID uint32, srcPath []byte, nonce uint64, payload []byte) error {
	if !a.IsTrustedRemote(srcChainID, srcPath) {
		a.metrics.Reject(metrics.ReasonInvalidSource)
		a.log.Warn("rejected message from untrusted source",
			"app", a.address,
			"srcChain", srcChainID,
			"path", common.Bytes2Hex(srcPath),
			"nonce", nonce,
		)
		return fmt.Errorf("%w: chain %d", ErrInvalidSource, srcChainID)
	}
	return a.handler(ctx, srcChainID, common.BytesToAddress(srcPath[:common.AddressLength]), payload)
}
