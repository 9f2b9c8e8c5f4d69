// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package messenger implements the point-to-point cross-chain transport used
// by the randomness round trip. Authentication rests on the trusted-remote
// check in App; nonces are transport diagnostics only and nothing is retried.
package messenger

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// PathLength is the size of a packed (remote, local) address pair.
const PathLength = 2 * common.AddressLength

var (
	ErrInvalidSource  = errors.New("invalid source: sender is not the trusted remote")
	ErrInvalidPath    = errors.New("invalid path: must be 40 bytes")
	ErrNoReceiver     = errors.New("no receiver registered at destination")
	ErrWrongChain     = errors.New("packet addressed to another chain")
	ErrSameChain      = errors.New("destination is the local chain")
	ErrUnknownChain   = errors.New("no endpoint for chain")
	ErrInvalidAddress = errors.New("invalid address: cannot be zero")
	ErrDuplicate      = errors.New("receiver already registered")
)

// Handle identifies a sent packet.
type Handle = common.Hash

// Packet is a message in flight between two endpoints.
type Packet struct {
	SrcChainID uint32
	DstChainID uint32
	Path       []byte // sender address followed by destination address
	Nonce      uint64
	Payload    []byte
}

// ID returns the keccak256 handle of the packet.
func (p Packet) ID() Handle {
	var header [16]byte
	binary.BigEndian.PutUint32(header[0:4], p.SrcChainID)
	binary.BigEndian.PutUint32(header[4:8], p.DstChainID)
	binary.BigEndian.PutUint64(header[8:16], p.Nonce)
	return common.BytesToHash(crypto.Keccak256(header[:], p.Path, p.Payload))
}

// Sender returns the source application address encoded in the path.
func (p Packet) Sender() common.Address {
	if len(p.Path) != PathLength {
		return common.Address{}
	}
	return common.BytesToAddress(p.Path[:common.AddressLength])
}

// Destination returns the destination application address encoded in the path.
func (p Packet) Destination() common.Address {
	if len(p.Path) != PathLength {
		return common.Address{}
	}
	return common.BytesToAddress(p.Path[common.AddressLength:])
}

// Path packs remote and local into the 40-byte trusted-remote encoding.
func Path(remote, local common.Address) []byte {
	path := make([]byte, 0, PathLength)
	path = append(path, remote.Bytes()...)
	return append(path, local.Bytes()...)
}

// Transport carries packets between endpoints.
type Transport interface {
	Submit(ctx context.Context, pkt Packet) error
}

// Receiver accepts packets delivered to a registered address.
type Receiver interface {
	Receive(ctx context.Context, srcChainID uint32, srcPath []byte, nonce uint64, payload []byte) error
}

// Sender is the outbound half of an Endpoint.
type Sender interface {
	ChainID() uint32
	Send(ctx context.Context, sender common.Address, dstChainID uint32, dstAddress common.Address, payload []byte) (Handle, error)
}
