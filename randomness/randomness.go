// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package randomness implements both ends of the cross-chain randomness
// round trip. The Consumer lives on the home chain and tracks each request
// as Pending until its response settles. The Requester lives on the compute
// chain and bridges requests to the chain-native VRF provider.
//
// Nothing is retried. A lost message leaves its request Pending until the
// owner calls Consumer.Replay.
package randomness

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrUnknownRequest = errors.New("unknown request")
	ErrUserMismatch   = errors.New("user does not match request")
	ErrOnlyProvider   = errors.New("caller is not the randomness provider")
	ErrOnlyTrigger    = errors.New("caller is not the registered trigger")
	ErrNoWords        = errors.New("fulfillment carried no random words")
	ErrNotPending     = errors.New("request is not pending")
	ErrNoProvider     = errors.New("no randomness provider configured")
	ErrNoRemote       = errors.New("no remote endpoint configured")
	ErrNoSettler      = errors.New("no settlement callback registered")
	ErrCorruptRecord  = errors.New("corrupt request record")
)

// Status of a request as seen by the Consumer.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusPending
	StatusFulfilled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	default:
		return "unknown"
	}
}

// PendingRequest is an open request with its age.
type PendingRequest struct {
	ID        uint64
	User      common.Address
	CreatedAt time.Time
}

// Age returns how long the request has been waiting at now.
func (p PendingRequest) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// database layout
var (
	counterKey      = []byte("consumer/next")
	requestPrefix   = []byte("consumer/req/")
	vrfPrefix       = []byte("requester/vrf/")
	requestIDLength = 8
)

func requestKey(id uint64) []byte {
	key := make([]byte, len(requestPrefix)+requestIDLength)
	copy(key, requestPrefix)
	binary.BigEndian.PutUint64(key[len(requestPrefix):], id)
	return key
}

func vrfKey(id *uint256.Int) []byte {
	word := id.Bytes32()
	key := make([]byte, 0, len(vrfPrefix)+len(word))
	key = append(key, vrfPrefix...)
	return append(key, word[:]...)
}

// requestRecord is stored under requestKey: user (20) ++ unix nanos (8).
type requestRecord struct {
	user      common.Address
	createdAt time.Time
}

func (r requestRecord) marshal() []byte {
	buf := make([]byte, common.AddressLength+8)
	copy(buf, r.user.Bytes())
	binary.BigEndian.PutUint64(buf[common.AddressLength:], uint64(r.createdAt.UnixNano()))
	return buf
}

func unmarshalRequestRecord(b []byte) (requestRecord, error) {
	if len(b) != common.AddressLength+8 {
		return requestRecord{}, ErrCorruptRecord
	}
	nanos := int64(binary.BigEndian.Uint64(b[common.AddressLength:]))
	return requestRecord{
		user:      common.BytesToAddress(b[:common.AddressLength]),
		createdAt: time.Unix(0, nanos).UTC(),
	}, nil
}

// vrfRecord is stored under vrfKey: request id (8) ++ user (20).
type vrfRecord struct {
	requestID uint64
	user      common.Address
}

func (r vrfRecord) marshal() []byte {
	buf := make([]byte, 8+common.AddressLength)
	binary.BigEndian.PutUint64(buf, r.requestID)
	copy(buf[8:], r.user.Bytes())
	return buf
}

func unmarshalVRFRecord(b []byte) (vrfRecord, error) {
	if len(b) != 8+common.AddressLength {
		return vrfRecord{}, ErrCorruptRecord
	}
	return vrfRecord{
		requestID: binary.BigEndian.Uint64(b),
		user:      common.BytesToAddress(b[8:]),
	}, nil
}
