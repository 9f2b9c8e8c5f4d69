// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec defines the binary layout of the cross-chain payloads and the
// event log ABI. Both chains must agree on these bytes exactly.
package codec

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Payload sizes in bytes (one ABI word per field)
const (
	RequestPayloadSize  = 64
	ResponsePayloadSize = 96
)

const (
	wordSize       = 32
	idPadding      = wordSize - 8
	addressPadding = wordSize - common.AddressLength
)

const (
	methodRequest  = "requestRandomness"
	methodResponse = "fulfillRandomness"
)

var ErrMalformedPayload = errors.New("malformed payload")

const rawABI = `[
	{"type":"function","name":"requestRandomness","stateMutability":"nonpayable","inputs":[
		{"name":"requestId","type":"uint64"},
		{"name":"user","type":"address"}],"outputs":[]},
	{"type":"function","name":"fulfillRandomness","stateMutability":"nonpayable","inputs":[
		{"name":"requestId","type":"uint64"},
		{"name":"user","type":"address"},
		{"name":"randomness","type":"uint256"}],"outputs":[]},

	{"type":"event","name":"SwapDetected","anonymous":false,"inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"referenceValue","type":"uint256","indexed":false}]},
	{"type":"event","name":"RandomnessRequested","anonymous":false,"inputs":[
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"dstChainId","type":"uint32","indexed":false}]},
	{"type":"event","name":"RandomnessReceived","anonymous":false,"inputs":[
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"randomness","type":"uint256","indexed":false},
		{"name":"threshold","type":"uint256","indexed":false},
		{"name":"won","type":"bool","indexed":false}]},
	{"type":"event","name":"RequestReplayed","anonymous":false,"inputs":[
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"user","type":"address","indexed":true}]},
	{"type":"event","name":"VRFRequested","anonymous":false,"inputs":[
		{"name":"vrfRequestId","type":"uint256","indexed":true},
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"user","type":"address","indexed":false}]},
	{"type":"event","name":"ResponseSent","anonymous":false,"inputs":[
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"randomness","type":"uint256","indexed":false}]},
	{"type":"event","name":"JackpotWon","anonymous":false,"inputs":[
		{"name":"winner","type":"address","indexed":true},
		{"name":"requestId","type":"uint64","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"distributed","type":"uint256","indexed":false}]},
	{"type":"event","name":"PrizePaid","anonymous":false,"inputs":[
		{"name":"recipient","type":"address","indexed":true},
		{"name":"tier","type":"uint8","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"JackpotDeposited","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"DistributionHalted","anonymous":false,"inputs":[
		{"name":"requested","type":"uint256","indexed":false},
		{"name":"balance","type":"uint256","indexed":false}]}
]`

// ABI is the parsed payload and event ABI.
var ABI = ParseABI(rawABI)

// Request is the home-to-compute payload.
type Request struct {
	RequestID uint64
	User      common.Address
}

// Response is the compute-to-home payload.
type Response struct {
	RequestID  uint64
	User       common.Address
	Randomness *uint256.Int
}

func EncodeRequest(r Request) ([]byte, error) {
	return ABI.PackInput(methodRequest, r.RequestID, r.User)
}

func DecodeRequest(data []byte) (Request, error) {
	if len(data) != RequestPayloadSize {
		return Request{}, fmt.Errorf("%w: request is %d bytes, want %d", ErrMalformedPayload, len(data), RequestPayloadSize)
	}
	if err := checkPadding(data); err != nil {
		return Request{}, err
	}
	values, err := ABI.UnpackInput(methodRequest, data, true)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	id, ok1 := values[0].(uint64)
	user, ok2 := values[1].(common.Address)
	if !ok1 || !ok2 {
		return Request{}, ErrMalformedPayload
	}
	return Request{RequestID: id, User: user}, nil
}

func EncodeResponse(r Response) ([]byte, error) {
	randomness := new(big.Int)
	if r.Randomness != nil {
		randomness = r.Randomness.ToBig()
	}
	return ABI.PackInput(methodResponse, r.RequestID, r.User, randomness)
}

func DecodeResponse(data []byte) (Response, error) {
	if len(data) != ResponsePayloadSize {
		return Response{}, fmt.Errorf("%w: response is %d bytes, want %d", ErrMalformedPayload, len(data), ResponsePayloadSize)
	}
	if err := checkPadding(data); err != nil {
		return Response{}, err
	}
	values, err := ABI.UnpackInput(methodResponse, data, true)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	id, ok1 := values[0].(uint64)
	user, ok2 := values[1].(common.Address)
	randomness, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return Response{}, ErrMalformedPayload
	}
	r, overflow := uint256.FromBig(randomness)
	if overflow {
		return Response{}, ErrMalformedPayload
	}
	return Response{RequestID: id, User: user, Randomness: r}, nil
}

// checkPadding rejects a requestId or user word with non-zero high bytes, so
// every payload has exactly one encoding.
func checkPadding(data []byte) error {
	for i, b := range data[:idPadding] {
		if b != 0 {
			return fmt.Errorf("%w: requestId padding byte %d is %#x", ErrMalformedPayload, i, b)
		}
	}
	for i, b := range data[wordSize : wordSize+addressPadding] {
		if b != 0 {
			return fmt.Errorf("%w: user padding byte %d is %#x", ErrMalformedPayload, wordSize+i, b)
		}
	}
	return nil
}
