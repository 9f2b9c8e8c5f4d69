// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

var user = common.HexToAddress("0x00000000000000000000000000000000DeaDBeef")

type sink struct{ logs []*ethtypes.Log }

func (s *sink) AddLog(l *ethtypes.Log) { s.logs = append(s.logs, l) }

func TestRequestLayout(t *testing.T) {
	data, err := EncodeRequest(Request{RequestID: 7, User: user})
	require.NoError(t, err)
	require.Len(t, data, RequestPayloadSize)

	// word 0: request id, word 1: left-padded address
	require.Equal(t, byte(7), data[31])
	require.Equal(t, make([]byte, 31), data[:31])
	require.Equal(t, user.Bytes(), data[44:64])
	require.Equal(t, make([]byte, 12), data[32:44])

	got, err := DecodeRequest(data)
	require.NoError(t, err)
	require.Equal(t, Request{RequestID: 7, User: user}, got)
}

func TestResponseLayout(t *testing.T) {
	randomness := new(uint256.Int).SetAllOne()
	data, err := EncodeResponse(Response{RequestID: 1 << 40, User: user, Randomness: randomness})
	require.NoError(t, err)
	require.Len(t, data, ResponsePayloadSize)
	require.Equal(t, randomness.Bytes32(), [32]byte(data[64:96]))

	got, err := DecodeResponse(data)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), got.RequestID)
	require.Equal(t, user, got.User)
	require.Equal(t, randomness, got.Randomness)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	req, err := EncodeRequest(Request{RequestID: 1, User: user})
	require.NoError(t, err)

	_, err = DecodeResponse(req)
	require.ErrorIs(t, err, ErrMalformedPayload)

	resp, err := EncodeResponse(Response{RequestID: 1, User: user, Randomness: uint256.NewInt(5)})
	require.NoError(t, err)
	_, err = DecodeRequest(resp)
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeResponse(append(resp, 0))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeRequest(nil)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecodeRejectsDirtyPadding(t *testing.T) {
	req, err := EncodeRequest(Request{RequestID: 1, User: user})
	require.NoError(t, err)
	resp, err := EncodeResponse(Response{RequestID: 1, User: user, Randomness: uint256.NewInt(5)})
	require.NoError(t, err)

	for _, i := range []int{0, 23, 32, 43} {
		dirty := append([]byte(nil), req...)
		dirty[i] = 0xff
		_, err := DecodeRequest(dirty)
		require.ErrorIs(t, err, ErrMalformedPayload, "request byte %d", i)

		dirty = append([]byte(nil), resp...)
		dirty[i] = 0xff
		_, err = DecodeResponse(dirty)
		require.ErrorIs(t, err, ErrMalformedPayload, "response byte %d", i)
	}

	// the randomness word has no padding
	full := append([]byte(nil), resp...)
	full[64] = 0xff
	got, err := DecodeResponse(full)
	require.NoError(t, err)
	require.Equal(t, byte(0xff), got.Randomness.Bytes32()[0])
}

func TestEncodeResponseNilRandomness(t *testing.T) {
	data, err := EncodeResponse(Response{RequestID: 3, User: user})
	require.NoError(t, err)
	got, err := DecodeResponse(data)
	require.NoError(t, err)
	require.True(t, got.Randomness.IsZero())
}

func TestEmit(t *testing.T) {
	s := &sink{}
	contract := common.HexToAddress("0x0000000000000000000000000000000000000C01")

	err := Emit(s, contract, EventJackpotWon, user, uint64(9), big.NewInt(1000), big.NewInt(1449))
	require.NoError(t, err)
	require.Len(t, s.logs, 1)

	l := s.logs[0]
	require.Equal(t, contract, l.Address)
	require.Len(t, l.Topics, 3)
	require.Equal(t, EventID(EventJackpotWon), l.Topics[0])
	require.Equal(t, common.BytesToHash(user.Bytes()), l.Topics[1])
	require.Equal(t, common.BigToHash(big.NewInt(9)), l.Topics[2])

	values, err := UnpackEventData(EventJackpotWon, l.Data)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), values[0])
	require.Equal(t, big.NewInt(1449), values[1])

	require.Len(t, Filter(s.logs, EventJackpotWon), 1)
	require.Empty(t, Filter(s.logs, EventSwapDetected))
}

func TestEmitErrors(t *testing.T) {
	s := &sink{}
	require.Error(t, Emit(s, user, "NoSuchEvent"))
	require.Error(t, Emit(s, user, EventJackpotDeposited, user))
	require.Empty(t, s.logs)
}

func TestPackTopicUint256(t *testing.T) {
	topic, err := packTopic(uint256.NewInt(300))
	require.NoError(t, err)
	require.Equal(t, common.BigToHash(big.NewInt(300)), topic)

	_, err = packTopic(big.NewInt(-1))
	require.Error(t, err)
	_, err = packTopic(3.14)
	require.Error(t, err)
}
