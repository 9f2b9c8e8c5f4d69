// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// Event names
const (
	EventSwapDetected        = "SwapDetected"
	EventRandomnessRequested = "RandomnessRequested"
	EventRandomnessReceived  = "RandomnessReceived"
	EventRequestReplayed     = "RequestReplayed"
	EventVRFRequested        = "VRFRequested"
	EventResponseSent        = "ResponseSent"
	EventJackpotWon          = "JackpotWon"
	EventPrizePaid           = "PrizePaid"
	EventJackpotDeposited    = "JackpotDeposited"
	EventDistributionHalted  = "DistributionHalted"
)

// LogSink receives emitted logs. state.StateDB satisfies it.
type LogSink interface {
	AddLog(log *ethtypes.Log)
}

// Emit packs event name with args and appends it to sink as emitted by contract.
func Emit(sink LogSink, contract common.Address, name string, args ...interface{}) error {
	topics, data, err := ABI.PackEvent(name, args...)
	if err != nil {
		return err
	}
	sink.AddLog(&ethtypes.Log{
		Address: contract,
		Topics:  topics,
		Data:    data,
	})
	return nil
}

// EventID returns the topic0 of event name, or the zero hash if unknown.
func EventID(name string) common.Hash {
	if event, ok := ABI.Events[name]; ok {
		return event.ID
	}
	return common.Hash{}
}

// Filter returns the logs in logs whose topic0 is the ID of event name.
func Filter(logs []*ethtypes.Log, name string) []*ethtypes.Log {
	id := EventID(name)
	out := make([]*ethtypes.Log, 0)
	for _, l := range logs {
		if len(l.Topics) > 0 && l.Topics[0] == id {
			out = append(out, l)
		}
	}
	return out
}

// UnpackEventData decodes the non-indexed fields of a log of event name.
func UnpackEventData(name string, data []byte) ([]interface{}, error) {
	return ABI.Unpack(name, data)
}
