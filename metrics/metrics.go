// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes prometheus instruments for the jackpot protocol.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jackpot"

// Rejection reasons
const (
	ReasonInvalidSource  = "invalid_source"
	ReasonNoReceiver     = "no_receiver"
	ReasonUnknownRequest = "unknown_request"
	ReasonUserMismatch   = "user_mismatch"
	ReasonOnlyProvider   = "only_provider"
	ReasonMalformed      = "malformed_payload"
	ReasonSettlement     = "settlement_failed"
)

type Metrics struct {
	SwapsDetected     prometheus.Counter
	SwapsIgnored      prometheus.Counter
	RequestsSent      prometheus.Counter
	VRFRequests       prometheus.Counter
	ResponsesSent     prometheus.Counter
	ResponsesReceived prometheus.Counter
	Replays           prometheus.Counter
	Wins              prometheus.Counter
	Losses            prometheus.Counter
	Rejected          *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	MessagesDelivered *prometheus.CounterVec
	NonceGaps         *prometheus.CounterVec
	PendingRequests   prometheus.Gauge
	JackpotBalance    prometheus.Gauge
	PaidOut           prometheus.Counter
	Halts             prometheus.Counter
	OracleFallbacks   *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SwapsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_detected_total",
			Help:      "Qualifying swaps that opened a randomness request",
		}),
		SwapsIgnored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_ignored_total",
			Help:      "Swaps below the minimum amount",
		}),
		RequestsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "randomness_requests_total",
			Help:      "Randomness requests sent to the compute chain",
		}),
		VRFRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vrf_requests_total",
			Help:      "Requests opened with the randomness provider",
		}),
		ResponsesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "randomness_responses_sent_total",
			Help:      "Provider fulfillments relayed back to the home chain",
		}),
		ResponsesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "randomness_responses_received_total",
			Help:      "Responses accepted by the home chain consumer",
		}),
		Replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_replays_total",
			Help:      "Manual replays of pending requests",
		}),
		Wins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wins_total",
			Help:      "Settlements that paid the jackpot",
		}),
		Losses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "losses_total",
			Help:      "Settlements that did not pay",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Rejected inbound calls by reason",
		}, []string{"reason"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Cross-chain messages sent by source chain",
		}, []string{"chain"}),
		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Cross-chain messages delivered by destination chain",
		}, []string{"chain"}),
		NonceGaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_gaps_total",
			Help:      "Deliveries whose nonce was not the next expected one",
		}, []string{"chain", "kind"}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests waiting for a randomness response",
		}),
		JackpotBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_balance",
			Help:      "Jackpot pool balance in whole tokens",
		}),
		PaidOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_out_tokens_total",
			Help:      "Tokens paid out of the pool",
		}),
		Halts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_halts_total",
			Help:      "Payout invariant violations",
		}),
		OracleFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_fallbacks_total",
			Help:      "Price reads served by a fallback or frozen value",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SwapDetected() {
	if m != nil {
		m.SwapsDetected.Inc()
	}
}

func (m *Metrics) SwapIgnored() {
	if m != nil {
		m.SwapsIgnored.Inc()
	}
}

func (m *Metrics) RequestSent() {
	if m != nil {
		m.RequestsSent.Inc()
	}
}

func (m *Metrics) VRFRequested() {
	if m != nil {
		m.VRFRequests.Inc()
	}
}

func (m *Metrics) ResponseSent() {
	if m != nil {
		m.ResponsesSent.Inc()
	}
}

func (m *Metrics) ResponseReceived() {
	if m != nil {
		m.ResponsesReceived.Inc()
	}
}

func (m *Metrics) Replayed() {
	if m != nil {
		m.Replays.Inc()
	}
}

// Won records a paying settlement of paid whole tokens.
func (m *Metrics) Won(paid float64) {
	if m != nil {
		m.Wins.Inc()
		m.PaidOut.Add(paid)
	}
}

func (m *Metrics) Lost() {
	if m != nil {
		m.Losses.Inc()
	}
}

func (m *Metrics) MessageSent(chain string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(chain).Inc()
	}
}

func (m *Metrics) MessageDelivered(chain string) {
	if m != nil {
		m.MessagesDelivered.WithLabelValues(chain).Inc()
	}
}

// NonceGap records an out-of-sequence delivery; kind is "gap" or "late".
func (m *Metrics) NonceGap(chain, kind string) {
	if m != nil {
		m.NonceGaps.WithLabelValues(chain, kind).Inc()
	}
}

func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingRequests.Set(float64(n))
	}
}

func (m *Metrics) SetBalance(tokens float64) {
	if m != nil {
		m.JackpotBalance.Set(tokens)
	}
}

func (m *Metrics) Halted() {
	if m != nil {
		m.Halts.Inc()
	}
}

// OracleFallback records a price read served by "fallback" or "frozen".
func (m *Metrics) OracleFallback(kind string) {
	if m != nil {
		m.OracleFallbacks.WithLabelValues(kind).Inc()
	}
}
