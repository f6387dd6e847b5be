package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts negotiation and commitment transitions.
type EngineMetrics struct {
	messages    *prometheus.CounterVec
	commitments *prometheus.CounterVec
	tokens      *prometheus.CounterVec
}

// NewEngineMetrics registers the engine counters. A nil registerer yields a
// no-op recorder.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nyp_negotiation_messages_total",
		Help: "Negotiation messages by kind and outcome.",
	}, []string{"kind", "outcome"})
	commitments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nyp_commitment_transitions_total",
		Help: "Commitment status transitions.",
	}, []string{"status"})
	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nyp_purchase_token_operations_total",
		Help: "Purchase token operations by outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(messages, commitments, tokens)
	return &EngineMetrics{messages: messages, commitments: commitments, tokens: tokens}
}

// ObserveMessage records an append attempt. outcome is "ok" or an error code.
func (m *EngineMetrics) ObserveMessage(kind, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *EngineMetrics) ObserveCommitment(status string) {
	if m == nil || m.commitments == nil {
		return
	}
	m.commitments.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *EngineMetrics) ObserveToken(operation, outcome string) {
	if m == nil || m.tokens == nil {
		return
	}
	m.tokens.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}
