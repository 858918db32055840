package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookReceived counts inbound webhook requests by channel and payload kind
	WebhookReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoptalk_webhook_received_total",
		Help: "Inbound webhook requests by channel and kind",
	}, []string{"channel", "kind"})

	// ProviderSend counts outbound provider sends by channel and outcome
	ProviderSend = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoptalk_provider_send_total",
		Help: "Provider send attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	// ProviderSendLatency observes provider send latency in seconds
	ProviderSendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shoptalk_provider_send_latency_seconds",
		Help:    "Provider send latency",
		Buckets: prometheus.DefBuckets,
	})

	// AITurn counts orchestrator turns by intent and outcome
	AITurn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shoptalk_ai_turn_total",
		Help: "AI orchestrator turns by intent and outcome",
	}, []string{"intent", "outcome"})

	// AITurnLatency observes full AI turn latency in seconds
	AITurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shoptalk_ai_turn_latency_seconds",
		Help:    "AI turn latency including tool calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})
)
