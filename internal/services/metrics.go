package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
	WebSocketMessages    *prometheus.CounterVec

	// Chat metrics
	ChatRequests       *prometheus.CounterVec
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	// Quota and identity metrics
	GenerationFailures  *prometheus.CounterVec
	QuotaRefunds        prometheus.Counter
	QuotaRefundFailures prometheus.Counter
	QuotaExhausted      prometheus.Counter
	WelcomeGrants       prometheus.Counter
	IdentityResolutions *prometheus.CounterVec

	// Persona settings labels that fell back to the default
	UnknownSettingLabels *prometheus.CounterVec
}

// InitMetrics registers the metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func InitMetrics(reg prometheus.Registerer, connManager *ConnectionManager) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		WebSocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heartline_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		}),

		// direction: "inbound" or "outbound"
		WebSocketMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartline_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}),

		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartline_chat_requests_total",
			Help: "Total number of chat requests processed by identity kind",
		}, []string{"kind"}),

		ChatRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "heartline_chat_request_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		}),

		ChatErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartline_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),

		GenerationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartline_generation_failures_total",
			Help: "Generation backend failures answered with a fallback reply",
		}, []string{"reason"}),

		QuotaRefunds: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartline_quota_refunds_total",
			Help: "Diamonds refunded after failed generations",
		}),

		QuotaRefundFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartline_quota_refund_failures_total",
			Help: "Refunds that still failed after retrying; the user stayed charged",
		}),

		QuotaExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartline_quota_exhausted_total",
			Help: "Requests rejected for insufficient balance",
		}),

		WelcomeGrants: factory.NewCounter(prometheus.CounterOpts{
			Name: "heartline_welcome_grants_total",
			Help: "Ledger entries created with the welcome credit",
		}),

		IdentityResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartline_identity_resolutions_total",
			Help: "Identity resolutions by kind and whether the key was new",
		}, []string{"kind", "new"}),

		UnknownSettingLabels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heartline_unknown_setting_labels_total",
			Help: "Stored relationship or style labels replaced by the default",
		}, []string{"setting"}),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "heartline_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	)

	return metrics
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}

// RecordChatRequest records a chat request for an identity kind
func (m *Metrics) RecordChatRequest(kind string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(kind).Inc()
}

// RecordChatLatency records chat request latency
func (m *Metrics) RecordChatLatency(seconds float64) {
	if m == nil {
		return
	}
	m.ChatRequestLatency.Observe(seconds)
}

// RecordChatError records a chat error
func (m *Metrics) RecordChatError(errorType string) {
	if m == nil {
		return
	}
	m.ChatErrors.WithLabelValues(errorType).Inc()
}

// RecordGenerationFailure records a failed generation and its refund
func (m *Metrics) RecordGenerationFailure(reason string) {
	if m == nil {
		return
	}
	m.GenerationFailures.WithLabelValues(reason).Inc()
}

// RecordRefund records a refunded diamond
func (m *Metrics) RecordRefund() {
	if m == nil {
		return
	}
	m.QuotaRefunds.Inc()
}

// RecordRefundFailure records a refund that could not be applied
func (m *Metrics) RecordRefundFailure() {
	if m == nil {
		return
	}
	m.QuotaRefundFailures.Inc()
}

// RecordUnknownSettingLabel records a settings label that fell back to the default
func (m *Metrics) RecordUnknownSettingLabel(setting string) {
	if m == nil {
		return
	}
	m.UnknownSettingLabels.WithLabelValues(setting).Inc()
}

// RecordQuotaExhausted records a rejected deduction
func (m *Metrics) RecordQuotaExhausted() {
	if m == nil {
		return
	}
	m.QuotaExhausted.Inc()
}

// RecordWelcomeGrant records a welcome credit
func (m *Metrics) RecordWelcomeGrant() {
	if m == nil {
		return
	}
	m.WelcomeGrants.Inc()
}

// RecordIdentityResolution records one resolved identity
func (m *Metrics) RecordIdentityResolution(kind string, isNew bool) {
	if m == nil {
		return
	}
	newLabel := "false"
	if isNew {
		newLabel = "true"
	}
	m.IdentityResolutions.WithLabelValues(kind, newLabel).Inc()
}
