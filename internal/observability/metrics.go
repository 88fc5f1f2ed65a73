package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 对话引擎记录的状态转换类型
const (
	TransitionStart    = "start"
	TransitionMessage  = "message"
	TransitionExit     = "exit"
	TransitionEnded    = "already_ended"
	TransitionReset    = "reset"
	TransitionRejected = "rejected"
)

// Metrics 服务使用的 Prometheus 指标，nil 时不记录任何数据
type Metrics struct {
	Transitions       *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	CompletionLatency *prometheus.HistogramVec
	WSConnections     prometheus.Gauge
	WSMessages        *prometheus.CounterVec
	AudioPitches      *prometheus.CounterVec
}

// NewMetrics 在 reg 上注册指标，reg 为 nil 时使用默认注册表
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Conversation state transitions by kind.",
		}, []string{"kind"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Completion provider failures by provider and reason.",
		}, []string{"provider", "reason"}),
		CompletionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Latency of completion provider calls in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}, []string{"provider"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open pitch websocket connections.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		AudioPitches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_pitches_total",
			Help:      "Audio pitch requests by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveTransition(kind string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveProviderError(provider, reason string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) ObserveCompletionLatency(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

func (m *Metrics) ObserveAudioPitch(outcome string) {
	if m == nil {
		return
	}
	m.AudioPitches.WithLabelValues(outcome).Inc()
}

// MetricsHandler 暴露 g 中的指标，g 为 nil 时使用默认采集器
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
