package voice

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики голосового клиента. Регистрируются один раз на
// процесс; экземпляры клиентов различаются меткой session.
var (
	metricPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "packets_sent_total",
		Help:      "Total number of voice packets sent",
	}, []string{"session"})

	metricBytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "bytes_sent_total",
		Help:      "Total number of voice payload bytes sent",
	}, []string{"session"})

	metricPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "packets_received_total",
		Help:      "Total number of voice packets received",
	}, []string{"session"})

	metricBytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "bytes_received_total",
		Help:      "Total number of voice payload bytes received",
	}, []string{"session"})

	metricHeartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "heartbeats_sent_total",
		Help:      "Total number of heartbeats sent over the control channel",
	}, []string{"session"})

	metricHeartbeatLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "heartbeat_latency_seconds",
		Help:      "Latency of the last acknowledged heartbeat",
	}, []string{"session"})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "state_transitions_total",
		Help:      "Total number of session state transitions",
	}, []string{"session", "from", "to"})

	metricErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "errors_total",
		Help:      "Total number of errors by class",
	}, []string{"session", "class"})

	metricQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "signaling_queue_depth",
		Help:      "Number of messages waiting in the signaling queue",
	}, []string{"session"})

	metricBufferPackets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voice",
		Subsystem: "client",
		Name:      "audio_buffer_packets",
		Help:      "Number of encrypted packets waiting in the audio buffer",
	}, []string{"session"})
)

// metricsCollector ведет учет активности клиента: атомарные счетчики для
// быстрой внутренней статистики и Prometheus метрики для внешнего
// мониторинга. Prometheus часть отключаема конфигурацией.
type metricsCollector struct {
	enabled bool
	session string

	// Performance counters (атомарные для fast path)
	packetsSent      uint64
	packetsReceived  uint64
	bytesSent        uint64
	bytesReceived    uint64
	heartbeatsSent   uint64
	markersConsumed  uint64
	errorsTotal      uint64
	heartbeatLatency int64 // наносекунды
}

func newMetricsCollector(session string, enabled bool) *metricsCollector {
	return &metricsCollector{
		enabled: enabled,
		session: session,
	}
}

func (mc *metricsCollector) recordPacketSent(bytes int) {
	atomic.AddUint64(&mc.packetsSent, 1)
	atomic.AddUint64(&mc.bytesSent, uint64(bytes))
	if mc.enabled {
		metricPacketsSent.WithLabelValues(mc.session).Inc()
		metricBytesSent.WithLabelValues(mc.session).Add(float64(bytes))
	}
}

func (mc *metricsCollector) recordPacketReceived(bytes int) {
	atomic.AddUint64(&mc.packetsReceived, 1)
	atomic.AddUint64(&mc.bytesReceived, uint64(bytes))
	if mc.enabled {
		metricPacketsReceived.WithLabelValues(mc.session).Inc()
		metricBytesReceived.WithLabelValues(mc.session).Add(float64(bytes))
	}
}

func (mc *metricsCollector) recordHeartbeat() {
	atomic.AddUint64(&mc.heartbeatsSent, 1)
	if mc.enabled {
		metricHeartbeats.WithLabelValues(mc.session).Inc()
	}
}

func (mc *metricsCollector) recordHeartbeatLatency(latency time.Duration) {
	atomic.StoreInt64(&mc.heartbeatLatency, int64(latency))
	if mc.enabled {
		metricHeartbeatLatency.WithLabelValues(mc.session).Set(latency.Seconds())
	}
}

func (mc *metricsCollector) recordStateTransition(from, to State) {
	if mc.enabled {
		metricStateTransitions.WithLabelValues(mc.session, from.String(), to.String()).Inc()
	}
}

func (mc *metricsCollector) recordError(class ErrorClass) {
	atomic.AddUint64(&mc.errorsTotal, 1)
	if mc.enabled {
		metricErrors.WithLabelValues(mc.session, class.String()).Inc()
	}
}

func (mc *metricsCollector) recordMarkerConsumed() {
	atomic.AddUint64(&mc.markersConsumed, 1)
}

func (mc *metricsCollector) setQueueDepth(depth int) {
	if mc.enabled {
		metricQueueDepth.WithLabelValues(mc.session).Set(float64(depth))
	}
}

func (mc *metricsCollector) setBufferPackets(count int) {
	if mc.enabled {
		metricBufferPackets.WithLabelValues(mc.session).Set(float64(count))
	}
}

// Statistics — снимок счетчиков активности клиента
type Statistics struct {
	PacketsSent          uint64
	PacketsReceived      uint64
	BytesSent            uint64
	BytesReceived        uint64
	HeartbeatsSent       uint64
	MarkersConsumed      uint64
	ErrorsTotal          uint64
	LastHeartbeatLatency time.Duration
}

// snapshot возвращает согласованный снимок счетчиков
func (mc *metricsCollector) snapshot() Statistics {
	return Statistics{
		PacketsSent:          atomic.LoadUint64(&mc.packetsSent),
		PacketsReceived:      atomic.LoadUint64(&mc.packetsReceived),
		BytesSent:            atomic.LoadUint64(&mc.bytesSent),
		BytesReceived:        atomic.LoadUint64(&mc.bytesReceived),
		HeartbeatsSent:       atomic.LoadUint64(&mc.heartbeatsSent),
		MarkersConsumed:      atomic.LoadUint64(&mc.markersConsumed),
		ErrorsTotal:          atomic.LoadUint64(&mc.errorsTotal),
		LastHeartbeatLatency: time.Duration(atomic.LoadInt64(&mc.heartbeatLatency)),
	}
}
