package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds direct-instrumentation counters for the room and streaming
// layers, registered once at startup.
type Metrics struct {
	RoomFramesHandled  *prometheus.CounterVec // labels: prefix
	RoomFramesRejected *prometheus.CounterVec // labels: reason=parse|unknown

	PieceWaitDuration   prometheus.Histogram
	PieceHaveTimeouts   prometheus.Counter
	PieceReadTimeouts   prometheus.Counter
	StreamingOpenFiles  prometheus.Gauge
}

// New creates and registers room/streaming metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomFramesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncstream",
			Subsystem: "room",
			Name:      "frames_handled_total",
			Help:      "Client wire frames successfully applied, by prefix.",
		}, []string{"prefix"}),
		RoomFramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncstream",
			Subsystem: "room",
			Name:      "frames_rejected_total",
			Help:      "Client wire frames rejected, by reason.",
		}, []string{"reason"}),
		PieceWaitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "syncstream",
			Subsystem: "streaming",
			Name:      "piece_wait_duration_seconds",
			Help:      "Time spent waiting for a torrent piece to become available and read.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PieceHaveTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "syncstream",
			Subsystem: "streaming",
			Name:      "piece_have_timeouts_total",
			Help:      "Piece downloads that never completed within the wait window.",
		}),
		PieceReadTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "syncstream",
			Subsystem: "streaming",
			Name:      "piece_read_timeouts_total",
			Help:      "Piece reads that never delivered an alert within the wait window.",
		}),
		StreamingOpenFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncstream",
			Subsystem: "streaming",
			Name:      "open_files",
			Help:      "Number of currently open torrent-backed video sources.",
		}),
	}

	reg.MustRegister(
		m.RoomFramesHandled,
		m.RoomFramesRejected,
		m.PieceWaitDuration,
		m.PieceHaveTimeouts,
		m.PieceReadTimeouts,
		m.StreamingOpenFiles,
	)

	return m
}
