package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// roomStorage is the narrow view of room.Storage the collector needs. Kept
// as a local interface so this package doesn't import internal/room (which
// already imports internal/metrics for direct instrumentation).
type roomStorage interface {
	Stats() (loadedRooms int, totalConns int)
}

// RoomCollector implements prometheus.Collector for room storage stats. It
// polls Storage.Stats() lazily on each Prometheus scrape rather than
// maintaining duplicate state.
type RoomCollector struct {
	storage roomStorage

	roomsLoaded *prometheus.Desc
	connsTotal  *prometheus.Desc
}

// NewRoomCollector creates a collector that scrapes room storage stats on
// demand from storage.
func NewRoomCollector(storage roomStorage) *RoomCollector {
	return &RoomCollector{
		storage: storage,

		roomsLoaded: prometheus.NewDesc(
			"syncstream_rooms_loaded",
			"Number of rooms currently resident in memory.",
			nil, nil,
		),
		connsTotal: prometheus.NewDesc(
			"syncstream_room_connections",
			"Total viewer connections across every loaded room.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RoomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.roomsLoaded
	ch <- c.connsTotal
}

// Collect implements prometheus.Collector.
func (c *RoomCollector) Collect(ch chan<- prometheus.Metric) {
	rooms, conns := c.storage.Stats()
	ch <- prometheus.MustNewConstMetric(c.roomsLoaded, prometheus.GaugeValue, float64(rooms))
	ch <- prometheus.MustNewConstMetric(c.connsTotal, prometheus.GaugeValue, float64(conns))
}
