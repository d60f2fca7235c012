// Package metrics exposes the service counters on the default
// Prometheus registry, served over the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtcpulse_connected_clients",
		Help: "Number of currently connected websocket clients",
	})
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtcpulse_connections_total",
		Help: "Total accepted websocket connections by client type",
	}, []string{"client_type"})
	SessionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtcpulse_session_errors_total",
		Help: "Total sessions that ended with a demux or write error",
	})

	// Processing metrics
	ProcessedDumps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtcpulse_processed_dumps_total",
		Help: "Total dumps successfully processed by the extraction pipeline",
	})
	ProcessErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtcpulse_process_errors_total",
		Help: "Total dumps whose feature extraction failed",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtcpulse_queue_depth",
		Help: "Extraction tasks waiting for a worker",
	})
	DumpSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtcpulse_dump_size_bytes",
		Help:    "Size distribution of closed session dumps",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtcpulse_session_duration_seconds",
		Help:    "Extracted session duration distribution",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12),
	})

	// Persistence metrics
	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtcpulse_storage_errors_total",
		Help: "Total persistence failures by backing store",
	}, []string{"store"})
	PublishedFeatures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtcpulse_published_features_total",
		Help: "Total feature sets published to the message queue",
	})
)
