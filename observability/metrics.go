package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for one process, following the
// teacher's Metrics struct shape (internal/observability/metrics.go) but
// scoped to this protocol's own concerns: frame codec activity, RPC call
// latency, Merkle verification outcomes, and transfer throughput.
type Metrics struct {
	FramesEncodedTotal *prometheus.CounterVec
	FramesDecodedTotal *prometheus.CounterVec
	DecodeErrorsTotal  *prometheus.CounterVec

	RPCCallsTotal      *prometheus.CounterVec
	RPCCallDuration    *prometheus.HistogramVec
	RPCCallsInFlight   prometheus.Gauge

	MerkleVerificationsTotal *prometheus.CounterVec

	UploadsTotal       *prometheus.CounterVec
	DownloadsTotal     *prometheus.CounterVec
	BytesTransferred   *prometheus.CounterVec
	ChunksInFlightGauge prometheus.Gauge
}

// NewMetrics registers every instrument against reg. Passing a fresh
// prometheus.NewRegistry() (rather than the global default) keeps
// repeated construction in tests from panicking on duplicate
// registration, unlike the teacher's promauto-against-default-registry
// convention (internal/observability/metrics.go), which assumed a single
// process-lifetime call.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesEncodedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_frames_encoded_total",
			Help: "Total envelopes encoded, by target type.",
		}, []string{"target"}),

		FramesDecodedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_frames_decoded_total",
			Help: "Total envelopes decoded, by target type.",
		}, []string{"target"}),

		DecodeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_decode_errors_total",
			Help: "Total envelope decode failures, by cause.",
		}, []string{"cause"}),

		RPCCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_rpc_calls_total",
			Help: "Total RPC calls, by method and outcome.",
		}, []string{"method", "outcome"}),

		RPCCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wiretransport_rpc_call_duration_seconds",
			Help:    "RPC call latency distribution, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		RPCCallsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wiretransport_rpc_calls_in_flight",
			Help: "RPC calls awaiting a terminal response.",
		}),

		MerkleVerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_merkle_verifications_total",
			Help: "Total chunk Merkle proof verifications, by outcome.",
		}, []string{"outcome"}),

		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_uploads_total",
			Help: "Total upload sessions, by outcome.",
		}, []string{"outcome"}),

		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_downloads_total",
			Help: "Total download sessions, by outcome.",
		}, []string{"outcome"}),

		BytesTransferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiretransport_bytes_transferred_total",
			Help: "Total bytes transferred, by direction.",
		}, []string{"direction"}),

		ChunksInFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wiretransport_chunks_in_flight",
			Help: "Unacknowledged upload chunks currently outstanding.",
		}),
	}
}
