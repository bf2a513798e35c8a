package observability

import "time"

// RPCMetricsSink adapts Metrics to rpcmux.MetricsSink without rpcmux
// importing this package — see rpcmux/metrics.go.
type RPCMetricsSink struct {
	metrics *Metrics
}

// NewRPCMetricsSink wraps m for use as an rpcmux.MetricsSink.
func NewRPCMetricsSink(m *Metrics) *RPCMetricsSink {
	return &RPCMetricsSink{metrics: m}
}

// CallStarted implements rpcmux.MetricsSink.
func (s *RPCMetricsSink) CallStarted(method string) {
	s.metrics.RPCCallsInFlight.Inc()
}

// CallFinished implements rpcmux.MetricsSink.
func (s *RPCMetricsSink) CallFinished(method, outcome string, duration time.Duration) {
	s.metrics.RPCCallsInFlight.Dec()
	s.metrics.RPCCallsTotal.WithLabelValues(method, outcome).Inc()
	s.metrics.RPCCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}
