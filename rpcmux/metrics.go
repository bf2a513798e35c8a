package rpcmux

import "time"

// MetricsSink receives call lifecycle events. Mux works with this narrow
// interface rather than importing the observability package directly, so
// a caller not wiring metrics at all pays nothing and no import cycle is
// possible; observability.Metrics satisfies it via a small adapter.
type MetricsSink interface {
	CallStarted(method string)
	CallFinished(method, outcome string, duration time.Duration)
}

type noopMetricsSink struct{}

func (noopMetricsSink) CallStarted(string)                       {}
func (noopMetricsSink) CallFinished(string, string, time.Duration) {}

// WithMetrics installs a MetricsSink observing every Call/CallStream.
func WithMetrics(m MetricsSink) Option {
	return func(mux *Mux) { mux.metrics = m }
}
