package fec

import (
	"fmt"
	"sync"
	"time"
)

// AdaptivePolicy watches a stream of observed loss-rate samples and
// decides whether FEC should be enabled and how many parity shards a
// Group should carry. Grounded on the teacher's
// internal/fec.AdaptivePolicy, generalized to drive Group's (k, r)
// rather than a hand-rolled encoder, and with time.Now() replaced by
// an injectable clock so tests don't need to sleep through
// MinObservation.
type AdaptivePolicy struct {
	mu sync.RWMutex
	cfg PolicyConfig
	now func() time.Time

	enabled         bool
	currentK        int
	currentR        int
	lossRateSamples []float64
	lastStateChange time.Time
	sampleStartTime time.Time
}

// PolicyConfig bounds an AdaptivePolicy's thresholds and parity range.
// Loss rates are percentages (1.0 == 1%).
type PolicyConfig struct {
	EnableThreshold  float64
	DisableThreshold float64
	MinObservation   time.Duration
	DefaultK         int
	DefaultR         int
	MaxR             int
}

// DefaultPolicyConfig returns the thresholds the teacher's relay uses
// in production: enable past 1% loss, disable only once loss has sat
// below 0.5% for ten observation windows.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		EnableThreshold:  1.0,
		DisableThreshold: 0.5,
		MinObservation:   30 * time.Second,
		DefaultK:         8,
		DefaultR:         2,
		MaxR:             4,
	}
}

// PolicyState is a snapshot of an AdaptivePolicy's current decision.
type PolicyState struct {
	Enabled   bool
	K         int
	R         int
	LossRate  float64
	UpdatedAt time.Time
}

// NewAdaptivePolicy builds a policy starting disabled, with parity
// fixed at cfg.DefaultR until enough loss is observed to move it.
func NewAdaptivePolicy(cfg PolicyConfig) *AdaptivePolicy {
	return newAdaptivePolicy(cfg, time.Now)
}

func newAdaptivePolicy(cfg PolicyConfig, now func() time.Time) *AdaptivePolicy {
	return &AdaptivePolicy{
		cfg:             cfg,
		now:             now,
		currentK:        cfg.DefaultK,
		currentR:        cfg.DefaultR,
		lossRateSamples: make([]float64, 0, 60),
		lastStateChange: now(),
		sampleStartTime: now(),
	}
}

// Observe records a loss-rate sample (percentage) and re-evaluates the
// policy. Callers feed this from their own loss measurement (e.g. acks
// missed per window on a datagram transport); Group itself never calls
// this, keeping parity-selection policy separate from parity
// computation.
func (ap *AdaptivePolicy) Observe(lossRate float64) {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	ap.lossRateSamples = append(ap.lossRateSamples, lossRate)
	if len(ap.lossRateSamples) > 60 {
		ap.lossRateSamples = ap.lossRateSamples[len(ap.lossRateSamples)-60:]
	}

	avgLoss := ap.calculateAverageLoss()
	timeSinceChange := ap.now().Sub(ap.lastStateChange)
	if timeSinceChange < ap.cfg.MinObservation {
		return
	}

	switch {
	case !ap.enabled && avgLoss > ap.cfg.EnableThreshold:
		ap.enabled = true
		ap.currentR = ap.cfg.DefaultR
		ap.lastStateChange = ap.now()
	case ap.enabled && avgLoss < ap.cfg.DisableThreshold:
		if timeSinceChange >= ap.cfg.MinObservation*10 {
			ap.enabled = false
			ap.lastStateChange = ap.now()
		}
	case ap.enabled:
		switch {
		case avgLoss > 5.0 && ap.currentR < ap.cfg.MaxR:
			ap.currentR = ap.cfg.MaxR
			ap.lastStateChange = ap.now()
		case avgLoss > 3.0 && ap.currentR < 3 && ap.cfg.MaxR >= 3:
			ap.currentR = 3
			ap.lastStateChange = ap.now()
		case avgLoss < 2.0 && ap.currentR > ap.cfg.DefaultR:
			ap.currentR = ap.cfg.DefaultR
			ap.lastStateChange = ap.now()
		}
	}
}

// Parameters returns whether FEC should currently be applied and the
// (k, r) a Group should be built with if so.
func (ap *AdaptivePolicy) Parameters() (enabled bool, k, r int) {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return ap.enabled, ap.currentK, ap.currentR
}

// State returns a snapshot of the policy's current decision.
func (ap *AdaptivePolicy) State() PolicyState {
	ap.mu.RLock()
	defer ap.mu.RUnlock()
	return PolicyState{
		Enabled:   ap.enabled,
		K:         ap.currentK,
		R:         ap.currentR,
		LossRate:  ap.calculateAverageLoss(),
		UpdatedAt: ap.now(),
	}
}

// SetEnabled overrides the automatic decision, e.g. for an operator
// forcing FEC on ahead of a known-lossy link.
func (ap *AdaptivePolicy) SetEnabled(enabled bool) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.enabled = enabled
	ap.lastStateChange = ap.now()
}

// SetParityShards manually sets the parity shard count, bypassing the
// loss-driven adjustment until the next Observe call moves it again.
func (ap *AdaptivePolicy) SetParityShards(r int) error {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if r < 1 || r > ap.cfg.MaxR {
		return fmt.Errorf("fec: parity shards must be between 1 and %d, got %d", ap.cfg.MaxR, r)
	}
	ap.currentR = r
	ap.lastStateChange = ap.now()
	return nil
}

// calculateAverageLoss computes an exponential moving average (alpha
// 0.3) over the recorded samples, weighting recent loss more heavily
// than a plain mean would.
func (ap *AdaptivePolicy) calculateAverageLoss() float64 {
	if len(ap.lossRateSamples) == 0 {
		return 0
	}
	const alpha = 0.3
	ema := ap.lossRateSamples[0]
	for _, s := range ap.lossRateSamples[1:] {
		ema = alpha*s + (1-alpha)*ema
	}
	return ema
}

// Reset returns the policy to its initial disabled state.
func (ap *AdaptivePolicy) Reset() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.enabled = false
	ap.currentR = ap.cfg.DefaultR
	ap.lossRateSamples = ap.lossRateSamples[:0]
	ap.lastStateChange = ap.now()
	ap.sampleStartTime = ap.now()
}
