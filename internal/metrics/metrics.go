// Package metrics holds the Prometheus collectors for one Marquee process.
//
// Stage workers are short-lived batch processes, so nothing is scraped: the
// registry is pushed to a pushgateway when the stage finishes (if one is
// configured). Every method is safe to call on a nil *Recorder.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder owns a private registry so tests and concurrent processes never
// share collectors.
type Recorder struct {
	registry      *prometheus.Registry
	providerCalls *prometheus.CounterVec
	stageItems    *prometheus.CounterVec
	stageDuration *prometheus.GaugeVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marquee_provider_calls_total",
				Help: "Provider API calls issued, by outcome",
			},
			[]string{"provider", "outcome"}, // outcome: ok, not_found, rate_limited, transient, ...
		),
		stageItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marquee_stage_items_total",
				Help: "Items processed by a stage, by result",
			},
			[]string{"stage", "result"}, // result: succeeded, failed, skipped
		),
		stageDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marquee_stage_duration_seconds",
				Help: "Wall-clock duration of the last stage execution",
			},
			[]string{"stage"},
		),
	}
}

// ProviderCall counts one provider call.
func (r *Recorder) ProviderCall(provider, outcome string) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// StageItems adds n items with the given result.
func (r *Recorder) StageItems(stage, result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.stageItems.WithLabelValues(stage, result).Add(float64(n))
}

// StageDuration records how long a stage ran.
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Push sends the registry to a pushgateway, grouped by run and stage so
// successive stages of one run do not overwrite each other.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job, runID, stage string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	pusher := push.New(gatewayURL, job).Gatherer(r.registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if stage != "" {
		pusher = pusher.Grouping("stage", stage)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
