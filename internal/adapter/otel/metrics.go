package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "synod"

// Metrics holds all advisory engine metric instruments.
type Metrics struct {
	Convenes           metric.Int64Counter
	CacheHits          metric.Int64Counter
	AdvisorsDegraded   metric.Int64Counter
	FunnelEvents       metric.Int64Counter
	DecisionConfidence metric.Float64Histogram
	ConveneDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Convenes, err = meter.Int64Counter("synod.convenes",
		metric.WithDescription("Number of convene calls"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("synod.decisions.cache_hits",
		metric.WithDescription("Number of decisions replayed from cache"))
	if err != nil {
		return nil, err
	}

	m.AdvisorsDegraded, err = meter.Int64Counter("synod.advisors.degraded",
		metric.WithDescription("Number of degraded advisor stubs substituted"))
	if err != nil {
		return nil, err
	}

	m.FunnelEvents, err = meter.Int64Counter("synod.funnel.events",
		metric.WithDescription("Number of funnel events recorded"))
	if err != nil {
		return nil, err
	}

	m.DecisionConfidence, err = meter.Float64Histogram("synod.decision.confidence",
		metric.WithDescription("Fused confidence of synthesised decisions"))
	if err != nil {
		return nil, err
	}

	m.ConveneDuration, err = meter.Float64Histogram("synod.convene.duration_seconds",
		metric.WithDescription("Convene duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
