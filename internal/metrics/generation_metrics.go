package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GenerationMetrics records generation runs, attempts and retries
type GenerationMetrics struct {
	runsStartedCounter   metric.Int64Counter
	runsCompletedCounter metric.Int64Counter
	runsFailedCounter    metric.Int64Counter
	partialCounter       metric.Int64Counter
	attemptsCounter      metric.Int64Counter
	retriesCounter       metric.Int64Counter
	runDurationHistogram metric.Float64Histogram
	runsActiveGauge      metric.Int64UpDownCounter
}

// NewGenerationMetrics creates instruments on the global meter provider
func NewGenerationMetrics() (*GenerationMetrics, error) {
	return NewGenerationMetricsWithMeter(otel.Meter("generation-metrics"))
}

// NewGenerationMetricsWithMeter creates instruments on meter
func NewGenerationMetricsWithMeter(meter metric.Meter) (*GenerationMetrics, error) {
	counter := func(name, description, unit string) (metric.Int64Counter, error) {
		return meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	}

	m := &GenerationMetrics{}
	var err error
	if m.runsStartedCounter, err = counter("prototype_builder.runs.started", "Total number of generation runs started", "{run}"); err != nil {
		return nil, err
	}
	if m.runsCompletedCounter, err = counter("prototype_builder.runs.completed", "Total number of generation runs that delivered code", "{run}"); err != nil {
		return nil, err
	}
	if m.runsFailedCounter, err = counter("prototype_builder.runs.failed", "Total number of generation runs that failed", "{run}"); err != nil {
		return nil, err
	}
	if m.partialCounter, err = counter("prototype_builder.runs.partial", "Total number of runs that delivered partial code", "{run}"); err != nil {
		return nil, err
	}
	if m.attemptsCounter, err = counter("prototype_builder.attempts", "Total number of provider attempts", "{attempt}"); err != nil {
		return nil, err
	}
	if m.retriesCounter, err = counter("prototype_builder.retries", "Total number of retries by error kind", "{retry}"); err != nil {
		return nil, err
	}

	m.runDurationHistogram, err = meter.Float64Histogram(
		"prototype_builder.run.duration",
		metric.WithDescription("Duration of generation runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.runsActiveGauge, err = meter.Int64UpDownCounter(
		"prototype_builder.runs.active",
		metric.WithDescription("Number of generation runs in progress"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRunStarted counts a new run and marks it active
func (gm *GenerationMetrics) RecordRunStarted(ctx context.Context, mode string) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	gm.runsStartedCounter.Add(ctx, 1, attrs)
	gm.runsActiveGauge.Add(ctx, 1, attrs)
}

// RecordAttempt counts one provider attempt and how it ended
func (gm *GenerationMetrics) RecordAttempt(ctx context.Context, strategy, outcome string) {
	gm.attemptsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRetry counts a retry caused by an error of kind
func (gm *GenerationMetrics) RecordRetry(ctx context.Context, kind string) {
	gm.retriesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", kind)))
}

// RecordRunCompleted records a run that delivered code
func (gm *GenerationMetrics) RecordRunCompleted(ctx context.Context, mode string, partial bool, attempts int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", "completed"),
		attribute.Bool("partial", partial),
		attribute.Int("attempts", attempts),
	)
	gm.runsCompletedCounter.Add(ctx, 1, attrs)
	if partial {
		gm.partialCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	}
	gm.runDurationHistogram.Record(ctx, duration.Seconds(), attrs)
	gm.runsActiveGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordRunFailed records a run that ended without code
func (gm *GenerationMetrics) RecordRunFailed(ctx context.Context, mode, kind string, attempts int, duration time.Duration) {
	gm.runsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "failed"),
			attribute.String("error.kind", kind),
			attribute.Int("attempts", attempts),
		),
	)
	gm.runDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", "failed"),
		),
	)
	gm.runsActiveGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", mode)))
}
