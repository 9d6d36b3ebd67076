package jobs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	steps    metric.Int64Counter
	active   metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	started, err := meter.Int64Counter(
		"runledger_jobs_started_total",
		metric.WithDescription("Jobs accepted by the runner"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}

	finished, err := meter.Int64Counter(
		"runledger_jobs_finished_total",
		metric.WithDescription("Jobs that reached a terminal state"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating finished counter: %w", err)
	}

	steps, err := meter.Int64Counter(
		"runledger_job_steps_total",
		metric.WithDescription("Training steps completed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating steps counter: %w", err)
	}

	active, err := meter.Int64UpDownCounter(
		"runledger_jobs_active",
		metric.WithDescription("Jobs holding a worker slot"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating active counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"runledger_job_duration_seconds",
		metric.WithDescription("Wall time from slot acquisition to completion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &instruments{
		started:  started,
		finished: finished,
		steps:    steps,
		active:   active,
		duration: duration,
	}, nil
}

func (in *instruments) recordFinish(ctx context.Context, model string, state State, elapsed time.Duration) {
	opt := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("state", string(state)),
	)
	in.finished.Add(ctx, 1, opt)
	if elapsed > 0 {
		in.duration.Record(ctx, elapsed.Seconds(), opt)
	}
}
