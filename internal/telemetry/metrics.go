package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openbridge/objectsync/internal/model"
)

// SyncMetricsMeterName is the name used for the run metrics meter.
const SyncMetricsMeterName = "github.com/openbridge/objectsync/sync"

// SyncMetrics holds the OpenTelemetry instruments for synchronization
// runs. A nil *SyncMetrics is a valid no-op recorder.
type SyncMetrics struct {
	runDuration metric.Float64Histogram
	runsTotal   metric.Int64Counter
	objects     metric.Int64Counter
}

// NewSyncMetrics creates the run instruments on the given meter provider.
// A nil provider returns nil, which records nothing.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"objectsync_run_duration_seconds",
		metric.WithDescription("Duration of synchronization runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	runsTotal, err := meter.Int64Counter(
		"objectsync_runs_total",
		metric.WithDescription("Total number of synchronization runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	objects, err := meter.Int64Counter(
		"objectsync_objects_total",
		metric.WithDescription("Objects processed per synchronization, by outcome"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runDuration: runDuration,
		runsTotal:   runsTotal,
		objects:     objects,
	}, nil
}

// RecordRun records one finished synchronization run.
func (m *SyncMetrics) RecordRun(
	ctx context.Context, syncID string, duration time.Duration, result model.RunResult, success bool,
) {
	if m == nil {
		return
	}

	runAttrs := metric.WithAttributes(
		attribute.String("synchronization", syncID),
		attribute.Bool("success", success),
	)
	m.runDuration.Record(ctx, duration.Seconds(), runAttrs)
	m.runsTotal.Add(ctx, 1, runAttrs)

	outcomes := map[string]int{
		"created": result.Created,
		"updated": result.Updated,
		"deleted": result.Deleted,
		"skipped": result.Skipped,
		"invalid": result.Invalid,
	}
	for outcome, count := range outcomes {
		if count == 0 {
			continue
		}
		m.objects.Add(ctx, int64(count), metric.WithAttributes(
			attribute.String("synchronization", syncID),
			attribute.String("outcome", outcome),
		))
	}
}
