package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// BacklogCounter returns the number of undelivered outbox messages.
type BacklogCounter func(ctx context.Context) (int64, error)

// RegisterBacklogGauge exposes the outbox backlog as "<namespace>_pending_messages". The count is
// taken on every collection, so a scrape costs one COUNT query. A failed count is skipped for that
// collection and the error is returned to the SDK, which reports it through the otel error handler.
func RegisterBacklogGauge(
	meterProvider metric.MeterProvider,
	namespace string,
	count BacklogCounter,
) (metric.Registration, error) {
	meter := meterProvider.Meter(namespace)

	gauge, err := meter.Int64ObservableGauge(
		fmt.Sprintf("%s_pending_messages", namespace),
		metric.WithDescription("Number of outbox messages not yet delivered"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backlog gauge: %w", err)
	}

	registration, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		pending, err := count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count pending messages: %w", err)
		}
		o.ObserveInt64(gauge, pending)
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register backlog callback: %w", err)
	}

	return registration, nil
}
