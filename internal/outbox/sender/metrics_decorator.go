package sender

import (
	"context"
	"time"

	"github.com/allisson/outbox/internal/metrics"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// senderWithMetrics decorates a ClosableSender with metrics instrumentation.
type senderWithMetrics struct {
	next    ClosableSender
	metrics metrics.BusinessMetrics
}

// NewSenderWithMetrics wraps a ClosableSender with metrics recording. Attempts are labelled
// success, declined or error.
func NewSenderWithMetrics(next ClosableSender, m metrics.BusinessMetrics) ClosableSender {
	return &senderWithMetrics{
		next:    next,
		metrics: m,
	}
}

// Send records metrics for delivery attempts.
func (s *senderWithMetrics) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	start := time.Now()
	delivered, err := s.next.Send(ctx, msg)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !delivered:
		status = "declined"
	}

	s.metrics.RecordOperation(ctx, "outbox", "message_send", status)
	s.metrics.RecordDuration(ctx, "outbox", "message_send", time.Since(start), status)

	return delivered, err
}

// Close closes the wrapped sender.
func (s *senderWithMetrics) Close() error {
	return s.next.Close()
}
