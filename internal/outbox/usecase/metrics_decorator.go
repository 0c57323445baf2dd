package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/metrics"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// producerUseCaseWithMetrics decorates ProducerUseCase with metrics instrumentation.
type producerUseCaseWithMetrics struct {
	next    ProducerUseCase
	metrics metrics.BusinessMetrics
}

// NewProducerUseCaseWithMetrics wraps a ProducerUseCase with metrics recording.
func NewProducerUseCaseWithMetrics(useCase ProducerUseCase, m metrics.BusinessMetrics) ProducerUseCase {
	return &producerUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (p *producerUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	p.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

// Send records metrics for message creation.
func (p *producerUseCaseWithMetrics) Send(ctx context.Context, topic string, payload any) (*domain.Message, error) {
	start := time.Now()
	msg, err := p.next.Send(ctx, topic, payload)
	p.record(ctx, "message_create", start, err)
	return msg, err
}

// Get records metrics for message retrieval.
func (p *producerUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	start := time.Now()
	msg, err := p.next.Get(ctx, id)
	p.record(ctx, "message_get", start, err)
	return msg, err
}

// CountPending records metrics for backlog queries.
func (p *producerUseCaseWithMetrics) CountPending(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := p.next.CountPending(ctx)
	p.record(ctx, "message_count_pending", start, err)
	return count, err
}

// ListPending records metrics for backlog listings.
func (p *producerUseCaseWithMetrics) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	start := time.Now()
	messages, err := p.next.ListPending(ctx, offset, limit)
	p.record(ctx, "message_list_pending", start, err)
	return messages, err
}
