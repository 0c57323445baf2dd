package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/allisson/outbox/internal/errors"
	"github.com/allisson/outbox/internal/outbox/domain"
)

type producerUseCase struct {
	repo   MessageRepository
	logger *slog.Logger
}

// NewProducerUseCase creates a ProducerUseCase backed by repo.
func NewProducerUseCase(repo MessageRepository, logger *slog.Logger) ProducerUseCase {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &producerUseCase{
		repo:   repo,
		logger: logger,
	}
}

func (p *producerUseCase) Send(ctx context.Context, topic string, payload any) (*domain.Message, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" || len(topic) > domain.MaxTopicLength {
		return nil, domain.ErrInvalidTopic
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(domain.ErrInvalidPayload, err.Error())
	}

	msg := domain.NewMessage(topic, string(data))
	if err := p.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	p.logger.Debug("outbox message created",
		slog.String("message_id", msg.ID.String()),
		slog.String("topic", msg.Topic),
	)

	return msg, nil
}

func (p *producerUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return p.repo.Get(ctx, id)
}

func (p *producerUseCase) CountPending(ctx context.Context) (int64, error) {
	return p.repo.CountPending(ctx)
}

func (p *producerUseCase) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	return p.repo.ListPending(ctx, offset, limit)
}
