// Package usecase implements the outbox dispatch engine and the producer API.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// MessageRepository is the store capability the engine and the producer depend on.
// One implementation exists per SQL dialect and is selected when the application is wired.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	SelectNext(ctx context.Context, now time.Time) (*domain.Message, error)
	IncrementSendCount(ctx context.Context, id uuid.UUID, nextSendTime time.Time) error
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	CountPending(ctx context.Context) (int64, error)
	ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error)
}

// Listener is a push wake-up source for the engine.
//
// Register attaches the listener to the store described by info and starts its background loop,
// which pushes into requests whenever a new message may be available. Sends on requests must never
// block: the channel is buffered and a pending request already covers any new one. A listener that
// does not support the connection's technology logs and returns nil without doing anything.
//
// Close stops the background loop and returns once no further requests will be pushed.
type Listener interface {
	Register(ctx context.Context, info domain.ConnectionInfo, requests chan<- struct{}) error
	Close(ctx context.Context) error
}

// EngineUseCase drives delivery of outbox messages.
type EngineUseCase interface {
	Start(ctx context.Context) error
	Drain(ctx context.Context) DrainResult
	RequestDrain()
	Stop(ctx context.Context) error
	State() EngineState
}

// ProducerUseCase appends messages to the outbox.
type ProducerUseCase interface {
	// Send serializes payload to JSON and stores it under topic. When ctx carries a transaction
	// started by database.TxManager the insert joins it.
	Send(ctx context.Context, topic string, payload any) (*domain.Message, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	CountPending(ctx context.Context) (int64, error)
	ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error)
}
