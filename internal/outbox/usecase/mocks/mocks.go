// Package mocks provides mock implementations of the outbox use case dependencies for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// MockMessageRepository is a mock implementation of MessageRepository.
type MockMessageRepository struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// SelectNext mocks the SelectNext method.
func (m *MockMessageRepository) SelectNext(ctx context.Context, now time.Time) (*domain.Message, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// IncrementSendCount mocks the IncrementSendCount method.
func (m *MockMessageRepository) IncrementSendCount(ctx context.Context, id uuid.UUID, nextSendTime time.Time) error {
	args := m.Called(ctx, id, nextSendTime)
	return args.Error(0)
}

// MarkSent mocks the MarkSent method.
func (m *MockMessageRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	args := m.Called(ctx, id, sentAt)
	return args.Error(0)
}

// Get mocks the Get method.
func (m *MockMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// CountPending mocks the CountPending method.
func (m *MockMessageRepository) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// ListPending mocks the ListPending method.
func (m *MockMessageRepository) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

// MockSender is a mock implementation of domain.Sender.
type MockSender struct {
	mock.Mock
}

// Send mocks the Send method.
func (m *MockSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

// MockTxManager is a mock implementation of database.TxManager that runs fn unless an error is configured.
type MockTxManager struct {
	mock.Mock
}

// WithTx mocks the WithTx method.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockProducerUseCase is a mock implementation of ProducerUseCase.
type MockProducerUseCase struct {
	mock.Mock
}

// Send mocks the Send method.
func (m *MockProducerUseCase) Send(ctx context.Context, topic string, payload any) (*domain.Message, error) {
	args := m.Called(ctx, topic, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// Get mocks the Get method.
func (m *MockProducerUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

// CountPending mocks the CountPending method.
func (m *MockProducerUseCase) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// ListPending mocks the ListPending method.
func (m *MockProducerUseCase) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}
