// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// VisibilityWindow is how long a claimed but undelivered message stays invisible to further claims.
const VisibilityWindow = time.Minute

// Message represents a row of the outbox table.
//
// A message with SentAt set is terminal: it is never claimed again and never modified. Until then,
// every claim increments SendCount and pushes NextSendTime one VisibilityWindow into the future.
type Message struct {
	ID           uuid.UUID
	Topic        string
	Payload      string
	CreatedAt    time.Time
	NextSendTime *time.Time
	SendCount    int
	SentAt       *time.Time
}

// NewMessage creates an undelivered message with a fresh time-ordered identifier.
func NewMessage(topic, payload string) *Message {
	return &Message{
		ID:        uuid.Must(uuid.NewV7()),
		Topic:     topic,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// IsSent reports whether the message reached its terminal delivered state.
func (m *Message) IsSent() bool {
	return m.SentAt != nil
}

// IsEligible reports whether the message may be claimed at the given time.
func (m *Message) IsEligible(now time.Time) bool {
	if m.IsSent() {
		return false
	}
	return m.NextSendTime == nil || !m.NextSendTime.After(now)
}
