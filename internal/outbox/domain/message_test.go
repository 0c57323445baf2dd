package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage("orders", `{"id":1}`)

	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, `{"id":1}`, msg.Payload)
	assert.Zero(t, msg.SendCount)
	assert.Nil(t, msg.NextSendTime)
	assert.Nil(t, msg.SentAt)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestMessage_IsEligible(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(VisibilityWindow)

	tests := []struct {
		name     string
		msg      Message
		expected bool
	}{
		{name: "never claimed", msg: Message{}, expected: true},
		{name: "window elapsed", msg: Message{NextSendTime: &past, SendCount: 1}, expected: true},
		{name: "window boundary", msg: Message{NextSendTime: &now, SendCount: 1}, expected: true},
		{name: "window pending", msg: Message{NextSendTime: &future, SendCount: 1}, expected: false},
		{name: "sent", msg: Message{SentAt: &past}, expected: false},
		{name: "sent with elapsed window", msg: Message{NextSendTime: &past, SentAt: &past}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.msg.IsEligible(now))
		})
	}
}

func TestMessage_IsSent(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Message{}).IsSent())
	assert.True(t, (&Message{SentAt: &now}).IsSent())
}
