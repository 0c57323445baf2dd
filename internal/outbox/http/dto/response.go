package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// Message delivery states reported by the API.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// MessageResponse represents an outbox message in API responses.
type MessageResponse struct {
	ID           string          `json:"id"`
	Topic        string          `json:"topic"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	SendCount    int             `json:"send_count"`
	CreatedAt    time.Time       `json:"created_at"`
	NextSendTime *time.Time      `json:"next_send_time,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
}

// MapMessageToResponse converts a domain message to an API response.
func MapMessageToResponse(msg *domain.Message) MessageResponse {
	status := StatusPending
	if msg.IsSent() {
		status = StatusSent
	}

	return MessageResponse{
		ID:           msg.ID.String(),
		Topic:        msg.Topic,
		Payload:      payloadJSON(msg.Payload),
		Status:       status,
		SendCount:    msg.SendCount,
		CreatedAt:    msg.CreatedAt,
		NextSendTime: msg.NextSendTime,
		SentAt:       msg.SentAt,
	}
}

// payloadJSON embeds a stored payload as-is when it is JSON and as a JSON string otherwise.
// Rows written outside the producer may hold arbitrary text.
func payloadJSON(payload string) json.RawMessage {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	encoded, _ := json.Marshal(payload)
	return encoded
}

// ListMessagesResponse represents a paginated list of messages in API responses.
type ListMessagesResponse struct {
	Data []MessageResponse `json:"data"`
}

// MapMessagesToListResponse converts a slice of domain messages to a list response.
func MapMessagesToListResponse(messages []*domain.Message) ListMessagesResponse {
	data := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		data = append(data, MapMessageToResponse(msg))
	}

	return ListMessagesResponse{
		Data: data,
	}
}

// StatsResponse reports the outbox backlog.
type StatsResponse struct {
	Pending int64 `json:"pending"`
}
