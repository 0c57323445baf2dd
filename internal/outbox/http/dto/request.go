// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"encoding/json"

	validation "github.com/jellydator/validation"

	"github.com/allisson/outbox/internal/outbox/domain"
	customValidation "github.com/allisson/outbox/internal/validation"
)

// SendMessageRequest contains the parameters for appending a message to the outbox.
// Payload is any JSON value and is stored as sent, without re-encoding its fields.
type SendMessageRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks if the send message request is valid.
func (r *SendMessageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Topic,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, domain.MaxTopicLength),
		),
		validation.Field(&r.Payload,
			validation.Required,
			customValidation.JSON,
		),
	)
}
