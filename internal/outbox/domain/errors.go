package domain

import (
	"github.com/allisson/outbox/internal/errors"
)

// Outbox error definitions.
var (
	// ErrMessageNotFound indicates the message does not exist in the outbox table.
	ErrMessageNotFound = errors.Wrap(errors.ErrNotFound, "outbox message not found")

	// ErrAlreadySent indicates a finalize was attempted on a message that is already delivered.
	// The stored sent_at timestamp is left untouched.
	ErrAlreadySent = errors.Wrap(errors.ErrConflict, "outbox message already sent")

	// ErrInvalidTopic indicates the topic is empty or exceeds the maximum length.
	ErrInvalidTopic = errors.Wrap(errors.ErrInvalidInput, "invalid topic")

	// ErrInvalidPayload indicates the payload could not be serialized.
	ErrInvalidPayload = errors.Wrap(errors.ErrInvalidInput, "invalid payload")

	// ErrEngineAlreadyStarted is returned by a second call to Start.
	ErrEngineAlreadyStarted = errors.Wrap(errors.ErrConflict, "outbox engine already started")

	// ErrEngineStopped is returned when Start is called on an engine that was stopped.
	ErrEngineStopped = errors.Wrap(errors.ErrConflict, "outbox engine stopped")
)
