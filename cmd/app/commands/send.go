package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/outbox/internal/outbox/http/dto"
	outboxUseCase "github.com/allisson/outbox/internal/outbox/usecase"
)

// RunSend appends one message to the outbox. A payload that parses as JSON is stored as is;
// anything else is stored as a JSON string.
func RunSend(
	ctx context.Context,
	producer outboxUseCase.ProducerUseCase,
	logger *slog.Logger,
	writer io.Writer,
	topic string,
	payload string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	var body any = payload
	if json.Valid([]byte(payload)) {
		body = json.RawMessage(payload)
	}

	msg, err := producer.Send(ctx, topic, body)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	logger.Info("message added to outbox",
		slog.String("message_id", msg.ID.String()),
		slog.String("topic", msg.Topic),
	)

	if format == FormatJSON {
		return writeJSON(writer, dto.MapMessageToResponse(msg))
	}

	_, _ = fmt.Fprintf(writer, "Message %s added to topic %q\n", msg.ID, msg.Topic)
	return nil
}
