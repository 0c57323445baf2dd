package sender

import (
	"context"
	"log/slog"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// LogSender writes every message to the logger and reports it delivered. Meant for development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: orDiscard(logger)}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	s.logger.InfoContext(ctx, "outbox message delivered",
		slog.String("message_id", msg.ID.String()),
		slog.String("topic", msg.Topic),
		slog.String("payload", msg.Payload),
		slog.Int("send_count", msg.SendCount),
	)
	return true, nil
}

// Close does nothing.
func (s *LogSender) Close() error {
	return nil
}
