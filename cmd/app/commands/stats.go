package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/allisson/outbox/internal/outbox/http/dto"
	outboxUseCase "github.com/allisson/outbox/internal/outbox/usecase"
)

// RunStats prints the number of undelivered messages. With limit > 0 the oldest pending
// messages are listed as well.
func RunStats(
	ctx context.Context,
	producer outboxUseCase.ProducerUseCase,
	writer io.Writer,
	limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if limit < 0 {
		return fmt.Errorf("limit must be zero or positive, got: %d", limit)
	}

	pending, err := producer.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending messages: %w", err)
	}

	var listed dto.ListMessagesResponse
	if limit > 0 {
		messages, err := producer.ListPending(ctx, 0, limit)
		if err != nil {
			return fmt.Errorf("failed to list pending messages: %w", err)
		}
		listed = dto.MapMessagesToListResponse(messages)
	}

	if format == FormatJSON {
		return writeJSON(writer, struct {
			dto.StatsResponse
			Messages []dto.MessageResponse `json:"messages,omitempty"`
		}{
			StatsResponse: dto.StatsResponse{Pending: pending},
			Messages:      listed.Data,
		})
	}

	_, _ = fmt.Fprintf(writer, "Pending messages: %d\n", pending)
	for _, m := range listed.Data {
		_, _ = fmt.Fprintf(writer, "  %s  %-20s  sends=%d  created=%s\n",
			m.ID, m.Topic, m.SendCount, m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
