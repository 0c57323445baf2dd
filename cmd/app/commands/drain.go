package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	outboxUseCase "github.com/allisson/outbox/internal/outbox/usecase"
)

// drainer runs a single drain pass.
type drainer interface {
	Drain(ctx context.Context) outboxUseCase.DrainResult
}

type drainOutput struct {
	Claimed        int    `json:"claimed"`
	Sent           int    `json:"sent"`
	Declined       int    `json:"declined"`
	Failed         int    `json:"failed"`
	FinalizeFailed int    `json:"finalize_failed"`
	AlreadySent    int    `json:"already_sent"`
	Error          string `json:"error,omitempty"`
}

// RunDrain delivers every eligible message once and exits, without starting the timer or the
// listeners. Useful from cron or after an outage. A claim failure is reported and returned.
func RunDrain(
	ctx context.Context,
	engine drainer,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("draining outbox")

	result := engine.Drain(ctx)

	output := drainOutput{
		Claimed:        result.Claimed,
		Sent:           result.Sent,
		Declined:       result.Declined,
		Failed:         result.Failed,
		FinalizeFailed: result.FinalizeFailed,
		AlreadySent:    result.AlreadySent,
	}
	if result.Err != nil {
		output.Error = result.Err.Error()
	}

	if format == FormatJSON {
		if err := writeJSON(writer, output); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Claimed %d message(s): %d sent, %d declined, %d failed, %d finalize failed\n",
			output.Claimed, output.Sent, output.Declined, output.Failed, output.FinalizeFailed)
		if output.AlreadySent > 0 {
			_, _ = fmt.Fprintf(writer, "%d message(s) were already finalized by another relay\n", output.AlreadySent)
		}
	}

	if result.Err != nil {
		return fmt.Errorf("drain pass stopped early: %w", result.Err)
	}

	logger.Info("drain completed",
		slog.Int("claimed", result.Claimed),
		slog.Int("sent", result.Sent),
	)
	return nil
}
