package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxUseCase "github.com/allisson/outbox/internal/outbox/usecase"
)

type fakeDrainer struct {
	result outboxUseCase.DrainResult
}

func (f *fakeDrainer) Drain(ctx context.Context) outboxUseCase.DrainResult {
	return f.result
}

func TestRunDrain(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	t.Run("text-output", func(t *testing.T) {
		engine := &fakeDrainer{result: outboxUseCase.DrainResult{Claimed: 3, Sent: 2, Failed: 1}}

		var out bytes.Buffer
		err := RunDrain(ctx, engine, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Claimed 3 message(s): 2 sent, 0 declined, 1 failed")
		require.NotContains(t, out.String(), "already finalized")
	})

	t.Run("text-output-already-sent", func(t *testing.T) {
		engine := &fakeDrainer{result: outboxUseCase.DrainResult{Claimed: 1, AlreadySent: 1}}

		var out bytes.Buffer
		err := RunDrain(ctx, engine, logger, &out, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "1 message(s) were already finalized")
	})

	t.Run("json-output", func(t *testing.T) {
		engine := &fakeDrainer{result: outboxUseCase.DrainResult{Claimed: 5, Sent: 4, Declined: 1}}

		var out bytes.Buffer
		err := RunDrain(ctx, engine, logger, &out, "json")

		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.EqualValues(t, 5, got["claimed"])
		assert.EqualValues(t, 4, got["sent"])
		assert.EqualValues(t, 1, got["declined"])
		assert.NotContains(t, got, "error")
	})

	t.Run("claim-error", func(t *testing.T) {
		engine := &fakeDrainer{result: outboxUseCase.DrainResult{Claimed: 1, Sent: 1, Err: errors.New("connection reset")}}

		var out bytes.Buffer
		err := RunDrain(ctx, engine, logger, &out, "json")

		require.Error(t, err)
		require.Contains(t, err.Error(), "drain pass stopped early")
		require.Contains(t, out.String(), `"error": "connection reset"`)
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunDrain(ctx, &fakeDrainer{}, logger, &bytes.Buffer{}, "yaml")

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid format")
	})
}
