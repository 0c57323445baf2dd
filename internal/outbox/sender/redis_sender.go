package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/allisson/outbox/internal/outbox/domain"
)

type redisStreamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisSender appends each message to the Redis stream named by its topic. Streams keep entries
// until consumers acknowledge them, unlike PUBLISH which drops messages nobody is subscribed to.
type RedisSender struct {
	client redisStreamer
	logger *slog.Logger
}

// NewRedisSender creates a RedisSender for the server at addr.
func NewRedisSender(addr, password string, db int, logger *slog.Logger) (*RedisSender, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis sender requires an address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return newRedisSender(client, logger), nil
}

func newRedisSender(client redisStreamer, logger *slog.Logger) *RedisSender {
	return &RedisSender{client: client, logger: orDiscard(logger)}
}

// Send adds msg to the stream.
func (s *RedisSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	entryID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: msg.Topic,
		Values: map[string]interface{}{
			"id":         msg.ID.String(),
			"payload":    msg.Payload,
			"send_count": strconv.Itoa(msg.SendCount),
		},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add to redis stream: %w", err)
	}

	s.logger.DebugContext(ctx, "outbox message added to redis stream",
		slog.String("message_id", msg.ID.String()),
		slog.String("entry_id", entryID),
	)
	return true, nil
}

// Close closes the client.
func (s *RedisSender) Close() error {
	return s.client.Close()
}
