package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/allisson/outbox/internal/outbox/domain"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender writes each message to the Kafka topic named by its topic, keyed by message ID.
type KafkaSender struct {
	writer kafkaWriter
	logger *slog.Logger
}

// NewKafkaSender creates a KafkaSender writing to brokers.
func NewKafkaSender(brokers []string, logger *slog.Logger) (*KafkaSender, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sender requires at least one broker")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}

	return newKafkaSender(writer, logger), nil
}

func newKafkaSender(writer kafkaWriter, logger *slog.Logger) *KafkaSender {
	return &KafkaSender{writer: writer, logger: orDiscard(logger)}
}

// Send writes msg synchronously; it is delivered once every in-sync replica acknowledged it.
func (s *KafkaSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.ID.String()),
		Value: []byte(msg.Payload),
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderMessageID, Value: []byte(msg.ID.String())},
			{Key: HeaderSendCount, Value: []byte(strconv.Itoa(msg.SendCount))},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to write to kafka: %w", err)
	}
	return true, nil
}

// Close flushes pending writes and closes the writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
