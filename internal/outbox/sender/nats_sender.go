package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/allisson/outbox/internal/outbox/domain"
)

type natsPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSSender publishes each message on the subject named by its topic.
//
// The message ID travels in the Nats-Msg-Id header, so a JetStream stream bound to the subject
// discards redeliveries that fall inside its duplicate window.
type NATSSender struct {
	conn         natsPublisher
	flushTimeout time.Duration
	logger       *slog.Logger
}

// DefaultNATSFlushTimeout bounds the wait for the server to acknowledge a publish.
const DefaultNATSFlushTimeout = 5 * time.Second

// NewNATSSender connects to url. The connection keeps retrying in the background when the server
// is not reachable yet.
func NewNATSSender(url string, maxReconnects int, logger *slog.Logger) (*NATSSender, error) {
	logger = orDiscard(logger)
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url,
		nats.Name("outbox"),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return newNATSSender(conn, logger), nil
}

func newNATSSender(conn natsPublisher, logger *slog.Logger) *NATSSender {
	return &NATSSender{conn: conn, flushTimeout: DefaultNATSFlushTimeout, logger: orDiscard(logger)}
}

// Send publishes msg and waits for the server to acknowledge the flush.
func (s *NATSSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	natsMsg := nats.NewMsg(msg.Topic)
	natsMsg.Data = []byte(msg.Payload)
	natsMsg.Header.Set(nats.MsgIdHdr, msg.ID.String())
	natsMsg.Header.Set(HeaderMessageID, msg.ID.String())
	natsMsg.Header.Set(HeaderSendCount, strconv.Itoa(msg.SendCount))

	if err := s.conn.PublishMsg(natsMsg); err != nil {
		return false, fmt.Errorf("failed to publish to nats: %w", err)
	}
	// FlushWithContext rejects contexts without a deadline.
	flushCtx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()

	if err := s.conn.FlushWithContext(flushCtx); err != nil {
		return false, fmt.Errorf("failed to flush nats connection: %w", err)
	}
	return true, nil
}

// Close drains the connection so buffered publishes reach the server.
func (s *NATSSender) Close() error {
	return s.conn.Drain()
}
