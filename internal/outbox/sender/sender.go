// Package sender provides domain.Sender implementations for the supported delivery backends.
package sender

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// Supported sender drivers.
const (
	DriverLog     = "log"
	DriverNATS    = "nats"
	DriverKafka   = "kafka"
	DriverRedis   = "redis"
	DriverWebhook = "webhook"
	DriverNone    = "none"
)

// Header names attached to delivered messages where the backend supports headers.
const (
	HeaderMessageID = "X-Outbox-Message-Id"
	HeaderTopic     = "X-Outbox-Topic"
	HeaderSendCount = "X-Outbox-Send-Count"
)

// ClosableSender is a Sender holding a connection that must be released on shutdown.
type ClosableSender interface {
	domain.Sender
	io.Closer
}

// Config selects and configures the sender backend.
type Config struct {
	Driver string

	NATSURL           string
	NATSMaxReconnects int

	KafkaBrokers []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookURL        string
	WebhookTimeout    time.Duration
	WebhookMaxRetries int
	WebhookSigningKey string
}

// New builds the sender named by cfg.Driver. DriverNone returns a nil sender, which leaves the
// outbox accepting messages with dispatch disabled.
func New(cfg Config, logger *slog.Logger) (ClosableSender, error) {
	logger = orDiscard(logger)

	switch cfg.Driver {
	case DriverNone:
		return nil, nil
	case DriverLog, "":
		return NewLogSender(logger), nil
	case DriverNATS:
		return NewNATSSender(cfg.NATSURL, cfg.NATSMaxReconnects, logger)
	case DriverKafka:
		return NewKafkaSender(cfg.KafkaBrokers, logger)
	case DriverRedis:
		return NewRedisSender(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	case DriverWebhook:
		return NewWebhookSender(cfg.WebhookURL, cfg.WebhookTimeout, cfg.WebhookMaxRetries, cfg.WebhookSigningKey, logger)
	default:
		return nil, fmt.Errorf("unsupported sender driver: %s", cfg.Driver)
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
