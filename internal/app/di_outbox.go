package app

import (
	"fmt"

	"github.com/allisson/outbox/internal/metrics"
	"github.com/allisson/outbox/internal/outbox/domain"
	outboxHTTP "github.com/allisson/outbox/internal/outbox/http"
	"github.com/allisson/outbox/internal/outbox/notify"
	outboxRepository "github.com/allisson/outbox/internal/outbox/repository"
	"github.com/allisson/outbox/internal/outbox/sender"
	outboxUseCase "github.com/allisson/outbox/internal/outbox/usecase"
)

// MessageRepository returns the outbox message repository for the configured database driver.
func (c *Container) MessageRepository() (outboxUseCase.MessageRepository, error) {
	var err error
	c.messageRepositoryInit.Do(func() {
		c.messageRepository, err = c.initMessageRepository()
		if err != nil {
			c.initErrors["messageRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageRepository"]; exists {
		return nil, storedErr
	}
	return c.messageRepository, nil
}

// Sender returns the delivery backend selected by SENDER_DRIVER.
// It returns nil without error when the driver is "none".
func (c *Container) Sender() (sender.ClosableSender, error) {
	var err error
	c.senderInit.Do(func() {
		c.sender, err = c.initSender()
		if err != nil {
			c.initErrors["sender"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sender"]; exists {
		return nil, storedErr
	}
	return c.sender, nil
}

// Listeners returns the push wake-up sources registered with the engine.
func (c *Container) Listeners() []outboxUseCase.Listener {
	c.listenersInit.Do(func() {
		c.listeners = c.initListeners()
	})
	return c.listeners
}

// Engine returns the outbox dispatch engine. It is created in the NotStarted state.
func (c *Container) Engine() (*outboxUseCase.Engine, error) {
	var err error
	c.engineInit.Do(func() {
		c.engine, err = c.initEngine()
		if err != nil {
			c.initErrors["engine"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["engine"]; exists {
		return nil, storedErr
	}
	return c.engine, nil
}

// ProducerUseCase returns the producer use case used to append messages to the outbox.
func (c *Container) ProducerUseCase() (outboxUseCase.ProducerUseCase, error) {
	var err error
	c.producerUseCaseInit.Do(func() {
		c.producerUseCase, err = c.initProducerUseCase()
		if err != nil {
			c.initErrors["producerUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["producerUseCase"]; exists {
		return nil, storedErr
	}
	return c.producerUseCase, nil
}

// MessageHandler returns the HTTP handler for outbox message endpoints.
func (c *Container) MessageHandler() (*outboxHTTP.MessageHandler, error) {
	var err error
	c.messageHandlerInit.Do(func() {
		c.messageHandler, err = c.initMessageHandler()
		if err != nil {
			c.initErrors["messageHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["messageHandler"]; exists {
		return nil, storedErr
	}
	return c.messageHandler, nil
}

func (c *Container) initMessageRepository() (outboxUseCase.MessageRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for message repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return outboxRepository.NewPostgreSQLMessageRepository(db, c.config.OutboxClaimSkipLocked), nil
	case "mysql":
		return outboxRepository.NewMySQLMessageRepository(db, c.config.OutboxClaimSkipLocked), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initSender() (sender.ClosableSender, error) {
	s, err := sender.New(sender.Config{
		Driver:            c.config.SenderDriver,
		NATSURL:           c.config.NATSURL,
		NATSMaxReconnects: c.config.NATSMaxReconnects,
		KafkaBrokers:      c.config.GetKafkaBrokers(),
		RedisAddr:         c.config.RedisAddr,
		RedisPassword:     c.config.RedisPassword,
		RedisDB:           c.config.RedisDB,
		WebhookURL:        c.config.WebhookURL,
		WebhookTimeout:    c.config.WebhookTimeout,
		WebhookMaxRetries: c.config.WebhookMaxRetries,
		WebhookSigningKey: c.config.WebhookSigningKey,
	}, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sender: %w", c.config.SenderDriver, err)
	}
	if s == nil {
		return nil, nil
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to get business metrics for sender: %w", err)
	}

	return sender.NewSenderWithMetrics(s, businessMetrics), nil
}

// initListeners attaches the PostgreSQL listener when enabled. Other drivers rely on polling alone.
func (c *Container) initListeners() []outboxUseCase.Listener {
	if !c.config.OutboxListenerEnabled || c.config.DBDriver != "postgres" {
		return nil
	}
	return []outboxUseCase.Listener{
		notify.NewPostgreSQLListener(c.config.OutboxNotifyChannel, c.Logger()),
	}
}

func (c *Container) initEngine() (*outboxUseCase.Engine, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox engine: %w", err)
	}

	repo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for outbox engine: %w", err)
	}

	s, err := c.Sender()
	if err != nil {
		return nil, fmt.Errorf("failed to get sender for outbox engine: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for outbox engine: %w", err)
	}

	// A nil ClosableSender must reach the engine as an untyped nil.
	var engineSender domain.Sender
	if s != nil {
		engineSender = s
	}

	return outboxUseCase.NewEngine(
		outboxUseCase.Config{
			PollInterval:     c.config.OutboxPollInterval,
			VisibilityWindow: domain.VisibilityWindow,
		},
		txManager,
		repo,
		engineSender,
		c.Listeners(),
		domain.ConnectionInfo{
			Driver:           c.config.DBDriver,
			ConnectionString: c.config.DBConnectionString,
		},
		businessMetrics,
		c.Logger(),
	), nil
}

func (c *Container) initProducerUseCase() (outboxUseCase.ProducerUseCase, error) {
	repo, err := c.MessageRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get message repository for producer use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for producer use case: %w", err)
	}

	useCase := outboxUseCase.NewProducerUseCase(repo, c.Logger())
	return outboxUseCase.NewProducerUseCaseWithMetrics(useCase, businessMetrics), nil
}

func (c *Container) initMessageHandler() (*outboxHTTP.MessageHandler, error) {
	producer, err := c.ProducerUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get producer use case for message handler: %w", err)
	}
	return outboxHTTP.NewMessageHandler(producer, c.Logger()), nil
}

// registerBacklogGauge exposes the pending message count as an observable gauge.
func (c *Container) registerBacklogGauge(provider *metrics.Provider) error {
	var err error
	c.backlogGaugeInit.Do(func() {
		var repo outboxUseCase.MessageRepository
		repo, err = c.MessageRepository()
		if err != nil {
			err = fmt.Errorf("failed to get message repository for backlog gauge: %w", err)
			return
		}
		c.backlogGauge, err = metrics.RegisterBacklogGauge(
			provider.MeterProvider(),
			c.config.MetricsNamespace,
			repo.CountPending,
		)
		if err != nil {
			err = fmt.Errorf("failed to register backlog gauge: %w", err)
		}
	})
	return err
}
