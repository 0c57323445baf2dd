package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/metrics"
	"github.com/allisson/outbox/internal/outbox/domain"
)

// DefaultPollInterval is the fallback wake-up period used when no interval is configured.
const DefaultPollInterval = time.Minute

const metricsDomain = "outbox"

// Config holds dispatch engine configuration.
type Config struct {
	// PollInterval is how often the timer requests a drain pass.
	PollInterval time.Duration
	// VisibilityWindow is how long a claimed message stays hidden from further claims.
	VisibilityWindow time.Duration
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Claimed        int
	Sent           int
	Declined       int
	Failed         int
	FinalizeFailed int
	// AlreadySent counts messages another pass finalized first.
	AlreadySent int
	// Err is the claim failure that ended the pass early, if any.
	Err error
}

// Engine claims outbox messages one at a time, hands them to the sender and finalizes the ones
// that were delivered.
//
// Wake-ups come from a polling timer and from registered listeners. Both only push into a single
// buffered request channel; one worker goroutine consumes it, so engine-driven drain passes never
// overlap inside a process. Drain may still be called directly.
type Engine struct {
	config    Config
	txManager database.TxManager
	repo      MessageRepository
	sender    domain.Sender
	listeners []Listener
	connInfo  domain.ConnectionInfo
	metrics   metrics.BusinessMetrics
	logger    *slog.Logger
	now       func() time.Time

	requests chan struct{}

	mu         sync.Mutex
	state      EngineState
	cancel     context.CancelFunc
	registered []Listener
	wg         sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// NewEngine creates an Engine. A nil sender produces an engine that stays idle once started.
func NewEngine(
	config Config,
	txManager database.TxManager,
	repo MessageRepository,
	sender domain.Sender,
	listeners []Listener,
	connInfo domain.ConnectionInfo,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Engine {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.VisibilityWindow <= 0 {
		config.VisibilityWindow = domain.VisibilityWindow
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		config:    config,
		txManager: txManager,
		repo:      repo,
		sender:    sender,
		listeners: listeners,
		connInfo:  connInfo,
		metrics:   businessMetrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		requests:  make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start runs a catch-up drain pass, registers the listeners and starts the timer and the worker.
//
// Without a sender the engine logs and stays idle. If registering a listener fails, everything
// already started is torn down and the error is returned. ctx bounds the engine's lifetime: once it
// is cancelled no new claims are made.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateNotStarted:
	case StateStopping, StateStopped:
		e.mu.Unlock()
		return domain.ErrEngineStopped
	default:
		e.mu.Unlock()
		return domain.ErrEngineAlreadyStarted
	}

	if e.sender == nil {
		e.state = StateIdle
		e.mu.Unlock()
		e.logger.Info("no outbox sender configured, dispatch disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StateRunning
	e.mu.Unlock()

	e.logger.Info("starting outbox engine",
		slog.Duration("poll_interval", e.config.PollInterval),
		slog.Int("listeners", len(e.listeners)),
	)

	if err := e.start(runCtx); err != nil {
		e.logger.Error("failed to start outbox engine", slog.Any("error", err))
		if stopErr := e.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			e.logger.Error("failed to tear down outbox engine", slog.Any("error", stopErr))
		}
		return err
	}

	return nil
}

func (e *Engine) start(ctx context.Context) error {
	e.Drain(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Stop may have run while the catch-up pass was in flight.
	if e.state != StateRunning {
		return domain.ErrEngineStopped
	}

	for _, listener := range e.listeners {
		if err := listener.Register(ctx, e.connInfo, e.requests); err != nil {
			return fmt.Errorf("failed to register listener: %w", err)
		}
		e.registered = append(e.registered, listener)
	}

	e.wg.Add(2)
	go e.tick(ctx)
	go e.work(ctx)

	return nil
}

// RequestDrain asks the worker for a drain pass. It never blocks; requests made while one is
// already pending are merged into it.
func (e *Engine) RequestDrain() {
	select {
	case e.requests <- struct{}{}:
	default:
	}
}

func (e *Engine) tick(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			e.RequestDrain()
		}
	}
}

func (e *Engine) work(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.requests:
			if ctx.Err() != nil {
				return
			}
			e.Drain(ctx)
		}
	}
}

// Drain claims, sends and finalizes messages until none is eligible, ctx is cancelled or a claim
// fails. Per-message failures are logged and the pass moves on to the next message. Cancellation
// is observed only before a claim: a claimed message is always sent and finalized.
func (e *Engine) Drain(ctx context.Context) DrainResult {
	var result DrainResult
	if e.sender == nil {
		return result
	}

	start := time.Now()
	for ctx.Err() == nil {
		msg, err := e.claimNext(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error("failed to claim outbox message", slog.Any("error", err))
				result.Err = err
			}
			break
		}
		if msg == nil {
			break
		}

		result.Claimed++
		e.dispatch(context.WithoutCancel(ctx), msg, &result)
	}

	status := "success"
	if result.Err != nil {
		status = "error"
	}
	e.metrics.RecordOperation(ctx, metricsDomain, "drain", status)
	e.metrics.RecordDuration(ctx, metricsDomain, "drain", time.Since(start), status)

	if result.Claimed > 0 {
		e.logger.Info("outbox drain pass completed",
			slog.Int("claimed", result.Claimed),
			slog.Int("sent", result.Sent),
			slog.Int("declined", result.Declined),
			slog.Int("failed", result.Failed),
			slog.Int("finalize_failed", result.FinalizeFailed),
			slog.Duration("duration", time.Since(start)),
		)
	}

	return result
}

// claimNext selects the next eligible message and pushes its next_send_time one visibility window
// ahead, in a single transaction. It returns nil when nothing is eligible.
func (e *Engine) claimNext(ctx context.Context) (*domain.Message, error) {
	start := time.Now()

	var claimed *domain.Message
	err := e.txManager.WithTx(ctx, func(ctx context.Context) error {
		now := e.now()

		msg, err := e.repo.SelectNext(ctx, now)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}

		next := now.Add(e.config.VisibilityWindow)
		if err := e.repo.IncrementSendCount(ctx, msg.ID, next); err != nil {
			return err
		}

		msg.SendCount++
		msg.NextSendTime = &next
		claimed = msg
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordOperation(ctx, metricsDomain, "claim", status)
	e.metrics.RecordDuration(ctx, metricsDomain, "claim", time.Since(start), status)

	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox message: %w", err)
	}
	return claimed, nil
}

func (e *Engine) dispatch(ctx context.Context, msg *domain.Message, result *DrainResult) {
	logger := e.logger.With(
		slog.String("message_id", msg.ID.String()),
		slog.String("topic", msg.Topic),
		slog.Int("send_count", msg.SendCount),
	)

	delivered, err := e.send(ctx, msg)
	if err != nil {
		result.Failed++
		logger.Warn("failed to send outbox message", slog.Any("error", err))
		return
	}
	if !delivered {
		result.Declined++
		logger.Warn("outbox message not delivered, retrying after visibility window",
			slog.Time("next_send_time", *msg.NextSendTime),
		)
		return
	}

	err = e.finalize(ctx, msg)
	switch {
	case err == nil:
		result.Sent++
		logger.Debug("outbox message sent")
	case errors.Is(err, domain.ErrAlreadySent):
		result.AlreadySent++
		logger.Warn("outbox message already finalized by another pass")
	default:
		result.FinalizeFailed++
		logger.Error("failed to finalize outbox message, it will be redelivered", slog.Any("error", err))
	}
}

// send calls the sender, turning a panic into an error so one bad message cannot end the pass.
func (e *Engine) send(ctx context.Context, msg *domain.Message) (delivered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			delivered = false
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return e.sender.Send(ctx, msg)
}

// finalize marks the message delivered. It runs outside the claim transaction.
func (e *Engine) finalize(ctx context.Context, msg *domain.Message) error {
	start := time.Now()
	err := e.repo.MarkSent(ctx, msg.ID, e.now())

	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordOperation(ctx, metricsDomain, "finalize", status)
	e.metrics.RecordDuration(ctx, metricsDomain, "finalize", time.Since(start), status)

	return err
}

// Stop cancels the engine, closes the registered listeners and waits for the timer and the worker
// to exit, giving up when ctx expires. It is safe to call more than once, before Start, and after
// a failed Start.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.stopErr = e.stop(ctx)
	})
	return e.stopErr
}

func (e *Engine) stop(ctx context.Context) error {
	e.mu.Lock()
	wasRunning := e.state == StateRunning
	e.state = StateStopping
	cancel := e.cancel
	listeners := e.registered
	e.registered = nil
	e.mu.Unlock()

	if wasRunning {
		e.logger.Info("stopping outbox engine")
	}

	if cancel != nil {
		cancel()
	}

	var errs []error
	for _, listener := range listeners {
		if err := listener.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close listener: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("failed to wait for outbox engine: %w", ctx.Err()))
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	return errors.Join(errs...)
}
