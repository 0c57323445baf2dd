// Package notify provides push wake-up sources for the outbox dispatch engine.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/allisson/outbox/internal/outbox/domain"
)

const (
	// DefaultRetryDelay is the pause after an error that did not break the connection.
	DefaultRetryDelay = 5 * time.Second

	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = 60 * time.Second
)

// ErrAlreadyRegistered is returned when Register is called twice on the same listener.
var ErrAlreadyRegistered = errors.New("notification listener already registered")

// notificationConn is the subset of *pgx.Conn the listener uses.
type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
	IsClosed() bool
}

type connector func(ctx context.Context, connString string) (notificationConn, error)

func pgxConnector(ctx context.Context, connString string) (notificationConn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PostgreSQLListener wakes the engine when the outbox insert trigger calls pg_notify.
//
// It keeps one dedicated connection outside the pool, since it blocks indefinitely waiting for
// notifications. When that connection breaks the listener reconnects with exponential backoff
// (1s doubling up to 60s) until it succeeds or is closed. Notification payloads are ignored:
// a notification only means the table is worth scanning again.
type PostgreSQLListener struct {
	channel    string
	logger     *slog.Logger
	connect    connector
	newBackOff func() backoff.BackOff
	retryDelay time.Duration

	mu     sync.Mutex
	conn   notificationConn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPostgreSQLListener creates a listener for channel. An empty channel selects domain.DefaultNotifyChannel.
func NewPostgreSQLListener(channel string, logger *slog.Logger) *PostgreSQLListener {
	if channel == "" {
		channel = domain.DefaultNotifyChannel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgreSQLListener{
		channel:    channel,
		logger:     logger.With(slog.String("listener", "postgresql"), slog.String("channel", channel)),
		connect:    pgxConnector,
		newBackOff: newReconnectBackOff,
		retryDelay: DefaultRetryDelay,
	}
}

// newReconnectBackOff yields 1s, 2s, 4s, ..., 32s, 60s, 60s, ... and never gives up.
func newReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = reconnectMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Register starts the background loop. The first connection is opened by the loop itself, so an
// unreachable database at startup is retried like any other connection loss.
func (l *PostgreSQLListener) Register(ctx context.Context, info domain.ConnectionInfo, requests chan<- struct{}) error {
	if info.Driver != domain.DriverPostgres {
		l.logger.Warn("notification listener requires a postgres connection, listener disabled",
			slog.String("driver", info.Driver),
		)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		return ErrAlreadyRegistered
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(loopCtx, info.ConnectionString, requests)

	l.logger.Info("notification listener registered")
	return nil
}

// Close cancels the loop and waits for it to exit. The loop closes its connection on the way
// out, so no request is pushed once Close returns. Close on a listener that was never registered
// returns nil.
func (l *PostgreSQLListener) Close(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for notification listener: %w", ctx.Err())
	}
}

func (l *PostgreSQLListener) run(ctx context.Context, connString string, requests chan<- struct{}) {
	defer close(l.done)
	defer l.closeConn()

	conn, err := l.establish(ctx, connString)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Error("failed to start notification listener", slog.Any("error", err))
		conn = l.reconnect(ctx, connString)
	}

	for conn != nil {
		notification, err := conn.WaitForNotification(ctx)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			l.logger.Debug("notification received", slog.String("payload", notification.Payload))
			select {
			case requests <- struct{}{}:
			default:
			}
			continue
		}

		if conn.IsClosed() || isConnectionError(err) {
			l.logger.Warn("notification listener connection lost", slog.Any("error", err))
			l.closeConn()
			conn = l.reconnect(ctx, connString)
			continue
		}

		l.logger.Error("failed to wait for notification", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

// establish opens a connection and subscribes it to the channel.
func (l *PostgreSQLListener) establish(ctx context.Context, connString string) (notificationConn, error) {
	conn, err := l.connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect notification listener: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to listen on channel %s: %w", l.channel, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	return conn, nil
}

// reconnect retries establish with backoff. It returns nil only when ctx is cancelled.
func (l *PostgreSQLListener) reconnect(ctx context.Context, connString string) notificationConn {
	var conn notificationConn
	operation := func() error {
		c, err := l.establish(ctx, connString)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		l.logger.Warn("failed to reconnect notification listener",
			slog.Any("error", err),
			slog.Duration("retry_in", next),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(l.newBackOff(), ctx), notify); err != nil {
		return nil
	}

	l.logger.Info("notification listener reconnected")
	return conn
}

func (l *PostgreSQLListener) closeConn() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		l.logger.Warn("failed to close notification connection", slog.Any("error", err))
	}
}

// isConnectionError reports whether err means the connection itself is unusable.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P01..57P03 are server shutdown and startup.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
