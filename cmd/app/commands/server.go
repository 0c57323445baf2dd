package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/outbox/internal/app"
	"github.com/allisson/outbox/internal/config"
)

// server is a blocking listener that returns from Start once Shutdown is called.
type server interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type namedServer struct {
	name   string
	server server
}

// lifecycle is the part of the dispatch engine a long-running process drives.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RunServer starts the API server, the metrics server and the outbox engine in one process.
// Blocks until SIGINT/SIGTERM or a fatal server error, then shuts everything down within
// DBConnMaxLifetime.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	apiServer, err := container.HTTPServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	engine, err := container.Engine()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox engine: %w", err)
	}

	servers := []namedServer{{name: "api server", server: apiServer}}
	if metricsServer != nil {
		servers = append(servers, namedServer{name: "metrics server", server: metricsServer})
	}

	return serve(ctx, logger, cfg.DBConnMaxLifetime, engine, servers)
}

// RunWorker runs the outbox engine without the API server. The metrics server still starts when
// metrics are enabled, so the worker can be scraped and probed on /health.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	engine, err := container.Engine()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox engine: %w", err)
	}

	var servers []namedServer
	if metricsServer != nil {
		servers = append(servers, namedServer{name: "metrics server", server: metricsServer})
	}

	return serve(ctx, logger, cfg.DBConnMaxLifetime, engine, servers)
}

// serve starts engine and servers, then waits until ctx is done or a server fails. Everything is
// shut down within shutdownTimeout; servers stop before the engine so no request is accepted while
// the last drain pass finishes.
func serve(
	ctx context.Context,
	logger *slog.Logger,
	shutdownTimeout time.Duration,
	engine lifecycle,
	servers []namedServer,
) error {
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start outbox engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		g.Go(func() error {
			if err := s.server.Start(gctx); err != nil {
				return fmt.Errorf("%s error: %w", s.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		} else {
			logger.Error("server error, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var shutdownErrors []error
		for _, s := range servers {
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("%s shutdown: %w", s.name, err))
			}
		}
		if err := engine.Stop(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("outbox engine stop: %w", err))
		}

		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}
