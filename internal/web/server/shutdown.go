package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShutdownHook is called after the servers stopped accepting requests
type ShutdownHook func(ctx context.Context) error

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout bounds server draining and hooks together
	Timeout time.Duration

	// Signals to listen for (default: SIGINT, SIGTERM)
	Signals []os.Signal

	Logger *zap.Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// GracefulShutdown runs servers until a signal arrives, then drains them
// and runs the registered hooks
type GracefulShutdown struct {
	servers []*Server
	hooks   []namedHook
	timeout time.Duration
	signals []os.Signal
	logger  *zap.Logger

	mu           sync.Mutex
	shutdownOnce sync.Once
	done         chan struct{}
	err          error
}

type namedHook struct {
	name string
	fn   ShutdownHook
}

// NewGracefulShutdown creates a shutdown handler for servers
func NewGracefulShutdown(config *ShutdownConfig, servers ...*Server) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	signals := config.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GracefulShutdown{
		servers: servers,
		timeout: timeout,
		signals: signals,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook registers a hook; hooks run in registration order
func (gs *GracefulShutdown) RegisterHook(name string, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, namedHook{name: name, fn: hook})
}

// Run serves all servers until ctx is done, a signal arrives, or a server
// fails, and then shuts down. A server failure is returned after shutdown.
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, gs.signals...)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range gs.servers {
		s := s
		g.Go(s.Serve)
	}

	<-gctx.Done()
	if ctx.Err() != nil {
		gs.logger.Info("shutdown signal received")
	}

	shutdownErr := gs.Shutdown()
	if err := g.Wait(); err != nil {
		return err
	}
	return shutdownErr
}

// Shutdown drains the servers and runs the hooks. It is safe to call more
// than once; every call returns the result of the first.
func (gs *GracefulShutdown) Shutdown() error {
	gs.shutdownOnce.Do(func() {
		defer close(gs.done)

		gs.logger.Info("shutting down", zap.Duration("timeout", gs.timeout))
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		var errs []error
		for _, s := range gs.servers {
			if err := s.Shutdown(ctx); err != nil {
				gs.logger.Error("server shutdown failed", zap.String("server", s.Name()), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s server shutdown: %w", s.Name(), err))
			}
		}

		gs.mu.Lock()
		hooks := append([]namedHook(nil), gs.hooks...)
		gs.mu.Unlock()

		for _, hook := range hooks {
			if err := hook.fn(ctx); err != nil {
				gs.logger.Error("shutdown hook failed", zap.String("hook", hook.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
			}
		}

		gs.err = errors.Join(errs...)
		if gs.err == nil {
			gs.logger.Info("shutdown complete")
		}
	})

	<-gs.done
	return gs.err
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
