// Package server provides application lifecycle management including
// graceful startup and shutdown with signal handling.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// A service is a named start/stop pair. Start blocks until the service
// exits; Stop asks it to exit.
type service struct {
	name  string
	start func() error
	stop  func()
}

// Lifecycle runs a set of long-lived services and tears them down in
// reverse registration order on the first failure or termination signal.
type Lifecycle struct {
	logger *zap.Logger

	mu       sync.Mutex
	services []service
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a service. Start functions run concurrently once Run is
// called; stop functions run in reverse registration order.
//
// Precondition: name must be non-empty; start and stop must be non-nil.
func (l *Lifecycle) Add(name string, start func() error, stop func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, service{name: name, start: start, stop: stop})
}

// Run starts every registered service and blocks until one of them fails,
// the context is cancelled, or SIGINT/SIGTERM arrives. All services are
// stopped before Run returns.
//
// Postcondition: Returns the error of the first failed service, or nil on
// a clean shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	began := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	services := make([]service, len(l.services))
	copy(services, l.services)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, svc := range services {
		svc := svc
		go func() {
			l.logger.Info("starting service", zap.String("service", svc.name))
			if err := svc.start(); err != nil {
				errCh <- fmt.Errorf("service %s: %w", svc.name, err)
				cancel()
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		// A failing service cancels the context too; prefer its error.
		select {
		case runErr = <-errCh:
			l.logger.Error("service error, shutting down", zap.Error(runErr))
		default:
			l.logger.Info("context cancelled, shutting down")
		}
	}

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		stopStart := time.Now()
		svc.stop()
		l.logger.Info("service stopped",
			zap.String("service", svc.name),
			zap.Duration("elapsed", time.Since(stopStart)),
		)
	}

	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(began)))
	return runErr
}
