// Package server runs the long-lived components of a tilenet process and shuts
// them down in reverse order on a signal, a component failure, or cancellation.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Component is a long-running part of the process.
type Component interface {
	// Start runs the component until ctx is done, Stop is called, or it fails.
	Start(ctx context.Context) error
	// Stop releases the component's resources. It may be called while Start is running.
	Stop() error
}

// ComponentFuncs adapts a start/stop function pair into a Component.
// A nil StopFn is treated as a no-op.
type ComponentFuncs struct {
	StartFn func(ctx context.Context) error
	StopFn  func() error
}

// Start calls StartFn.
func (f ComponentFuncs) Start(ctx context.Context) error { return f.StartFn(ctx) }

// Stop calls StopFn if set.
func (f ComponentFuncs) Stop() error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn()
}

type namedComponent struct {
	name      string
	component Component
}

// Lifecycle starts components in registration order and stops them in reverse.
type Lifecycle struct {
	logger      *zap.Logger
	stopTimeout time.Duration

	mu         sync.Mutex
	components []namedComponent
}

// NewLifecycle creates a Lifecycle.
//
// Precondition: logger must be non-nil; stopTimeout > 0.
func NewLifecycle(logger *zap.Logger, stopTimeout time.Duration) *Lifecycle {
	return &Lifecycle{logger: logger, stopTimeout: stopTimeout}
}

// Add registers a named component.
//
// Precondition: name must be non-empty; c must be non-nil.
func (l *Lifecycle) Add(name string, c Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.components = append(l.components, namedComponent{name: name, component: c})
}

// Run starts every component and blocks until SIGINT or SIGTERM, ctx is done,
// or a component's Start returns. It then stops every component in reverse order.
//
// Postcondition: Returns the error that ended the run, if any, combined with stop errors.
// A component returning nil or context.Canceled ends the run without an error.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	components := append([]namedComponent(nil), l.components...)
	l.mu.Unlock()

	ended := make(chan error, len(components))
	var running sync.WaitGroup
	for _, nc := range components {
		running.Add(1)
		go func() {
			defer running.Done()
			l.logger.Info("starting component", zap.String("component", nc.name))
			err := nc.component.Start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Error("component failed", zap.String("component", nc.name), zap.Error(err))
				ended <- fmt.Errorf("component %s: %w", nc.name, err)
				return
			}
			l.logger.Info("component finished", zap.String("component", nc.name))
			ended <- nil
		}()
	}

	var runErr error
	select {
	case runErr = <-ended:
	case <-ctx.Done():
		l.logger.Info("shutting down", zap.NamedError("cause", context.Cause(ctx)))
	}
	cancel()

	stopErr := l.stopAll(components)

	finished := make(chan struct{})
	go func() {
		running.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(l.stopTimeout):
		stopErr = multierr.Append(stopErr, fmt.Errorf("components still running after %s", l.stopTimeout))
	}

	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(start)))
	return multierr.Append(runErr, stopErr)
}

func (l *Lifecycle) stopAll(components []namedComponent) error {
	var errs error
	for i := len(components) - 1; i >= 0; i-- {
		nc := components[i]
		stopStart := time.Now()
		if err := nc.component.Stop(); err != nil {
			l.logger.Warn("stopping component", zap.String("component", nc.name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("stopping %s: %w", nc.name, err))
			continue
		}
		l.logger.Info("component stopped",
			zap.String("component", nc.name),
			zap.Duration("elapsed", time.Since(stopStart)),
		)
	}
	return errs
}
