package multiplayer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// worker is a background goroutine with a stop signal and a bounded join.
// A panic inside the goroutine is recovered at its boundary, logged with a
// stack trace, and recorded in health; the goroutine then exits.
type worker struct {
	name string
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startWorker(name string, logger *zap.Logger, h *health, fn func(stop <-chan struct{})) *worker {
	w := &worker{
		name: name,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("background goroutine faulted",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("trace"),
				)
				h.record(name, r)
			}
		}()
		fn(w.stop)
	}()
	return w
}

// Stop signals the goroutine and waits up to timeout for it to exit.
// Stop is idempotent.
func (w *worker) Stop(timeout time.Duration) error {
	w.once.Do(func() { close(w.stop) })
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%s did not stop within %s", w.name, timeout)
	}
}

// Running reports whether the goroutine has not yet exited.
func (w *worker) Running() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// health collects faults from background goroutines so the simulation loop can poll them.
type health struct {
	mu     sync.Mutex
	faults []error
}

func (h *health) record(name string, r any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = append(h.faults, fmt.Errorf("%w: %s: %v", ErrThreadFault, name, r))
}

func (h *health) err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errors.Join(h.faults...)
}

func (h *health) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults = nil
}
