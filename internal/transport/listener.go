package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener owns a bound TCP socket and runs the accept loop for a Server.
type Listener struct {
	logger *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewListener creates an unbound Listener.
//
// Precondition: logger must be non-nil.
func NewListener(logger *zap.Logger) *Listener {
	return &Listener{
		logger: logger,
		quit:   make(chan struct{}),
	}
}

// Listen binds addr. Use port 0 to bind an ephemeral port and read it back with Addr.
//
// Precondition: Listen must not have been called before.
// Postcondition: The socket is bound and Serve may be called.
func (l *Listener) Listen(addr string) error {
	start := time.Now()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	l.mu.Lock()
	l.listener = listener
	l.running = true
	l.mu.Unlock()

	l.logger.Info("session listener bound",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)
	return nil
}

// Serve accepts connections until Stop is called, passing each to handle on the
// accept goroutine. Serve blocks.
//
// Precondition: Listen must have succeeded.
// Postcondition: Returns nil once stopped.
func (l *Listener) Serve(handle func(net.Conn)) error {
	l.mu.Lock()
	listener := l.listener
	if listener == nil {
		l.mu.Unlock()
		return fmt.Errorf("serve called before listen")
	}
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.wg.Add(1)
	l.mu.Unlock()
	defer l.wg.Done()

	var backoff time.Duration
	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-l.quit:
				return nil
			default:
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff < time.Second {
				backoff *= 2
			}
			l.logger.Error("accepting connection", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		l.logger.Info("client connected", zap.String("remote_addr", raw.RemoteAddr().String()))
		handle(raw)
	}
}

// Stop closes the listening socket and waits for Serve to return.
// Already-accepted connections are unaffected. Stop is idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.quit)
	if l.listener != nil {
		_ = l.listener.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info("session listener stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the listener is accepting connections.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
