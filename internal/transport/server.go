package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tilenet/internal/config"
	"github.com/cory-johannsen/tilenet/internal/protocol"
)

// Envelope pairs a decoded message with the connection it arrived on.
type Envelope struct {
	ConnID  string
	Message protocol.Message
}

// Server accepts clients and tracks their connections by id.
// All methods are safe for concurrent use.
type Server struct {
	cfg    config.NetworkConfig
	logger *zap.Logger

	listener *Listener
	serveWG  sync.WaitGroup

	mu     sync.RWMutex
	conns  map[string]*Conn
	order  []string // accept order, for stable iteration
	closed bool
}

// NewServer creates an unbound Server.
//
// Precondition: logger must be non-nil; cfg queue sizes must be >= 1.
func NewServer(cfg config.NetworkConfig, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*Conn),
	}
}

// Bind listens on host:port and starts the accept loop.
//
// Precondition: Bind must not have been called before.
// Postcondition: Accepted connections are tracked until closed.
func (s *Server) Bind(host string, port int) error {
	l := NewListener(s.logger)
	if err := l.Listen(net.JoinHostPort(host, strconv.Itoa(port))); err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.serveWG.Add(1)
	go func() {
		defer s.serveWG.Done()
		if err := l.Serve(s.accept); err != nil {
			s.logger.Error("accept loop exited", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) accept(raw net.Conn) {
	conn := newConn(raw, s.cfg, s.logger)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = raw.Close()
		return
	}
	s.conns[conn.ID()] = conn
	s.order = append(s.order, conn.ID())
	conn.start()
	s.mu.Unlock()

	conn.logger.Info("connection registered")
}

// Addr returns the bound address, or "" before Bind.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// ConnectionIDs returns the ids of all tracked connections in accept order.
func (s *Server) ConnectionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of tracked connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) snapshot() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conn, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conns[id])
	}
	return out
}

// Write broadcasts msgs as one frame to every tracked connection without blocking.
// A connection whose outbound queue is full misses the frame and stays open; use it
// for state that the next write supersedes.
//
// Postcondition: The frame is queued on every connection that had room; failures are
// combined. Returns ErrConnectionClosed after Close.
func (s *Server) Write(msgs ...protocol.Message) error {
	return s.broadcast(msgs, (*Conn).writeFrame)
}

// Send broadcasts msgs as one frame to every tracked connection, waiting up to the
// write timeout per connection for queue room. A connection that stays full is
// dropped and later reported by Disconnected.
//
// Postcondition: The frame is queued on every live connection, or that connection is
// closed; failures are combined. Returns ErrConnectionClosed after Close.
func (s *Server) Send(msgs ...protocol.Message) error {
	return s.broadcast(msgs, (*Conn).sendFrame)
}

// WriteTo queues msgs as one frame on the connection with the given id without blocking.
//
// Postcondition: Returns ErrUnknownConnection if id is not tracked and
// ErrConnectionClosed after Close.
func (s *Server) WriteTo(id string, msgs ...protocol.Message) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	return c.Write(msgs...)
}

// SendTo queues msgs as one frame on the connection with the given id, with the
// same stall handling as Send.
//
// Postcondition: Returns ErrUnknownConnection if id is not tracked and
// ErrConnectionClosed after Close.
func (s *Server) SendTo(id string, msgs ...protocol.Message) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	return c.Send(msgs...)
}

func (s *Server) broadcast(msgs []protocol.Message, enqueue func(*Conn, []byte) error) error {
	if s.isClosed() {
		return fmt.Errorf("broadcasting: %w", ErrConnectionClosed)
	}
	frame, err := encodeFrame(msgs)
	if err != nil {
		return err
	}
	var errs error
	for _, c := range s.snapshot() {
		errs = multierr.Append(errs, enqueue(c, frame))
	}
	return errs
}

func (s *Server) lookup(id string) (*Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("writing to %s: %w", id, ErrConnectionClosed)
	}
	c, ok := s.conns[id]
	if !ok {
		return nil, fmt.Errorf("writing to %s: %w", id, ErrUnknownConnection)
	}
	return c, nil
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ReadAll drains every decoded message currently queued on every connection
// without blocking. Order is preserved per connection.
func (s *Server) ReadAll() []Envelope {
	var out []Envelope
	for _, c := range s.snapshot() {
		msgs, _ := c.ReadAll()
		for _, m := range msgs {
			out = append(out, Envelope{ConnID: c.ID(), Message: m})
		}
	}
	return out
}

// Disconnected removes and closes every connection whose peer has gone away and
// whose queued messages have all been read, returning their ids.
// A connection is reported only after its last message has been drained by ReadAll.
func (s *Server) Disconnected() []string {
	var (
		ids  []string
		dead []*Conn
	)
	s.mu.Lock()
	for _, id := range s.order {
		if c := s.conns[id]; c.drained() {
			ids = append(ids, id)
			dead = append(dead, c)
		}
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	for _, c := range dead {
		_ = c.Close()
	}
	return ids
}

// CloseClient closes and forgets the connection with the given id.
//
// Postcondition: Returns ErrUnknownConnection if id is not tracked.
func (s *Server) CloseClient(id string) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	if ok {
		s.removeLocked(id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("closing %s: %w", id, ErrUnknownConnection)
	}
	return c.Close()
}

func (s *Server) removeLocked(id string) {
	delete(s.conns, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Flush waits, up to timeout in total, for every connection's queued frames to be written.
func (s *Server) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var errs error
	for _, c := range s.snapshot() {
		errs = multierr.Append(errs, c.Flush(time.Until(deadline)))
	}
	return errs
}

// Close stops accepting, closes every connection, and forgets them. Close is idempotent.
//
// Postcondition: No goroutine of this Server or its connections is running.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	conns := make([]*Conn, 0, len(s.conns))
	for _, id := range s.order {
		conns = append(conns, s.conns[id])
	}
	s.conns = make(map[string]*Conn)
	s.order = nil
	s.mu.Unlock()

	if listener != nil {
		listener.Stop()
	}
	s.serveWG.Wait()

	var errs error
	for _, c := range conns {
		errs = multierr.Append(errs, c.Close())
	}
	s.logger.Info("session server closed", zap.Int("connections", len(conns)))
	return errs
}
