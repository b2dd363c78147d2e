package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tilenet/internal/config"
	"github.com/cory-johannsen/tilenet/internal/protocol"
)

// State is the lifecycle phase of a Conn.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn wraps a TCP socket with a receive loop that decodes catalog messages into a
// bounded inbound queue and a send loop that drains a bounded outbound queue.
// All exported methods are safe for concurrent use.
type Conn struct {
	id     string
	raw    net.Conn
	logger *zap.Logger

	writeTimeout time.Duration
	readBuffer   int

	// decoder is owned by the receive loop.
	decoder  *protocol.Decoder
	inbound  chan protocol.Message
	outbound chan []byte
	pending  atomic.Int64

	state     atomic.Int32
	done      chan struct{} // closed by Close
	gone      chan struct{} // closed when the receive loop exits
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// newConn wraps raw. The connection is in StateConnecting until start is called.
//
// Precondition: raw must be an open network connection; cfg queue sizes must be >= 1.
// Postcondition: Returns a Conn with a fresh UUID identity.
func newConn(raw net.Conn, cfg config.NetworkConfig, logger *zap.Logger) *Conn {
	c := &Conn{
		id:           uuid.NewString(),
		raw:          raw,
		writeTimeout: cfg.WriteTimeout,
		readBuffer:   cfg.ReadBuffer,
		decoder:      protocol.NewBoundedDecoder(cfg.MaxLineLength),
		inbound:      make(chan protocol.Message, cfg.InboundQueue),
		outbound:     make(chan []byte, cfg.OutboundQueue),
		done:         make(chan struct{}),
		gone:         make(chan struct{}),
	}
	c.logger = logger.With(zap.String("conn_id", c.id), zap.String("remote_addr", raw.RemoteAddr().String()))
	c.state.Store(int32(StateConnecting))
	return c
}

// start launches the receive and send loops.
func (c *Conn) start() {
	c.state.Store(int32(StateOpen))
	c.wg.Add(2)
	go c.receiveLoop()
	go c.sendLoop()
}

// receiveLoop reads raw bytes, decodes them, and queues complete messages.
// A full inbound queue blocks the loop until the consumer drains it.
func (c *Conn) receiveLoop() {
	defer c.wg.Done()
	defer close(c.gone)

	buf := make([]byte, c.readBuffer)
	for {
		n, err := c.raw.Read(buf)
		if n > 0 {
			msgs, decodeErr := c.decoder.Decode(buf[:n])
			overflow := errors.Is(decodeErr, protocol.ErrLineTooLong)
			if decodeErr != nil && !overflow {
				c.logger.Warn("dropping malformed message", zap.Error(decodeErr))
			}
			for _, m := range msgs {
				select {
				case c.inbound <- m:
				case <-c.done:
					return
				}
			}
			if overflow {
				c.logger.Warn("dropping connection", zap.Error(decodeErr))
				_ = c.raw.Close()
				return
			}
		}
		if err != nil {
			select {
			case <-c.done:
			default:
				if errors.Is(err, io.EOF) {
					c.logger.Debug("peer closed connection")
				} else {
					c.logger.Info("connection read failed", zap.Error(err))
				}
			}
			return
		}
	}
}

// sendLoop writes queued frames in order.
func (c *Conn) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			if c.writeTimeout > 0 {
				_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			_, err := c.raw.Write(frame)
			c.pending.Add(-1)
			if err != nil {
				c.logger.Info("connection write failed", zap.Error(err))
				// Unblocks the receive loop so the peer is reported gone.
				_ = c.raw.Close()
				return
			}
		}
	}
}

// ID returns the connection identity, stable for the connection's lifetime.
func (c *Conn) ID() string { return c.id }

// State returns the current lifecycle phase.
func (c *Conn) State() State { return State(c.state.Load()) }

// Done returns a channel closed once the connection stops receiving, either because
// the peer went away or because Close was called.
func (c *Conn) Done() <-chan struct{} { return c.gone }

func (c *Conn) closing() bool { return c.State() >= StateClosing }

func (c *Conn) peerGone() bool {
	select {
	case <-c.gone:
		return true
	default:
		return false
	}
}

// Write encodes msgs into one frame and queues it for sending. Write never blocks;
// when the outbound queue is full the frame is dropped and the connection stays open.
//
// Postcondition: Returns nil when queued; ErrConnectionClosed after Close or peer loss;
// ErrQueueFull when the outbound queue has no room; or an encoding error.
func (c *Conn) Write(msgs ...protocol.Message) error {
	frame, err := encodeFrame(msgs)
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// Send encodes msgs into one frame and queues it for sending, waiting up to the
// configured write timeout for room in the outbound queue. A peer that cannot take
// the frame in time is disconnected, so a Send is never silently lost.
//
// Postcondition: Returns nil when queued; ErrConnectionClosed after Close or peer loss;
// an error wrapping ErrQueueFull after the connection was dropped for stalling; or an
// encoding error.
func (c *Conn) Send(msgs ...protocol.Message) error {
	frame, err := encodeFrame(msgs)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

func encodeFrame(msgs []protocol.Message) ([]byte, error) {
	frame, err := protocol.EncodeAll(msgs...)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return frame, nil
}

func (c *Conn) writeFrame(frame []byte) error {
	if c.closing() || c.peerGone() {
		return fmt.Errorf("writing to %s: %w", c.id, ErrConnectionClosed)
	}
	c.pending.Add(1)
	select {
	case c.outbound <- frame:
		return nil
	default:
		c.pending.Add(-1)
		return fmt.Errorf("writing to %s: %w", c.id, ErrQueueFull)
	}
}

func (c *Conn) sendFrame(frame []byte) error {
	if c.closing() || c.peerGone() {
		return fmt.Errorf("sending to %s: %w", c.id, ErrConnectionClosed)
	}
	c.pending.Add(1)
	select {
	case c.outbound <- frame:
		return nil
	default:
	}

	if c.writeTimeout > 0 {
		timer := time.NewTimer(c.writeTimeout)
		defer timer.Stop()
		select {
		case c.outbound <- frame:
			return nil
		case <-c.done:
			c.pending.Add(-1)
			return fmt.Errorf("sending to %s: %w", c.id, ErrConnectionClosed)
		case <-c.gone:
			c.pending.Add(-1)
			return fmt.Errorf("sending to %s: %w", c.id, ErrConnectionClosed)
		case <-timer.C:
		}
	}
	c.pending.Add(-1)

	c.logger.Warn("outbound queue stalled, dropping connection",
		zap.Int("queued", len(c.outbound)),
		zap.Duration("write_timeout", c.writeTimeout),
	)
	// The receive loop then exits and the peer is reported gone.
	_ = c.raw.Close()
	return fmt.Errorf("sending to %s: %w", c.id, ErrQueueFull)
}

// Read blocks until a decoded message is available, the connection ends, or ctx is done.
//
// Postcondition: Returns a message, ErrConnectionClosed, or ctx.Err().
func (c *Conn) Read(ctx context.Context) (protocol.Message, error) {
	if c.closing() {
		return nil, ErrConnectionClosed
	}
	select {
	case m := <-c.inbound:
		return m, nil
	case <-c.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.gone:
		select {
		case m := <-c.inbound:
			return m, nil
		default:
			return nil, ErrConnectionClosed
		}
	}
}

// ReadAll drains every decoded message currently queued without blocking.
//
// Postcondition: Returns the queued messages in arrival order. Returns
// ErrConnectionClosed after Close, or once the peer is gone and the queue is empty.
func (c *Conn) ReadAll() ([]protocol.Message, error) {
	if c.closing() {
		return nil, ErrConnectionClosed
	}
	var msgs []protocol.Message
	for {
		select {
		case m := <-c.inbound:
			msgs = append(msgs, m)
			continue
		default:
		}
		break
	}
	if len(msgs) == 0 && c.peerGone() && len(c.inbound) == 0 {
		return nil, ErrConnectionClosed
	}
	return msgs, nil
}

// drained reports whether the peer is gone and nothing remains to read.
func (c *Conn) drained() bool {
	return c.peerGone() && len(c.inbound) == 0
}

// Flush waits until every queued frame has been written, the connection ends,
// or timeout elapses.
//
// Postcondition: Returns nil when the outbound queue is empty, or an error otherwise.
func (c *Conn) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for c.pending.Load() > 0 {
		if c.closing() || c.peerGone() {
			return fmt.Errorf("flushing %s: %w", c.id, ErrConnectionClosed)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("flushing %s: %d frames still queued after %s", c.id, c.pending.Load(), timeout)
		}
		<-ticker.C
	}
	return nil
}

// Close shuts down the socket, stops both loops, discards queued messages and frames,
// and moves the connection to StateClosed. Close is idempotent.
//
// Postcondition: No goroutine of this Conn is running.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.done)
		if err := c.raw.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = fmt.Errorf("closing %s: %w", c.id, err)
		}
		c.wg.Wait()

		discarded := 0
		for {
			select {
			case <-c.inbound:
				discarded++
				continue
			case <-c.outbound:
				discarded++
				continue
			default:
			}
			break
		}
		c.pending.Store(0)
		c.state.Store(int32(StateClosed))
		c.logger.Debug("connection closed", zap.Int("discarded", discarded))
	})
	return c.closeErr
}
