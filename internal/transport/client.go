package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tilenet/internal/config"
	"github.com/cory-johannsen/tilenet/internal/protocol"
)

// Client is a single connection to a hosting process.
type Client struct {
	conn *Conn
}

// Dial connects to addr, giving up after cfg.ConnectTimeout.
//
// Precondition: cfg.ConnectTimeout > 0; logger must be non-nil.
// Postcondition: Returns an open Client, or an error wrapping ErrConnectionTimeout when
// the deadline passed before a connection was established.
func Dial(ctx context.Context, addr string, cfg config.NetworkConfig, logger *zap.Logger) (*Client, error) {
	start := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if isTimeout(err) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("connecting to %s after %s: %w", addr, time.Since(start).Round(time.Millisecond), ErrConnectionTimeout)
		}
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	conn := newConn(raw, cfg, logger)
	conn.start()
	conn.logger.Info("connected to host", zap.Duration("elapsed", time.Since(start)))
	return &Client{conn: conn}, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ID returns the connection identity.
func (c *Client) ID() string { return c.conn.ID() }

// State returns the connection lifecycle phase.
func (c *Client) State() State { return c.conn.State() }

// Done returns a channel closed once the connection stops receiving.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// Read blocks for one decoded message.
func (c *Client) Read(ctx context.Context) (protocol.Message, error) { return c.conn.Read(ctx) }

// ReadAll drains every decoded message currently queued without blocking.
func (c *Client) ReadAll() ([]protocol.Message, error) { return c.conn.ReadAll() }

// Write queues msgs as one frame without blocking. See Conn.Write.
func (c *Client) Write(msgs ...protocol.Message) error { return c.conn.Write(msgs...) }

// Send queues msgs as one frame, waiting up to the write timeout for room. See Conn.Send.
func (c *Client) Send(msgs ...protocol.Message) error { return c.conn.Send(msgs...) }

// Flush waits for queued frames to be written.
func (c *Client) Flush(timeout time.Duration) error { return c.conn.Flush(timeout) }

// Close tears the connection down.
func (c *Client) Close() error { return c.conn.Close() }
