// Package testutil provides helpers shared by transport and session tests.
package testutil

import (
	"errors"
	"net"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/cory-johannsen/tilenet/internal/config"
	"github.com/cory-johannsen/tilenet/internal/protocol"
)

// LineClient is a raw wire-protocol peer for integration testing. It speaks the
// line format directly over a socket, bypassing the transport package.
type LineClient struct {
	conn    net.Conn
	decoder *protocol.Decoder
	queued  []protocol.Message
	t       *testing.T
}

// NewLineClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LineClient or fails the test.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("line client connected to %s [%s]", addr, time.Since(start))
	return &LineClient{
		conn:    conn,
		decoder: protocol.NewDecoder(),
		t:       t,
	}
}

// Send encodes m and writes it.
func (c *LineClient) Send(m protocol.Message) {
	c.t.Helper()
	frame, err := protocol.Encode(m)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", m.Kind(), err)
	}
	c.SendRaw(frame)
}

// SendRaw writes bytes as-is, for framing and malformed-input tests.
func (c *LineClient) SendRaw(b []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("sending %q: %v", b, err)
	}
}

// Next returns the next decoded message, failing the test on timeout.
func (c *LineClient) Next(timeout time.Duration) protocol.Message {
	c.t.Helper()
	m, ok := c.next(timeout)
	if !ok {
		c.t.Fatalf("no message within %s", timeout)
	}
	return m
}

// Collect gathers messages until none arrives for quiet.
func (c *LineClient) Collect(quiet time.Duration) []protocol.Message {
	c.t.Helper()
	var out []protocol.Message
	for {
		m, ok := c.next(quiet)
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

// Until returns messages up to and including the first of the given kind,
// failing the test if it does not arrive within timeout.
func (c *LineClient) Until(kind protocol.Kind, timeout time.Duration) []protocol.Message {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	var out []protocol.Message
	for {
		m, ok := c.next(time.Until(deadline))
		if !ok {
			c.t.Fatalf("no %s within %s; got %v", kind, timeout, out)
		}
		out = append(out, m)
		if m.Kind() == kind {
			return out
		}
	}
}

// Closed reports whether the peer closed the connection within timeout.
func (c *LineClient) Closed(timeout time.Duration) bool {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		_, err := c.conn.Read(buf)
		if err == nil {
			continue
		}
		return !errors.Is(err, os.ErrDeadlineExceeded)
	}
	return false
}

// Close closes the underlying connection.
func (c *LineClient) Close() {
	c.conn.Close()
}

func (c *LineClient) next(timeout time.Duration) (protocol.Message, bool) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1024)
	for len(c.queued) == 0 {
		if !time.Now().Before(deadline) {
			return nil, false
		}
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		if n > 0 {
			msgs, decodeErr := c.decoder.Decode(buf[:n])
			if decodeErr != nil {
				c.t.Fatalf("decoding server output: %v", decodeErr)
			}
			c.queued = append(c.queued, msgs...)
		}
		if err != nil && len(c.queued) == 0 {
			return nil, false
		}
	}
	m := c.queued[0]
	c.queued = c.queued[1:]
	return m, true
}

// Find reports whether msgs contains a message equal to want.
func Find(msgs []protocol.Message, want protocol.Message) bool {
	for _, m := range msgs {
		if reflect.DeepEqual(m, want) {
			return true
		}
	}
	return false
}

// NetworkConfig returns transport settings suited to loopback tests.
func NetworkConfig() config.NetworkConfig {
	return config.NetworkConfig{
		Host:           "127.0.0.1",
		Port:           0,
		ConnectTimeout: 2 * time.Second,
		WriteTimeout:   2 * time.Second,
		ReadBuffer:     512,
		InboundQueue:   64,
		OutboundQueue:  64,
		MaxLineLength:  1024,
	}
}

// SessionConfig returns session settings with short intervals for tests.
func SessionConfig() config.SessionConfig {
	return config.SessionConfig{
		PollInterval:        2 * time.Millisecond,
		InboxSize:           256,
		TurnDuration:        100 * time.Millisecond,
		TurnResolution:      10 * time.Millisecond,
		ActionPointsPerTurn: 100,
		StopTimeout:         2 * time.Second,
		FlushTimeout:        500 * time.Millisecond,
	}
}
