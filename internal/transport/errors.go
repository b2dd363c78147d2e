// Package transport carries catalog messages over TCP: a Listener accept loop, a
// Server that tracks many connections, a Client that holds one, and the Conn
// that gives every socket its own reader, writer, decoder and bounded queues.
package transport

import "errors"

var (
	// ErrConnectionTimeout reports a connect attempt that exceeded its deadline.
	ErrConnectionTimeout = errors.New("connection timed out")
	// ErrConnectionClosed reports an operation against a torn-down connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrQueueFull reports an outbound queue with no free slot.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrUnknownConnection reports a connection id the server does not hold.
	ErrUnknownConnection = errors.New("unknown connection")
)
