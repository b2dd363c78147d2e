package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage is the parent of every decode failure. A malformed line is
// dropped; the stream it arrived on remains usable.
var ErrMalformedMessage = errors.New("malformed message")

var (
	// ErrUnknownMessageType reports a line whose type name is not in the catalog.
	ErrUnknownMessageType = fmt.Errorf("%w: unknown message type", ErrMalformedMessage)
	// ErrFieldCountMismatch reports a line whose field count differs from the declared arity.
	ErrFieldCountMismatch = fmt.Errorf("%w: field count mismatch", ErrMalformedMessage)
	// ErrInvalidField reports a field that cannot be cast to, or encoded as, its declared type.
	ErrInvalidField = fmt.Errorf("%w: invalid field", ErrMalformedMessage)
)

// ErrLineTooLong reports a line that exceeds a bounded Decoder's limit. Unlike
// ErrMalformedMessage, it leaves the stream unusable.
var ErrLineTooLong = errors.New("line too long")
