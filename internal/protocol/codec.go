package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// Delimiter separates the type name and fields within a line.
	Delimiter = "|"
	// Terminator ends every encoded message.
	Terminator = '\n'
)

// Encode serializes m as "<TypeName>|<field1>|...\n".
//
// Precondition: m must be non-nil.
// Postcondition: Returns the encoded line, or an error wrapping ErrInvalidField when a
// string field contains the delimiter or a line terminator.
func Encode(m Message) ([]byte, error) {
	fields := m.fields()
	var b bytes.Buffer
	b.WriteString(string(m.Kind()))
	for i, f := range fields {
		if strings.ContainsAny(f, Delimiter+"\r\n") {
			entry := catalog[m.Kind()]
			return nil, fmt.Errorf("%w: %s.%s contains a reserved character", ErrInvalidField, m.Kind(), entry.Fields[i])
		}
		b.WriteString(Delimiter)
		b.WriteString(f)
	}
	b.WriteByte(Terminator)
	return b.Bytes(), nil
}

// EncodeAll serializes msgs back to back into a single frame, preserving order.
//
// Postcondition: Returns the concatenated lines, or the first encoding error.
func EncodeAll(msgs ...Message) ([]byte, error) {
	var b bytes.Buffer
	for _, m := range msgs {
		line, err := Encode(m)
		if err != nil {
			return nil, err
		}
		b.Write(line)
	}
	return b.Bytes(), nil
}

// DecodeLine parses a single line without its terminator.
//
// Postcondition: Returns the typed message, or an error wrapping ErrMalformedMessage.
func DecodeLine(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\r")
	parts := strings.Split(line, Delimiter)
	entry, ok := catalog[Kind(parts[0])]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, parts[0])
	}
	fields := parts[1:]
	if len(fields) != entry.Arity() {
		return nil, fmt.Errorf("%w: %s wants %d fields, got %d", ErrFieldCountMismatch, entry.Kind, entry.Arity(), len(fields))
	}
	r := &fieldReader{kind: entry.Kind, fields: fields}
	m := entry.build(r)
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

// Decoder reassembles messages from a byte stream delivered in arbitrary chunks.
// Each connection owns its own Decoder; a Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
	max int // 0 means unlimited
}

// NewDecoder returns an empty Decoder that accepts lines of any length.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// NewBoundedDecoder returns an empty Decoder that rejects any line, complete or
// still pending, longer than max bytes. A max of 0 means unlimited.
func NewBoundedDecoder(max int) *Decoder {
	return &Decoder{max: max}
}

// Decode appends p to the pending buffer and returns every message completed by it,
// in stream order. Bytes after the last terminator are retained for the next call.
// Malformed lines are dropped; their errors are joined into the returned error.
//
// When a line exceeds the decoder's bound, the messages completed before it are
// returned together with an error wrapping ErrLineTooLong and the pending buffer is
// discarded. The stream is no longer framed reliably; callers should drop it.
//
// Postcondition: Never blocks; never discards bytes of an incomplete line within the bound.
func (d *Decoder) Decode(p []byte) ([]Message, error) {
	d.buf = append(d.buf, p...)

	var (
		msgs []Message
		errs []error
	)
	rest := d.buf
	for {
		i := bytes.IndexByte(rest, Terminator)
		if i < 0 {
			break
		}
		if d.tooLong(i) {
			d.buf = d.buf[:0]
			return msgs, errors.Join(append(errs, fmt.Errorf("%w: %d bytes, limit %d", ErrLineTooLong, i, d.max))...)
		}
		line := string(rest[:i])
		rest = rest[i+1:]
		if line == "" || line == "\r" {
			continue
		}
		m, err := DecodeLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}
	if d.tooLong(len(rest)) {
		n := len(rest)
		d.buf = d.buf[:0]
		return msgs, errors.Join(append(errs, fmt.Errorf("%w: %d bytes pending without a terminator, limit %d", ErrLineTooLong, n, d.max))...)
	}
	n := copy(d.buf, rest)
	d.buf = d.buf[:n]

	return msgs, errors.Join(errs...)
}

func (d *Decoder) tooLong(n int) bool {
	return d.max > 0 && n > d.max
}

// Buffered returns the number of bytes held for an incomplete line.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
