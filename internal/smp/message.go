package smp

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/muurk/smpctl/internal/cbor"
)

// Message errors
var (
	ErrLengthMismatch = errors.New("smp: body length does not match header")
	ErrBodyTooLong    = errors.New("smp: body exceeds 65535 bytes")
	ErrNotFinished    = errors.New("smp: message body not finished")
)

// Message is a header plus an encoded CBOR body.
//
// Outgoing messages are built with NewMessage: the root map is opened
// immediately, fields are appended through Writer and End closes the map and
// fixes the header length. Incoming messages come from ParseMessage.
type Message struct {
	Header Header

	body   []byte
	buf    *bytes.Buffer
	writer *cbor.Writer
}

// NewMessage starts an outgoing message with an open root map.
func NewMessage(op Op, version uint8, group uint16, command uint8) *Message {
	m := &Message{
		Header: Header{Op: op, Version: version, Group: group, Command: command},
		buf:    &bytes.Buffer{},
	}
	m.writer = cbor.NewWriter(m.buf)
	m.writer.StartMap()
	return m
}

// Writer returns the body writer. It is nil for parsed or finished messages.
func (m *Message) Writer() *cbor.Writer {
	return m.writer
}

// End closes the root map and freezes the body.
func (m *Message) End() error {
	if m.writer == nil {
		return nil
	}
	w := m.writer
	for w.Err() == nil && w.Depth() > 0 {
		w.End()
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	if m.buf.Len() > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLong, m.buf.Len())
	}
	m.body = m.buf.Bytes()
	m.Header.Length = uint16(len(m.body))
	m.writer = nil
	m.buf = nil
	return nil
}

// Body returns the encoded body.
func (m *Message) Body() []byte {
	return m.body
}

// Size returns the encoded size of the message including the header.
func (m *Message) Size() int {
	return HeaderSize + len(m.body)
}

// Bytes returns header and body as one frame. Calling it on a message whose
// body is still open returns nil.
func (m *Message) Bytes() []byte {
	if m.writer != nil {
		return nil
	}
	out := make([]byte, HeaderSize+len(m.body))
	m.Header.Put(out)
	copy(out[HeaderSize:], m.body)
	return out
}

// ParseMessage decodes a complete frame. The body length must match the
// header exactly.
func ParseMessage(data []byte) (*Message, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if len(data)-HeaderSize != int(h.Length) {
		return nil, fmt.Errorf("%w: header says %d, got %d", ErrLengthMismatch, h.Length, len(data)-HeaderSize)
	}
	body := make([]byte, h.Length)
	copy(body, data[HeaderSize:])
	return &Message{Header: h, body: body}, nil
}

// NewResponse builds a finished message from a header and an already encoded
// body. Mostly useful to transports and tests.
func NewResponse(h Header, body []byte) *Message {
	h.Length = uint16(len(body))
	return &Message{Header: h, body: append([]byte(nil), body...)}
}
