package smp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Receiver consumes what a Transport reads. Processor implements it.
type Receiver interface {
	MessageReceived(msg *Message)
	TransportDisconnected()
}

// Transport moves complete SMP frames to and from a device.
//
// Send must not call back into the Receiver on the calling goroutine;
// responses are delivered from the transport's own reader.
type Transport interface {
	// Send writes one frame (header and body).
	Send(frame []byte) error
	// MaxPayload returns the largest body the transport can carry, or 0
	// when unlimited.
	MaxPayload() int
	// SetReceiver sets where received messages are delivered.
	SetReceiver(r Receiver)
	// Close releases the transport. A closed transport does not report
	// TransportDisconnected.
	Close() error
}

// Transport errors
var (
	ErrTransport    = errors.New("smp: transport error")
	ErrNotConnected = errors.New("smp: transport not connected")
)

// TransportErrorKind classifies a transport failure
type TransportErrorKind int

const (
	TransportErrorGeneral TransportErrorKind = iota
	TransportErrorTimeout
	TransportErrorConnectionRefused
	TransportErrorUnreachable
	TransportErrorClosed
)

// String returns a human-readable name for the kind
func (k TransportErrorKind) String() string {
	switch k {
	case TransportErrorGeneral:
		return "transport error"
	case TransportErrorTimeout:
		return "write timed out"
	case TransportErrorConnectionRefused:
		return "connection refused"
	case TransportErrorUnreachable:
		return "destination unreachable"
	case TransportErrorClosed:
		return "transport closed"
	default:
		return fmt.Sprintf("TransportErrorKind(%d)", int(k))
	}
}

// TransportError wraps a failure reported by a Transport. errors.Is matches
// it against ErrTransport.
type TransportError struct {
	Kind TransportErrorKind
	Op   string // e.g. "send", "open"
	Err  error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ClassifyTransportError wraps err in a TransportError with a best-effort
// kind. A nil err returns nil; an existing TransportError is returned as is.
func ClassifyTransportError(op string, err error) *TransportError {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	kind := TransportErrorGeneral
	var opErr *net.OpError
	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrClosed):
		kind = TransportErrorClosed
	case os.IsTimeout(err):
		kind = TransportErrorTimeout
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED):
		kind = TransportErrorConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		kind = TransportErrorUnreachable
	}
	return &TransportError{Kind: kind, Op: op, Err: err}
}
