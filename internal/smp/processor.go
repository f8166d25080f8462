package smp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/smpctl/internal/cbor"
)

// Transaction defaults
const (
	DefaultTimeout = 3 * time.Second
	DefaultRetries = 3
)

// Processor states and events
const (
	StateIdle     = "idle"
	StateAwaiting = "awaiting-response"

	eventSend   = "send"
	eventFinish = "finish"
)

// Send errors
var (
	ErrBusy            = errors.New("smp: transaction already in progress")
	ErrMessageTooLarge = errors.New("smp: message too large for transport")
	ErrNilMessage      = errors.New("smp: nil message")
	ErrNilHandler      = errors.New("smp: nil handler")
)

// Processor runs at most one SMP transaction at a time over a Transport and
// dispatches its outcome to the Handler registered for the request's group.
type Processor struct {
	mu        sync.Mutex
	transport Transport
	clock     Clock
	log       *zap.Logger
	state     *fsm.FSM
	handlers  map[uint16]Handler

	sequence uint8

	// outstanding transaction
	owner      Handler
	last       *Message
	lastFrame  []byte
	retries    int
	interval   time.Duration
	timer      Timer
	generation uint64
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock replaces the clock used for response timers.
func WithClock(c Clock) Option {
	return func(p *Processor) {
		p.clock = c
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		p.log = l
	}
}

// NewProcessor creates an idle processor. If t is not nil the processor
// becomes its receiver.
func NewProcessor(t Transport, opts ...Option) *Processor {
	p := &Processor{
		clock:    SystemClock,
		log:      zap.NewNop(),
		handlers: make(map[uint16]Handler),
		state: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: eventSend, Src: []string{StateIdle}, Dst: StateAwaiting},
				{Name: eventFinish, Src: []string{StateAwaiting}, Dst: StateIdle},
			},
			fsm.Callbacks{},
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	if t != nil {
		p.SetTransport(t)
	}
	return p
}

// SetTransport replaces the transport. An outstanding transaction is
// cancelled first.
func (p *Processor) SetTransport(t Transport) {
	p.Cancel()
	p.mu.Lock()
	p.transport = t
	p.mu.Unlock()
	if t != nil {
		t.SetReceiver(p)
	}
}

// Register sets the handler for group, replacing any previous one.
func (p *Processor) Register(group uint16, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[group] = h
}

// Unregister removes the handler for group.
func (p *Processor) Unregister(group uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, group)
}

// Busy reports whether a transaction is outstanding.
func (p *Processor) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.state.Is(StateIdle)
}

// State returns the current state name.
func (p *Processor) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Current()
}

// MaxMessageDataSize returns the largest body the current transport
// accepts, or 0 when unlimited or not connected.
func (p *Processor) MaxMessageDataSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport == nil {
		return 0
	}
	return p.transport.MaxPayload()
}

// Send starts a transaction. It fails with ErrBusy while another one is
// outstanding, with ErrMessageTooLarge when the body does not fit the
// transport, and with an error matching ErrTransport when the write fails;
// in all of these cases nothing changes. On success the outcome is always
// delivered later to the group's Handler.
func (p *Processor) Send(msg *Message, timeout time.Duration, retries int) error {
	return p.send(nil, msg, timeout, retries)
}

// SendTo is Send with the outcome delivered to h instead of the handler
// registered for the request's group.
func (p *Processor) SendTo(h Handler, msg *Message, timeout time.Duration, retries int) error {
	if h == nil {
		return ErrNilHandler
	}
	return p.send(h, msg, timeout, retries)
}

func (p *Processor) send(owner Handler, msg *Message, timeout time.Duration, retries int) error {
	if msg == nil {
		return ErrNilMessage
	}
	if msg.Writer() != nil {
		return ErrNotFinished
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Is(StateIdle) {
		return ErrBusy
	}
	if p.transport == nil {
		return ClassifyTransportError("send", ErrNotConnected)
	}
	if max := p.transport.MaxPayload(); max > 0 && len(msg.Body()) > max {
		return fmt.Errorf("%w: body is %d bytes, limit %d", ErrMessageTooLarge, len(msg.Body()), max)
	}

	msg.Header.Sequence = p.sequence
	frame := msg.Bytes()
	if err := p.transport.Send(frame); err != nil {
		return ClassifyTransportError("send", err)
	}
	p.sequence++

	if err := p.state.Event(context.Background(), eventSend); err != nil {
		return fmt.Errorf("failed to enter %s: %w", StateAwaiting, err)
	}
	p.generation++
	p.owner = owner
	p.last = msg
	p.lastFrame = frame
	p.retries = retries
	p.interval = timeout
	p.arm()

	p.log.Debug("Request sent",
		zap.Stringer("header", msg.Header),
		zap.Duration("timeout", timeout),
		zap.Int("retries", retries))
	return nil
}

// arm starts the response timer for the current generation. Caller holds mu.
func (p *Processor) arm() {
	gen := p.generation
	p.timer = p.clock.AfterFunc(p.interval, func() {
		p.expired(gen)
	})
}

func (p *Processor) expired(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || !p.state.Is(StateAwaiting) {
		p.mu.Unlock()
		return
	}

	if p.retries > 0 {
		p.retries--
		err := p.transport.Send(p.lastFrame)
		if err == nil {
			p.log.Debug("Request retransmitted",
				zap.Stringer("header", p.last.Header),
				zap.Int("retries_left", p.retries))
			p.arm()
			p.mu.Unlock()
			return
		}

		// A rejected write ends the transaction; it is never retried.
		h := p.handler()
		p.finish()
		p.mu.Unlock()

		err = ClassifyTransportError("send", err)
		p.log.Warn("Retransmission failed", zap.Error(err))
		if h != nil {
			h.TransportError(err)
		}
		return
	}

	msg := p.last
	h := p.handler()
	p.finish()
	p.mu.Unlock()

	p.log.Debug("Request timed out", zap.Stringer("header", msg.Header))
	if h != nil {
		h.Timeout(msg)
	}
}

// handler returns who receives the outcome of the outstanding transaction.
// Caller holds mu.
func (p *Processor) handler() Handler {
	if p.owner != nil {
		return p.owner
	}
	return p.handlers[p.last.Header.Group]
}

// finish disarms the timer and returns to idle. Caller holds mu.
func (p *Processor) finish() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.generation++
	p.owner = nil
	p.last = nil
	p.lastFrame = nil
	p.retries = 0
	if p.state.Is(StateAwaiting) {
		if err := p.state.Event(context.Background(), eventFinish); err != nil {
			p.log.Warn("Failed to return to idle", zap.Error(err))
			p.state.SetState(StateIdle)
		}
	}
}

// MessageReceived implements Receiver. Responses that do not answer the
// outstanding request are logged and dropped without being decoded.
func (p *Processor) MessageReceived(msg *Message) {
	p.mu.Lock()
	if !p.state.Is(StateAwaiting) {
		p.mu.Unlock()
		p.log.Debug("Dropping unsolicited message", zap.Stringer("header", msg.Header))
		return
	}

	req := p.last.Header
	if reason := msg.Header.mismatch(req); reason != "" {
		p.mu.Unlock()
		p.log.Debug("Dropping unexpected response",
			zap.String("reason", reason),
			zap.Stringer("header", msg.Header))
		return
	}

	h := p.handler()
	p.finish()
	p.mu.Unlock()

	if h == nil {
		p.log.Warn("No handler registered for response", zap.String("group", GroupName(req.Group)))
		return
	}

	if ce := p.log.Check(zapcore.DebugLevel, "Response received"); ce != nil {
		diag, _ := cbor.Diagnose(msg.Body())
		ce.Write(zap.Stringer("header", msg.Header), zap.String("body", diag))
	}

	version := msg.Header.Version
	if version != req.Version {
		h.VersionMismatch(req.Version, version)
	}

	smpErr, err := DecodeError(msg.Body(), version)
	if err != nil {
		p.log.Debug("Response decode failed", zap.Error(err))
		h.DecodeFailed(err)
		return
	}

	if smpErr.IsNone() {
		h.ReceiveOK(version, msg.Header.Op, msg.Header.Group, msg.Header.Command, msg.Body())
		return
	}
	h.ReceiveError(version, msg.Header.Op, msg.Header.Group, msg.Header.Command, smpErr)
}

// Cancel abandons the outstanding transaction and notifies its handler. A
// late response or timer for it is ignored. It is a no-op when idle.
func (p *Processor) Cancel() {
	if h := p.abort(); h != nil {
		h.Cancel()
	}
}

// TransportDisconnected implements Receiver.
func (p *Processor) TransportDisconnected() {
	p.log.Debug("Transport disconnected")
	if h := p.abort(); h != nil {
		h.TransportDisconnected()
	}
}

func (p *Processor) abort() Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Is(StateAwaiting) {
		return nil
	}
	h := p.handler()
	p.finish()
	return h
}
