package smp

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/muurk/smpctl/internal/cbor"
)

// fakeClock fires timers synchronously from Advance
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

type sentFrame struct {
	at    time.Duration
	frame []byte
}

// fakeTransport records frames and never answers on its own
type fakeTransport struct {
	mu       sync.Mutex
	clock    *fakeClock
	frames   []sentFrame
	max      int
	sendErr  error
	receiver Receiver
}

func (t *fakeTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	var at time.Duration
	if t.clock != nil {
		at = t.clock.Now()
	}
	t.frames = append(t.frames, sentFrame{at: at, frame: append([]byte(nil), frame...)})
	return nil
}

func (t *fakeTransport) MaxPayload() int { return t.max }

func (t *fakeTransport) SetReceiver(r Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) sent() []sentFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentFrame(nil), t.frames...)
}

// recordingHandler stores every callback as a string
type recordingHandler struct {
	mu     sync.Mutex
	calls  []string
	bodies [][]byte
	errs   []Error
	failed error
	onOK   func()
}

func (h *recordingHandler) record(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, s)
}

func (h *recordingHandler) ReceiveOK(version uint8, op Op, group uint16, command uint8, body []byte) {
	h.mu.Lock()
	h.bodies = append(h.bodies, body)
	h.mu.Unlock()
	h.record(fmt.Sprintf("ok v%d %s g%d c%d", version, op, group, command))
	if h.onOK != nil {
		h.onOK()
	}
}

func (h *recordingHandler) ReceiveError(version uint8, op Op, group uint16, command uint8, err Error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	h.record(fmt.Sprintf("error v%d %s g%d c%d", version, op, group, command))
}

func (h *recordingHandler) Timeout(msg *Message) {
	h.record(fmt.Sprintf("timeout seq%d", msg.Header.Sequence))
}

func (h *recordingHandler) Cancel() { h.record("cancel") }

func (h *recordingHandler) TransportDisconnected() { h.record("disconnected") }

func (h *recordingHandler) TransportError(err error) {
	h.mu.Lock()
	h.failed = err
	h.mu.Unlock()
	h.record("transport error")
}

func (h *recordingHandler) VersionMismatch(requested, received uint8) {
	h.record(fmt.Sprintf("version %d->%d", requested, received))
}

func (h *recordingHandler) DecodeFailed(err error) {
	h.record("decode failed")
}

func (h *recordingHandler) got() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type harness struct {
	clock     *fakeClock
	transport *fakeTransport
	handler   *recordingHandler
	processor *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{}
	tr := &fakeTransport{clock: clock}
	h := &recordingHandler{}
	p := NewProcessor(tr, WithClock(clock))
	p.Register(GroupOS, h)
	return &harness{clock: clock, transport: tr, handler: h, processor: p}
}

func echoRequest(t *testing.T, text string) *Message {
	t.Helper()
	msg := NewMessage(OpWrite, Version2, GroupOS, 0)
	msg.Writer().TextField("d", text)
	if err := msg.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	return msg
}

func encodeBody(t *testing.T, fn func(w *cbor.Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := cbor.NewWriter(&buf)
	w.StartMap()
	fn(w)
	w.End()
	if err := w.Err(); err != nil {
		t.Fatalf("encode error = %v", err)
	}
	return buf.Bytes()
}

func responseTo(req *Message, body []byte) *Message {
	h := req.Header
	h.Op = h.Op.Response()
	return NewResponse(h, body)
}

var errWriteFailed = errors.New("write failed")
