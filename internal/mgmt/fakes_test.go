package mgmt

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// manualClock fires due timers from Advance
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at   time.Duration
	f    func()
	done bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) smp.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return &manualStop{clock: c, timer: t}
}

type manualStop struct {
	clock *manualClock
	timer *manualTimer
}

func (s *manualStop) Stop() bool {
	s.clock.mu.Lock()
	defer s.clock.mu.Unlock()
	active := !s.timer.done
	s.timer.done = true
	return active
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if !t.done && t.at <= target && (next == nil || t.at < next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		next.done = true
		c.mu.Unlock()
		next.f()
	}
}

// captureTransport records frames for the test to answer
type captureTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	max     int
	sendErr error
}

func (t *captureTransport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.frames = append(t.frames, append([]byte(nil), frame...))
	return nil
}

func (t *captureTransport) MaxPayload() int          { return t.max }
func (t *captureTransport) SetReceiver(smp.Receiver) {}
func (t *captureTransport) Close() error             { return nil }

func (t *captureTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

func (t *captureTransport) last() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

type statusEvent struct {
	status  Status
	message string
}

type statusLog struct {
	mu     sync.Mutex
	events []statusEvent
}

func (l *statusLog) record(status Status, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, statusEvent{status, message})
}

func (l *statusLog) got() []statusEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]statusEvent(nil), l.events...)
}

// only returns the single recorded event or fails the test
func (l *statusLog) only(t *testing.T) statusEvent {
	t.Helper()
	events := l.got()
	if len(events) != 1 {
		t.Fatalf("got %d status events %v, want 1", len(events), events)
	}
	return events[0]
}

type rig struct {
	clock     *manualClock
	transport *captureTransport
	processor *smp.Processor
	errors    *smp.ErrorRegistry
}

func newRig(t *testing.T) *rig {
	t.Helper()
	clock := &manualClock{}
	tr := &captureTransport{}
	return &rig{
		clock:     clock,
		transport: tr,
		processor: smp.NewProcessor(tr, smp.WithClock(clock)),
		errors:    smp.NewErrorRegistry(),
	}
}

func (r *rig) opts() []Option {
	return []Option{WithErrorRegistry(r.errors)}
}

func observe(g Observable) *statusLog {
	l := &statusLog{}
	g.OnStatus(l.record)
	return l
}

// request parses the most recent frame sent
func (r *rig) request(t *testing.T) *smp.Message {
	t.Helper()
	frame := r.transport.last()
	if frame == nil {
		t.Fatal("nothing sent")
	}
	msg, err := smp.ParseMessage(frame)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	return msg
}

// requestBody decodes the most recent request body to Go values
func (r *rig) requestBody(t *testing.T) map[string]any {
	t.Helper()
	v, err := cbor.Decode(r.request(t).Body())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("request body is %T, want map", v)
	}
	return m
}

// respond answers the outstanding request with the body built by fn
func (r *rig) respond(t *testing.T, fn func(w *cbor.Writer)) {
	t.Helper()
	r.respondVersion(t, r.request(t).Header.Version, fn)
}

func (r *rig) respondVersion(t *testing.T, version uint8, fn func(w *cbor.Writer)) {
	t.Helper()
	r.processor.MessageReceived(r.response(t, version, fn))
}

// response builds an answer to the most recent request
func (r *rig) response(t *testing.T, version uint8, fn func(w *cbor.Writer)) *smp.Message {
	t.Helper()
	h := r.request(t).Header
	h.Op = h.Op.Response()
	h.Version = version
	return smp.NewResponse(h, body(t, fn))
}

func body(t *testing.T, fn func(w *cbor.Writer)) []byte {
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
