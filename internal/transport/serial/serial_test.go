package serial

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/muurk/smpctl/internal/smp"
)

// pipePort feeds Read from a pipe the test writes to and records writes
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	drained bool
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, w: w}
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipePort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drained = true
	return nil
}

func (p *pipePort) Close() error { return p.r.Close() }

func (p *pipePort) output() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

// chanReceiver forwards received messages to channels
type chanReceiver struct {
	messages     chan *smp.Message
	disconnected chan struct{}
}

func newChanReceiver() *chanReceiver {
	return &chanReceiver{
		messages:     make(chan *smp.Message, 4),
		disconnected: make(chan struct{}, 1),
	}
}

func (c *chanReceiver) MessageReceived(msg *smp.Message) { c.messages <- msg }
func (c *chanReceiver) TransportDisconnected()           { c.disconnected <- struct{}{} }

func newTransport(t *testing.T, port Port, cfg Config) *Transport {
	t.Helper()
	tr, err := New(port, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func TestTransportSendWritesConsoleLines(t *testing.T) {
	port := newPipePort()
	tr := newTransport(t, port, Config{Port: "test"})
	defer tr.Close()

	msg := smp.NewMessage(smp.OpWrite, smp.Version2, smp.GroupOS, 0)
	msg.Writer().TextField("d", "hello")
	if err := msg.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := tr.Send(msg.Bytes()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	lines, _ := Encode(msg.Bytes())
	if !bytes.Equal(port.output(), bytes.Join(lines, nil)) {
		t.Errorf("written = %q", port.output())
	}
}

func TestTransportDeliversResponses(t *testing.T) {
	port := newPipePort()
	tr := newTransport(t, port, Config{Port: "test"})
	defer tr.Close()
	rcv := newChanReceiver()
	tr.SetReceiver(rcv)

	resp := smp.NewResponse(smp.Header{Op: smp.OpWriteResponse, Version: smp.Version2, Sequence: 9}, []byte{0xa1, 0x61, 'r', 0x61, 'x'})
	lines, _ := Encode(resp.Bytes())
	go func() {
		_, _ = port.w.Write([]byte("boot banner\r\n"))
		for _, line := range lines {
			_, _ = port.w.Write(line)
		}
	}()

	select {
	case got := <-rcv.messages:
		if got.Header != resp.Header || !bytes.Equal(got.Body(), resp.Body()) {
			t.Errorf("received %v", got.Header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestTransportReadErrorDisconnects(t *testing.T) {
	port := newPipePort()
	tr := newTransport(t, port, Config{Port: "test"})
	rcv := newChanReceiver()
	tr.SetReceiver(rcv)

	_ = port.w.CloseWithError(errors.New("device unplugged"))

	select {
	case <-rcv.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect reported")
	}
	_ = tr.Close()
}

func TestTransportClose(t *testing.T) {
	port := newPipePort()
	tr := newTransport(t, port, Config{Port: "test"})
	rcv := newChanReceiver()
	tr.SetReceiver(rcv)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.drained {
		t.Error("port not drained before close")
	}
	if err := tr.Send([]byte{0}); !errors.Is(err, smp.ErrTransport) {
		t.Errorf("Send() after close error = %v, want ErrTransport", err)
	}
	select {
	case <-rcv.disconnected:
		t.Error("Close reported a disconnect")
	default:
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestTransportMaxPayload(t *testing.T) {
	tr := newTransport(t, newPipePort(), Config{MTU: 256})
	defer tr.Close()
	if got := tr.MaxPayload(); got != 179-smp.HeaderSize {
		t.Errorf("MaxPayload() = %d", got)
	}
}

func TestTransportRejectsTinyMTU(t *testing.T) {
	for _, mtu := range []int{4, 12, 16} {
		port := newPipePort()
		if _, err := New(port, Config{MTU: mtu}); !errors.Is(err, ErrMTUTooSmall) {
			t.Errorf("New(mtu=%d) error = %v, want ErrMTUTooSmall", mtu, err)
		}
		port.Close()
	}

	tr := newTransport(t, newPipePort(), Config{MTU: 24})
	defer tr.Close()
	if got := tr.MaxPayload(); got <= 0 {
		t.Errorf("MaxPayload() = %d, want a positive limit", got)
	}
}
