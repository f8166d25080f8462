package mgmt

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

func TestEchoRoundTrip(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)
	log := observe(g)

	var out string
	if err := g.StartEcho("hello", &out); err != nil {
		t.Fatalf("StartEcho() error = %v", err)
	}
	if !g.Busy() {
		t.Fatal("group not busy after start")
	}
	req := r.request(t)
	if req.Header.Op != smp.OpWrite || req.Header.Group != smp.GroupOS || req.Header.Command != CommandEcho {
		t.Errorf("request header = %v", req.Header)
	}
	if got := r.requestBody(t)["d"]; got != "hello" {
		t.Errorf("request d = %v, want hello", got)
	}

	r.respond(t, func(w *cbor.Writer) { w.TextField("r", "hello") })

	if ev := log.only(t); ev.status != StatusComplete {
		t.Errorf("status = %v (%s), want complete", ev.status, ev.message)
	}
	if out != "hello" {
		t.Errorf("echo = %q, want hello", out)
	}
	if g.Busy() {
		t.Error("group still busy after completion")
	}
}

func TestStartWhileBusy(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)

	var out string
	if err := g.StartEcho("one", &out); err != nil {
		t.Fatalf("StartEcho() error = %v", err)
	}
	if err := g.StartEcho("two", &out); !errors.Is(err, ErrGroupBusy) {
		t.Errorf("second StartEcho() error = %v, want ErrGroupBusy", err)
	}
	if r.transport.count() != 1 {
		t.Errorf("sent %d frames, want 1", r.transport.count())
	}
}

func TestMissingParameters(t *testing.T) {
	r := newRig(t)
	osg := NewOS(r.processor, r.opts()...)
	shell := NewShell(r.processor, r.opts()...)
	fs := NewFS(r.processor, r.opts()...)
	settings := NewSettings(r.processor, r.opts()...)
	stat := NewStat(r.processor, r.opts()...)
	img := NewImage(r.processor, r.opts()...)

	var res ShellResult
	var size uint64
	var values []StatValue
	var slots []ImageSlot
	tests := []struct {
		name  string
		start func() error
	}{
		{"echo without output", func() error { return osg.StartEcho("x", nil) }},
		{"shell without argv", func() error { return shell.StartExecute(nil, &res) }},
		{"fs status without path", func() error { return fs.StartStatus("", &size) }},
		{"settings write without key", func() error { return settings.StartWrite("", []byte{1}) }},
		{"stat without name", func() error { return stat.StartGroupData("", &values) }},
		{"image test without hash", func() error { return img.StartStateSet(nil, false, &slots) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.start(); !errors.Is(err, ErrMissingParameter) {
				t.Errorf("error = %v, want ErrMissingParameter", err)
			}
		})
	}
	if r.transport.count() != 0 {
		t.Errorf("sent %d frames, want 0", r.transport.count())
	}
	if shell.Busy() || fs.Busy() {
		t.Error("group left busy after rejected start")
	}
}

func TestStructuredErrorResolvesGroupTable(t *testing.T) {
	r := newRig(t)
	g := NewFS(r.processor, r.opts()...)
	log := observe(g)

	var size uint64
	if err := g.StartStatus("/lfs/missing", &size); err != nil {
		t.Fatalf("StartStatus() error = %v", err)
	}
	r.respond(t, func(w *cbor.Writer) {
		w.Text("err")
		w.StartMap()
		w.UintField("group", uint64(smp.GroupFS))
		w.UintField("rc", 3)
		w.End()
	})

	ev := log.only(t)
	if ev.status != StatusError {
		t.Errorf("status = %v, want error", ev.status)
	}
	if ev.message != "The specified file does not exist" {
		t.Errorf("message = %q", ev.message)
	}
	if got := r.errors.Name(g.LastError()); got != "FILE_NOT_FOUND" {
		t.Errorf("LastError name = %q, want FILE_NOT_FOUND", got)
	}
}

func TestNotSupportedIsUnsupported(t *testing.T) {
	r := newRig(t)
	g := NewEnum(r.processor, r.opts()...)
	log := observe(g)

	var count uint64
	if err := g.StartCount(&count); err != nil {
		t.Fatalf("StartCount() error = %v", err)
	}
	r.respond(t, func(w *cbor.Writer) { w.IntField("rc", int64(smp.RCNotSupported)) })

	ev := log.only(t)
	if ev.status != StatusUnsupported {
		t.Errorf("status = %v, want unsupported", ev.status)
	}
	if ev.message != "Command not supported" {
		t.Errorf("message = %q", ev.message)
	}
}

func TestTimeoutStatus(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, append(r.opts(), WithConfig(Config{Version: smp.Version2, Timeout: time.Second, Retries: 1}))...)
	log := observe(g)

	var out string
	if err := g.StartEcho("x", &out); err != nil {
		t.Fatalf("StartEcho() error = %v", err)
	}
	r.clock.Advance(time.Second)
	if len(log.got()) != 0 {
		t.Fatalf("status before retries exhausted: %v", log.got())
	}
	r.clock.Advance(time.Second)

	ev := log.only(t)
	if ev.status != StatusTimeout || ev.message != "Timeout (Mode: Echo)" {
		t.Errorf("event = %+v", ev)
	}
	if r.transport.count() != 2 {
		t.Errorf("sent %d frames, want 2", r.transport.count())
	}
	if g.Busy() {
		t.Error("group busy after timeout")
	}
}

func TestAbortCancels(t *testing.T) {
	r := newRig(t)
	g := NewSettings(r.processor, r.opts()...)
	log := observe(g)

	if err := g.StartCommit(); err != nil {
		t.Fatalf("StartCommit() error = %v", err)
	}
	g.Abort()
	r.clock.Advance(time.Minute)

	if ev := log.only(t); ev.status != StatusCancelled {
		t.Errorf("status = %v, want cancelled", ev.status)
	}
	if g.Busy() || r.processor.Busy() {
		t.Error("still busy after abort")
	}
	g.Abort()
	if len(log.got()) != 1 {
		t.Error("idle abort produced a status")
	}
}

func TestDecodeFailureStatus(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)
	log := observe(g)

	var out string
	if err := g.StartEcho("x", &out); err != nil {
		t.Fatalf("StartEcho() error = %v", err)
	}
	r.respond(t, func(w *cbor.Writer) { w.TextField("unexpected", "x") })

	ev := log.only(t)
	if ev.status != StatusError {
		t.Errorf("status = %v, want error", ev.status)
	}
	if !strings.HasPrefix(ev.message, "Did not decode response successfully (Mode: Echo)") {
		t.Errorf("message = %q", ev.message)
	}
}

func TestSendFailuresAreTerminal(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(tr *captureTransport)
		wantErr error
		want    Status
	}{
		{
			name:    "too large",
			setup:   func(tr *captureTransport) { tr.max = 4 },
			wantErr: smp.ErrMessageTooLarge,
			want:    StatusMessageTooLarge,
		},
		{
			name:    "write failure",
			setup:   func(tr *captureTransport) { tr.sendErr = errors.New("broken pipe") },
			wantErr: smp.ErrTransport,
			want:    StatusTransportError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			tt.setup(r.transport)
			g := NewShell(r.processor, r.opts()...)
			log := observe(g)

			var res ShellResult
			err := g.StartExecute([]string{"kernel", "version"}, &res)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("StartExecute() error = %v, want %v", err, tt.wantErr)
			}
			if ev := log.only(t); ev.status != tt.want {
				t.Errorf("status = %v, want %v", ev.status, tt.want)
			}
			if g.Busy() {
				t.Error("group busy after failed send")
			}
		})
	}
}

func TestTransportDisconnectedStatus(t *testing.T) {
	r := newRig(t)
	g := NewZephyr(r.processor, r.opts()...)
	log := observe(g)

	if err := g.StartStorageErase(); err != nil {
		t.Fatalf("StartStorageErase() error = %v", err)
	}
	r.processor.TransportDisconnected()

	if ev := log.only(t); ev.status != StatusTransportDisconnected {
		t.Errorf("status = %v, want transport disconnected", ev.status)
	}
}

func TestRetransmitFailureStatus(t *testing.T) {
	r := newRig(t)
	g := NewZephyr(r.processor, r.opts()...)
	log := observe(g)

	if err := g.StartStorageErase(); err != nil {
		t.Fatalf("StartStorageErase() error = %v", err)
	}
	r.transport.mu.Lock()
	r.transport.sendErr = errors.New("broken pipe")
	r.transport.mu.Unlock()
	r.clock.Advance(smp.DefaultTimeout)

	if ev := log.only(t); ev.status != StatusTransportError {
		t.Errorf("status = %v, want transport error", ev.status)
	}
	if g.Busy() || r.processor.Busy() {
		t.Error("still busy after rejected retransmission")
	}
	r.clock.Advance(time.Minute)
	if n := len(log.got()); n != 1 {
		t.Errorf("got %d status events, want 1", n)
	}
}

func TestVersionMismatchObserverRemoval(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)
	calls := 0
	remove := g.OnVersionMismatch(func(uint8) { calls++ })
	remove()

	if err := g.StartReset(false); err != nil {
		t.Fatalf("StartReset() error = %v", err)
	}
	r.respondVersion(t, smp.VersionLegacy, func(w *cbor.Writer) {})
	if calls != 0 {
		t.Errorf("removed callback called %d times", calls)
	}
}

func TestVersionMismatchAdoptsDeviceVersion(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)
	log := observe(g)
	var seen []uint8
	g.OnVersionMismatch(func(v uint8) { seen = append(seen, v) })

	if err := g.StartReset(false); err != nil {
		t.Fatalf("StartReset() error = %v", err)
	}
	r.respondVersion(t, smp.VersionLegacy, func(w *cbor.Writer) {})

	if !reflect.DeepEqual(seen, []uint8{smp.VersionLegacy}) {
		t.Errorf("mismatch callbacks = %v", seen)
	}
	if ev := log.only(t); ev.status != StatusComplete {
		t.Errorf("status = %v, want complete", ev.status)
	}
	if g.Config().Version != smp.VersionLegacy {
		t.Errorf("version = %d, want legacy", g.Config().Version)
	}

	if err := g.StartReset(true); err != nil {
		t.Fatalf("StartReset() error = %v", err)
	}
	if v := r.request(t).Header.Version; v != smp.VersionLegacy {
		t.Errorf("next request version = %d, want legacy", v)
	}
}

func TestObserverRemoval(t *testing.T) {
	r := newRig(t)
	g := NewZephyr(r.processor, r.opts()...)
	log := &statusLog{}
	remove := g.OnStatus(log.record)
	remove()

	if err := g.StartStorageErase(); err != nil {
		t.Fatalf("StartStorageErase() error = %v", err)
	}
	r.respond(t, func(w *cbor.Writer) {})
	if len(log.got()) != 0 {
		t.Errorf("removed observer got %v", log.got())
	}
}

func TestAwait(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)

	var out string
	res, err := Await(context.Background(), g, func() error {
		if err := g.StartEcho("ping", &out); err != nil {
			return err
		}
		resp := r.response(t, smp.Version2, func(w *cbor.Writer) { w.TextField("r", "ping") })
		go r.processor.MessageReceived(resp)
		return nil
	})
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if res.Status != StatusComplete || res.Err() != nil {
		t.Errorf("result = %+v", res)
	}
	if out != "ping" {
		t.Errorf("echo = %q", out)
	}
}

func TestAwaitContextCancelled(t *testing.T) {
	r := newRig(t)
	g := NewOS(r.processor, r.opts()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out string
	res, err := Await(ctx, g, func() error { return g.StartEcho("x", &out) })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
	if res.Status != StatusCancelled {
		t.Errorf("status = %v, want cancelled", res.Status)
	}
	if g.Busy() || r.processor.Busy() {
		t.Error("command not aborted")
	}
}

func TestAwaitStartError(t *testing.T) {
	r := newRig(t)
	r.transport.max = 1
	g := NewOS(r.processor, r.opts()...)

	var out string
	res, err := Await(context.Background(), g, func() error { return g.StartEcho("too long", &out) })
	if !errors.Is(err, smp.ErrMessageTooLarge) {
		t.Errorf("Await() error = %v", err)
	}
	if res.Status != StatusMessageTooLarge {
		t.Errorf("status = %v, want message too large", res.Status)
	}
	var se *StatusError
	if !errors.As(res.Err(), &se) || se.Status != StatusMessageTooLarge {
		t.Errorf("Err() = %v", res.Err())
	}
}
