package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	bugserial "go.bug.st/serial"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/smpctl/internal/logging"
	"github.com/muurk/smpctl/internal/smp"
)

// Defaults for console transports
const (
	DefaultBaudRate    = 115200
	DefaultMTU         = 256
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config describes a serial console connection.
type Config struct {
	Port        string
	BaudRate    int
	MTU         int
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.MTU <= 0 {
		c.MTU = DefaultMTU
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// validate checks cfg after defaults are applied.
func (c Config) validate() error {
	if MaxMessageSize(c.MTU) <= smp.HeaderSize {
		return fmt.Errorf("%w: %d leaves no room for an SMP message", ErrMTUTooSmall, c.MTU)
	}
	return nil
}

// Port is the part of a serial port the transport uses. go.bug.st/serial
// ports satisfy it.
type Port interface {
	io.ReadWriteCloser
	Drain() error
}

// Transport carries SMP frames over a console UART using the SMP console
// framing.
type Transport struct {
	port Port
	name string
	mtu  int
	log  *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	receiver smp.Receiver
	closed   bool

	decoder Decoder
	done    chan struct{}
}

// Open opens the serial port described by cfg and starts reading.
func Open(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	if cfg.Port == "" {
		return nil, smp.ClassifyTransportError("open", errors.New("no serial port given"))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	port, err := bugserial.Open(cfg.Port, &bugserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	})
	if err != nil {
		return nil, smp.ClassifyTransportError("open", fmt.Errorf("failed to open %s: %w", cfg.Port, err))
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, smp.ClassifyTransportError("open", fmt.Errorf("failed to set read timeout: %w", err))
	}

	t, err := New(port, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// New wraps an already open port and starts reading from it.
func New(port Port, cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	t := &Transport{
		port: port,
		name: cfg.Port,
		mtu:  cfg.MTU,
		log:  logging.Named("serial"),
		done: make(chan struct{}),
	}
	logging.LogConnection("serial", t.name, "opened")
	go t.readLoop()
	return t, nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return bugserial.GetPortsList()
}

// Send implements smp.Transport.
func (t *Transport) Send(frame []byte) error {
	lines, err := Encode(frame)
	if err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return smp.ClassifyTransportError("send", smp.ErrNotConnected)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	logging.LogFrame(t.log, "tx", frame)
	for _, line := range lines {
		if _, err := t.port.Write(line); err != nil {
			return smp.ClassifyTransportError("send", err)
		}
	}
	return nil
}

// MaxPayload implements smp.Transport.
func (t *Transport) MaxPayload() int {
	return MaxMessageSize(t.mtu) - smp.HeaderSize
}

// SetReceiver implements smp.Transport.
func (t *Transport) SetReceiver(r smp.Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

// Close implements smp.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	err := multierr.Append(t.port.Drain(), t.port.Close())
	t.writeMu.Unlock()
	<-t.done

	logging.LogConnection("serial", t.name, "closed")
	return err
}

func (t *Transport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 512)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.deliver(t.decoder.Feed(buf[:n]))
		}

		t.mu.Lock()
		closed, r := t.closed, t.receiver
		t.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			t.log.Warn("Serial read failed", zap.String("port", t.name), zap.Error(err))
			if r != nil {
				r.TransportDisconnected()
			}
			return
		}
	}
}

func (t *Transport) deliver(frames [][]byte) {
	t.mu.Lock()
	r := t.receiver
	t.mu.Unlock()

	for _, frame := range frames {
		logging.LogFrame(t.log, "rx", frame)
		msg, err := smp.ParseMessage(frame)
		if err != nil {
			t.log.Debug("Dropping unparseable frame", zap.Error(err))
			continue
		}
		if r != nil {
			r.MessageReceived(msg)
		}
	}
}
