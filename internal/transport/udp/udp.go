// Package udp carries SMP frames in UDP datagrams, one message per
// datagram.
package udp

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/smpctl/internal/logging"
	"github.com/muurk/smpctl/internal/smp"
)

// Defaults for UDP transports
const (
	DefaultPort = 1337
	DefaultMTU  = 1024

	maxDatagram = 65535
)

// Config describes a UDP connection.
type Config struct {
	// Address is host or host:port of the device; DefaultPort is used when
	// no port is given.
	Address string
	// LocalAddress is the local bind address. Several processes may share
	// it; empty picks an ephemeral port.
	LocalAddress string
	MTU          int
}

// Transport implements smp.Transport over UDP.
type Transport struct {
	conn   net.PacketConn
	remote *net.UDPAddr
	mtu    int
	log    *zap.Logger

	mu       sync.Mutex
	receiver smp.Receiver
	closed   bool

	reassembler smp.Reassembler
	done        chan struct{}
}

// ResolveAddress adds DefaultPort to addr when it has none.
func ResolveAddress(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		return nil, errors.New("no address given")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	return net.ResolveUDPAddr("udp", addr)
}

// Open binds a local socket and starts reading responses from the device.
func Open(cfg Config) (*Transport, error) {
	remote, err := ResolveAddress(cfg.Address)
	if err != nil {
		return nil, smp.ClassifyTransportError("open", fmt.Errorf("invalid address %q: %w", cfg.Address, err))
	}

	local := cfg.LocalAddress
	if local == "" {
		local = ":0"
	}
	conn, err := reuseport.ListenPacket("udp", local)
	if err != nil {
		return nil, smp.ClassifyTransportError("open", fmt.Errorf("failed to bind %s: %w", local, err))
	}

	return New(conn, remote, cfg.MTU), nil
}

// New starts a transport on an existing socket.
func New(conn net.PacketConn, remote *net.UDPAddr, mtu int) *Transport {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	t := &Transport{
		conn:   conn,
		remote: remote,
		mtu:    mtu,
		log:    logging.Named("udp").With(zap.Stringer("remote", remote)),
		done:   make(chan struct{}),
	}
	logging.LogConnection("udp", remote.String(), "opened")
	go t.readLoop()
	return t
}

// Send implements smp.Transport.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return smp.ClassifyTransportError("send", smp.ErrNotConnected)
	}

	logging.LogFrame(t.log, "tx", frame)
	if _, err := t.conn.WriteTo(frame, t.remote); err != nil {
		return smp.ClassifyTransportError("send", err)
	}
	return nil
}

// MaxPayload implements smp.Transport.
func (t *Transport) MaxPayload() int {
	return max(t.mtu-smp.HeaderSize, 0)
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

	err := multierr.Append(t.conn.SetReadDeadline(time.Now()), t.conn.Close())
	<-t.done
	logging.LogConnection("udp", t.remote.String(), "closed")
	return err
}

func (t *Transport) readLoop() {
	defer close(t.done)

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := t.conn.ReadFrom(buf)

		t.mu.Lock()
		closed, r := t.closed, t.receiver
		t.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			t.log.Warn("UDP read failed", zap.Error(err))
			if r != nil {
				r.TransportDisconnected()
			}
			return
		}
		if !sameHost(from, t.remote) {
			t.log.Debug("Ignoring datagram from unknown peer", zap.Stringer("from", from))
			continue
		}

		logging.LogFrame(t.log, "rx", buf[:n])
		// a datagram holds whole messages; anything left over is dropped
		msgs, err := t.reassembler.Feed(buf[:n])
		t.reassembler.Reset()
		if err != nil {
			t.log.Debug("Dropping datagram", zap.Error(err))
			continue
		}
		for _, msg := range msgs {
			if r != nil {
				r.MessageReceived(msg)
			}
		}
	}
}

func sameHost(from net.Addr, remote *net.UDPAddr) bool {
	udp, ok := from.(*net.UDPAddr)
	if !ok {
		return false
	}
	return udp.Port == remote.Port && (udp.IP.Equal(remote.IP) || remote.IP.IsUnspecified())
}
