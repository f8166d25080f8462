// Package websocket carries SMP frames in binary WebSocket messages, as
// used by network bridges that expose a device over HTTP.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/smpctl/internal/logging"
	"github.com/muurk/smpctl/internal/smp"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to complete the opening handshake
	handshakeTimeout = 10 * time.Second

	// Largest message accepted from the peer
	maxMessageSize = smp.HeaderSize + 0xffff
)

// Config describes a WebSocket connection.
type Config struct {
	URL    string
	Header http.Header
	// MTU limits the frame size; 0 means unlimited.
	MTU int
}

// Transport implements smp.Transport over a WebSocket connection.
type Transport struct {
	conn *websocket.Conn
	url  string
	mtu  int
	log  *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	receiver smp.Receiver
	closed   bool

	reassembler smp.Reassembler
	done        chan struct{}
}

// Dial connects to cfg.URL and starts reading.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, smp.ClassifyTransportError("open", errors.New("no URL given"))
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, smp.ClassifyTransportError("open", fmt.Errorf("failed to connect to %s: %w", cfg.URL, err))
	}
	return New(conn, cfg.URL, cfg.MTU), nil
}

// New starts a transport on an established connection.
func New(conn *websocket.Conn, url string, mtu int) *Transport {
	conn.SetReadLimit(maxMessageSize)
	t := &Transport{
		conn: conn,
		url:  url,
		mtu:  mtu,
		log:  logging.Named("websocket").With(zap.String("url", url)),
		done: make(chan struct{}),
	}
	logging.LogConnection("websocket", url, "opened")
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

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	logging.LogFrame(t.log, "tx", frame)
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return smp.ClassifyTransportError("send", err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return smp.ClassifyTransportError("send", err)
	}
	return nil
}

// MaxPayload implements smp.Transport.
func (t *Transport) MaxPayload() int {
	if t.mtu <= 0 {
		return 0
	}
	return max(t.mtu-smp.HeaderSize, 0)
}

// SetReceiver implements smp.Transport.
func (t *Transport) SetReceiver(r smp.Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

// Close sends a close frame and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	t.writeMu.Unlock()
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	err = multierr.Append(err, t.conn.Close())
	<-t.done

	logging.LogConnection("websocket", t.url, "closed")
	return err
}

func (t *Transport) readLoop() {
	defer close(t.done)

	for {
		kind, data, err := t.conn.ReadMessage()

		t.mu.Lock()
		closed, r := t.closed, t.receiver
		t.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Info("Connection closed by peer")
			} else {
				t.log.Warn("WebSocket read failed", zap.Error(err))
			}
			if r != nil {
				r.TransportDisconnected()
			}
			return
		}

		if kind != websocket.BinaryMessage {
			t.log.Debug("Ignoring non-binary message", zap.Int("type", kind), zap.Int("length", len(data)))
			continue
		}

		logging.LogFrame(t.log, "rx", data)
		msgs, err := t.reassembler.Feed(data)
		if err != nil {
			t.log.Debug("Dropping buffered data", zap.Error(err))
			continue
		}
		for _, msg := range msgs {
			if r != nil {
				r.MessageReceived(msg)
			}
		}
	}
}
