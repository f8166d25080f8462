package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/smpctl/internal/logging"
	"github.com/muurk/smpctl/internal/smp"
)

// DefaultPath is the HTTP path clients connect to
const DefaultPath = "/smp"

const (
	// Time allowed to write a frame to a client
	writeWait = 10 * time.Second

	// Largest message accepted from a client
	maxMessageSize = smp.HeaderSize + 0xffff
)

// Config holds the bridge configuration
type Config struct {
	Listen string // host:port to listen on
	Path   string // defaults to DefaultPath
}

// Bridge forwards SMP frames between WebSocket clients and one device.
type Bridge struct {
	config   Config
	device   smp.Transport
	log      *zap.Logger
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup

	mu          sync.Mutex
	activeConns map[string]*client
	last        *client // receives the device's answers
}

// client is one WebSocket connection
type client struct {
	conn    *websocket.Conn
	addr    string
	writeMu sync.Mutex
}

func (c *client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// New creates a bridge for device and becomes its receiver.
func New(device smp.Transport, config Config) *Bridge {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	b := &Bridge{
		config:      config,
		device:      device,
		log:         logging.Named("bridge"),
		activeConns: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	device.SetReceiver(b)
	return b
}

// Handler returns the HTTP handler that upgrades clients.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(b.config.Path, b.serveWebSocket)
	return mux
}

// Start listens on the configured address and serves until Shutdown.
func (b *Bridge) Start() error {
	listener, err := net.Listen("tcp", b.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.config.Listen, err)
	}

	b.mu.Lock()
	b.listener = listener
	b.server = &http.Server{Handler: b.Handler(), ReadHeaderTimeout: 10 * time.Second}
	server := b.server
	b.mu.Unlock()

	b.log.Info("Bridge listening for connections",
		zap.Stringer("addr", listener.Addr()),
		zap.String("path", b.config.Path),
	)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listening address once Start has bound it.
func (b *Bridge) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

func (b *Bridge) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	b.wg.Add(1)
	defer b.wg.Done()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, addr: r.RemoteAddr}
	b.mu.Lock()
	b.activeConns[c.addr] = c
	b.mu.Unlock()

	defer func() {
		_ = conn.Close()
		b.mu.Lock()
		delete(b.activeConns, c.addr)
		if b.last == c {
			b.last = nil
		}
		b.mu.Unlock()
		logging.LogConnection("bridge", c.addr, "closed")
	}()

	logging.LogConnection("bridge", c.addr, "accepted")
	b.handleClient(c)
}

// handleClient forwards the client's frames to the device until it leaves
func (b *Bridge) handleClient(c *client) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.Debug("Client read ended", zap.String("remote_addr", c.addr), zap.Error(err))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			b.log.Warn("Ignoring non-binary message", zap.String("remote_addr", c.addr), zap.Int("type", kind))
			continue
		}

		b.mu.Lock()
		b.last = c
		b.mu.Unlock()

		logging.LogFrame(b.log, "client->device", data)
		if err := b.device.Send(data); err != nil {
			b.log.Error("Failed to forward frame to device", zap.String("remote_addr", c.addr), zap.Error(err))
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "device error"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// MessageReceived implements smp.Receiver.
func (b *Bridge) MessageReceived(msg *smp.Message) {
	b.mu.Lock()
	c := b.last
	b.mu.Unlock()
	if c == nil {
		b.log.Debug("Dropping device message with no client", zap.Stringer("header", msg.Header))
		return
	}

	frame := msg.Bytes()
	logging.LogFrame(b.log, "device->client", frame)
	if err := c.write(frame); err != nil {
		b.log.Error("Failed to write to client", zap.String("remote_addr", c.addr), zap.Error(err))
	}
}

// TransportDisconnected implements smp.Receiver. Every client is closed.
func (b *Bridge) TransportDisconnected() {
	b.log.Warn("Device disconnected, closing clients")
	b.closeClients(websocket.CloseGoingAway, "device disconnected")
}

func (b *Bridge) closeClients(code int, text string) {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.activeConns))
	for _, c := range b.activeConns {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

// Shutdown stops accepting clients, closes the active ones and waits for
// their handlers. The device transport is closed last.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.log.Info("Shutting down bridge...")

	var err error
	b.mu.Lock()
	server := b.server
	b.mu.Unlock()
	if server != nil {
		err = multierr.Append(err, server.Shutdown(ctx))
	}

	b.closeClients(websocket.CloseGoingAway, "bridge shutting down")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("All connections closed gracefully")
	case <-ctx.Done():
		b.log.Warn("Shutdown timeout, forcing close")
		err = multierr.Append(err, ctx.Err())
	}

	return multierr.Append(err, b.device.Close())
}

// ActiveConnections returns the number of connected clients
func (b *Bridge) ActiveConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.activeConns)
}
