package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/smpctl/internal/smp"
)

type chanReceiver struct {
	messages     chan *smp.Message
	disconnected chan struct{}
}

func newChanReceiver() *chanReceiver {
	return &chanReceiver{messages: make(chan *smp.Message, 4), disconnected: make(chan struct{}, 1)}
}

func (c *chanReceiver) MessageReceived(msg *smp.Message) { c.messages <- msg }
func (c *chanReceiver) TransportDisconnected()           { c.disconnected <- struct{}{} }

// bridge answers each binary message with a response split over two
// WebSocket messages, then runs after
func bridge(t *testing.T, after func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req, err := smp.ParseMessage(data)
		if err != nil {
			return
		}
		h := req.Header
		h.Op = h.Op.Response()
		frame := smp.NewResponse(h, []byte{0xa1, 0x61, 'r', 0x01}).Bytes()
		_ = conn.WriteMessage(websocket.BinaryMessage, frame[:5])
		_ = conn.WriteMessage(websocket.BinaryMessage, frame[5:])
		if after != nil {
			after(conn)
		}
		// wait for the client to go away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echoFrame(t *testing.T) []byte {
	t.Helper()
	msg := smp.NewMessage(smp.OpWrite, smp.Version2, smp.GroupOS, 0)
	msg.Writer().TextField("d", "x")
	if err := msg.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	return msg.Bytes()
}

func TestTransportReassemblesResponse(t *testing.T) {
	srv := bridge(t, nil)
	defer srv.Close()

	tr, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer tr.Close()
	rcv := newChanReceiver()
	tr.SetReceiver(rcv)

	if err := tr.Send(echoFrame(t)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case msg := <-rcv.messages:
		if msg.Header.Op != smp.OpWriteResponse || len(msg.Body()) != 4 {
			t.Errorf("response = %v", msg.Header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
	}
}

func TestTransportPeerCloseDisconnects(t *testing.T) {
	srv := bridge(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})
	defer srv.Close()

	tr, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer tr.Close()
	rcv := newChanReceiver()
	tr.SetReceiver(rcv)

	if err := tr.Send(echoFrame(t)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case <-rcv.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect reported")
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	if !errors.Is(err, smp.ErrTransport) {
		t.Errorf("Dial() error = %v, want ErrTransport", err)
	}
	if _, err := Dial(context.Background(), Config{}); !errors.Is(err, smp.ErrTransport) {
		t.Errorf("Dial() without URL error = %v", err)
	}
}

func TestMaxPayload(t *testing.T) {
	tests := []struct {
		mtu  int
		want int
	}{
		{0, 0},
		{512, 504},
		{4, 0},
	}
	for _, tt := range tests {
		tr := &Transport{mtu: tt.mtu}
		if got := tr.MaxPayload(); got != tt.want {
			t.Errorf("MaxPayload() with MTU %d = %d, want %d", tt.mtu, got, tt.want)
		}
	}
}
