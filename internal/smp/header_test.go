package smp

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		want   []byte
	}{
		{
			name:   "v2 echo write",
			header: Header{Op: OpWrite, Version: Version2, Length: 7, Group: GroupOS, Sequence: 0x42, Command: 0},
			want:   []byte{0x0a, 0x00, 0x00, 0x07, 0x00, 0x00, 0x42, 0x00},
		},
		{
			name:   "legacy read with flags",
			header: Header{Op: OpRead, Version: VersionLegacy, Flags: 0xa5, Length: 0x1234, Group: GroupFS, Sequence: 0xff, Command: 2},
			want:   []byte{0x00, 0xa5, 0x12, 0x34, 0x00, 0x08, 0xff, 0x02},
		},
		{
			name:   "user group response",
			header: Header{Op: OpWriteResponse, Version: Version2, Group: 0x1234, Command: 9},
			want:   []byte{0x0b, 0x00, 0x00, 0x00, 0x12, 0x34, 0x00, 0x09},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.header.Bytes()
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Bytes() = % x, want % x", got, tt.want)
			}
			parsed, err := ParseHeader(got)
			if err != nil {
				t.Fatalf("ParseHeader() error = %v", err)
			}
			if parsed != tt.header {
				t.Errorf("ParseHeader() = %+v, want %+v", parsed, tt.header)
			}
		})
	}
}

func TestParseHeaderIgnoresReservedBits(t *testing.T) {
	h, err := ParseHeader([]byte{0xe9, 0, 0, 0, 0, 1, 0, 0})
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Op != OpReadResponse || h.Version != Version2 || h.Group != GroupImage {
		t.Errorf("ParseHeader() = %+v", h)
	}
}

func TestParseHeaderShort(t *testing.T) {
	if _, err := ParseHeader([]byte{1, 2, 3}); !errors.Is(err, ErrShortHeader) {
		t.Errorf("ParseHeader() error = %v, want ErrShortHeader", err)
	}
}

func TestOpResponse(t *testing.T) {
	if OpRead.Response() != OpReadResponse || OpWrite.Response() != OpWriteResponse {
		t.Error("Response() does not map requests to responses")
	}
	if OpRead.IsResponse() || !OpWriteResponse.IsResponse() {
		t.Error("IsResponse() wrong")
	}
}

func TestMessageBuildAndParse(t *testing.T) {
	msg := NewMessage(OpWrite, Version2, GroupShell, 0)
	w := msg.Writer()
	w.Text("argv")
	w.StartArray()
	w.Text("kernel")
	w.Text("uptime")
	w.End()
	if err := msg.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if msg.Writer() != nil {
		t.Error("Writer() still available after End")
	}
	if int(msg.Header.Length) != len(msg.Body()) {
		t.Errorf("header length %d, body %d", msg.Header.Length, len(msg.Body()))
	}
	if msg.Size() != HeaderSize+len(msg.Body()) {
		t.Errorf("Size() = %d", msg.Size())
	}

	parsed, err := ParseMessage(msg.Bytes())
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Header != msg.Header {
		t.Errorf("header = %+v, want %+v", parsed.Header, msg.Header)
	}
	if !bytes.Equal(parsed.Body(), msg.Body()) {
		t.Errorf("body = % x, want % x", parsed.Body(), msg.Body())
	}
}

func TestMessageEndClosesOpenContainers(t *testing.T) {
	msg := NewMessage(OpWrite, Version2, GroupOS, 0)
	msg.Writer().Text("x")
	msg.Writer().StartArray()
	if err := msg.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	body := msg.Body()
	if body[len(body)-1] != 0xff || body[len(body)-2] != 0xff {
		t.Errorf("body = % x, want two trailing breaks", body)
	}
}

func TestParseMessageLengthMismatch(t *testing.T) {
	frame := Header{Op: OpReadResponse, Length: 4}.Bytes()
	frame = append(frame, 0xa0)
	if _, err := ParseMessage(frame); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("ParseMessage() error = %v, want ErrLengthMismatch", err)
	}
}

func TestReassembler(t *testing.T) {
	first := NewResponse(Header{Op: OpReadResponse, Group: GroupOS, Sequence: 1}, []byte{0xa1, 0x61, 'r', 0x01})
	second := NewResponse(Header{Op: OpWriteResponse, Group: GroupFS, Sequence: 2}, []byte{0xa0})
	stream := append(first.Bytes(), second.Bytes()...)

	var r Reassembler
	var got []*Message
	for _, chunk := range [][]byte{stream[:3], stream[3:10], stream[10:]} {
		msgs, err := r.Feed(chunk)
		if err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
		got = append(got, msgs...)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Header.Sequence != 1 || got[1].Header.Group != GroupFS {
		t.Errorf("messages = %v, %v", got[0].Header, got[1].Header)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", r.Buffered())
	}
}

func TestReassemblerOverflow(t *testing.T) {
	r := Reassembler{Limit: 10}
	if _, err := r.Feed(make([]byte, 11)); !errors.Is(err, ErrReassemblyOverflow) {
		t.Errorf("Feed() error = %v, want ErrReassemblyOverflow", err)
	}
	if r.Buffered() != 0 {
		t.Errorf("Buffered() = %d after overflow", r.Buffered())
	}
}

func TestHeaderBinaryMarshaler(t *testing.T) {
	want := Header{Op: OpRead, Version: Version2, Group: GroupEnum, Sequence: 7, Command: 1}
	b, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	var got Header
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != want {
		t.Errorf("UnmarshalBinary() = %+v, want %+v", got, want)
	}
	if err := got.UnmarshalBinary(b[:4]); !errors.Is(err, ErrShortHeader) {
		t.Errorf("UnmarshalBinary(short) error = %v, want ErrShortHeader", err)
	}
}
