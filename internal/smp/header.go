package smp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of an SMP header in bytes.
const HeaderSize = 8

// Op is the operation carried in the low 3 bits of header byte 0.
type Op uint8

// Operations
const (
	OpRead          Op = 0
	OpReadResponse  Op = 1
	OpWrite         Op = 2
	OpWriteResponse Op = 3
)

// String returns the operation name
func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpReadResponse:
		return "read-response"
	case OpWrite:
		return "write"
	case OpWriteResponse:
		return "write-response"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Response returns the response op matching a request op.
func (o Op) Response() Op {
	switch o {
	case OpRead:
		return OpReadResponse
	case OpWrite:
		return OpWriteResponse
	default:
		return o
	}
}

// IsResponse reports whether o is a response op.
func (o Op) IsResponse() bool {
	return o == OpReadResponse || o == OpWriteResponse
}

// Protocol versions
const (
	VersionLegacy uint8 = 0 // integer "rc" errors
	Version2      uint8 = 1 // group-scoped "ret" errors
)

// Bit layout of header byte 0
const (
	opMask       = 0x07
	versionShift = 3
	versionMask  = 0x03
)

// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
var ErrShortHeader = errors.New("smp: short header")

// Header is the fixed 8-byte SMP header.
type Header struct {
	Op       Op
	Version  uint8 // 2 bits on the wire
	Flags    uint8
	Length   uint16 // body length
	Group    uint16
	Sequence uint8
	Command  uint8
}

// Put encodes h into the first HeaderSize bytes of b.
func (h Header) Put(b []byte) {
	_ = b[HeaderSize-1]
	b[0] = byte(h.Op)&opMask | (h.Version&versionMask)<<versionShift
	b[1] = h.Flags
	binary.BigEndian.PutUint16(b[2:4], h.Length)
	binary.BigEndian.PutUint16(b[4:6], h.Group)
	b[6] = h.Sequence
	b[7] = h.Command
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.Put(b)
	return b
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Header) UnmarshalBinary(b []byte) error {
	parsed, err := ParseHeader(b)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHeader decodes the first HeaderSize bytes of b. Reserved bits are
// ignored.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrShortHeader, len(b), HeaderSize)
	}
	return Header{
		Op:       Op(b[0] & opMask),
		Version:  (b[0] >> versionShift) & versionMask,
		Flags:    b[1],
		Length:   binary.BigEndian.Uint16(b[2:4]),
		Group:    binary.BigEndian.Uint16(b[4:6]),
		Sequence: b[6],
		Command:  b[7],
	}, nil
}

// Answers reports whether h is a response to req: same group, command and
// sequence, with the response op of the request's op. The version is not
// compared.
func (h Header) Answers(req Header) bool {
	return h.mismatch(req) == ""
}

func (h Header) mismatch(req Header) string {
	switch {
	case h.Op != req.Op.Response():
		return fmt.Sprintf("op %s, expected %s", h.Op, req.Op.Response())
	case h.Group != req.Group:
		return fmt.Sprintf("group %d, expected %d", h.Group, req.Group)
	case h.Command != req.Command:
		return fmt.Sprintf("command %d, expected %d", h.Command, req.Command)
	case h.Sequence != req.Sequence:
		return fmt.Sprintf("sequence %d, expected %d", h.Sequence, req.Sequence)
	}
	return ""
}

// String returns a compact representation for logs
func (h Header) String() string {
	return fmt.Sprintf("op=%s v=%d flags=0x%02x len=%d group=%s cmd=%d seq=%d",
		h.Op, h.Version, h.Flags, h.Length, GroupName(h.Group), h.Command, h.Sequence)
}
