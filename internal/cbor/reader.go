package cbor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"
)

// ErrMalformed is returned (wrapped) for any structurally invalid input.
var ErrMalformed = errors.New("cbor: malformed input")

// MaxNesting bounds container nesting accepted by the Reader.
const MaxNesting = 64

// Major types
const (
	majorUint     = 0
	majorNegative = 1
	majorBytes    = 2
	majorText     = 3
	majorArray    = 4
	majorMap      = 5
	majorTag      = 6
	majorSimple   = 7
)

const (
	infoIndefinite = 31
	breakByte      = 0xff
)

// EventType identifies the kind of item produced by the Reader.
type EventType int

const (
	EventUint EventType = iota
	EventNegative
	EventBytes
	EventText
	EventArrayStart
	EventMapStart
	EventEnd
	EventBool
	EventNull
	EventUndefined
	EventFloat
	EventSimple
)

// String returns a human-readable event type name
func (t EventType) String() string {
	switch t {
	case EventUint:
		return "uint"
	case EventNegative:
		return "negative"
	case EventBytes:
		return "bytes"
	case EventText:
		return "text"
	case EventArrayStart:
		return "array"
	case EventMapStart:
		return "map"
	case EventEnd:
		return "end"
	case EventBool:
		return "bool"
	case EventNull:
		return "null"
	case EventUndefined:
		return "undefined"
	case EventFloat:
		return "float"
	case EventSimple:
		return "simple"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single decoded item.
type Event struct {
	Type EventType

	// Uint holds the argument of EventUint and EventNegative (a negative
	// integer n is encoded as -1-Uint) and the value of EventSimple.
	Uint uint64

	// Data holds the payload of EventBytes and EventText. Chunked strings
	// are delivered with their fragments concatenated.
	Data []byte

	Bool  bool
	Float float64

	// Length is the item count of a container start, or -1 when indefinite.
	Length int
}

// Text returns the payload of a text event as a string.
func (e Event) Text() string {
	return string(e.Data)
}

// AsInt returns the event as a signed integer if it is an integer that fits.
func (e Event) AsInt() (int64, bool) {
	switch e.Type {
	case EventUint:
		if e.Uint > math.MaxInt64 {
			return 0, false
		}
		return int64(e.Uint), true
	case EventNegative:
		if e.Uint > math.MaxInt64 {
			return 0, false
		}
		return -1 - int64(e.Uint), true
	}
	return 0, false
}

// AsUint returns the event as an unsigned integer.
func (e Event) AsUint() (uint64, bool) {
	if e.Type == EventUint {
		return e.Uint, true
	}
	return 0, false
}

// IsContainer reports whether the event opens an array or a map.
func (e Event) IsContainer() bool {
	return e.Type == EventArrayStart || e.Type == EventMapStart
}

type container struct {
	remaining int // items left; -1 when indefinite
	isMap     bool
	seen      int
}

// Reader produces a finite, non-restartable sequence of events from a CBOR
// byte slice. Next returns io.EOF once every top-level item has been read.
type Reader struct {
	data  []byte
	pos   int
	stack []container
	err   error
}

// NewReader creates a Reader over data. The slice is not copied; events
// carrying bytes reference it when the string was not chunked.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.pos
}

// Depth returns the number of currently open containers.
func (r *Reader) Depth() int {
	return len(r.stack)
}

// Next returns the next event. Errors are sticky.
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}
	ev, err := r.next()
	if err != nil {
		r.err = err
	}
	return ev, err
}

func (r *Reader) next() (Event, error) {
	if n := len(r.stack); n > 0 {
		top := r.stack[n-1]
		if top.remaining == 0 {
			r.stack = r.stack[:n-1]
			return Event{Type: EventEnd}, nil
		}
	}

	if r.pos >= len(r.data) {
		if len(r.stack) > 0 {
			return Event{}, fmt.Errorf("%w: unexpected end of data inside container", ErrMalformed)
		}
		return Event{}, io.EOF
	}

	if r.data[r.pos] == breakByte {
		n := len(r.stack)
		if n == 0 || r.stack[n-1].remaining != -1 {
			return Event{}, fmt.Errorf("%w: unexpected break at offset %d", ErrMalformed, r.pos)
		}
		if top := r.stack[n-1]; top.isMap && top.seen%2 == 1 {
			return Event{}, fmt.Errorf("%w: map closed after key without value", ErrMalformed)
		}
		r.pos++
		r.stack = r.stack[:n-1]
		return Event{Type: EventEnd}, nil
	}

	if n := len(r.stack); n > 0 {
		if r.stack[n-1].remaining > 0 {
			r.stack[n-1].remaining--
		}
		r.stack[n-1].seen++
	}

	return r.item()
}

func (r *Reader) item() (Event, error) {
	for {
		b := r.data[r.pos]
		major := b >> 5
		info := b & 0x1f
		r.pos++

		switch major {
		case majorUint, majorNegative:
			arg, err := r.argument(info)
			if err != nil {
				return Event{}, err
			}
			t := EventUint
			if major == majorNegative {
				t = EventNegative
			}
			return Event{Type: t, Uint: arg}, nil

		case majorBytes, majorText:
			data, err := r.stringPayload(major, info)
			if err != nil {
				return Event{}, err
			}
			t := EventBytes
			if major == majorText {
				t = EventText
			}
			return Event{Type: t, Data: data}, nil

		case majorArray, majorMap:
			return r.openContainer(major, info)

		case majorTag:
			if _, err := r.argument(info); err != nil {
				return Event{}, err
			}
			if r.pos >= len(r.data) {
				return Event{}, fmt.Errorf("%w: tag without content", ErrMalformed)
			}
			if r.data[r.pos] == breakByte {
				return Event{}, fmt.Errorf("%w: tag followed by break", ErrMalformed)
			}
			continue

		default:
			return r.simple(info)
		}
	}
}

func (r *Reader) openContainer(major, info byte) (Event, error) {
	if len(r.stack) >= MaxNesting {
		return Event{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, MaxNesting)
	}
	isMap := major == majorMap
	t := EventArrayStart
	if isMap {
		t = EventMapStart
	}

	if info == infoIndefinite {
		r.stack = append(r.stack, container{remaining: -1, isMap: isMap})
		return Event{Type: t, Length: -1}, nil
	}

	count, err := r.argument(info)
	if err != nil {
		return Event{}, err
	}
	// every item needs at least one byte
	if count > uint64(len(r.data)-r.pos) {
		return Event{}, fmt.Errorf("%w: container length %d exceeds remaining data", ErrMalformed, count)
	}
	items := count
	if isMap {
		items *= 2
	}
	r.stack = append(r.stack, container{remaining: int(items), isMap: isMap})
	return Event{Type: t, Length: int(count)}, nil
}

func (r *Reader) stringPayload(major, info byte) ([]byte, error) {
	if info != infoIndefinite {
		n, err := r.argument(info)
		if err != nil {
			return nil, err
		}
		return r.take(n)
	}

	out := []byte{}
	for {
		if r.pos >= len(r.data) {
			return nil, fmt.Errorf("%w: unterminated chunked string", ErrMalformed)
		}
		b := r.data[r.pos]
		r.pos++
		if b == breakByte {
			return out, nil
		}
		if b>>5 != major || b&0x1f == infoIndefinite {
			return nil, fmt.Errorf("%w: invalid chunk in chunked string", ErrMalformed)
		}
		n, err := r.argument(b & 0x1f)
		if err != nil {
			return nil, err
		}
		chunk, err := r.take(n)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

func (r *Reader) simple(info byte) (Event, error) {
	switch info {
	case 20:
		return Event{Type: EventBool, Bool: false}, nil
	case 21:
		return Event{Type: EventBool, Bool: true}, nil
	case 22:
		return Event{Type: EventNull}, nil
	case 23:
		return Event{Type: EventUndefined}, nil
	case 24:
		b, err := r.take(1)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventSimple, Uint: uint64(b[0])}, nil
	case 25:
		b, err := r.take(2)
		if err != nil {
			return Event{}, err
		}
		f := float16.Frombits(binary.BigEndian.Uint16(b)).Float32()
		return Event{Type: EventFloat, Float: float64(f)}, nil
	case 26:
		b, err := r.take(4)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventFloat, Float: float64(math.Float32frombits(binary.BigEndian.Uint32(b)))}, nil
	case 27:
		b, err := r.take(8)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: EventFloat, Float: math.Float64frombits(binary.BigEndian.Uint64(b))}, nil
	case 28, 29, 30, infoIndefinite:
		return Event{}, fmt.Errorf("%w: reserved simple value %d", ErrMalformed, info)
	default:
		return Event{Type: EventSimple, Uint: uint64(info)}, nil
	}
}

func (r *Reader) argument(info byte) (uint64, error) {
	switch {
	case info < 24:
		return uint64(info), nil
	case info == 24:
		b, err := r.take(1)
		if err != nil {
			return 0, err
		}
		return uint64(b[0]), nil
	case info == 25:
		b, err := r.take(2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint16(b)), nil
	case info == 26:
		b, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint32(b)), nil
	case info == 27:
		b, err := r.take(8)
		if err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("%w: invalid additional info %d at offset %d", ErrMalformed, info, r.pos-1)
	}
}

func (r *Reader) take(n uint64) ([]byte, error) {
	if n > uint64(len(r.data)-r.pos) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, r.pos, len(r.data)-r.pos)
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Skip consumes the remainder of the container that was just opened,
// including nested containers. It must be called right after a container
// start event.
func (r *Reader) Skip() error {
	depth := 1
	for depth > 0 {
		ev, err := r.Next()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: unexpected end of data", ErrMalformed)
			}
			return err
		}
		switch {
		case ev.IsContainer():
			depth++
		case ev.Type == EventEnd:
			depth--
		}
	}
	return nil
}
