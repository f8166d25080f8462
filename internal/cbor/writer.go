package cbor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	fxcbor "github.com/fxamacker/cbor/v2"
)

// ErrUnbalanced is returned when End is called without an open container.
var ErrUnbalanced = errors.New("cbor: end without open container")

// Writer appends CBOR items to an io.Writer in insertion order. Maps and
// arrays are always written with indefinite length, matching what SMP
// servers expect from clients.
//
// The first error is kept and every later call becomes a no-op; check Err
// once the body is complete.
type Writer struct {
	enc   *fxcbor.Encoder
	depth int
	err   error
}

// NewWriter creates a Writer that appends to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: fxcbor.NewEncoder(w)}
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// Depth returns the number of containers currently open.
func (w *Writer) Depth() int {
	return w.depth
}

func (w *Writer) encode(v any) {
	if w.err != nil {
		return
	}
	w.err = w.enc.Encode(v)
}

// Uint appends an unsigned integer.
func (w *Writer) Uint(v uint64) {
	w.encode(v)
}

// Int appends a signed integer, using the negative major type when v < 0.
func (w *Writer) Int(v int64) {
	w.encode(v)
}

// Bool appends true or false.
func (w *Writer) Bool(v bool) {
	w.encode(v)
}

// Null appends the null simple value.
func (w *Writer) Null() {
	w.encode(nil)
}

// Text appends a definite-length UTF-8 text string.
func (w *Writer) Text(s string) {
	w.encode(s)
}

// ByteString appends a definite-length byte string.
func (w *Writer) ByteString(b []byte) {
	if b == nil {
		b = []byte{}
	}
	w.encode(b)
}

// TextChunks appends one indefinite-length text string made of the given
// fragments.
func (w *Writer) TextChunks(chunks ...string) {
	if w.err != nil {
		return
	}
	if w.err = w.enc.StartIndefiniteTextString(); w.err != nil {
		return
	}
	for _, c := range chunks {
		w.encode(c)
	}
	if w.err == nil {
		w.err = w.enc.EndIndefinite()
	}
}

// BytesChunks appends one indefinite-length byte string made of the given
// fragments.
func (w *Writer) BytesChunks(chunks ...[]byte) {
	if w.err != nil {
		return
	}
	if w.err = w.enc.StartIndefiniteByteString(); w.err != nil {
		return
	}
	for _, c := range chunks {
		if c == nil {
			c = []byte{}
		}
		w.encode(c)
	}
	if w.err == nil {
		w.err = w.enc.EndIndefinite()
	}
}

// StartMap opens an indefinite-length map. Keys and values are appended as
// alternating items and the map is closed with End.
func (w *Writer) StartMap() {
	if w.err != nil {
		return
	}
	if w.err = w.enc.StartIndefiniteMap(); w.err == nil {
		w.depth++
	}
}

// StartArray opens an indefinite-length array closed with End.
func (w *Writer) StartArray() {
	if w.err != nil {
		return
	}
	if w.err = w.enc.StartIndefiniteArray(); w.err == nil {
		w.depth++
	}
}

// End closes the innermost open container.
func (w *Writer) End() {
	if w.err != nil {
		return
	}
	if w.depth == 0 {
		w.err = ErrUnbalanced
		return
	}
	if w.err = w.enc.EndIndefinite(); w.err == nil {
		w.depth--
	}
}

// Helpers for the common "key then value" pattern inside a map.

// TextField appends key and a text value.
func (w *Writer) TextField(key, value string) {
	w.Text(key)
	w.Text(value)
}

// UintField appends key and an unsigned value.
func (w *Writer) UintField(key string, value uint64) {
	w.Text(key)
	w.Uint(value)
}

// IntField appends key and a signed value.
func (w *Writer) IntField(key string, value int64) {
	w.Text(key)
	w.Int(value)
}

// BoolField appends key and a bool value.
func (w *Writer) BoolField(key string, value bool) {
	w.Text(key)
	w.Bool(value)
}

// BytesField appends key and a byte string value.
func (w *Writer) BytesField(key string, value []byte) {
	w.Text(key)
	w.ByteString(value)
}

// Value appends a generic Go value such as one produced by encoding/json or
// Decode. Maps and arrays are written with indefinite length, map keys in
// sorted order. json.Number becomes an integer when it has no fraction.
func (w *Writer) Value(v any) {
	if w.err != nil {
		return
	}
	switch v := v.(type) {
	case map[string]any:
		w.StartMap()
		w.Entries(v)
		w.End()
	case []any:
		w.StartArray()
		for _, e := range v {
			w.Value(e)
		}
		w.End()
	case json.Number:
		if i, err := v.Int64(); err == nil {
			w.Int(i)
		} else if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			w.Uint(u)
		} else if f, err := v.Float64(); err == nil {
			w.encode(f)
		} else {
			w.err = fmt.Errorf("cbor: invalid number %q", v.String())
		}
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			w.Int(int64(v))
		} else {
			w.encode(v)
		}
	default:
		w.encode(v)
	}
}

// Entries appends the key/value pairs of m, in sorted key order, to the
// currently open map.
func (w *Writer) Entries(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w.Text(k)
		w.Value(m[k])
	}
}
