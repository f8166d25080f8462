package smp

import (
	"errors"
	"fmt"
)

// DefaultReassemblyLimit bounds the bytes a Reassembler buffers.
const DefaultReassemblyLimit = HeaderSize + 0xffff

// ErrReassemblyOverflow is returned when buffered data exceeds the limit.
var ErrReassemblyOverflow = errors.New("smp: reassembly buffer overflow")

// Reassembler turns an arbitrary stream of byte fragments into complete
// messages using the header length field. Transports that may split or
// coalesce frames feed every fragment through it.
type Reassembler struct {
	buf   []byte
	Limit int
}

// Feed appends data and returns every message completed by it. On overflow
// the buffer is discarded.
func (r *Reassembler) Feed(data []byte) ([]*Message, error) {
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultReassemblyLimit
	}
	if len(r.buf)+len(data) > limit {
		r.buf = r.buf[:0]
		return nil, fmt.Errorf("%w: more than %d bytes buffered", ErrReassemblyOverflow, limit)
	}
	r.buf = append(r.buf, data...)

	var out []*Message
	for len(r.buf) >= HeaderSize {
		h, err := ParseHeader(r.buf)
		if err != nil {
			return out, err
		}
		total := HeaderSize + int(h.Length)
		if len(r.buf) < total {
			break
		}
		msg, err := ParseMessage(r.buf[:total])
		if err != nil {
			return out, err
		}
		out = append(out, msg)
		r.buf = append(r.buf[:0], r.buf[total:]...)
	}
	return out, nil
}

// Buffered returns the number of bytes waiting for the rest of a message.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Reset drops any partial message.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
