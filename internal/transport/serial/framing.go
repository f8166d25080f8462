package serial

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sigurn/crc16"
)

// Console packet markers
var (
	markerFirst        = []byte{0x06, 0x09}
	markerContinuation = []byte{0x04, 0x14}
)

const (
	// rawPerLine is the most raw bytes one console line carries: 127
	// characters less marker and newline, as base64.
	rawPerLine = 93

	lineEnd = '\n'

	// garbageLimit is how many unframed bytes are kept while waiting for a
	// marker.
	garbageLimit = 10
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Framing errors
var (
	ErrFrameTooLarge = errors.New("serial: frame too large for console framing")
	ErrBadChecksum   = errors.New("serial: checksum mismatch")
	ErrMTUTooSmall   = errors.New("serial: MTU too small")
)

// Encode wraps an SMP frame into console lines. The packet is the 16-bit
// big-endian length of frame plus checksum, the frame, and its CRC-16/XMODEM,
// split over lines of at most rawPerLine raw bytes.
func Encode(frame []byte) ([][]byte, error) {
	if len(frame)+2 > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	packet := make([]byte, 0, len(frame)+4)
	packet = binary.BigEndian.AppendUint16(packet, uint16(len(frame)+2))
	packet = append(packet, frame...)
	packet = binary.BigEndian.AppendUint16(packet, crc16.Checksum(frame, crcTable))

	var lines [][]byte
	for off := 0; off < len(packet); off += rawPerLine {
		end := min(off+rawPerLine, len(packet))
		marker := markerContinuation
		if off == 0 {
			marker = markerFirst
		}
		line := make([]byte, 0, len(marker)+base64.StdEncoding.EncodedLen(end-off)+1)
		line = append(line, marker...)
		line = base64.StdEncoding.AppendEncode(line, packet[off:end])
		line = append(line, lineEnd)
		lines = append(lines, line)
	}
	return lines, nil
}

// MaxMessageSize returns the largest SMP frame that fits a console MTU of
// mtu characters once base64, line markers, length and checksum are taken
// off.
func MaxMessageSize(mtu int) int {
	available := float64(mtu)
	packets := math.Ceil(available / 124.0)

	available = available * 3.0 / 4.0
	available -= 4.0
	available -= packets * 3.0
	if available <= 0 {
		return 0
	}

	// narrow final packets lose bytes to base64 padding
	switch rem := int(available) % rawPerLine; {
	case rem >= 91:
		available -= 3.0
	case rem >= 88:
		available -= 1.0
	}
	return int(available)
}

// Decoder reassembles console lines into SMP frames. Bytes outside marked
// lines are discarded.
type Decoder struct {
	buf     []byte
	packet  []byte
	want    int // length field of the packet in progress, 0 when none
	dropped int
}

// Dropped returns how many packets were discarded for bad encoding or
// checksum.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Feed consumes console bytes and returns every complete frame, without
// length and checksum.
func (d *Decoder) Feed(data []byte) [][]byte {
	d.buf = append(d.buf, data...)

	var frames [][]byte
	for {
		start, first := d.nextMarker()
		if start < 0 {
			// keep a possible partial marker
			if len(d.buf) > garbageLimit {
				d.buf = append(d.buf[:0], d.buf[len(d.buf)-1:]...)
			}
			return frames
		}
		end := bytes.IndexByte(d.buf[start+2:], lineEnd)
		if end < 0 {
			d.buf = append(d.buf[:0], d.buf[start:]...)
			return frames
		}
		end += start + 2

		payload := bytes.TrimRight(d.buf[start+2:end], "\r")
		if frame, ok := d.line(payload, first); ok {
			frames = append(frames, frame)
		}
		d.buf = append(d.buf[:0], d.buf[end+1:]...)
	}
}

func (d *Decoder) nextMarker() (int, bool) {
	first := bytes.Index(d.buf, markerFirst)
	cont := bytes.Index(d.buf, markerContinuation)
	switch {
	case first < 0 && cont < 0:
		return -1, false
	case cont < 0 || (first >= 0 && first < cont):
		return first, true
	default:
		return cont, false
	}
}

// line handles the base64 payload of one marked line
func (d *Decoder) line(payload []byte, first bool) ([]byte, bool) {
	raw, err := base64.StdEncoding.AppendDecode(nil, payload)
	if err != nil || len(raw) == 0 {
		d.drop()
		return nil, false
	}

	if first {
		if len(raw) < 2 {
			d.drop()
			return nil, false
		}
		d.want = int(binary.BigEndian.Uint16(raw))
		d.packet = append(d.packet[:0], raw[2:]...)
	} else {
		if d.want == 0 {
			return nil, false
		}
		d.packet = append(d.packet, raw...)
	}

	if len(d.packet) < d.want {
		return nil, false
	}
	return d.finish()
}

func (d *Decoder) finish() ([]byte, bool) {
	packet := d.packet[:d.want]
	d.want = 0
	d.packet = d.packet[:0]
	if len(packet) < 2 {
		d.dropped++
		return nil, false
	}

	frame := packet[:len(packet)-2]
	if crc16.Checksum(frame, crcTable) != binary.BigEndian.Uint16(packet[len(packet)-2:]) {
		d.dropped++
		return nil, false
	}
	return append([]byte(nil), frame...), true
}

func (d *Decoder) drop() {
	d.want = 0
	d.packet = d.packet[:0]
	d.dropped++
}

// Reset discards any partial input.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.want = 0
	d.packet = d.packet[:0]
}
