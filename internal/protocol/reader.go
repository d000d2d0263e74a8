package protocol

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrShortFrame reports a read past the end of the payload.
var ErrShortFrame = errors.New("short frame")

// Reader reads fields from a frame payload. Byte 0 is always the opcode.
// Reads past the end return zero values and latch ErrShortFrame.
type Reader struct {
	data  []byte
	off   int
	short bool
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) need(n int) bool {
	if r.off+n > len(r.data) {
		r.short = true
		r.off = len(r.data)
		return false
	}
	return true
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *Reader) ReadBool() bool { return r.ReadC() != 0 }

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQ() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadF reads an IEEE-754 float32.
func (r *Reader) ReadF() float64 {
	if !r.need(4) {
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return float64(v)
}

func (r *Reader) ReadDuration() time.Duration {
	return time.Duration(r.ReadD()) * time.Millisecond
}

// ReadS reads a null-terminated UTF-8 string and returns it in NFC form.
func (r *Reader) ReadS() string {
	start := r.off
	for r.off < len(r.data) {
		if r.data[r.off] == 0 {
			s := string(r.data[start:r.off])
			r.off++ // skip null terminator
			return norm.NFC.String(s)
		}
		r.off++
	}
	r.short = true
	return norm.NFC.String(string(r.data[start:r.off]))
}

// ReadBlob reads a 2-byte length and that many bytes.
func (r *Reader) ReadBlob() []byte {
	n := int(r.ReadH())
	if !r.need(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns ErrShortFrame if any read ran past the payload.
func (r *Reader) Err() error {
	if r.short {
		return ErrShortFrame
	}
	return nil
}
