package protocol

import (
	"encoding/binary"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Writer builds a frame payload. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode byte) *Writer {
	w := NewWriter()
	w.WriteC(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte, 0 or 1.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteC(1)
		return
	}
	w.WriteC(0)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteQ writes 8 bytes little-endian.
func (w *Writer) WriteQ(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteF writes a float as IEEE-754 float32.
func (w *Writer) WriteF(v float64) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v)))
}

// WriteDuration writes a duration as whole milliseconds in 4 bytes.
func (w *Writer) WriteDuration(d time.Duration) {
	w.WriteD(int32(d / time.Millisecond))
}

// WriteS writes a null-terminated UTF-8 string in NFC form.
func (w *Writer) WriteS(s string) {
	w.buf = append(w.buf, norm.NFC.String(s)...)
	w.buf = append(w.buf, 0)
}

// WriteBlob writes a 2-byte length followed by raw bytes.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteH(uint16(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }
