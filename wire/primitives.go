// Package wire implements the binary envelope codec: unsigned varints,
// length-prefixed byte strings, fixed-width integers, and the framed
// message taxonomy that rides on top of them (docs, awareness, acks,
// file-transfer frames, and the RPC multiplex). See SPEC_FULL.md for the
// wire format this package implements bit-exact.
//
// Multi-byte primitives follow lib0's conventions: varUint is an
// unsigned LEB128-style varint, strings are a varUint length followed by
// raw UTF-8 bytes, and float64 is IEEE 754 big-endian. Varint encoding is
// delegated to protobuf's wire package rather than hand-rolled, since the
// format (base-128, continuation bit in the MSB) is identical.
package wire

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoder accumulates the bytes of a single frame. It has no streaming
// mode; callers build a frame fully in memory, matching the rest of the
// codec's synchronous, cursor-based design (§5 of the spec: the codec
// never suspends).
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated frame bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteUint8 appends a single byte.
func (e *Encoder) WriteUint8(v uint8) {
	e.buf = append(e.buf, v)
}

// WriteBool appends a single byte: 1 for true, 0 for false.
func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
	} else {
		e.WriteUint8(0)
	}
}

// WriteVarUint appends v as an unsigned LEB128-style varint.
func (e *Encoder) WriteVarUint(v uint64) {
	e.buf = protowire.AppendVarint(e.buf, v)
}

// WriteVarBytes appends a varUint length prefix followed by b.
func (e *Encoder) WriteVarBytes(b []byte) {
	e.WriteVarUint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteString appends a UTF-8 string as a length-prefixed byte array.
func (e *Encoder) WriteString(s string) {
	e.WriteVarBytes([]byte(s))
}

// WriteFloat64 appends an IEEE 754 double in big-endian byte order.
func (e *Encoder) WriteFloat64(f float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(f))
	e.buf = append(e.buf, tmp[:]...)
}

// WriteRaw appends b verbatim, with no length prefix. Used for fields
// whose length is implied elsewhere (e.g. fixed-size hash digests).
func (e *Encoder) WriteRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Decoder is a mutable cursor over a frame's bytes.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder positioned at the start of buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Offset returns the current cursor position, for error diagnostics.
func (d *Decoder) Offset() int {
	return d.pos
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Done reports whether the cursor has consumed the whole buffer.
func (d *Decoder) Done() bool {
	return d.pos >= len(d.buf)
}

// ReadUint8 reads a single byte.
func (d *Decoder) ReadUint8() (uint8, error) {
	if d.Remaining() < 1 {
		return 0, malformed(d.pos, "truncated uint8")
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

// ReadBool reads a single byte and interprets it as a boolean (nonzero is
// true).
func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadVarUint reads an unsigned LEB128-style varint.
func (d *Decoder) ReadVarUint() (uint64, error) {
	v, n := protowire.ConsumeVarint(d.buf[d.pos:])
	if n < 0 {
		return 0, malformed(d.pos, "malformed varint")
	}
	d.pos += n
	return v, nil
}

// ReadVarBytes reads a varUint length prefix followed by that many bytes.
func (d *Decoder) ReadVarBytes() ([]byte, error) {
	start := d.pos
	n, err := d.ReadVarUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Remaining()) {
		return nil, malformed(start, "length exceeds remaining buffer")
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	start := d.pos
	b, err := d.ReadVarBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", malformed(start, "invalid utf-8 in string field")
	}
	return string(b), nil
}

// ReadFloat64 reads an IEEE 754 double in big-endian byte order.
func (d *Decoder) ReadFloat64() (float64, error) {
	if d.Remaining() < 8 {
		return 0, malformed(d.pos, "truncated float64")
	}
	bits := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadRaw reads exactly n unprefixed bytes.
func (d *Decoder) ReadRaw(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, malformed(d.pos, "truncated raw bytes")
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}
