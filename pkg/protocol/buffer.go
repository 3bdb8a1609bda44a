package protocol

import (
	"encoding/binary"
	"io"
)

// Decoder reads big-endian fields from a packet buffer. Every read is
// bounds checked and fails with io.ErrUnexpectedEOF instead of panicking.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder reads from buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining is the count of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// EOF reports whether the whole buffer was consumed.
func (d *Decoder) EOF() bool { return d.pos >= len(d.buf) }

// Position is the offset of the next read.
func (d *Decoder) Position() int { return d.pos }

// Skip discards n bytes.
func (d *Decoder) Skip(n int) error {
	_, err := d.ReadBytes(n)
	return err
}

// ReadBytes returns the next n bytes. The slice aliases the buffer and is
// capped so appends cannot overwrite the following packet.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Encoder appends big-endian fields to a growing buffer.
type Encoder struct {
	buf []byte
}

// NewEncoderWithCap preallocates n bytes.
func NewEncoderWithCap(n int) *Encoder {
	return &Encoder{buf: make([]byte, 0, n)}
}

// Bytes returns the encoded packet.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteBytes(b []byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) WriteUint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }

func (e *Encoder) WriteUint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
