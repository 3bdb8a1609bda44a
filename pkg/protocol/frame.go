package protocol

import (
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 16

// Operation identifies what a frame carries.
type Operation uint32

// Operation codes.
const (
	OpHeartbeat      Operation = 2
	OpHeartbeatReply Operation = 3
	OpNotification   Operation = 5
	OpAuth           Operation = 7
	OpAuthReply      Operation = 8
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpHeartbeat:
		return "Heartbeat"
	case OpHeartbeatReply:
		return "HeartbeatReply"
	case OpNotification:
		return "Notification"
	case OpAuth:
		return "Auth"
	case OpAuthReply:
		return "AuthReply"
	default:
		return fmt.Sprintf("Operation(%d)", uint32(o))
	}
}

// Version is the body encoding of a frame.
type Version uint16

// Body versions.
const (
	VersionPlain  Version = 0
	VersionInt    Version = 1
	VersionZlib   Version = 2
	VersionBrotli Version = 3
)

// String returns the string representation of the version.
func (v Version) String() string {
	switch v {
	case VersionPlain:
		return "plain"
	case VersionInt:
		return "int"
	case VersionZlib:
		return "zlib"
	case VersionBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("Version(%d)", uint16(v))
	}
}

// Compressed reports whether the body holds further compressed frames.
func (v Version) Compressed() bool {
	return v == VersionZlib || v == VersionBrotli
}

// Frame is one protocol message unit.
type Frame struct {
	PacketLen uint32
	HeaderLen uint16
	Version   Version
	Operation Operation
	Sequence  uint32
	Body      []byte
}

// outboundSequence is written into every encoded frame. The server ignores it.
const outboundSequence = 1

// NewFrame creates an outbound frame with the default version and sequence.
func NewFrame(op Operation, body []byte) *Frame {
	return &Frame{
		PacketLen: uint32(HeaderSize + len(body)),
		HeaderLen: HeaderSize,
		Version:   VersionInt,
		Operation: op,
		Sequence:  outboundSequence,
		Body:      body,
	}
}

// Encode serializes a single outbound frame for op with the given body.
func Encode(op Operation, body []byte) []byte {
	return NewFrame(op, body).Encode()
}

// Encode serializes the frame. PacketLen and HeaderLen are recomputed
// from the body so a hand-built frame always encodes consistently.
func (f *Frame) Encode() []byte {
	e := NewEncoderWithCap(HeaderSize + len(f.Body))
	e.WriteUint32(uint32(HeaderSize + len(f.Body)))
	e.WriteUint16(HeaderSize)
	e.WriteUint16(uint16(f.Version))
	e.WriteUint32(uint32(f.Operation))
	e.WriteUint32(f.Sequence)
	e.WriteBytes(f.Body)
	return e.Bytes()
}

// Popularity reads the activity count carried by a heartbeat reply.
func (f *Frame) Popularity() (uint32, error) {
	if f.Operation != OpHeartbeatReply {
		return 0, fmt.Errorf("protocol: %s frame has no popularity", f.Operation)
	}
	v, err := NewDecoder(f.Body).ReadUint32()
	if err != nil {
		return 0, fmt.Errorf("protocol: popularity: %w", err)
	}
	return v, nil
}

// DecodeFrames decodes every frame in data, unwrapping compressed frames
// recursively. The returned frames are all uncompressed and in wire order.
//
// Errors are non-fatal. A *FrameDecodeError stops decoding of the
// remaining bytes at that nesting level; a *DecompressionError drops only
// the offending frame. Frames decoded before and around the failures are
// still returned, and all failures are joined into the error.
func DecodeFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	err := decodeFrames(data, 0, &frames)
	return frames, err
}

func decodeFrames(data []byte, depth int, out *[]Frame) error {
	var errs []error
	d := NewDecoder(data)
	for !d.EOF() {
		offset := d.Position()
		f, err := readFrame(d)
		if err != nil {
			errs = append(errs, &FrameDecodeError{Offset: offset, Err: err})
			break
		}
		if !f.Version.Compressed() {
			*out = append(*out, f)
			continue
		}
		if depth+1 > MaxNestingDepth {
			errs = append(errs, &DecompressionError{Offset: offset, Version: f.Version, Err: ErrMaxDepthExceeded})
			continue
		}
		inner, err := inflate(f.Version, f.Body)
		if err != nil {
			errs = append(errs, &DecompressionError{Offset: offset, Version: f.Version, Err: err})
			continue
		}
		if err := decodeFrames(inner, depth+1, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// readFrame reads one frame header and body, leaving d positioned at the
// start of the next frame.
func readFrame(d *Decoder) (Frame, error) {
	if d.Remaining() < HeaderSize {
		return Frame{}, ErrShortHeader
	}
	var f Frame
	f.PacketLen, _ = d.ReadUint32()
	f.HeaderLen, _ = d.ReadUint16()
	v, _ := d.ReadUint16()
	f.Version = Version(v)
	op, _ := d.ReadUint32()
	f.Operation = Operation(op)
	f.Sequence, _ = d.ReadUint32()

	if f.HeaderLen < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d", ErrHeaderLength, f.HeaderLen)
	}
	if f.PacketLen < uint32(f.HeaderLen) {
		return Frame{}, fmt.Errorf("%w: %d < %d", ErrPacketLength, f.PacketLen, f.HeaderLen)
	}
	// Skip any extended header beyond the fixed 16 bytes.
	if err := d.Skip(int(f.HeaderLen) - HeaderSize); err != nil {
		return Frame{}, fmt.Errorf("%w: header length %d", ErrTruncated, f.HeaderLen)
	}
	bodyLen := int(f.PacketLen) - int(f.HeaderLen)
	if bodyLen > d.Remaining() {
		return Frame{}, fmt.Errorf("%w: packet length %d, %d bytes left", ErrTruncated, f.PacketLen, d.Remaining()+int(f.HeaderLen))
	}
	f.Body, _ = d.ReadBytes(bodyLen)
	return f, nil
}
