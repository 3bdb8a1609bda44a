package protocol

import (
	"errors"
	"fmt"
)

// Header validation errors, wrapped by FrameDecodeError.
var (
	ErrShortHeader      = errors.New("protocol: buffer shorter than frame header")
	ErrHeaderLength     = errors.New("protocol: header length below minimum")
	ErrPacketLength     = errors.New("protocol: packet length below header length")
	ErrTruncated        = errors.New("protocol: frame overruns buffer")
	ErrUnsupportedCodec = errors.New("protocol: unsupported compression version")
)

// FrameDecodeError reports a malformed frame header or a frame that
// overruns its buffer. Everything from Offset onward is dropped.
type FrameDecodeError struct {
	Offset int
	Err    error
}

// Error returns the error message with the offending offset.
func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("protocol: malformed frame at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *FrameDecodeError) Unwrap() error {
	return e.Err
}

// DecompressionError reports a compressed frame whose body could not be
// inflated. Only that frame is dropped.
type DecompressionError struct {
	Offset  int
	Version Version
	Err     error
}

// Error returns the error message with the frame version.
func (e *DecompressionError) Error() string {
	return fmt.Sprintf("protocol: %s frame at offset %d: %v", e.Version, e.Offset, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecompressionError) Unwrap() error {
	return e.Err
}
