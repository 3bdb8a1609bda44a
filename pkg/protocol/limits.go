package protocol

import "errors"

// Limits applied while unwrapping compressed frames. The server nests at
// most one level in practice; anything deeper is treated as hostile.
const (
	// MaxNestingDepth is the maximum number of compressed layers a frame
	// may be wrapped in.
	MaxNestingDepth = 4

	// MaxDecompressedSize caps the inflated size of a single compressed
	// frame body (16MB).
	MaxDecompressedSize = 16 * 1024 * 1024
)

var (
	// ErrMaxDepthExceeded is returned when compressed frames are nested
	// deeper than MaxNestingDepth.
	ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")

	// ErrDecompressedTooLarge is returned when a compressed body inflates
	// past MaxDecompressedSize.
	ErrDecompressedTooLarge = errors.New("protocol: decompressed body too large")
)
