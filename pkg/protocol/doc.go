// Package protocol implements the binary frame codec of the live chat
// websocket protocol.
//
// Every websocket message carries one or more back-to-back frames. Each
// frame starts with a 16-byte big-endian header:
//
//	┌──────────────┬────────────┬──────────┬─────────────┬─────────────┐
//	│ Packet Len   │ Header Len │ Version  │ Operation   │ Sequence    │
//	│ (4 bytes)    │ (2 bytes)  │ (2 bytes)│ (4 bytes)   │ (4 bytes)   │
//	└──────────────┴────────────┴──────────┴─────────────┴─────────────┘
//	│                                                                  │
//	│  Body (Packet Len - Header Len bytes)                            │
//	│                                                                  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Versions
//
//   - VersionPlain (0): JSON body
//   - VersionInt (1): integer body (heartbeat reply, outbound frames)
//   - VersionZlib (2): zlib stream holding more frames
//   - VersionBrotli (3): brotli stream holding more frames
//
// Compressed frames are unwrapped transparently: DecodeFrames inflates the
// body and decodes the result as a further sequence of frames. Nesting is
// capped at MaxNestingDepth and inflated output at MaxDecompressedSize.
//
// # Operations
//
//   - OpHeartbeat (2): client keep-alive
//   - OpHeartbeatReply (3): server reply carrying the popularity count
//   - OpNotification (5): JSON command
//   - OpAuth (7): client authentication
//   - OpAuthReply (8): server authentication result
//
// # Usage Example
//
//	// Encode an auth frame
//	data := protocol.Encode(protocol.OpAuth, authJSON)
//
//	// Decode everything in a websocket message
//	frames, err := protocol.DecodeFrames(msg)
//	if err != nil {
//	    // Non-fatal: frames still holds everything decoded before the
//	    // malformed part.
//	}
//
// # Embedded Fields
//
// ParseFields is a minimal single-pass reader for protobuf-encoded
// sub-messages that some commands embed as base64. It only understands
// varint and length-delimited fields and stops at anything else.
package protocol
