package protocol

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// inflate decompresses a compressed frame body. Output larger than
// MaxDecompressedSize is rejected with ErrDecompressedTooLarge.
func inflate(v Version, body []byte) ([]byte, error) {
	var r io.Reader
	switch v {
	case VersionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case VersionBrotli:
		r = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, v)
	}

	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressedSize {
		return nil, ErrDecompressedTooLarge
	}
	return out, nil
}

// Compress wraps already encoded frames into the body of a compressed
// frame with version v. Servers send such frames; the client only needs
// this to build fixtures and to replay captured traffic.
func Compress(v Version, frames []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch v {
	case VersionZlib:
		w = zlib.NewWriter(&buf)
	case VersionBrotli:
		w = brotli.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, v)
	}
	if _, err := w.Write(frames); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCompressed encodes frames as the body of a single compressed
// notification frame.
func EncodeCompressed(v Version, frames []byte) ([]byte, error) {
	body, err := Compress(v, frames)
	if err != nil {
		return nil, err
	}
	f := NewFrame(OpNotification, body)
	f.Version = v
	return f.Encode(), nil
}
