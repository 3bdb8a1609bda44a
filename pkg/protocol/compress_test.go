package protocol

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"testing"
)

func encodeAll(bodies ...string) []byte {
	var buf []byte
	for _, b := range bodies {
		buf = append(buf, Encode(OpNotification, []byte(b))...)
	}
	return buf
}

func TestDecodeFramesCompressed(t *testing.T) {
	for _, v := range []Version{VersionZlib, VersionBrotli} {
		t.Run(v.String(), func(t *testing.T) {
			bodies := []string{`{"cmd":"A"}`, `{"cmd":"B"}`, `{"cmd":"C"}`}
			msg, err := EncodeCompressed(v, encodeAll(bodies...))
			if err != nil {
				t.Fatalf("EncodeCompressed() error = %v", err)
			}

			frames, err := DecodeFrames(msg)
			if err != nil {
				t.Fatalf("DecodeFrames() error = %v", err)
			}
			if len(frames) != len(bodies) {
				t.Fatalf("got %d frames, want %d", len(frames), len(bodies))
			}
			for i, f := range frames {
				if string(f.Body) != bodies[i] {
					t.Errorf("frame %d body = %q, want %q", i, f.Body, bodies[i])
				}
				if f.Version.Compressed() {
					t.Errorf("frame %d still compressed (%s)", i, f.Version)
				}
			}
		})
	}
}

func TestDecodeFramesMixed(t *testing.T) {
	zl, err := EncodeCompressed(VersionZlib, encodeAll(`{"cmd":"Z1"}`, `{"cmd":"Z2"}`))
	if err != nil {
		t.Fatal(err)
	}
	br, err := EncodeCompressed(VersionBrotli, encodeAll(`{"cmd":"B1"}`))
	if err != nil {
		t.Fatal(err)
	}

	var buf []byte
	buf = append(buf, encodeAll(`{"cmd":"P1"}`)...)
	buf = append(buf, zl...)
	buf = append(buf, br...)
	buf = append(buf, encodeAll(`{"cmd":"P2"}`)...)

	frames, err := DecodeFrames(buf)
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	want := []string{`{"cmd":"P1"}`, `{"cmd":"Z1"}`, `{"cmd":"Z2"}`, `{"cmd":"B1"}`, `{"cmd":"P2"}`}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if string(f.Body) != want[i] {
			t.Errorf("frame %d body = %q, want %q", i, f.Body, want[i])
		}
	}
}

func TestDecodeFramesNested(t *testing.T) {
	nest := func(depth int) []byte {
		msg := encodeAll(`{"cmd":"INNER"}`)
		for i := 0; i < depth; i++ {
			v := VersionZlib
			if i%2 == 1 {
				v = VersionBrotli
			}
			var err error
			msg, err = EncodeCompressed(v, msg)
			if err != nil {
				t.Fatal(err)
			}
		}
		return msg
	}

	t.Run("within_limit", func(t *testing.T) {
		frames, err := DecodeFrames(nest(MaxNestingDepth))
		if err != nil {
			t.Fatalf("DecodeFrames() error = %v", err)
		}
		if len(frames) != 1 || string(frames[0].Body) != `{"cmd":"INNER"}` {
			t.Fatalf("frames = %+v", frames)
		}
	})

	t.Run("beyond_limit", func(t *testing.T) {
		frames, err := DecodeFrames(nest(MaxNestingDepth + 1))
		if len(frames) != 0 {
			t.Errorf("got %d frames, want 0", len(frames))
		}
		if !errors.Is(err, ErrMaxDepthExceeded) {
			t.Errorf("error = %v, want ErrMaxDepthExceeded", err)
		}
		var de *DecompressionError
		if !errors.As(err, &de) {
			t.Errorf("error %T is not a *DecompressionError", err)
		}
	})
}

func TestDecodeFramesBadCompressedBody(t *testing.T) {
	valid, err := Compress(VersionZlib, encodeAll(`{"cmd":"LOST"}`))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body []byte
	}{
		{name: "garbage", body: []byte("definitely not compressed")},
		{name: "truncated", body: valid[:len(valid)/2]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bad := NewFrame(OpNotification, tc.body)
			bad.Version = VersionZlib

			var buf []byte
			buf = append(buf, bad.Encode()...)
			buf = append(buf, encodeAll(`{"cmd":"AFTER"}`)...)

			frames, err := DecodeFrames(buf)
			if len(frames) != 1 || string(frames[0].Body) != `{"cmd":"AFTER"}` {
				t.Errorf("frames = %+v, want only the frame after the bad one", frames)
			}
			var de *DecompressionError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want *DecompressionError", err)
			}
			if de.Version != VersionZlib || de.Offset != 0 {
				t.Errorf("DecompressionError = %+v", de)
			}
			var fde *FrameDecodeError
			if errors.As(err, &fde) {
				t.Errorf("unexpected *FrameDecodeError: %v", fde)
			}
		})
	}
}

func TestInflateTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	chunk := make([]byte, 1<<20)
	for i := 0; i < MaxDecompressedSize/len(chunk)+1; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := inflate(VersionZlib, buf.Bytes())
	if !errors.Is(err, ErrDecompressedTooLarge) {
		t.Errorf("inflate() error = %v, want ErrDecompressedTooLarge", err)
	}
}

func TestCompressUnsupported(t *testing.T) {
	_, err := Compress(VersionPlain, []byte("x"))
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("Compress() error = %v, want ErrUnsupportedCodec", err)
	}
}

func BenchmarkDecodeFramesBrotli(b *testing.B) {
	var bodies []string
	for i := 0; i < 64; i++ {
		bodies = append(bodies, fmt.Sprintf(`{"cmd":"DANMU_MSG","info":[[0,1,25],"message %d",[%d,"user"]]}`, i, i))
	}
	msg, err := EncodeCompressed(VersionBrotli, encodeAll(bodies...))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeFrames(msg); err != nil {
			b.Fatal(err)
		}
	}
}
