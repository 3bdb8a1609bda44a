package protocol

import (
	"encoding/base64"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one top-level field of an embedded protobuf message.
//
// For varint fields Uint holds the value. For length-delimited fields
// Bytes holds the raw payload and Text is set when it is valid UTF-8.
type Field struct {
	Number   protowire.Number
	WireType protowire.Type
	Uint     uint64
	Bytes    []byte
	Text     string
	IsText   bool
}

// Fields is the ordered result of ParseFields.
type Fields []Field

// Get returns the last field with the given number. Later occurrences
// win, matching how scalar fields merge.
func (fs Fields) Get(n protowire.Number) (Field, bool) {
	for i := len(fs) - 1; i >= 0; i-- {
		if fs[i].Number == n {
			return fs[i], true
		}
	}
	return Field{}, false
}

// Uint returns the varint value of field n, or 0.
func (fs Fields) Uint(n protowire.Number) uint64 {
	f, ok := fs.Get(n)
	if !ok || f.WireType != protowire.VarintType {
		return 0
	}
	return f.Uint
}

// Text returns the text of length-delimited field n, or "".
func (fs Fields) Text(n protowire.Number) string {
	f, ok := fs.Get(n)
	if !ok || !f.IsText {
		return ""
	}
	return f.Text
}

// Message parses length-delimited field n as a nested message.
func (fs Fields) Message(n protowire.Number) Fields {
	f, ok := fs.Get(n)
	if !ok || f.WireType != protowire.BytesType {
		return nil
	}
	return ParseFields(f.Bytes)
}

// ParseFields reads b as a flat sequence of protobuf fields in one pass.
//
// Only varint and length-delimited values are understood. Any other wire
// type, or a truncated field, ends parsing and the fields read so far are
// returned.
func ParseFields(b []byte) Fields {
	var fs Fields
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			break
		}
		b = b[n:]

		f := Field{Number: num, WireType: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fs
			}
			f.Uint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fs
			}
			f.Bytes = v
			if utf8.Valid(v) {
				f.Text, f.IsText = string(v), true
			}
			b = b[n:]
		default:
			return fs
		}
		fs = append(fs, f)
	}
	return fs
}

// ParseFieldsBase64 decodes a standard base64 string and parses the result
// with ParseFields.
func ParseFieldsBase64(s string) (Fields, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ParseFields(b), nil
}
