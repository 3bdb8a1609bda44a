// Package events defines the typed events decoded from notification
// frames and the functions that decode them.
//
// Every command body is a JSON object with a "cmd" discriminator. Most
// commands keep their payload under "data"; DecodeData covers those. A few
// (DANMU_MSG, NOTICE_MSG, LIVE, PREPARING, INTERACT_WORD_V2) have bespoke
// decoders.
package events

import (
	"encoding/json"
	"fmt"
)

// Heartbeat is the activity count carried by a heartbeat reply frame.
type Heartbeat struct {
	Popularity uint32
}

// Generic is a command without a dedicated struct. Data holds the
// "data" member verbatim.
type Generic struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data"`
}

// DecodeGeneric decodes any command body into a Generic.
func DecodeGeneric(raw []byte) (Generic, error) {
	var g Generic
	if err := json.Unmarshal(raw, &g); err != nil {
		return Generic{}, err
	}
	return g, nil
}

// DecodeData decodes the "data" member of a command body into T.
func DecodeData[T any](raw []byte) (T, error) {
	var env struct {
		Data *T `json:"data"`
	}
	var zero T
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, err
	}
	if env.Data == nil {
		return zero, errMissing("data")
	}
	return *env.Data, nil
}

// DecodeTop decodes the whole command body into T. It is used for the
// commands that carry their fields next to "cmd".
func DecodeTop[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

func errMissing(field string) error {
	return fmt.Errorf("events: missing %q", field)
}

// jsonArray is a positional JSON array whose members are read leniently:
// a missing index or a type mismatch yields the zero value.
type jsonArray []json.RawMessage

func (a jsonArray) raw(i int) json.RawMessage {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

func (a jsonArray) array(i int) jsonArray {
	var sub jsonArray
	if r := a.raw(i); r != nil {
		_ = json.Unmarshal(r, &sub)
	}
	return sub
}

func (a jsonArray) int(i int) int64 {
	r := a.raw(i)
	if r == nil {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(r, &n); err != nil {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	f, _ := n.Float64()
	return int64(f)
}

func (a jsonArray) str(i int) string {
	var s string
	if r := a.raw(i); r != nil {
		_ = json.Unmarshal(r, &s)
	}
	return s
}
