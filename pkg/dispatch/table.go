// Package dispatch routes notification commands to typed callbacks.
//
// A Table maps a command discriminator to an Entry. An Entry pairs a
// decode step, which turns the raw JSON body into a typed event, with the
// callback that receives the event. Tables are plain maps built once and
// treated as immutable; callers customise behavior by building their own
// table or by deriving one with With:
//
//	table := dispatch.WebTable(dispatch.WebCallbacks{
//	    Danmaku: func(s dispatch.Session, d events.Danmaku) {
//	        fmt.Println(d.Uname, d.Msg)
//	    },
//	}).With("MY_CMD", dispatch.On(events.DecodeGeneric, onMine))
//
// The Router looks up each notification in its table, decodes, and calls
// back, containing decode errors and callback panics.
package dispatch

import (
	"maps"
)

// Session is the view of a chat session handed to callbacks.
type Session interface {
	// ID is a unique identifier of this session attempt.
	ID() string
	// RoomID is the canonical room id.
	RoomID() int64
	// OwnerUID is the uid of the room's streamer.
	OwnerUID() int64
	// UID is the authenticated viewer's uid, 0 when anonymous.
	UID() int64
}

// Entry is one dispatch table entry. Build entries with On.
type Entry struct {
	run func(s Session, raw []byte) error
}

// On binds a decode step to a callback. A nil fn makes the entry a no-op
// that skips decoding.
func On[T any](decode func(raw []byte) (T, error), fn func(s Session, ev T)) Entry {
	if fn == nil {
		return Entry{}
	}
	return Entry{run: func(s Session, raw []byte) error {
		ev, err := decode(raw)
		if err != nil {
			return err
		}
		fn(s, ev)
		return nil
	}}
}

// Noop reports whether the entry has no callback.
func (e Entry) Noop() bool {
	return e.run == nil
}

// Table maps a command discriminator (without ":" suffix) to its entry.
type Table map[string]Entry

// With returns a copy of t with cmd bound to e.
func (t Table) With(cmd string, e Entry) Table {
	out := make(Table, len(t)+1)
	maps.Copy(out, t)
	out[cmd] = e
	return out
}

// Merge returns a copy of t with every entry of other added, replacing
// entries for the same command.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	maps.Copy(out, t)
	maps.Copy(out, other)
	return out
}

// Lookup returns the entry for cmd.
func (t Table) Lookup(cmd string) (Entry, bool) {
	e, ok := t[cmd]
	return e, ok
}
