package client

import (
	"github.com/xyself/blivedm/pkg/dispatch"
	"github.com/xyself/blivedm/pkg/events"
)

// Handler is the set of callbacks a session drives. All callbacks run on
// the session's event loop, one at a time. Any field may be nil.
type Handler struct {
	// OnSessionStart fires once the auth reply accepts the session.
	OnSessionStart func(c *Client)

	// OnSessionStop fires exactly once when the session ends, including
	// when it never got past starting. err is nil for a requested stop.
	OnSessionStop func(c *Client, err error)

	// OnHeartbeat receives each heartbeat reply.
	OnHeartbeat func(c *Client, hb events.Heartbeat)

	// Web routes notifications of web rooms.
	Web dispatch.Table

	// OpenLive routes notifications of open platform rooms.
	OpenLive dispatch.Table
}

// table returns the dispatch table for v.
func (h *Handler) table(v Variant) dispatch.Table {
	if v == VariantOpenLive {
		return h.OpenLive
	}
	return h.Web
}
