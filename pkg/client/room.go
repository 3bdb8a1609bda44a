package client

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"strconv"
)

// Variant selects the flavour of the chat protocol a room speaks.
type Variant int

const (
	// VariantWeb is the public web chat.
	VariantWeb Variant = iota
	// VariantOpenLive is the open platform, authenticated by an app.
	VariantOpenLive
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantWeb:
		return "web"
	case VariantOpenLive:
		return "openlive"
	default:
		return "Variant(" + strconv.Itoa(int(v)) + ")"
	}
}

// HostServer is one chat server endpoint.
type HostServer struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WssPort int    `json:"wss_port"`
	WsPort  int    `json:"ws_port"`
}

// DefaultHostServer is used when resolution yields no servers.
var DefaultHostServer = HostServer{
	Host:    "broadcastlv.chat.bilibili.com",
	Port:    2243,
	WssPort: 443,
	WsPort:  2244,
}

// URL returns the websocket endpoint of the server.
func (h HostServer) URL(insecure bool) string {
	u := url.URL{Scheme: "wss", Path: "/sub"}
	port := h.WssPort
	if insecure {
		u.Scheme = "ws"
		port = h.WsPort
	}
	u.Host = h.Host
	if port != 0 {
		u.Host = net.JoinHostPort(h.Host, strconv.Itoa(port))
	}
	return u.String()
}

// RoomInfo is what a Resolver learns about a room before connecting.
type RoomInfo struct {
	// RoomID is the canonical room id.
	RoomID int64
	// ShortRoomID is the vanity id, 0 when the room has none.
	ShortRoomID int64
	OwnerUID    int64
	// UID is the viewer uid, 0 when anonymous.
	UID int64
	// Token is the web auth key.
	Token   string
	Servers []HostServer
	// AuthBody is the open platform auth payload, sent verbatim.
	AuthBody json.RawMessage
	// GameID identifies an open platform app session.
	GameID  string
	Variant Variant
}

// Resolver turns a caller-supplied room id into connection details.
type Resolver interface {
	Resolve(ctx context.Context, roomID int64) (*RoomInfo, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, roomID int64) (*RoomInfo, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, roomID int64) (*RoomInfo, error) {
	return f(ctx, roomID)
}
