package client

import (
	"time"
)

// Default identity sent to the chat server. The values mirror what a
// desktop browser on the live site sends.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	DefaultBuvid     = "XY418E4B2B9432344C7B9785A3FA0D3809C3"
	DefaultOrigin    = "https://live.bilibili.com"
)

// Config holds configuration for a single client session.
type Config struct {
	// Timeouts

	// HeartbeatInterval is the time between heartbeat frames once the
	// session is live. The first heartbeat is sent one full interval after
	// authentication succeeds.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// HandshakeTimeout bounds the websocket opening handshake.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// Limits

	// ReadLimit is the maximum size of one inbound websocket message.
	// Zero means no limit.
	// Default: 4MB.
	ReadLimit int64

	// Transport

	// Insecure dials ws://host:ws_port instead of wss://host:wss_port.
	// Default: false.
	Insecure bool

	// UserAgent is sent on the websocket handshake.
	UserAgent string

	// Origin is sent on the websocket handshake. Empty omits the header.
	Origin string

	// Buvid is the browser id placed in the web auth payload.
	Buvid string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReadLimit:         4 * 1024 * 1024, // 4MB
		UserAgent:         DefaultUserAgent,
		Origin:            DefaultOrigin,
		Buvid:             DefaultBuvid,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
