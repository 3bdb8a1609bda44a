package client

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xyself/blivedm/pkg/dispatch"
	"github.com/xyself/blivedm/pkg/metrics"
	"github.com/xyself/blivedm/pkg/protocol"
)

var errNoResolver = errors.New("client: no resolver configured")

// Dialer opens websocket connections. *websocket.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Client is one chat session for one room. A Client is single use: once
// it reaches StateClosed, build a new one to reconnect.
//
// Callbacks receive a view of the Client that shares its session but
// whose Stop returns without waiting, since the event loop they run on
// cannot wait for itself. Code inside a callback must stop the session
// through the client (or dispatch.Session) it was given.
type Client struct {
	*core

	// loop marks the view handed to callbacks.
	loop bool
}

type core struct {
	id         string
	roomID     int64
	config     *Config
	resolver   Resolver
	handler    Handler
	logger     *slog.Logger
	metrics    *metrics.Metrics
	dialer     Dialer
	newTicker  TickerFactory
	routerOpts []dispatch.Option

	mu      sync.Mutex // guards the fields below
	state   State
	info    *RoomInfo
	err     error
	running bool // event loop started
	live    bool // reached StateLive at least once

	// Set by Start before the loops run, read-only afterwards.
	conn    *websocket.Conn
	writeMu sync.Mutex // serializes conn writes
	router  *dispatch.Router
	ctx     context.Context

	ka keepAlive // event loop only

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	finished atomic.Bool

	view *Client
}

var _ dispatch.Session = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithResolver sets how the room is resolved before connecting.
func WithResolver(r Resolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

// WithHandler sets the session callbacks and dispatch tables.
func WithHandler(h Handler) Option {
	return func(c *Client) {
		c.handler = h
	}
}

// WithConfig sets the session configuration. Default: DefaultConfig().
func WithConfig(cfg *Config) Option {
	return func(c *Client) {
		c.config = cfg.Clone()
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records session activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithTicker replaces the heartbeat ticker factory.
func WithTicker(f TickerFactory) Option {
	return func(c *Client) {
		c.newTicker = f
	}
}

// WithRouterOptions passes extra options to the session's dispatch router,
// for example dispatch.WithObserver.
func WithRouterOptions(opts ...dispatch.Option) Option {
	return func(c *Client) {
		c.routerOpts = append(c.routerOpts, opts...)
	}
}

// New creates an idle client for roomID, which may be a short room id.
func New(roomID int64, opts ...Option) *Client {
	c := &Client{core: &core{
		id:        uuid.NewString(),
		roomID:    roomID,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		newTicker: newTimeTicker,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}}
	c.view = &Client{core: c.core, loop: true}
	for _, opt := range opts {
		opt(c)
	}
	if c.config == nil {
		c.config = DefaultConfig()
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: c.config.HandshakeTimeout,
		}
	}
	c.logger = c.logger.With("session_id", c.id)
	c.ka = keepAlive{interval: c.config.HeartbeatInterval, newTicker: c.newTicker}
	return c
}

// Start resolves the room, connects and sends the auth frame. It returns
// once the auth frame is written; the session becomes live when the
// server accepts it. Start does nothing unless the client is idle.
//
// ctx bounds resolution and dialing. Values it carries, such as a trace
// span, are kept for the session but its cancellation is not.
func (c *Client) Start(ctx context.Context) error {
	if !c.transition(StateIdle, StateResolvingRoom) {
		return nil
	}

	if c.resolver == nil {
		return c.failStart("resolve", errNoResolver)
	}
	info, err := c.resolver.Resolve(ctx, c.roomID)
	if err != nil {
		return c.failStart("resolve", err)
	}
	c.mu.Lock()
	if c.state != StateResolvingRoom {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.info = info
	c.state = StateConnecting
	c.mu.Unlock()

	server := pickServer(info.Servers)
	url := dialURL(info, server, c.config.Insecure)
	c.logger.Debug("connecting", "room_id", info.RoomID, "url", url)

	conn, _, err := c.dialer.DialContext(ctx, url, c.header())
	if err != nil {
		return c.failStart("dial", err)
	}
	if c.config.ReadLimit > 0 {
		conn.SetReadLimit(c.config.ReadLimit)
	}

	body, err := authBody(info, c.config)
	if err == nil {
		err = conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(protocol.OpAuth, body))
	}
	if err != nil {
		conn.Close()
		return c.failStart("auth", err)
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	c.conn = conn
	c.ctx = context.WithoutCancel(ctx)
	c.router = dispatch.NewRouter(c.handler.table(info.Variant),
		append([]dispatch.Option{
			dispatch.WithLogger(c.logger),
			dispatch.WithMetrics(c.metrics),
		}, c.routerOpts...)...)
	c.state = StateAuthenticating
	c.running = true
	c.mu.Unlock()

	msgs := make(chan []byte, 16)
	errc := make(chan error, 1)
	go c.readLoop(conn, msgs, errc)
	go c.eventLoop(msgs, errc)

	c.metrics.SessionStart("ok")
	c.logger.Info("session authenticating", "room_id", info.RoomID, "variant", info.Variant.String())
	return nil
}

// Stop ends the session from any state. It is idempotent. It blocks until
// the event loop has exited and OnSessionStop has returned, unless called
// on the client passed to a callback: then it returns immediately and the
// loop exits once the callback returns.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	running := c.running
	if running && c.state < StateClosing {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if !running {
		c.finish(nil)
	}
	if c.loop {
		return
	}
	<-c.done
}

// Done returns a channel that's closed when the session has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the session ends or ctx is done. It returns the
// session error, nil after a requested stop.
func (c *Client) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns why the session ended: a *SessionStartError, an
// *AuthRejectedError, a transport error, or nil after Stop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Established reports whether the session was ever accepted by the
// server.
func (c *Client) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// ID returns the unique id of this session attempt.
func (c *Client) ID() string {
	return c.id
}

// RoomID returns the canonical room id once resolved, the caller's room
// id before that.
func (c *Client) RoomID() int64 {
	if info := c.roomInfo(); info != nil {
		return info.RoomID
	}
	return c.roomID
}

// ShortRoomID returns the vanity room id, 0 when unknown or absent.
func (c *Client) ShortRoomID() int64 {
	if info := c.roomInfo(); info != nil {
		return info.ShortRoomID
	}
	return 0
}

// OwnerUID returns the streamer's uid, 0 before resolution.
func (c *Client) OwnerUID() int64 {
	if info := c.roomInfo(); info != nil {
		return info.OwnerUID
	}
	return 0
}

// UID returns the authenticated viewer uid, 0 when anonymous.
func (c *Client) UID() int64 {
	if info := c.roomInfo(); info != nil {
		return info.UID
	}
	return 0
}

// Variant returns the protocol variant of the resolved room.
func (c *Client) Variant() Variant {
	if info := c.roomInfo(); info != nil {
		return info.Variant
	}
	return VariantWeb
}

func (c *Client) roomInfo() *RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// transition moves from one state to another, reporting whether the
// client was in from.
func (c *Client) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

func (c *Client) failStart(op string, err error) error {
	serr := &SessionStartError{RoomID: c.roomID, Op: op, Err: err}
	c.metrics.SessionStart(op + "_error")
	c.logger.Warn("session start failed", "room_id", c.roomID, "op", op, "error", err)
	c.finish(serr)
	return serr
}

// finish moves to StateClosed and fires OnSessionStop. Only the first
// call has any effect.
func (c *Client) finish(err error) {
	if !c.finished.CompareAndSwap(false, true) {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	c.state = StateClosed
	if c.err == nil {
		c.err = err
	}
	err = c.err
	wasLive := c.live
	c.mu.Unlock()

	if wasLive {
		c.metrics.SessionEnded()
	}
	c.logger.Info("session closed", "room_id", c.RoomID(), "error", err)

	if cb := c.handler.OnSessionStop; cb != nil {
		c.callback("OnSessionStop", func() { cb(c.view, err) })
	}
	close(c.done)
}

// callback runs fn with panic recovery.
func (c *Client) callback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panic",
				"callback", name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.config.UserAgent != "" {
		h.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Origin != "" {
		h.Set("Origin", c.config.Origin)
	}
	return h
}

func pickServer(servers []HostServer) HostServer {
	if len(servers) == 0 {
		return DefaultHostServer
	}
	return servers[rand.IntN(len(servers))]
}
