package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xyself/blivedm/pkg/dispatch"
	"github.com/xyself/blivedm/pkg/events"
	"github.com/xyself/blivedm/pkg/protocol"
)

const testTimeout = 5 * time.Second

// chatServer is a minimal chat server: it reads the auth frame, answers
// with authCode, counts heartbeats and lets tests push messages.
type chatServer struct {
	t        *testing.T
	srv      *httptest.Server
	authCode int

	conns      atomic.Int32
	heartbeats atomic.Int32
	queries    chan url.Values
	auth       chan []byte
	ready      chan struct{}
	beat       chan struct{}

	mu  sync.Mutex
	cur *websocket.Conn
}

func newChatServer(t *testing.T, authCode int) *chatServer {
	t.Helper()
	cs := &chatServer{
		t:        t,
		authCode: authCode,
		queries:  make(chan url.Values, 4),
		auth:     make(chan []byte, 4),
		ready:    make(chan struct{}, 4),
		beat:     make(chan struct{}, 64),
	}
	upgrader := websocket.Upgrader{}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sub" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		cs.conns.Add(1)
		select {
		case cs.queries <- r.URL.Query():
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames, err := protocol.DecodeFrames(msg)
		if err != nil || len(frames) != 1 || frames[0].Operation != protocol.OpAuth {
			t.Errorf("first frame = %v (err %v), want one auth frame", frames, err)
			return
		}
		cs.auth <- frames[0].Body

		cs.mu.Lock()
		cs.cur = conn
		cs.mu.Unlock()
		cs.write(protocol.Encode(protocol.OpAuthReply, fmt.Appendf(nil, `{"code":%d}`, cs.authCode)))
		cs.ready <- struct{}{}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames, _ := protocol.DecodeFrames(msg)
			for _, f := range frames {
				if f.Operation == protocol.OpHeartbeat {
					cs.heartbeats.Add(1)
					cs.beat <- struct{}{}
				}
			}
		}
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *chatServer) write(msg []byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.cur == nil {
		cs.t.Error("write before a client connected")
		return
	}
	if err := cs.cur.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		cs.t.Errorf("server write: %v", err)
	}
}

func (cs *chatServer) closeConn() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.cur != nil {
		cs.cur.Close()
	}
}

func (cs *chatServer) hostServer() HostServer {
	u, _ := url.Parse(cs.srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return HostServer{Host: host, WsPort: port}
}

func (cs *chatServer) resolver() Resolver {
	return ResolverFunc(func(ctx context.Context, roomID int64) (*RoomInfo, error) {
		return &RoomInfo{
			RoomID:      5050,
			ShortRoomID: roomID,
			OwnerUID:    77,
			Token:       "tok",
			Servers:     []HostServer{cs.hostServer()},
		}, nil
	})
}

// manualTicker fires only when a test sends on ch.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type stopRecorder struct {
	calls atomic.Int32
	errs  chan error
}

func newStopRecorder() *stopRecorder {
	return &stopRecorder{errs: make(chan error, 4)}
}

func (r *stopRecorder) onStop(c *Client, err error) {
	r.calls.Add(1)
	r.errs <- err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func insecureConfig() *Config {
	cfg := DefaultConfig()
	cfg.Insecure = true
	// httptest upgraders reject cross-origin handshakes.
	cfg.Origin = ""
	return cfg
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func startLive(t *testing.T, cs *chatServer, h Handler, opts ...Option) *Client {
	t.Helper()
	started := make(chan struct{}, 1)
	prev := h.OnSessionStart
	h.OnSessionStart = func(c *Client) {
		if prev != nil {
			prev(c)
		}
		started <- struct{}{}
	}
	c := New(42, append([]Option{
		WithResolver(cs.resolver()),
		WithConfig(insecureConfig()),
		WithLogger(quietLogger()),
		WithHandler(h),
	}, opts...)...)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, started, "session start")
	return c
}

func TestStartReachesLive(t *testing.T) {
	cs := newChatServer(t, 0)
	rec := newStopRecorder()
	c := startLive(t, cs, Handler{OnSessionStop: rec.onStop})
	defer c.Stop()

	if got := c.State(); got != StateLive {
		t.Errorf("State() = %v, want live", got)
	}
	if c.RoomID() != 5050 || c.ShortRoomID() != 42 || c.OwnerUID() != 77 || c.UID() != 0 {
		t.Errorf("ids = %d/%d/%d/%d", c.RoomID(), c.ShortRoomID(), c.OwnerUID(), c.UID())
	}
	if c.Variant() != VariantWeb {
		t.Errorf("Variant() = %v, want web", c.Variant())
	}

	var auth map[string]any
	if err := json.Unmarshal(waitFor(t, cs.auth, "auth body"), &auth); err != nil {
		t.Fatalf("auth body: %v", err)
	}
	want := map[string]any{
		"uid":      float64(0),
		"roomid":   float64(5050),
		"protover": float64(3),
		"key":      "tok",
		"platform": "web",
		"type":     float64(2),
		"buvid":    DefaultBuvid,
	}
	for k, v := range want {
		if auth[k] != v {
			t.Errorf("auth[%q] = %v, want %v", k, auth[k], v)
		}
	}

	q := waitFor(t, cs.queries, "dial query")
	if q.Get("platform") != "web" || q.Get("type") != "2" || q.Get("key") != "tok" || q.Get("clientver") != webClientVersion {
		t.Errorf("dial query = %v", q)
	}

	c.Stop()
	if err := waitFor(t, rec.errs, "session stop"); err != nil {
		t.Errorf("stop error = %v, want nil", err)
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("State() after Stop = %v, want closed", got)
	}
}

func TestStartTwiceDialsOnce(t *testing.T) {
	cs := newChatServer(t, 0)
	c := startLive(t, cs, Handler{})
	defer c.Stop()

	if err := c.Start(context.Background()); err != nil {
		t.Errorf("second Start() error = %v, want nil", err)
	}
	if got := cs.conns.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestKeepAlive(t *testing.T) {
	cs := newChatServer(t, 0)

	var c *Client
	tickers := make(chan *manualTicker, 2)
	var stateAtArm atomic.Int32
	factory := func(d time.Duration) Ticker {
		if d != 30*time.Second {
			t.Errorf("ticker interval = %v, want 30s", d)
		}
		stateAtArm.Store(int32(c.State()))
		mt := &manualTicker{ch: make(chan time.Time, 1)}
		tickers <- mt
		return mt
	}

	c = New(42,
		WithResolver(cs.resolver()),
		WithConfig(insecureConfig()),
		WithLogger(quietLogger()),
		WithTicker(factory),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	mt := waitFor(t, tickers, "ticker")
	if State(stateAtArm.Load()) != StateLive {
		t.Errorf("ticker armed in state %v, want live", State(stateAtArm.Load()))
	}
	if got := cs.heartbeats.Load(); got != 0 {
		t.Errorf("heartbeats before first tick = %d, want 0", got)
	}

	for i := 0; i < 3; i++ {
		mt.ch <- time.Now()
		waitFor(t, cs.beat, "heartbeat")
	}
	if got := cs.heartbeats.Load(); got != 3 {
		t.Errorf("heartbeats after 3 ticks = %d, want 3", got)
	}

	c.Stop()
	select {
	case mt.ch <- time.Now():
	default:
	}
	time.Sleep(50 * time.Millisecond)
	if got := cs.heartbeats.Load(); got != 3 {
		t.Errorf("heartbeats after Stop = %d, want 3", got)
	}
	if !mt.stopped.Load() {
		t.Error("ticker not stopped")
	}
	if len(tickers) != 0 {
		t.Error("more than one ticker armed")
	}
}

func TestAuthRejected(t *testing.T) {
	cs := newChatServer(t, -101)
	rec := newStopRecorder()
	started := false
	c := New(42,
		WithResolver(cs.resolver()),
		WithConfig(insecureConfig()),
		WithLogger(quietLogger()),
		WithHandler(Handler{
			OnSessionStart: func(*Client) { started = true },
			OnSessionStop:  rec.onStop,
		}),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := c.Wait(ctx)
	var ae *AuthRejectedError
	if !errors.As(err, &ae) || ae.Code != -101 {
		t.Fatalf("Wait() = %v, want *AuthRejectedError code -101", err)
	}
	if !errors.As(c.Err(), &ae) {
		t.Errorf("Err() = %v", c.Err())
	}
	if started {
		t.Error("OnSessionStart fired for a rejected session")
	}
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("OnSessionStop calls = %d, want 1", got)
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestStartErrors(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closedPort := l.Addr().(*net.TCPAddr).Port
	l.Close()

	resolveErr := errors.New("room not found")
	tests := []struct {
		name     string
		resolver Resolver
		op       string
		cause    error
	}{
		{
			name: "resolve_failure",
			resolver: ResolverFunc(func(context.Context, int64) (*RoomInfo, error) {
				return nil, resolveErr
			}),
			op:    "resolve",
			cause: resolveErr,
		},
		{
			name:  "no_resolver",
			op:    "resolve",
			cause: errNoResolver,
		},
		{
			name: "dial_failure",
			resolver: ResolverFunc(func(context.Context, int64) (*RoomInfo, error) {
				return &RoomInfo{RoomID: 1, Servers: []HostServer{{Host: "127.0.0.1", WsPort: closedPort}}}, nil
			}),
			op: "dial",
		},
		{
			name: "open_live_without_auth_body",
			resolver: ResolverFunc(func(context.Context, int64) (*RoomInfo, error) {
				return &RoomInfo{RoomID: 1, Variant: VariantOpenLive, Servers: []HostServer{newChatServer(t, 0).hostServer()}}, nil
			}),
			op: "auth",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newStopRecorder()
			opts := []Option{
				WithConfig(insecureConfig()),
				WithLogger(quietLogger()),
				WithHandler(Handler{OnSessionStop: rec.onStop}),
			}
			if tc.resolver != nil {
				opts = append(opts, WithResolver(tc.resolver))
			}
			c := New(7, opts...)

			err := c.Start(context.Background())
			var se *SessionStartError
			if !errors.As(err, &se) {
				t.Fatalf("Start() = %v, want *SessionStartError", err)
			}
			if se.Op != tc.op || se.RoomID != 7 {
				t.Errorf("SessionStartError = %+v, want op %q room 7", se, tc.op)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Errorf("Start() = %v, want wrapping %v", err, tc.cause)
			}
			if got := c.State(); got != StateClosed {
				t.Errorf("State() = %v, want closed", got)
			}
			if got := rec.calls.Load(); got != 1 {
				t.Errorf("OnSessionStop calls = %d, want 1", got)
			}
			select {
			case <-c.Done():
			default:
				t.Error("Done() not closed")
			}
		})
	}
}

func TestStopBeforeStart(t *testing.T) {
	rec := newStopRecorder()
	var resolved atomic.Bool
	c := New(1,
		WithLogger(quietLogger()),
		WithResolver(ResolverFunc(func(context.Context, int64) (*RoomInfo, error) {
			resolved.Store(true)
			return &RoomInfo{}, nil
		})),
		WithHandler(Handler{OnSessionStop: rec.onStop}),
	)

	c.Stop()
	c.Stop()
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("OnSessionStop calls = %d, want 1", got)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Errorf("Start() after Stop = %v, want nil", err)
	}
	if resolved.Load() {
		t.Error("Start after Stop resolved the room")
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestNotificationsAndHeartbeatReply(t *testing.T) {
	cs := newChatServer(t, 0)
	danmaku := make(chan events.Danmaku, 4)
	heartbeats := make(chan events.Heartbeat, 1)
	c := startLive(t, cs, Handler{
		OnHeartbeat: func(c *Client, hb events.Heartbeat) { heartbeats <- hb },
		Web: dispatch.WebTable(dispatch.WebCallbacks{
			Danmaku: func(s dispatch.Session, d events.Danmaku) {
				if s.RoomID() != 5050 {
					t.Errorf("session RoomID = %d, want 5050", s.RoomID())
				}
				danmaku <- d
			},
		}),
	})
	defer c.Stop()

	body := func(msg string) []byte {
		return fmt.Appendf(nil, `{"cmd":"DANMU_MSG:4:0:2:2:2:0","info":[[0,1,25,16777215,1,2],%q,[9,"bob",0]]}`, msg)
	}

	// Garbage must not end the session.
	cs.write([]byte{0, 0, 0, 5, 0})

	inner := append(protocol.Encode(protocol.OpNotification, body("one")),
		protocol.Encode(protocol.OpNotification, body("two"))...)
	for _, v := range []protocol.Version{protocol.VersionZlib, protocol.VersionBrotli} {
		msg, err := protocol.EncodeCompressed(v, inner)
		if err != nil {
			t.Fatalf("EncodeCompressed(%v) error = %v", v, err)
		}
		cs.write(msg)
		for _, want := range []string{"one", "two"} {
			d := waitFor(t, danmaku, "danmaku")
			if d.Msg != want || d.Uname != "bob" {
				t.Errorf("%v: danmaku = %q from %q, want %q from bob", v, d.Msg, d.Uname, want)
			}
		}
	}

	cs.write(protocol.Encode(protocol.OpHeartbeatReply, []byte{0, 0, 1, 0}))
	if hb := waitFor(t, heartbeats, "heartbeat reply"); hb.Popularity != 256 {
		t.Errorf("Popularity = %d, want 256", hb.Popularity)
	}
	if got := c.State(); got != StateLive {
		t.Errorf("State() = %v, want live", got)
	}
}

func TestStopFromCallback(t *testing.T) {
	cs := newChatServer(t, 0)
	rec := newStopRecorder()
	var calls atomic.Int32
	c := startLive(t, cs, Handler{
		OnSessionStop: rec.onStop,
		Web: dispatch.WebTable(dispatch.WebCallbacks{
			Danmaku: func(s dispatch.Session, d events.Danmaku) {
				calls.Add(1)
				s.(*Client).Stop()
			},
		}),
	})

	b := protocol.Encode(protocol.OpNotification, []byte(`{"cmd":"DANMU_MSG","info":[[],"x",[1,"a"]]}`))
	cs.write(append(b, b...))

	select {
	case <-c.Done():
	case <-time.After(testTimeout):
		t.Fatal("session did not end after Stop from callback")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("callbacks after Stop = %d, want 1", got)
	}
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("OnSessionStop calls = %d, want 1", got)
	}
	c.Stop()
}

func TestStopWaitsForRunningCallback(t *testing.T) {
	cs := newChatServer(t, 0)
	rec := newStopRecorder()
	entered := make(chan struct{})
	release := make(chan struct{})
	c := startLive(t, cs, Handler{
		OnSessionStop: rec.onStop,
		Web: dispatch.WebTable(dispatch.WebCallbacks{
			Danmaku: func(dispatch.Session, events.Danmaku) {
				close(entered)
				<-release
			},
		}),
	})

	cs.write(protocol.Encode(protocol.OpNotification, []byte(`{"cmd":"DANMU_MSG","info":[[],"x",[1,"a"]]}`)))
	waitFor(t, entered, "callback")

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop() returned while a callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitFor(t, stopped, "Stop to return")
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed when Stop returned")
	}
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("OnSessionStop calls = %d, want 1", got)
	}
}

func TestServerCloseEndsSession(t *testing.T) {
	cs := newChatServer(t, 0)
	rec := newStopRecorder()
	c := startLive(t, cs, Handler{OnSessionStop: rec.onStop})

	cs.closeConn()
	if err := waitFor(t, rec.errs, "session stop"); err == nil {
		t.Error("stop error = nil, want transport error")
	}
	c.Stop()
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("OnSessionStop calls = %d, want 1", got)
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestCallbackPanicIsContained(t *testing.T) {
	cs := newChatServer(t, 0)
	heartbeats := make(chan struct{}, 2)
	c := startLive(t, cs, Handler{
		OnHeartbeat: func(*Client, events.Heartbeat) {
			heartbeats <- struct{}{}
			panic("boom")
		},
	})
	defer c.Stop()

	for i := 0; i < 2; i++ {
		cs.write(protocol.Encode(protocol.OpHeartbeatReply, []byte{0, 0, 0, 1}))
		waitFor(t, heartbeats, "heartbeat")
	}
	if got := c.State(); got != StateLive {
		t.Errorf("State() = %v, want live", got)
	}
}

func TestHostServerURL(t *testing.T) {
	tests := []struct {
		name     string
		server   HostServer
		insecure bool
		want     string
	}{
		{"default_secure", DefaultHostServer, false, "wss://broadcastlv.chat.bilibili.com:443/sub"},
		{"default_insecure", DefaultHostServer, true, "ws://broadcastlv.chat.bilibili.com:2244/sub"},
		{"no_port", HostServer{Host: "example.com"}, false, "wss://example.com/sub"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.server.URL(tc.insecure); got != tc.want {
				t.Errorf("URL() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDialURL(t *testing.T) {
	hs := HostServer{Host: "example.com", WssPort: 443}
	web := dialURL(&RoomInfo{Token: "a b", Variant: VariantWeb}, hs, false)
	if want := "wss://example.com:443/sub?clientver=2.0.11&key=a+b&platform=web&type=2"; web != want {
		t.Errorf("web dialURL = %q, want %q", web, want)
	}
	open := dialURL(&RoomInfo{Variant: VariantOpenLive}, hs, false)
	if open != "wss://example.com:443/sub" {
		t.Errorf("open platform dialURL = %q, want no query", open)
	}
}

func TestHandshakeSendsOrigin(t *testing.T) {
	origins := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins <- r.Header.Get("Origin")
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	cfg := DefaultConfig()
	cfg.Insecure = true
	c := New(1, WithConfig(cfg), WithLogger(quietLogger()),
		WithResolver(ResolverFunc(func(context.Context, int64) (*RoomInfo, error) {
			return &RoomInfo{RoomID: 1, Servers: []HostServer{{Host: host, WsPort: port}}}, nil
		})))
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded against a rejecting server")
	}
	if got := waitFor(t, origins, "handshake"); got != DefaultOrigin {
		t.Errorf("Origin = %q, want %q", got, DefaultOrigin)
	}
}

func TestPickServerFallsBack(t *testing.T) {
	if got := pickServer(nil); got != DefaultHostServer {
		t.Errorf("pickServer(nil) = %+v, want default", got)
	}
	s := HostServer{Host: "a"}
	if got := pickServer([]HostServer{s}); got != s {
		t.Errorf("pickServer = %+v, want %+v", got, s)
	}
}

func TestStateString(t *testing.T) {
	if StateAuthenticating.String() != "authenticating" || State(99).String() != "State(99)" {
		t.Errorf("State strings = %q, %q", StateAuthenticating, State(99))
	}
}
