// Package handler provides ready-made session callbacks.
//
// Logging writes chat activity to a structured logger and suppresses
// repeats the server sends more than once within a short window:
//
//	h := handler.NewLogging(handler.WithLogger(logger))
//	c := client.New(roomID, client.WithHandler(h.Handler()), ...)
//
// Pick individual callbacks with WebCallbacks or OpenLiveCallbacks when
// building a custom table.
package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/xyself/blivedm/pkg/client"
	"github.com/xyself/blivedm/pkg/dedup"
	"github.com/xyself/blivedm/pkg/dispatch"
	"github.com/xyself/blivedm/pkg/events"
)

// Logging logs chat events. It is safe for use by several sessions at
// once; they share its dedup cache.
type Logging struct {
	logger *slog.Logger
	cache  *dedup.Cache
	window time.Duration
	now    func() time.Time
}

// Option configures a Logging handler.
type Option func(*Logging)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Logging) {
		h.logger = l
	}
}

// WithCache sets the dedup cache. Default: a new cache.
func WithCache(c *dedup.Cache) Option {
	return func(h *Logging) {
		h.cache = c
	}
}

// WithWindow sets the dedup window. Default: dedup.DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(h *Logging) {
		h.window = d
	}
}

// WithClock sets the clock used in fingerprints of events that carry no
// timestamp of their own.
func WithClock(now func() time.Time) Option {
	return func(h *Logging) {
		h.now = now
	}
}

// NewLogging creates a logging handler.
func NewLogging(opts ...Option) *Logging {
	h := &Logging{
		logger: slog.Default(),
		window: dedup.DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cache == nil {
		h.cache = dedup.New()
	}
	return h
}

// duplicate reports whether the event fingerprinted by parts was seen
// within the window.
func (h *Logging) duplicate(parts ...any) bool {
	return h.cache.IsDuplicate(dedup.Fingerprint(parts...), h.window)
}

// Handler returns a client.Handler that logs session lifecycle and every
// event both variants know about.
func (h *Logging) Handler() client.Handler {
	return client.Handler{
		OnSessionStart: func(c *client.Client) {
			h.logger.Info("connected", "room_id", c.RoomID(), "variant", c.Variant().String())
		},
		OnSessionStop: func(c *client.Client, err error) {
			if err != nil {
				h.logger.Warn("disconnected", "room_id", c.RoomID(), "error", err)
				return
			}
			h.logger.Info("disconnected", "room_id", c.RoomID())
		},
		OnHeartbeat: func(c *client.Client, hb events.Heartbeat) {
			h.logger.Debug("heartbeat", "room_id", c.RoomID(), "popularity", hb.Popularity)
		},
		Web:      dispatch.WebTable(h.WebCallbacks()),
		OpenLive: dispatch.OpenLiveTable(h.OpenLiveCallbacks()),
	}
}

func medalLabel(m *events.FansMedal) string {
	if m == nil || m.MedalLevel <= 0 {
		return ""
	}
	return "[" + m.MedalName + strconv.FormatInt(m.MedalLevel, 10) + "]"
}

var interactActions = map[int64]string{
	events.InteractEnter:         "entered the room",
	events.InteractFollow:        "followed",
	events.InteractShare:         "shared the room",
	events.InteractSpecialFollow: "special-followed",
	events.InteractMutualFollow:  "followed back",
	events.InteractLike:          "liked",
}

// WebCallbacks returns the callbacks for web rooms. Commands without a
// log line are left nil.
func (h *Logging) WebCallbacks() dispatch.WebCallbacks {
	return dispatch.WebCallbacks{
		Danmaku: func(s dispatch.Session, d events.Danmaku) {
			if h.duplicate("danmaku", d.Timestamp, d.UID, d.Msg) {
				return
			}
			medal := ""
			if d.Medal.Level > 0 {
				medal = "[" + d.Medal.Name + strconv.FormatInt(d.Medal.Level, 10) + "]"
			}
			h.logger.Info("danmaku", "room_id", s.RoomID(), "uname", d.Uname, "medal", medal, "text", d.Msg)
		},
		Gift: func(s dispatch.Session, g events.Gift) {
			if h.duplicate("gift", g.UID, g.GiftID, g.Timestamp) {
				return
			}
			h.logger.Info("gift",
				"room_id", s.RoomID(),
				"uname", g.Uname,
				"medal", medalLabel(g.MedalInfo),
				"gift", g.GiftName,
				"num", g.Num,
				"coin_type", g.CoinType,
				"total_coin", g.TotalCoin)
		},
		GuardBuy: func(s dispatch.Session, g events.GuardBuy) {
			h.logger.Info("guard", "room_id", s.RoomID(), "uname", g.Username, "guard_level", g.GuardLevel)
		},
		UserToastV2: func(s dispatch.Session, t events.UserToastV2) {
			h.logger.Info("guard", "room_id", s.RoomID(), "uname", t.Username, "guard_level", t.GuardLevel)
		},
		SuperChat: func(s dispatch.Session, sc events.SuperChat) {
			h.logger.Info("super chat", "room_id", s.RoomID(), "uname", sc.Uname(), "price", sc.Price, "text", sc.Message)
		},
		InteractWord: func(s dispatch.Session, w events.InteractWord) {
			if h.duplicate("interact", w.UID, w.MsgType, w.Timestamp) {
				return
			}
			action, ok := interactActions[w.MsgType]
			if !ok {
				return
			}
			h.logger.Info("interact",
				"room_id", s.RoomID(),
				"uname", w.Uname,
				"medal", medalLabel(&w.FansMedal),
				"action", action)
		},
		LikeClick: func(s dispatch.Session, l events.LikeClick) {
			// Likes carry no timestamp, so the fingerprint only catches
			// repeats delivered within the same millisecond.
			if h.duplicate("like", l.UID, h.now().UnixMilli()) {
				return
			}
			h.logger.Info("like", "room_id", s.RoomID(), "uname", l.Uname, "medal", medalLabel(l.FansMedal))
		},
		NoticeMsg: func(s dispatch.Session, n events.NoticeMsg) {
			if n.MsgCommon == "" || h.duplicate("notice", n.MsgCommon) {
				return
			}
			h.logger.Info("notice", "room_id", s.RoomID(), "text", n.MsgCommon)
		},
		RoomRealTimeMessageUpdate: func(s dispatch.Session, u events.RoomRealTimeMessageUpdate) {
			if u.Fans == 0 || h.duplicate("room_update", u.RoomID, u.Fans) {
				return
			}
			h.logger.Info("fans", "room_id", s.RoomID(), "fans", u.Fans)
		},
	}
}

// OpenLiveCallbacks returns the callbacks for open platform rooms.
func (h *Logging) OpenLiveCallbacks() dispatch.OpenLiveCallbacks {
	return dispatch.OpenLiveCallbacks{
		Danmaku: func(s dispatch.Session, d events.OpenDanmaku) {
			if h.duplicate("open_danmaku", d.UID, d.Timestamp, d.Msg) {
				return
			}
			h.logger.Info("danmaku", "room_id", s.RoomID(), "uname", d.Uname, "medal", d.MedalLabel(), "text", d.Msg)
		},
		Gift: func(s dispatch.Session, g events.OpenGift) {
			if h.duplicate("open_gift", g.UID, g.GiftID, g.Timestamp) {
				return
			}
			h.logger.Info("gift",
				"room_id", s.RoomID(),
				"uname", g.Uname,
				"medal", g.MedalLabel(),
				"gift", g.GiftName,
				"num", g.GiftNum)
		},
		Guard: func(s dispatch.Session, g events.OpenGuard) {
			if h.duplicate("open_guard", g.UserInfo.UID, g.GuardLevel) {
				return
			}
			h.logger.Info("guard", "room_id", s.RoomID(), "uname", g.UserInfo.Uname, "guard_level", g.GuardLevel)
		},
		SuperChat: func(s dispatch.Session, sc events.OpenSuperChat) {
			if h.duplicate("open_sc", sc.UID, sc.StartTime) {
				return
			}
			h.logger.Info("super chat", "room_id", s.RoomID(), "uname", sc.Uname, "price", sc.RMB, "text", sc.Message)
		},
		Like: func(s dispatch.Session, l events.OpenLike) {
			if h.duplicate("open_like", l.UID, h.now().UnixMilli()) {
				return
			}
			h.logger.Info("like", "room_id", s.RoomID(), "uname", l.Uname, "medal", l.MedalLabel(), "like_text", l.LikeText)
		},
		Enter: func(s dispatch.Session, e events.OpenEnter) {
			if h.duplicate("open_enter", e.UID, h.now().UnixMilli()) {
				return
			}
			h.logger.Info("enter", "room_id", s.RoomID(), "uname", e.Uname, "medal", e.MedalLabel())
		},
		LiveStart: func(s dispatch.Session, st events.OpenLiveStatus) {
			h.logger.Info("live started", "room_id", s.RoomID(), "title", st.Title)
		},
		LiveEnd: func(s dispatch.Session, st events.OpenLiveStatus) {
			h.logger.Info("live ended", "room_id", s.RoomID())
		},
	}
}
