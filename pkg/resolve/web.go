package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xyself/blivedm/pkg/client"
)

// Web resolves public rooms.
type Web struct {
	opts options
}

var _ client.Resolver = (*Web)(nil)

// NewWeb creates a web resolver.
func NewWeb(opts ...Option) *Web {
	return &Web{opts: newOptions(opts)}
}

type roomInfoData struct {
	RoomID  int64 `json:"room_id"`
	ShortID int64 `json:"short_id"`
	UID     int64 `json:"uid"`
}

type userInfoData struct {
	UID int64 `json:"uid"`
}

type navData struct {
	WbiImg *struct {
		ImgURL string `json:"img_url"`
		SubURL string `json:"sub_url"`
	} `json:"wbi_img"`
}

type danmuInfoData struct {
	Token    string              `json:"token"`
	HostList []client.HostServer `json:"host_list"`
}

// Resolve looks up roomID, which may be a short id.
func (w *Web) Resolve(ctx context.Context, roomID int64) (*client.RoomInfo, error) {
	ctx, span := w.opts.tracer.Start(ctx, "resolve web room",
		trace.WithAttributes(attribute.Int64("blivedm.room_id", roomID)))
	defer span.End()

	info, err := w.resolve(ctx, roomID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("blivedm.canonical_room_id", info.RoomID),
		attribute.Int("blivedm.servers", len(info.Servers)),
	)
	return info, nil
}

func (w *Web) resolve(ctx context.Context, roomID int64) (*client.RoomInfo, error) {
	var room roomInfoData
	q := url.Values{"room_id": {strconv.FormatInt(roomID, 10)}}
	if err := w.get(ctx, w.opts.liveAPI, "/room/v1/Room/get_info", q, roomID, &room, true); err != nil {
		return nil, err
	}
	if room.RoomID == 0 {
		return nil, fmt.Errorf("resolve: room %d: no room_id in response: %w", roomID, ErrAPI)
	}
	info := &client.RoomInfo{
		RoomID:      room.RoomID,
		ShortRoomID: room.ShortID,
		OwnerUID:    room.UID,
		Variant:     client.VariantWeb,
	}

	if w.opts.sessData != "" {
		var user userInfoData
		err := w.get(ctx, w.opts.liveAPI, "/xlive/web-ucenter/user/get_user_info", nil, roomID, &user, true)
		if err != nil {
			// Anonymous sessions still work.
			w.opts.logger.Warn("viewer lookup failed, continuing anonymously", "room_id", info.RoomID, "error", err)
		} else {
			info.UID = user.UID
		}
	}

	// nav answers -101 for anonymous callers but still carries wbi_img.
	var nav navData
	if err := w.get(ctx, w.opts.mainAPI, "/x/web-interface/nav", nil, roomID, &nav, false); err != nil {
		return nil, err
	}
	if nav.WbiImg == nil {
		return nil, fmt.Errorf("resolve: nav: no wbi_img: %w", ErrAPI)
	}
	imgKey, subKey := wbiKey(nav.WbiImg.ImgURL), wbiKey(nav.WbiImg.SubURL)
	if imgKey == "" || subKey == "" {
		return nil, fmt.Errorf("resolve: nav: invalid wbi_img: %w", ErrAPI)
	}

	params := signWBI(url.Values{"id": {strconv.FormatInt(info.RoomID, 10)}}, imgKey, subKey, w.opts.now())
	var danmu danmuInfoData
	err := w.get(ctx, w.opts.liveAPI, "/xlive/web-room/v1/index/getDanmuInfo", params, roomID, &danmu, true)
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		// The client falls back to the default server.
		w.opts.logger.Warn("danmu info rejected, using default server", "room_id", info.RoomID, "code", apiErr.Code)
		return info, nil
	case err != nil:
		return nil, err
	}
	if len(danmu.HostList) > 0 {
		info.Servers = danmu.HostList
		info.Token = danmu.Token
	}
	return info, nil
}

// get issues a GET with the browser headers. When strict is false a
// non-zero envelope code is tolerated and the data is decoded anyway.
func (w *Web) get(ctx context.Context, base, endpoint string, q url.Values, roomID int64, out any, strict bool) error {
	u := base + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("resolve: %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", w.opts.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", client.DefaultOrigin)
	req.Header.Set("Referer", client.DefaultOrigin+"/"+strconv.FormatInt(roomID, 10))
	req.AddCookie(&http.Cookie{Name: "buvid3", Value: w.opts.buvid})
	if w.opts.sessData != "" {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: w.opts.sessData})
	}

	env, err := w.opts.do(req, endpoint)
	if err != nil {
		return err
	}
	if !strict {
		env.Code = 0
	}
	return env.data(endpoint, out)
}
