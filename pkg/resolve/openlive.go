package resolve

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xyself/blivedm/pkg/client"
)

// HeartbeatInterval is how often an open platform app session must be
// kept alive with Heartbeat.
const HeartbeatInterval = 20 * time.Second

// OpenLive resolves rooms through an open platform app. The room is
// identified by the streamer's identity code, so the room id passed to
// Resolve is ignored.
type OpenLive struct {
	opts            options
	accessKeyID     string
	accessKeySecret string
	appID           int64
	code            string
	beat            time.Duration
}

var _ client.Resolver = (*OpenLive)(nil)

// NewOpenLive creates an open platform resolver for the app credentials
// and the streamer's identity code.
func NewOpenLive(accessKeyID, accessKeySecret string, appID int64, code string, opts ...Option) *OpenLive {
	return &OpenLive{
		opts:            newOptions(opts),
		accessKeyID:     accessKeyID,
		accessKeySecret: accessKeySecret,
		appID:           appID,
		code:            code,
		beat:            HeartbeatInterval,
	}
}

type appStartData struct {
	GameInfo struct {
		GameID string `json:"game_id"`
	} `json:"game_info"`
	WebsocketInfo struct {
		AuthBody string   `json:"auth_body"`
		WssLink  []string `json:"wss_link"`
	} `json:"websocket_info"`
	AnchorInfo struct {
		RoomID int64  `json:"room_id"`
		Uname  string `json:"uname"`
		UID    int64  `json:"uid"`
		OpenID string `json:"open_id"`
	} `json:"anchor_info"`
}

// Resolve starts an app session and returns its connection details.
// RoomInfo.GameID must later be passed to Heartbeat and End.
func (o *OpenLive) Resolve(ctx context.Context, _ int64) (*client.RoomInfo, error) {
	ctx, span := o.opts.tracer.Start(ctx, "resolve open platform room",
		trace.WithAttributes(attribute.Int64("blivedm.app_id", o.appID)))
	defer span.End()

	var data appStartData
	body := struct {
		Code  string `json:"code"`
		AppID int64  `json:"app_id"`
	}{o.code, o.appID}
	if err := o.post(ctx, "/v2/app/start", body, &data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	info := &client.RoomInfo{
		RoomID:   data.AnchorInfo.RoomID,
		OwnerUID: data.AnchorInfo.UID,
		AuthBody: json.RawMessage(data.WebsocketInfo.AuthBody),
		GameID:   data.GameInfo.GameID,
		Variant:  client.VariantOpenLive,
	}
	for _, link := range data.WebsocketInfo.WssLink {
		hs, err := hostServerFromLink(link)
		if err != nil {
			o.opts.logger.Warn("skipping invalid wss link", "link", link, "error", err)
			continue
		}
		info.Servers = append(info.Servers, hs)
	}
	span.SetAttributes(
		attribute.Int64("blivedm.room_id", info.RoomID),
		attribute.String("blivedm.game_id", info.GameID),
	)
	return info, nil
}

// Heartbeat keeps the app session gameID alive.
func (o *OpenLive) Heartbeat(ctx context.Context, gameID string) error {
	body := struct {
		GameID string `json:"game_id"`
	}{gameID}
	return o.post(ctx, "/v2/app/heartbeat", body, nil)
}

// End closes the app session gameID.
func (o *OpenLive) End(ctx context.Context, gameID string) error {
	body := struct {
		GameID string `json:"game_id"`
		AppID  int64  `json:"app_id"`
	}{gameID, o.appID}
	return o.post(ctx, "/v2/app/end", body, nil)
}

// KeepAlive calls Heartbeat every HeartbeatInterval until ctx is done.
// Failures are logged; the platform tolerates a missed beat.
func (o *OpenLive) KeepAlive(ctx context.Context, gameID string) {
	ticker := time.NewTicker(o.beat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := o.Heartbeat(ctx, gameID); err != nil && ctx.Err() == nil {
				o.opts.logger.Warn("app heartbeat failed", "game_id", gameID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (o *OpenLive) post(ctx context.Context, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("resolve: %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.openAPI+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("resolve: %s: %w", endpoint, err)
	}
	o.sign(req.Header, payload)

	env, err := o.opts.do(req, endpoint)
	if err != nil {
		return err
	}
	if out == nil {
		out = &json.RawMessage{}
	}
	return env.data(endpoint, out)
}

// sign sets the x-bili-* headers and the Authorization signature: an
// HMAC-SHA256, keyed by the access key secret, of the sorted x-bili-*
// headers written as "name:value" lines.
func (o *OpenLive) sign(h http.Header, body []byte) {
	sum := md5.Sum(body)
	signed := map[string]string{
		"x-bili-accesskeyid":       o.accessKeyID,
		"x-bili-content-md5":       hex.EncodeToString(sum[:]),
		"x-bili-signature-method":  "HMAC-SHA256",
		"x-bili-signature-nonce":   o.opts.nonce(),
		"x-bili-signature-version": "1.0",
		"x-bili-timestamp":         strconv.FormatInt(o.opts.now().Unix(), 10),
	}
	for k, v := range signed {
		h.Set(k, v)
	}
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", signature(o.accessKeySecret, signed))
}

func signature(secret string, headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ":" + headers[k]
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// hostServerFromLink turns "wss://host:port/sub" into a HostServer.
func hostServerFromLink(link string) (client.HostServer, error) {
	u, err := url.Parse(link)
	if err != nil {
		return client.HostServer{}, err
	}
	if u.Hostname() == "" {
		return client.HostServer{}, fmt.Errorf("no host in %q", link)
	}
	hs := client.HostServer{Host: u.Hostname()}

	port := 0
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return client.HostServer{}, err
		}
	}
	switch u.Scheme {
	case "wss":
		hs.WssPort = port
		if port == 0 {
			hs.WssPort = 443
		}
	case "ws":
		hs.WsPort = port
		if port == 0 {
			hs.WsPort = 80
		}
	default:
		return client.HostServer{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return hs, nil
}
