package client

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Client version fields of the web auth payload.
const (
	webClientVersion = "2.0.11"
	webBuild         = 7734200
)

type webAuth struct {
	UID             int64  `json:"uid"`
	RoomID          int64  `json:"roomid"`
	ProtoVer        int    `json:"protover"`
	Buvid           string `json:"buvid"`
	Platform        string `json:"platform"`
	Type            int    `json:"type"`
	Key             string `json:"key"`
	PlatformVersion string `json:"platform_version"`
	ClientVer       string `json:"clientver"`
	Version         string `json:"version"`
	Build           int    `json:"build"`
	DevicePlatform  string `json:"device_platform"`
	DeviceID        string `json:"device_id"`
	WebDisplayMode  int    `json:"web_display_mode"`
	UA              string `json:"ua"`
	Device          string `json:"device"`
	DeviceName      string `json:"device_name"`
	DeviceVersion   string `json:"device_version"`
}

// dialURL is the websocket URL for hs. Web sessions repeat the auth
// fields in the query, as the site's own client does.
func dialURL(info *RoomInfo, hs HostServer, insecure bool) string {
	raw := hs.URL(insecure)
	if info.Variant != VariantWeb {
		return raw
	}
	q := url.Values{
		"platform":  {"web"},
		"clientver": {webClientVersion},
		"type":      {"2"},
		"key":       {info.Token},
	}
	return raw + "?" + q.Encode()
}

// authBody builds the op 7 payload for a resolved room.
func authBody(info *RoomInfo, cfg *Config) ([]byte, error) {
	if info.Variant == VariantOpenLive {
		if len(info.AuthBody) == 0 {
			return nil, fmt.Errorf("client: open platform room %d has no auth body", info.RoomID)
		}
		return info.AuthBody, nil
	}
	return json.Marshal(webAuth{
		UID:             info.UID,
		RoomID:          info.RoomID,
		ProtoVer:        3,
		Buvid:           cfg.Buvid,
		Platform:        "web",
		Type:            2,
		Key:             info.Token,
		PlatformVersion: webClientVersion,
		ClientVer:       webClientVersion,
		Version:         webClientVersion,
		Build:           webBuild,
		DevicePlatform:  "web",
		DeviceID:        cfg.Buvid,
		WebDisplayMode:  1,
		UA:              cfg.UserAgent,
		Device:          "web",
		DeviceName:      "Chrome",
		DeviceVersion:   "122.0.0.0",
	})
}

type authReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// parseAuthReply returns nil for an accepted auth reply.
func parseAuthReply(body []byte) error {
	var r authReply
	if err := json.Unmarshal(body, &r); err != nil {
		return &AuthRejectedError{Code: -1, Message: fmt.Sprintf("invalid reply: %v", err)}
	}
	if r.Code != 0 {
		return &AuthRejectedError{Code: r.Code, Message: r.Message}
	}
	return nil
}
