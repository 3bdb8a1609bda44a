package events

import "strconv"

// Open-platform command discriminators.
const (
	CmdOpenDanmaku         = "LIVE_OPEN_PLATFORM_DM"
	CmdOpenGift            = "LIVE_OPEN_PLATFORM_SEND_GIFT"
	CmdOpenGuard           = "LIVE_OPEN_PLATFORM_GUARD"
	CmdOpenSuperChat       = "LIVE_OPEN_PLATFORM_SUPER_CHAT"
	CmdOpenSuperChatDelete = "LIVE_OPEN_PLATFORM_SUPER_CHAT_DEL"
	CmdOpenLike            = "LIVE_OPEN_PLATFORM_LIKE"
	CmdOpenEnter           = "LIVE_OPEN_PLATFORM_LIVE_ROOM_ENTER"
	CmdOpenStart           = "LIVE_OPEN_PLATFORM_LIVE_START"
	CmdOpenEnd             = "LIVE_OPEN_PLATFORM_LIVE_END"

	// Older names of the enter/start/end commands, still sent by some
	// deployments.
	CmdOpenUserEnter = "LIVE_OPEN_PLATFORM_USER_ENTER"
	CmdOpenStartOld  = "LIVE_OPEN_PLATFORM_START"
	CmdOpenEndOld    = "LIVE_OPEN_PLATFORM_END"
)

// OpenMedal holds the fan medal fields shared by open-platform events.
type OpenMedal struct {
	FansMedalLevel         int64  `json:"fans_medal_level"`
	FansMedalName          string `json:"fans_medal_name"`
	FansMedalWearingStatus bool   `json:"fans_medal_wearing_status"`
	GuardLevel             int64  `json:"guard_level"`
}

// MedalLabel returns "[name level]" when a medal is worn, otherwise "".
func (m OpenMedal) MedalLabel() string {
	if !m.FansMedalWearingStatus || m.FansMedalLevel <= 0 {
		return ""
	}
	return "[" + m.FansMedalName + strconv.FormatInt(m.FansMedalLevel, 10) + "]"
}

// OpenUser identifies a viewer on the open platform.
type OpenUser struct {
	UID    int64  `json:"uid"`
	OpenID string `json:"open_id"`
	Uname  string `json:"uname"`
	Uface  string `json:"uface"`
}

// OpenDanmaku is a chat message (LIVE_OPEN_PLATFORM_DM).
type OpenDanmaku struct {
	OpenUser
	OpenMedal
	RoomID    int64  `json:"room_id"`
	Msg       string `json:"msg"`
	MsgID     string `json:"msg_id"`
	Timestamp int64  `json:"timestamp"`
	DmType    int64  `json:"dm_type"`
	EmojiURL  string `json:"emoji_img_url"`
}

// OpenGift is a gift (LIVE_OPEN_PLATFORM_SEND_GIFT).
type OpenGift struct {
	OpenUser
	OpenMedal
	RoomID     int64    `json:"room_id"`
	GiftID     int64    `json:"gift_id"`
	GiftName   string   `json:"gift_name"`
	GiftNum    int64    `json:"gift_num"`
	Price      int64    `json:"price"`
	Paid       bool     `json:"paid"`
	Timestamp  int64    `json:"timestamp"`
	MsgID      string   `json:"msg_id"`
	AnchorInfo OpenUser `json:"anchor_info"`
}

// OpenGuard is a guard purchase (LIVE_OPEN_PLATFORM_GUARD).
type OpenGuard struct {
	UserInfo   OpenUser `json:"user_info"`
	GuardLevel int64    `json:"guard_level"`
	GuardNum   int64    `json:"guard_num"`
	GuardUnit  string   `json:"guard_unit"`
	Price      int64    `json:"price"`
	RoomID     int64    `json:"room_id"`
	MsgID      string   `json:"msg_id"`
	Timestamp  int64    `json:"timestamp"`
}

// OpenSuperChat is a paid highlighted message
// (LIVE_OPEN_PLATFORM_SUPER_CHAT).
type OpenSuperChat struct {
	OpenUser
	OpenMedal
	RoomID    int64  `json:"room_id"`
	MessageID int64  `json:"message_id"`
	Message   string `json:"message"`
	RMB       int64  `json:"rmb"`
	Timestamp int64  `json:"timestamp"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	MsgID     string `json:"msg_id"`
}

// OpenSuperChatDelete withdraws super chats
// (LIVE_OPEN_PLATFORM_SUPER_CHAT_DEL).
type OpenSuperChatDelete struct {
	RoomID     int64   `json:"room_id"`
	MessageIDs []int64 `json:"message_ids"`
	MsgID      string  `json:"msg_id"`
}

// OpenLike is a like (LIVE_OPEN_PLATFORM_LIKE).
type OpenLike struct {
	OpenUser
	OpenMedal
	RoomID    int64  `json:"room_id"`
	LikeText  string `json:"like_text"`
	LikeCount int64  `json:"like_count"`
	Timestamp int64  `json:"timestamp"`
	MsgID     string `json:"msg_id"`
}

// OpenEnter is a viewer entering the room
// (LIVE_OPEN_PLATFORM_LIVE_ROOM_ENTER).
type OpenEnter struct {
	OpenUser
	OpenMedal
	RoomID    int64 `json:"room_id"`
	Timestamp int64 `json:"timestamp"`
}

// OpenLiveStatus is a stream start or end
// (LIVE_OPEN_PLATFORM_LIVE_START, LIVE_OPEN_PLATFORM_LIVE_END).
type OpenLiveStatus struct {
	RoomID    int64  `json:"room_id"`
	OpenID    string `json:"open_id"`
	Timestamp int64  `json:"timestamp"`
	AreaName  string `json:"area_name"`
	Title     string `json:"title"`
}
