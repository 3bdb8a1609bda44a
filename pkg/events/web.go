package events

import (
	"encoding/json"
	"fmt"

	"github.com/xyself/blivedm/pkg/protocol"
)

// Web command discriminators.
const (
	CmdDanmaku                   = "DANMU_MSG"
	CmdGift                      = "SEND_GIFT"
	CmdGuardBuy                  = "GUARD_BUY"
	CmdUserToastV2               = "USER_TOAST_V2"
	CmdSuperChat                 = "SUPER_CHAT_MESSAGE"
	CmdSuperChatJPN              = "SUPER_CHAT_MESSAGE_JPN"
	CmdSuperChatDelete           = "SUPER_CHAT_MESSAGE_DELETE"
	CmdLikeInfoUpdate            = "LIKE_INFO_V3_UPDATE"
	CmdLikeClick                 = "LIKE_INFO_V3_CLICK"
	CmdInteractWord              = "INTERACT_WORD"
	CmdInteractWordV2            = "INTERACT_WORD_V2"
	CmdEntryEffect               = "ENTRY_EFFECT"
	CmdComboSend                 = "COMBO_SEND"
	CmdHotRankChanged            = "HOT_RANK_CHANGED"
	CmdHotRankChangedV2          = "HOT_RANK_CHANGED_V2"
	CmdLive                      = "LIVE"
	CmdLiveInteractiveGame       = "LIVE_INTERACTIVE_GAME"
	CmdNoticeMsg                 = "NOTICE_MSG"
	CmdOnlineRankCount           = "ONLINE_RANK_COUNT"
	CmdOnlineRankV2              = "ONLINE_RANK_V2"
	CmdOnlineRankTop3            = "ONLINE_RANK_TOP3"
	CmdPKBattleEnd               = "PK_BATTLE_END"
	CmdPKBattleFinalProcess      = "PK_BATTLE_FINAL_PROCESS"
	CmdPKBattleProcess           = "PK_BATTLE_PROCESS"
	CmdPKBattleProcessNew        = "PK_BATTLE_PROCESS_NEW"
	CmdPKBattleSettle            = "PK_BATTLE_SETTLE"
	CmdPKBattleSettleUser        = "PK_BATTLE_SETTLE_USER"
	CmdPKBattleSettleV2          = "PK_BATTLE_SETTLE_V2"
	CmdPreparing                 = "PREPARING"
	CmdRoomRealTimeMessageUpdate = "ROOM_REAL_TIME_MESSAGE_UPDATE"
	CmdStopLiveRoomList          = "STOP_LIVE_ROOM_LIST"
	CmdUserToastMsg              = "USER_TOAST_MSG"
	CmdWatchedChange             = "WATCHED_CHANGE"
	CmdWidgetBanner              = "WIDGET_BANNER"
	CmdOtherSliceLoadingResult   = "OTHER_SLICE_LOADING_RESULT"
	CmdDMInteraction             = "DM_INTERACTION"
)

// Medal is a fan medal as carried inside a danmaku info array.
type Medal struct {
	Level        int64
	Name         string
	AnchorName   string
	RoomID       int64
	Color        int64
	SpecialColor json.RawMessage
}

// Danmaku is a chat message (DANMU_MSG).
type Danmaku struct {
	Mode      int64
	FontSize  int64
	Color     int64
	Timestamp int64 // milliseconds
	Random    int64
	Msg       string
	UID       int64
	Uname     string
	IsAdmin   bool
	Medal     Medal
	UserLevel int64
	UserRank  int64
}

// DecodeDanmaku maps the positional "info" array of a DANMU_MSG body.
//
//	info[0]: [_, mode, fontsize, color, timestamp, random, ...]
//	info[1]: message text
//	info[2]: [uid, uname, admin, ...]
//	info[3]: [level, name, anchor, roomid, color, _, _, special, ...]
//	info[4]: [user level, rank, ...]
func DecodeDanmaku(raw []byte) (Danmaku, error) {
	var body struct {
		Info jsonArray `json:"info"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Danmaku{}, err
	}
	info := body.Info
	if len(info) < 3 {
		return Danmaku{}, fmt.Errorf("events: danmaku info has %d members, want at least 3", len(info))
	}

	meta, user, medal, level := info.array(0), info.array(2), info.array(3), info.array(4)
	return Danmaku{
		Mode:      meta.int(1),
		FontSize:  meta.int(2),
		Color:     meta.int(3),
		Timestamp: meta.int(4),
		Random:    meta.int(5),
		Msg:       info.str(1),
		UID:       user.int(0),
		Uname:     user.str(1),
		IsAdmin:   user.int(2) != 0,
		Medal: Medal{
			Level:        medal.int(0),
			Name:         medal.str(1),
			AnchorName:   medal.str(2),
			RoomID:       medal.int(3),
			Color:        medal.int(4),
			SpecialColor: medal.raw(7),
		},
		UserLevel: level.int(0),
		UserRank:  level.int(1),
	}, nil
}

// FansMedal is a fan medal as carried in object form.
type FansMedal struct {
	AnchorRoomID int64  `json:"anchor_roomid"`
	MedalLevel   int64  `json:"medal_level"`
	MedalName    string `json:"medal_name"`
	TargetID     int64  `json:"target_id"`
}

// Gift is a gift sent by a viewer (SEND_GIFT).
type Gift struct {
	UID       int64      `json:"uid"`
	Uname     string     `json:"uname"`
	GiftID    int64      `json:"giftId"`
	GiftName  string     `json:"giftName"`
	Num       int64      `json:"num"`
	Price     int64      `json:"price"`
	CoinType  string     `json:"coin_type"`
	TotalCoin int64      `json:"total_coin"`
	Timestamp int64      `json:"timestamp"`
	MedalInfo *FansMedal `json:"medal_info"`
}

// GuardBuy is a guard (membership) purchase (GUARD_BUY).
type GuardBuy struct {
	UID        int64  `json:"uid"`
	Username   string `json:"username"`
	GuardLevel int64  `json:"guard_level"`
	Num        int64  `json:"num"`
	Price      int64  `json:"price"`
	GiftID     int64  `json:"gift_id"`
	GiftName   string `json:"gift_name"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
}

// UserToastV2 is the newer guard purchase notice (USER_TOAST_V2).
type UserToastV2 struct {
	Username   string `json:"username"`
	GuardLevel int64  `json:"guard_level"`
	Price      int64  `json:"price"`
	Num        int64  `json:"num"`
	Unit       string `json:"unit"`
	RoleName   string `json:"role_name"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
}

// SuperChat is a paid highlighted message (SUPER_CHAT_MESSAGE and the
// _JPN variant).
type SuperChat struct {
	ID         json.Number `json:"id"`
	UID        int64       `json:"uid"`
	Message    string      `json:"message"`
	MessageJPN string      `json:"message_jpn"`
	Price      int64       `json:"price"`
	Time       int64       `json:"time"`
	StartTime  int64       `json:"start_time"`
	EndTime    int64       `json:"end_time"`
	UserInfo   struct {
		Uname string `json:"uname"`
		Face  string `json:"face"`
	} `json:"user_info"`
}

// Uname returns the sender's name.
func (s SuperChat) Uname() string { return s.UserInfo.Uname }

// SuperChatDelete lists super chats withdrawn by the server
// (SUPER_CHAT_MESSAGE_DELETE).
type SuperChatDelete struct {
	IDs []int64 `json:"ids"`
}

// LikeInfoUpdate carries the room's total like count (LIKE_INFO_V3_UPDATE).
type LikeInfoUpdate struct {
	ClickCount int64 `json:"click_count"`
}

// LikeClick is a single viewer's like (LIKE_INFO_V3_CLICK). It carries no
// timestamp.
type LikeClick struct {
	UID       int64           `json:"uid"`
	Uname     string          `json:"uname"`
	LikeText  string          `json:"like_text"`
	UInfo     json.RawMessage `json:"uinfo"`
	FansMedal *FansMedal      `json:"fans_medal"`
}

// Interaction kinds of InteractWord.MsgType.
const (
	InteractEnter         = 1
	InteractFollow        = 2
	InteractShare         = 3
	InteractSpecialFollow = 4
	InteractMutualFollow  = 5
	InteractLike          = 6
)

// InteractWord is a room interaction such as entering or following
// (INTERACT_WORD, INTERACT_WORD_V2).
type InteractWord struct {
	UID       int64     `json:"uid"`
	Uname     string    `json:"uname"`
	MsgType   int64     `json:"msg_type"`
	RoomID    int64     `json:"roomid"`
	Timestamp int64     `json:"timestamp"`
	Score     int64     `json:"score"`
	FansMedal FansMedal `json:"fans_medal"`
}

// Field numbers of the INTERACT_WORD_V2 "pb" payload.
const (
	interactFieldUID       = 1
	interactFieldUname     = 2
	interactFieldMsgType   = 5
	interactFieldRoomID    = 6
	interactFieldTimestamp = 7
	interactFieldScore     = 8
	interactFieldFansMedal = 9

	medalFieldTargetID = 1
	medalFieldLevel    = 2
	medalFieldName     = 3
)

// DecodeInteractWordV2 decodes INTERACT_WORD_V2. The interaction is
// carried as a base64 protobuf message under data.pb; bodies that still
// use the plain object layout are decoded like INTERACT_WORD.
func DecodeInteractWordV2(raw []byte) (InteractWord, error) {
	var body struct {
		Data *struct {
			PB string `json:"pb"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return InteractWord{}, err
	}
	if body.Data == nil {
		return InteractWord{}, errMissing("data")
	}
	if body.Data.PB == "" {
		return DecodeData[InteractWord](raw)
	}

	fs, err := protocol.ParseFieldsBase64(body.Data.PB)
	if err != nil {
		return InteractWord{}, fmt.Errorf("events: interact word pb: %w", err)
	}
	medal := fs.Message(interactFieldFansMedal)
	return InteractWord{
		UID:       int64(fs.Uint(interactFieldUID)),
		Uname:     fs.Text(interactFieldUname),
		MsgType:   int64(fs.Uint(interactFieldMsgType)),
		RoomID:    int64(fs.Uint(interactFieldRoomID)),
		Timestamp: int64(fs.Uint(interactFieldTimestamp)),
		Score:     int64(fs.Uint(interactFieldScore)),
		FansMedal: FansMedal{
			TargetID:   int64(medal.Uint(medalFieldTargetID)),
			MedalLevel: int64(medal.Uint(medalFieldLevel)),
			MedalName:  medal.Text(medalFieldName),
		},
	}, nil
}

// EntryEffect is an entrance animation, typically for guards (ENTRY_EFFECT).
type EntryEffect struct {
	UID           int64  `json:"uid"`
	PrivilegeType int64  `json:"privilege_type"`
	CopyWriting   string `json:"copy_writing"`
}

// ComboSend is a gift combo (COMBO_SEND).
type ComboSend struct {
	UID            int64  `json:"uid"`
	Uname          string `json:"uname"`
	ComboNum       int64  `json:"combo_num"`
	GiftName       string `json:"gift_name"`
	GiftID         int64  `json:"gift_id"`
	Price          int64  `json:"price"`
	ComboTotalCoin int64  `json:"combo_total_coin"`
}

// HotRankChanged is a hot-rank position change (HOT_RANK_CHANGED and _V2).
type HotRankChanged struct {
	Rank      int64  `json:"rank"`
	Trend     int64  `json:"trend"`
	Countdown int64  `json:"countdown"`
	Timestamp int64  `json:"timestamp"`
	WebURL    string `json:"web_url"`
	LiveURL   string `json:"live_url"`
	PCLinkURL string `json:"pc_link_url"`
	AreaName  string `json:"area_name"`
}

// Live signals that the room went live (LIVE). Its fields sit next to cmd.
type Live struct {
	RoomID       json.Number `json:"roomid"`
	LiveTime     int64       `json:"live_time"`
	LiveKey      string      `json:"live_key"`
	LivePlatform string      `json:"live_platform"`
}

// Preparing signals that the room stopped streaming (PREPARING).
type Preparing struct {
	RoomID json.Number `json:"roomid"`
}

// NoticeMsg is a system or broadcast notice (NOTICE_MSG). Its fields sit
// next to cmd.
type NoticeMsg struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	MsgType   int64  `json:"msg_type"`
	MsgCommon string `json:"msg_common"`
	MsgSelf   string `json:"msg_self"`
	LinkURL   string `json:"link_url"`
	RealRoom  int64  `json:"real_roomid"`
}

// OnlineRankCount is the high-energy user count (ONLINE_RANK_COUNT).
type OnlineRankCount struct {
	Count           int64  `json:"count"`
	CountText       string `json:"count_text"`
	OnlineCount     int64  `json:"online_count"`
	OnlineCountText string `json:"online_count_text"`
}

// OnlineRankV2 is the high-energy user list (ONLINE_RANK_V2).
type OnlineRankV2 struct {
	OnlineList json.RawMessage `json:"online_list"`
	RankType   string          `json:"rank_type"`
}

// PKBattle is a PK progress update (PK_BATTLE_PROCESS).
type PKBattle struct {
	BattleType int64           `json:"battle_type"`
	InitInfo   json.RawMessage `json:"init_info"`
	MatchInfo  json.RawMessage `json:"match_info"`
	PKStatus   int64           `json:"pk_status"`
}

// PKBattleSettle is a PK result (PK_BATTLE_SETTLE).
type PKBattleSettle struct {
	PKID         json.Number     `json:"pk_id"`
	SettleStatus int64           `json:"settle_status"`
	Timestamp    int64           `json:"timestamp"`
	Winner       json.RawMessage `json:"winner"`
}

// RoomRealTimeMessageUpdate carries fan counters
// (ROOM_REAL_TIME_MESSAGE_UPDATE).
type RoomRealTimeMessageUpdate struct {
	RoomID    int64 `json:"roomid"`
	Fans      int64 `json:"fans"`
	RedNotice int64 `json:"red_notice"`
	FansClub  int64 `json:"fans_club"`
}

// StopLiveRoomList lists rooms that went offline (STOP_LIVE_ROOM_LIST).
type StopLiveRoomList struct {
	RoomIDList []int64 `json:"room_id_list"`
}

// UserToastMsg is a user toast notice (USER_TOAST_MSG).
type UserToastMsg struct {
	UID        int64  `json:"uid"`
	Username   string `json:"username"`
	ToastMsg   string `json:"toast_msg"`
	Num        int64  `json:"num"`
	GuardLevel int64  `json:"guard_level"`
}

// WatchedChange is the "watched" counter (WATCHED_CHANGE).
type WatchedChange struct {
	Num       int64  `json:"num"`
	TextSmall string `json:"text_small"`
	TextLarge string `json:"text_large"`
}

// WidgetBanner is a banner widget update (WIDGET_BANNER).
type WidgetBanner struct {
	Timestamp  int64           `json:"timestamp"`
	WidgetList json.RawMessage `json:"widget_list"`
}
