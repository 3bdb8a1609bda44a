package dispatch

import (
	"github.com/xyself/blivedm/pkg/events"
)

// WebCallbacks holds one optional callback per web command. Nil fields
// are no-ops.
type WebCallbacks struct {
	Danmaku                   func(Session, events.Danmaku)
	Gift                      func(Session, events.Gift)
	GuardBuy                  func(Session, events.GuardBuy)
	UserToastV2               func(Session, events.UserToastV2)
	SuperChat                 func(Session, events.SuperChat)
	SuperChatJPN              func(Session, events.SuperChat)
	SuperChatDelete           func(Session, events.SuperChatDelete)
	LikeInfoUpdate            func(Session, events.LikeInfoUpdate)
	LikeClick                 func(Session, events.LikeClick)
	InteractWord              func(Session, events.InteractWord)
	EntryEffect               func(Session, events.EntryEffect)
	ComboSend                 func(Session, events.ComboSend)
	HotRankChanged            func(Session, events.HotRankChanged)
	HotRankChangedV2          func(Session, events.HotRankChanged)
	Live                      func(Session, events.Live)
	LiveInteractiveGame       func(Session, events.Generic)
	NoticeMsg                 func(Session, events.NoticeMsg)
	OnlineRankCount           func(Session, events.OnlineRankCount)
	OnlineRankV2              func(Session, events.OnlineRankV2)
	OnlineRankTop3            func(Session, events.Generic)
	PKBattleEnd               func(Session, events.Generic)
	PKBattleFinalProcess      func(Session, events.Generic)
	PKBattleProcess           func(Session, events.PKBattle)
	PKBattleProcessNew        func(Session, events.Generic)
	PKBattleSettle            func(Session, events.PKBattleSettle)
	PKBattleSettleUser        func(Session, events.Generic)
	PKBattleSettleV2          func(Session, events.Generic)
	Preparing                 func(Session, events.Preparing)
	RoomRealTimeMessageUpdate func(Session, events.RoomRealTimeMessageUpdate)
	StopLiveRoomList          func(Session, events.StopLiveRoomList)
	UserToastMsg              func(Session, events.UserToastMsg)
	WatchedChange             func(Session, events.WatchedChange)
	WidgetBanner              func(Session, events.WidgetBanner)
	OtherSliceLoadingResult   func(Session, events.Generic)
	DMInteraction             func(Session, events.Generic)
}

// WebTable builds the dispatch table of the web protocol variant. Both
// INTERACT_WORD and INTERACT_WORD_V2 are delivered to InteractWord.
func WebTable(cb WebCallbacks) Table {
	return Table{
		events.CmdDanmaku:                   On(events.DecodeDanmaku, cb.Danmaku),
		events.CmdGift:                      On(events.DecodeData[events.Gift], cb.Gift),
		events.CmdGuardBuy:                  On(events.DecodeData[events.GuardBuy], cb.GuardBuy),
		events.CmdUserToastV2:               On(events.DecodeData[events.UserToastV2], cb.UserToastV2),
		events.CmdSuperChat:                 On(events.DecodeData[events.SuperChat], cb.SuperChat),
		events.CmdSuperChatJPN:              On(events.DecodeData[events.SuperChat], cb.SuperChatJPN),
		events.CmdSuperChatDelete:           On(events.DecodeData[events.SuperChatDelete], cb.SuperChatDelete),
		events.CmdLikeInfoUpdate:            On(events.DecodeData[events.LikeInfoUpdate], cb.LikeInfoUpdate),
		events.CmdLikeClick:                 On(events.DecodeData[events.LikeClick], cb.LikeClick),
		events.CmdInteractWord:              On(events.DecodeData[events.InteractWord], cb.InteractWord),
		events.CmdInteractWordV2:            On(events.DecodeInteractWordV2, cb.InteractWord),
		events.CmdEntryEffect:               On(events.DecodeData[events.EntryEffect], cb.EntryEffect),
		events.CmdComboSend:                 On(events.DecodeData[events.ComboSend], cb.ComboSend),
		events.CmdHotRankChanged:            On(events.DecodeData[events.HotRankChanged], cb.HotRankChanged),
		events.CmdHotRankChangedV2:          On(events.DecodeData[events.HotRankChanged], cb.HotRankChangedV2),
		events.CmdLive:                      On(events.DecodeTop[events.Live], cb.Live),
		events.CmdLiveInteractiveGame:       On(events.DecodeGeneric, cb.LiveInteractiveGame),
		events.CmdNoticeMsg:                 On(events.DecodeTop[events.NoticeMsg], cb.NoticeMsg),
		events.CmdOnlineRankCount:           On(events.DecodeData[events.OnlineRankCount], cb.OnlineRankCount),
		events.CmdOnlineRankV2:              On(events.DecodeData[events.OnlineRankV2], cb.OnlineRankV2),
		events.CmdOnlineRankTop3:            On(events.DecodeGeneric, cb.OnlineRankTop3),
		events.CmdPKBattleEnd:               On(events.DecodeGeneric, cb.PKBattleEnd),
		events.CmdPKBattleFinalProcess:      On(events.DecodeGeneric, cb.PKBattleFinalProcess),
		events.CmdPKBattleProcess:           On(events.DecodeData[events.PKBattle], cb.PKBattleProcess),
		events.CmdPKBattleProcessNew:        On(events.DecodeGeneric, cb.PKBattleProcessNew),
		events.CmdPKBattleSettle:            On(events.DecodeData[events.PKBattleSettle], cb.PKBattleSettle),
		events.CmdPKBattleSettleUser:        On(events.DecodeGeneric, cb.PKBattleSettleUser),
		events.CmdPKBattleSettleV2:          On(events.DecodeGeneric, cb.PKBattleSettleV2),
		events.CmdPreparing:                 On(events.DecodeTop[events.Preparing], cb.Preparing),
		events.CmdRoomRealTimeMessageUpdate: On(events.DecodeData[events.RoomRealTimeMessageUpdate], cb.RoomRealTimeMessageUpdate),
		events.CmdStopLiveRoomList:          On(events.DecodeData[events.StopLiveRoomList], cb.StopLiveRoomList),
		events.CmdUserToastMsg:              On(events.DecodeData[events.UserToastMsg], cb.UserToastMsg),
		events.CmdWatchedChange:             On(events.DecodeData[events.WatchedChange], cb.WatchedChange),
		events.CmdWidgetBanner:              On(events.DecodeData[events.WidgetBanner], cb.WidgetBanner),
		events.CmdOtherSliceLoadingResult:   On(events.DecodeGeneric, cb.OtherSliceLoadingResult),
		events.CmdDMInteraction:             On(events.DecodeGeneric, cb.DMInteraction),
	}
}

// OpenLiveCallbacks holds one optional callback per open-platform command.
// Nil fields are no-ops.
type OpenLiveCallbacks struct {
	Danmaku         func(Session, events.OpenDanmaku)
	Gift            func(Session, events.OpenGift)
	Guard           func(Session, events.OpenGuard)
	SuperChat       func(Session, events.OpenSuperChat)
	SuperChatDelete func(Session, events.OpenSuperChatDelete)
	Like            func(Session, events.OpenLike)
	Enter           func(Session, events.OpenEnter)
	LiveStart       func(Session, events.OpenLiveStatus)
	LiveEnd         func(Session, events.OpenLiveStatus)
}

// OpenLiveTable builds the dispatch table of the open-platform variant.
// The older enter/start/end command names map to the same callbacks.
func OpenLiveTable(cb OpenLiveCallbacks) Table {
	enter := On(events.DecodeData[events.OpenEnter], cb.Enter)
	start := On(events.DecodeData[events.OpenLiveStatus], cb.LiveStart)
	end := On(events.DecodeData[events.OpenLiveStatus], cb.LiveEnd)
	return Table{
		events.CmdOpenDanmaku:         On(events.DecodeData[events.OpenDanmaku], cb.Danmaku),
		events.CmdOpenGift:            On(events.DecodeData[events.OpenGift], cb.Gift),
		events.CmdOpenGuard:           On(events.DecodeData[events.OpenGuard], cb.Guard),
		events.CmdOpenSuperChat:       On(events.DecodeData[events.OpenSuperChat], cb.SuperChat),
		events.CmdOpenSuperChatDelete: On(events.DecodeData[events.OpenSuperChatDelete], cb.SuperChatDelete),
		events.CmdOpenLike:            On(events.DecodeData[events.OpenLike], cb.Like),
		events.CmdOpenEnter:           enter,
		events.CmdOpenUserEnter:       enter,
		events.CmdOpenStart:           start,
		events.CmdOpenStartOld:        start,
		events.CmdOpenEnd:             end,
		events.CmdOpenEndOld:          end,
	}
}
