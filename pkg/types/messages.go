package types

import (
	"encoding/json"

	"github.com/krio-rogue/fotm-server/internal/battle"
	"github.com/krio-rogue/fotm-server/internal/store"
)

// Client -> Server message types.
const (
	MsgJoinQueue       = "JoinQueue"
	MsgLeaveQueue      = "LeaveQueue"
	MsgQueueDepth      = "QueueDepth"
	MsgCheckOpponent   = "CheckOpponent"
	MsgOpponentReady   = "OpponentReady"
	MsgFetchRosters    = "FetchRosters"
	MsgRostersLoaded   = "RostersLoaded"
	MsgCombatLog       = "CombatLog"
	MsgEndTurn         = "EndTurn"
	MsgSyncActiveParty = "SyncActiveParty"
	MsgSyncParties     = "SyncParties"
	MsgChat            = "Chat"
)

// Server -> Client message types.
const (
	EvtOnline               = "Online"
	EvtLeave                = "Leave"
	EvtQueueDepthChanged    = "QueueDepthChanged"
	EvtBattleStarting       = "BattleStarting"
	EvtPresenceCheck        = "PresenceCheck"
	EvtOpponentReady        = "OpponentReady"
	EvtRosters              = "Rosters"
	EvtOpponentRostersReady = "OpponentRostersLoaded"
	EvtCombatLog            = "CombatLog"
	EvtTurnAdvanced         = "TurnAdvanced"
	EvtActivePartySync      = "ActivePartySync"
	EvtPartiesSync          = "PartiesSync"
	EvtOpponentLeft         = "OpponentLeft"
	EvtChat                 = "Chat"
	EvtError                = "Error"
)

// Chat channels.
const (
	ChannelCommon = "common"
	ChannelArena  = "arena"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Room    *battle.RoomID  `json:"room,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Second  json.RawMessage `json:"second,omitempty"`
	Turns   int             `json:"turns,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	// Count and Turn stay explicit on the wire: a queue depth or
	// online count of zero is a real value, not an absent field.
	Count    int             `json:"count"`
	Username string          `json:"username,omitempty"`
	Setup    *battle.Setup   `json:"setup,omitempty"`
	Ally     *store.Team     `json:"ally,omitempty"`
	Enemy    *store.Team     `json:"enemy,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Second   json.RawMessage `json:"second,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
	Turn     int             `json:"turn"`
	Channel  string          `json:"channel,omitempty"`
	Error    string          `json:"error,omitempty"`
}
