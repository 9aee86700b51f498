package arena

import (
	"encoding/json"

	"github.com/krio-rogue/fotm-server/internal/battle"
	"github.com/krio-rogue/fotm-server/internal/store"
	"github.com/krio-rogue/fotm-server/pkg/types"
)

// Msg is one inbound event for the arena dispatcher. Every event is
// processed to completion before the next is taken off the inbox,
// which is what gives queue mutation, matchmaking and per-room turn
// stamping their ordering without locks.
type Msg interface{ isArenaMsg() }

// Identity is the authenticated user behind a connection. Resolution
// happens upstream; the arena trusts what it is handed.
type Identity struct {
	UserID   uint
	Username string
}

// Conn is one live client connection. Outbox is drained by the
// connection's writer goroutine; the arena never blocks on it.
type Conn struct {
	ID       string
	Identity Identity
	Outbox   chan types.ServerMessage
}

type Connect struct{ Conn *Conn }

type Disconnect struct{ ConnID string }

type JoinQueue struct{ ConnID string }

type LeaveQueue struct{ ConnID string }

// QueueDepth asks for a re-broadcast of the current queue length.
type QueueDepth struct{ ConnID string }

type CheckOpponent struct {
	ConnID string
	Room   battle.RoomID
}

type OpponentReady struct {
	ConnID string
	Room   battle.RoomID
}

type FetchRosters struct {
	ConnID string
	Room   battle.RoomID
}

type RostersLoaded struct {
	ConnID string
	Room   battle.RoomID
}

type CombatLog struct {
	ConnID  string
	Room    battle.RoomID
	Message json.RawMessage
}

type EndTurn struct {
	ConnID  string
	Room    battle.RoomID
	Payload json.RawMessage
	// Turns is the counter the client last saw. The session's counter
	// is authoritative; this is only checked for drift.
	Turns int
}

type SyncActiveParty struct {
	ConnID  string
	Room    battle.RoomID
	Payload json.RawMessage
}

type SyncParties struct {
	ConnID string
	Room   battle.RoomID
	First  json.RawMessage
	Second json.RawMessage
}

type Chat struct {
	ConnID  string
	Channel string
	Message json.RawMessage
}

// rostersFetched is the completion event for an async roster load.
// The handler re-validates the session before acting: the state seen
// when the load started may be gone by the time it finishes.
type rostersFetched struct {
	ConnID string
	Room   battle.RoomID
	Ally   *store.Team
	Enemy  *store.Team
	Err    error
}

// GetView snapshots dispatcher state for tests and the HTTP layer.
type GetView struct{ Reply chan View }

type View struct {
	Online      int
	OnlineUsers map[uint]bool
	Queue       []string
	Sessions    int
	Phases      map[battle.RoomID]battle.Phase
	Turns       map[battle.RoomID]int
}

type Shutdown struct{}

func (Connect) isArenaMsg()         {}
func (Disconnect) isArenaMsg()      {}
func (JoinQueue) isArenaMsg()       {}
func (LeaveQueue) isArenaMsg()      {}
func (QueueDepth) isArenaMsg()      {}
func (CheckOpponent) isArenaMsg()   {}
func (OpponentReady) isArenaMsg()   {}
func (FetchRosters) isArenaMsg()    {}
func (RostersLoaded) isArenaMsg()   {}
func (CombatLog) isArenaMsg()       {}
func (EndTurn) isArenaMsg()         {}
func (SyncActiveParty) isArenaMsg() {}
func (SyncParties) isArenaMsg()     {}
func (Chat) isArenaMsg()            {}
func (rostersFetched) isArenaMsg()  {}
func (GetView) isArenaMsg()         {}
func (Shutdown) isArenaMsg()        {}
