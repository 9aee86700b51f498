package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/arena"
	"github.com/krio-rogue/fotm-server/pkg/types"
)

const writeTimeout = 3 * time.Second

// IdentityResolver maps an incoming upgrade request to the
// authenticated user behind it. Session-cookie validation is someone
// else's job; the arena only needs the result.
type IdentityResolver interface {
	Resolve(r *http.Request) (arena.Identity, error)
}

// QueryIdentity resolves identity from ?user=<id>&name=<username>,
// for development and tests.
type QueryIdentity struct{}

func (QueryIdentity) Resolve(r *http.Request) (arena.Identity, error) {
	id, err := strconv.ParseUint(r.URL.Query().Get("user"), 10, 64)
	if err != nil {
		return arena.Identity{}, errors.New("missing or bad user id")
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		return arena.Identity{}, errors.New("missing name")
	}
	return arena.Identity{UserID: uint(id), Username: name}, nil
}

func Handler(a *arena.Arena, ids IdentityResolver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := ids.Resolve(r)
		if err != nil {
			http.Error(w, "not authorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &arena.Conn{
			ID:       uuid.NewString(),
			Identity: identity,
			Outbox:   make(chan types.ServerMessage, 16),
		}
		a.Inbox() <- arena.Connect{Conn: c}
		defer func() { a.Inbox() <- arena.Disconnect{ConnID: c.ID} }()

		// Writer goroutine: drains the outbox until the arena closes it.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range c.Outbox {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Error("marshal server message", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. Battle clients sit idle between turns, so there
		// is no per-read deadline; a dead peer is caught by the
		// websocket layer's own ping handling.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			msg, ok := toArenaMsg(c.ID, cm)
			if !ok {
				writeError(r.Context(), conn, "unknown type")
				continue
			}
			a.Inbox() <- msg
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: types.EvtError, Error: reason})
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

// toArenaMsg translates a wire message into a dispatcher event.
// Battle-scoped types without an echoed room are rejected here so the
// dispatcher never sees them.
func toArenaMsg(connID string, m types.ClientMessage) (arena.Msg, bool) {
	switch m.Type {
	case types.MsgJoinQueue:
		return arena.JoinQueue{ConnID: connID}, true
	case types.MsgLeaveQueue:
		return arena.LeaveQueue{ConnID: connID}, true
	case types.MsgQueueDepth:
		return arena.QueueDepth{ConnID: connID}, true
	case types.MsgChat:
		if m.Channel != types.ChannelCommon && m.Channel != types.ChannelArena {
			return nil, false
		}
		return arena.Chat{ConnID: connID, Channel: m.Channel, Message: m.Message}, true
	}

	if m.Room == nil {
		return nil, false
	}
	room := *m.Room

	switch m.Type {
	case types.MsgCheckOpponent:
		return arena.CheckOpponent{ConnID: connID, Room: room}, true
	case types.MsgOpponentReady:
		return arena.OpponentReady{ConnID: connID, Room: room}, true
	case types.MsgFetchRosters:
		return arena.FetchRosters{ConnID: connID, Room: room}, true
	case types.MsgRostersLoaded:
		return arena.RostersLoaded{ConnID: connID, Room: room}, true
	case types.MsgCombatLog:
		return arena.CombatLog{ConnID: connID, Room: room, Message: m.Message}, true
	case types.MsgEndTurn:
		return arena.EndTurn{ConnID: connID, Room: room, Payload: m.Payload, Turns: m.Turns}, true
	case types.MsgSyncActiveParty:
		return arena.SyncActiveParty{ConnID: connID, Room: room, Payload: m.Payload}, true
	case types.MsgSyncParties:
		return arena.SyncParties{ConnID: connID, Room: room, First: m.Payload, Second: m.Second}, true
	default:
		return nil, false
	}
}
