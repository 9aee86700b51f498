// Package arena is the real-time coordinator: it owns the connection
// registry, the matchmaking queue and every battle session, and it
// routes broadcasts between them. All state is mutated by one
// dispatcher goroutine draining a typed-message inbox.
package arena

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/battle"
	"github.com/krio-rogue/fotm-server/internal/room"
	"github.com/krio-rogue/fotm-server/internal/store"
	"github.com/krio-rogue/fotm-server/pkg/types"
)

// Store is the slice of the persistence layer the arena needs. The
// gorm-backed store satisfies it; tests substitute a fake.
type Store interface {
	TeamByUser(ctx context.Context, userID uint) (*store.Team, error)
	ApplyForfeit(ctx context.Context, userID uint) error
	DeleteDummyTeams(ctx context.Context, userID uint) error
	TouchLastVisit(ctx context.Context, userID uint) error
}

const collaboratorTimeout = 10 * time.Second

type Arena struct {
	inbox chan Msg
	log   *zap.Logger
	store Store
	rng   *rand.Rand

	reg      *room.Registry
	conns    map[string]*Conn
	queue    *queue
	sessions map[battle.RoomID]*battle.Session
	// active maps a connection to the session it currently holds a
	// live reference to.
	active map[string]battle.RoomID

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, log *zap.Logger, st Store, rng *rand.Rand) *Arena {
	a := newArena(parent, log, st, rng)
	go a.loop()
	return a
}

// newArena builds the dispatcher without starting its loop; tests
// drive handlers synchronously against it.
func newArena(parent context.Context, log *zap.Logger, st Store, rng *rand.Rand) *Arena {
	ctx, cancel := context.WithCancel(parent)
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	a := &Arena{
		inbox:    make(chan Msg, 64),
		log:      log,
		store:    st,
		rng:      rng,
		reg:      room.NewRegistry(),
		conns:    make(map[string]*Conn),
		queue:    newQueue(),
		sessions: make(map[battle.RoomID]*battle.Session),
		active:   make(map[string]battle.RoomID),
		ctx:      ctx,
		cancel:   cancel,
	}
	return a
}

func (a *Arena) Inbox() chan<- Msg { return a.inbox }

func (a *Arena) loop() {
	for {
		select {
		case <-a.ctx.Done():
			a.shutdown()
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case Connect:
				a.handleConnect(msg.Conn)
			case Disconnect:
				a.handleDisconnect(msg.ConnID)
			case JoinQueue:
				a.handleJoinQueue(msg.ConnID)
			case LeaveQueue:
				a.handleLeaveQueue(msg.ConnID)
			case QueueDepth:
				a.broadcastQueueDepth()
			case CheckOpponent:
				a.relayToOpponent(msg.ConnID, msg.Room, types.ServerMessage{Type: types.EvtPresenceCheck})
			case OpponentReady:
				a.relayToOpponent(msg.ConnID, msg.Room, types.ServerMessage{Type: types.EvtOpponentReady})
			case FetchRosters:
				a.handleFetchRosters(msg)
			case rostersFetched:
				a.handleRostersFetched(msg)
			case RostersLoaded:
				a.relayToOpponent(msg.ConnID, msg.Room, types.ServerMessage{Type: types.EvtOpponentRostersReady})
			case CombatLog:
				a.relayToOpponent(msg.ConnID, msg.Room, types.ServerMessage{Type: types.EvtCombatLog, Message: msg.Message})
			case EndTurn:
				a.handleEndTurn(msg)
			case SyncActiveParty:
				a.relayToOpponent(msg.ConnID, msg.Room, types.ServerMessage{Type: types.EvtActivePartySync, Payload: msg.Payload})
			case SyncParties:
				a.handleSyncParties(msg)
			case Chat:
				a.handleChat(msg)
			case GetView:
				msg.Reply <- a.view()
			case Shutdown:
				a.shutdown()
				return
			}
		}
	}
}

func (a *Arena) shutdown() {
	for id, c := range a.conns {
		close(c.Outbox)
		delete(a.conns, id)
	}
	a.cancel()
}

func (a *Arena) handleConnect(c *Conn) {
	a.conns[c.ID] = c
	a.reg.Join(c.ID, room.Server())
	a.reg.Join(c.ID, room.User(c.Identity.Username))

	a.broadcastRoom(room.Server(), types.ServerMessage{
		Type:     types.EvtOnline,
		Count:    a.reg.Count(room.Server()),
		Username: c.Identity.Username,
	})
	a.log.Info("user joined game", zap.String("user", c.Identity.Username))

	userID := c.Identity.UserID
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, collaboratorTimeout)
		defer cancel()
		if err := a.store.TouchLastVisit(ctx, userID); err != nil {
			a.log.Warn("touch last visit", zap.Uint("user_id", userID), zap.Error(err))
		}
	}()
}

// handleDisconnect is the disconnect resolver: it tears down room
// membership, settles any battle the connection was in, and prunes the
// queue. A reference to an already-ended session resolves as a no-op.
func (a *Arena) handleDisconnect(connID string) {
	c, ok := a.conns[connID]
	if !ok {
		return
	}

	a.reg.Leave(connID, room.Server())
	a.reg.Leave(connID, room.User(c.Identity.Username))
	a.broadcastRoom(room.Server(), types.ServerMessage{
		Type:     types.EvtLeave,
		Count:    a.reg.Count(room.Server()),
		Username: c.Identity.Username,
	})
	a.log.Info("user left game", zap.String("user", c.Identity.Username))

	if rid, held := a.active[connID]; held {
		a.resolveAbandonedSession(connID, rid)
	} else if a.queue.Remove(connID) {
		a.broadcastQueueDepth()
	}

	delete(a.conns, connID)
	delete(a.active, connID)
	close(c.Outbox)

	userID := c.Identity.UserID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()
		if err := a.store.DeleteDummyTeams(ctx, userID); err != nil {
			a.log.Warn("delete dummy teams", zap.Uint("user_id", userID), zap.Error(err))
		}
	}()
}

func (a *Arena) resolveAbandonedSession(connID string, rid battle.RoomID) {
	s, ok := a.sessions[rid]
	if !ok || s.Phase() == battle.PhaseEnded {
		// Stale reference; nothing to settle.
		return
	}

	// Only a side that had itself loaded into the battle is charged;
	// a client that never finished loading abandoned nothing.
	if s.Ready(connID) {
		p, _ := s.Participant(connID)
		a.forfeit(p.UserID)
	}

	if opp, ok := s.Opponent(connID); ok && s.Has(opp.ConnID) {
		a.send(opp.ConnID, types.ServerMessage{Type: types.EvtOpponentLeft})
		s.Remove(opp.ConnID)
		delete(a.active, opp.ConnID)
	}

	s.End()
	delete(a.sessions, rid)
	a.log.Info("battle abandoned", zap.Stringer("room", rid))
}

// forfeit charges the abandon penalty in the background. There is no
// retry path, so failures must at least be visible in the logs.
func (a *Arena) forfeit(userID uint) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()
		if err := a.store.ApplyForfeit(ctx, userID); err != nil {
			a.log.Error("apply forfeit", zap.Uint("user_id", userID), zap.Error(err))
		}
	}()
}

func (a *Arena) handleChat(msg Chat) {
	switch msg.Channel {
	case types.ChannelCommon:
		a.broadcastRoom(room.Server(), types.ServerMessage{
			Type:    types.EvtChat,
			Channel: msg.Channel,
			Message: msg.Message,
		})
	case types.ChannelArena:
		rid, held := a.active[msg.ConnID]
		if !held {
			return
		}
		s, ok := a.sessions[rid]
		if !ok {
			return
		}
		a.broadcastSession(s, "", types.ServerMessage{
			Type:    types.EvtChat,
			Channel: msg.Channel,
			Message: msg.Message,
		})
	}
}

func (a *Arena) view() View {
	online := make(map[uint]bool, len(a.conns))
	for _, c := range a.conns {
		online[c.Identity.UserID] = true
	}
	phases := make(map[battle.RoomID]battle.Phase, len(a.sessions))
	turns := make(map[battle.RoomID]int, len(a.sessions))
	for rid, s := range a.sessions {
		phases[rid] = s.Phase()
		turns[rid] = s.Turn()
	}
	return View{
		Online:      a.reg.Count(room.Server()),
		OnlineUsers: online,
		Queue:       a.queue.Snapshot(),
		Sessions:    len(a.sessions),
		Phases:      phases,
		Turns:       turns,
	}
}

// send delivers to one connection without ever blocking the dispatcher.
// A full outbox drops the message; the write path has its own timeout
// and a genuinely dead peer surfaces as a read error soon after.
func (a *Arena) send(connID string, msg types.ServerMessage) {
	c, ok := a.conns[connID]
	if !ok {
		return
	}
	select {
	case c.Outbox <- msg:
	default:
		a.log.Warn("outbox full, dropping event",
			zap.String("conn_id", connID), zap.String("type", msg.Type))
	}
}

func (a *Arena) broadcastRoom(name room.Name, msg types.ServerMessage) {
	for _, id := range a.reg.Members(name) {
		a.send(id, msg)
	}
}

// broadcastSession fans out to the session's present members, skipping
// except when non-empty.
func (a *Arena) broadcastSession(s *battle.Session, except string, msg types.ServerMessage) {
	for _, id := range s.Members() {
		if id == except {
			continue
		}
		a.send(id, msg)
	}
}

func (a *Arena) broadcastQueueDepth() {
	a.broadcastRoom(room.Server(), types.ServerMessage{
		Type:  types.EvtQueueDepthChanged,
		Count: a.queue.Len(),
	})
}

// sessionFor resolves a battle-scoped inbound event to its session,
// enforcing membership. Events for rooms the connection is not in are
// dropped; that is protocol misuse, not an error worth surfacing.
func (a *Arena) sessionFor(connID string, rid battle.RoomID) (*battle.Session, bool) {
	s, ok := a.sessions[rid]
	if !ok {
		return nil, false
	}
	if !s.Has(connID) {
		a.log.Debug("event for foreign battle room dropped",
			zap.String("conn_id", connID), zap.Stringer("room", rid))
		return nil, false
	}
	return s, true
}

func (a *Arena) relayToOpponent(connID string, rid battle.RoomID, msg types.ServerMessage) {
	s, ok := a.sessionFor(connID, rid)
	if !ok {
		return
	}
	a.broadcastSession(s, connID, msg)
}
