package arena

import (
	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/battle"
	"github.com/krio-rogue/fotm-server/pkg/types"
)

func (a *Arena) handleJoinQueue(connID string) {
	c, ok := a.conns[connID]
	if !ok {
		return
	}
	if _, busy := a.active[connID]; busy {
		a.log.Warn("queue join while in a battle, ignored",
			zap.String("user", c.Identity.Username))
		return
	}
	if a.queue.Enqueue(connID) {
		a.log.Info("user joined arena queue", zap.String("user", c.Identity.Username))
	}
	a.broadcastQueueDepth()
	a.matchmake()
}

func (a *Arena) handleLeaveQueue(connID string) {
	if a.queue.Remove(connID) {
		if c, ok := a.conns[connID]; ok {
			a.log.Info("user left arena queue", zap.String("user", c.Identity.Username))
		}
	}
	a.broadcastQueueDepth()
}

// matchmake pairs waiting connections strictly in arrival order. It
// runs inside the dispatcher, so reading the queue, removing the pair
// and creating the session is one atomic step: no other event can
// observe a half-made match.
func (a *Arena) matchmake() {
	paired := false
	for a.queue.Len() >= 2 {
		snapshot := a.queue.Snapshot()
		first, second := snapshot[0], snapshot[1]

		// A queued connection may have died without being pruned yet.
		if _, live := a.conns[first]; !live {
			a.queue.Remove(first)
			continue
		}
		if _, live := a.conns[second]; !live {
			a.queue.Remove(second)
			continue
		}

		a.startBattle(first, second)
		paired = true
	}
	if paired {
		a.broadcastQueueDepth()
	}
}

func (a *Arena) startBattle(first, second string) {
	c1, c2 := a.conns[first], a.conns[second]

	rid := battle.RoomID{First: first, Second: second}
	setupA, setupB := battle.GenerateSetups(rid, a.rng)

	s := battle.NewSession(rid,
		battle.Participant{ConnID: first, UserID: c1.Identity.UserID},
		battle.Participant{ConnID: second, UserID: c2.Identity.UserID},
	)
	a.sessions[rid] = s
	a.active[first] = rid
	a.active[second] = rid
	a.queue.Remove(first)
	a.queue.Remove(second)

	a.send(first, types.ServerMessage{Type: types.EvtBattleStarting, Setup: &setupA})
	a.send(second, types.ServerMessage{Type: types.EvtBattleStarting, Setup: &setupB})

	a.log.Info("battle starting",
		zap.String("first", c1.Identity.Username),
		zap.String("second", c2.Identity.Username),
		zap.Stringer("room", rid))
}
