package arena

import (
	"context"

	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/battle"
	"github.com/krio-rogue/fotm-server/pkg/types"
)

// handleFetchRosters kicks off the combat-context load for the
// requesting side. The store calls run off the dispatcher goroutine;
// the result comes back through the inbox as a rostersFetched event.
func (a *Arena) handleFetchRosters(msg FetchRosters) {
	s, ok := a.sessionFor(msg.ConnID, msg.Room)
	if !ok || s.Phase() == battle.PhaseEnded {
		return
	}

	req, _ := s.Participant(msg.ConnID)
	opp, ok := s.Opponent(msg.ConnID)
	if !ok {
		return
	}

	connID, rid := msg.ConnID, msg.Room
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, collaboratorTimeout)
		defer cancel()

		done := rostersFetched{ConnID: connID, Room: rid}
		done.Ally, done.Err = a.store.TeamByUser(ctx, req.UserID)
		if done.Err == nil {
			done.Enemy, done.Err = a.store.TeamByUser(ctx, opp.UserID)
		}
		select {
		case a.inbox <- done:
		case <-a.ctx.Done():
		}
	}()
}

// handleRostersFetched resumes after the store round trip. Everything
// captured before the suspension is re-validated: the session may have
// ended or the requester vanished while the load was in flight.
func (a *Arena) handleRostersFetched(msg rostersFetched) {
	s, ok := a.sessions[msg.Room]
	if !ok || s.Phase() == battle.PhaseEnded || !s.Has(msg.ConnID) {
		return
	}

	if msg.Err != nil {
		a.log.Error("load battle rosters",
			zap.Stringer("room", msg.Room), zap.Error(msg.Err))
		a.send(msg.ConnID, types.ServerMessage{Type: types.EvtError, Error: "failed to load rosters"})
		return
	}

	if err := s.MarkReady(msg.ConnID); err != nil {
		return
	}
	a.send(msg.ConnID, types.ServerMessage{
		Type:  types.EvtRosters,
		Ally:  msg.Ally,
		Enemy: msg.Enemy,
	})
}

// handleEndTurn stamps the relayed turn payload with the session's
// post-increment counter and fans it out to the whole room, sender
// included, so both clients advance from the same number.
func (a *Arena) handleEndTurn(msg EndTurn) {
	s, ok := a.sessionFor(msg.ConnID, msg.Room)
	if !ok || s.Phase() != battle.PhaseActive {
		return
	}

	turn := s.AdvanceTurn()
	if msg.Turns != turn-1 {
		a.log.Debug("client turn counter drift",
			zap.Stringer("room", msg.Room),
			zap.Int("client", msg.Turns), zap.Int("server", turn-1))
	}
	a.broadcastSession(s, "", types.ServerMessage{
		Type:    types.EvtTurnAdvanced,
		Payload: msg.Payload,
		Turn:    turn,
	})
}

func (a *Arena) handleSyncParties(msg SyncParties) {
	s, ok := a.sessionFor(msg.ConnID, msg.Room)
	if !ok {
		return
	}
	a.broadcastSession(s, "", types.ServerMessage{
		Type:    types.EvtPartiesSync,
		Payload: msg.First,
		Second:  msg.Second,
	})
}
