package battle

import "errors"

var ErrSessionEnded = errors.New("session already ended")

// Phase is the session lifecycle state.
type Phase string

const (
	PhaseForming Phase = "forming" // paired, clients still loading
	PhaseActive  Phase = "active"  // both rosters fetched, turns flowing
	PhaseEnded   Phase = "ended"   // concluded or forfeited
)

// Participant ties a connection to the user behind it for the duration
// of one battle.
type Participant struct {
	ConnID string
	UserID uint
}

// Session is the per-pair coordinator state for one 1v1 match. The
// battle room's membership lives here: both participants are present at
// creation and no third connection ever joins. A Session is driven by a
// single goroutine (the arena dispatcher), so it carries no locks.
type Session struct {
	room    RoomID
	first   Participant
	second  Participant
	present map[string]bool
	ready   map[string]bool
	phase   Phase
	turn    int
}

func NewSession(room RoomID, first, second Participant) *Session {
	return &Session{
		room:   room,
		first:  first,
		second: second,
		present: map[string]bool{
			first.ConnID:  true,
			second.ConnID: true,
		},
		ready: make(map[string]bool),
		phase: PhaseForming,
	}
}

func (s *Session) Room() RoomID { return s.room }
func (s *Session) Phase() Phase { return s.phase }
func (s *Session) Turn() int    { return s.turn }

// Has reports whether connID is a present member of the battle room.
func (s *Session) Has(connID string) bool { return s.present[connID] }

// Members returns the present member connection IDs, first side first.
func (s *Session) Members() []string {
	ids := make([]string, 0, 2)
	if s.present[s.first.ConnID] {
		ids = append(ids, s.first.ConnID)
	}
	if s.present[s.second.ConnID] {
		ids = append(ids, s.second.ConnID)
	}
	return ids
}

// Participant resolves a member connection to its participant record.
func (s *Session) Participant(connID string) (Participant, bool) {
	switch connID {
	case s.first.ConnID:
		return s.first, true
	case s.second.ConnID:
		return s.second, true
	}
	return Participant{}, false
}

// Opponent returns the other side of the pairing.
func (s *Session) Opponent(connID string) (Participant, bool) {
	switch connID {
	case s.first.ConnID:
		return s.second, true
	case s.second.ConnID:
		return s.first, true
	}
	return Participant{}, false
}

// MarkReady records that one side's roster fetch completed. The
// session goes active only once both sides have loaded; a repeated
// mark from the same side is a no-op rather than an error.
func (s *Session) MarkReady(connID string) error {
	if s.phase == PhaseEnded {
		return ErrSessionEnded
	}
	if _, ok := s.Participant(connID); !ok {
		return nil
	}
	s.ready[connID] = true
	if s.ready[s.first.ConnID] && s.ready[s.second.ConnID] {
		s.phase = PhaseActive
	}
	return nil
}

// Ready reports whether this side has loaded into the battle. A side
// that never loaded is not charged a forfeit when it vanishes.
func (s *Session) Ready(connID string) bool { return s.ready[connID] }

// AdvanceTurn increments the server-owned turn counter and returns the
// new value. Clients only ever receive this post-increment value.
func (s *Session) AdvanceTurn() int {
	s.turn++
	return s.turn
}

// Remove drops a connection from the battle room without ending the
// session; used to kick the survivor after their opponent vanishes.
func (s *Session) Remove(connID string) {
	delete(s.present, connID)
}

// End transitions to ended. Safe to call more than once.
func (s *Session) End() {
	s.phase = PhaseEnded
}
