package arena

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/battle"
	"github.com/krio-rogue/fotm-server/internal/store"
	"github.com/krio-rogue/fotm-server/pkg/types"
)

type fakeStore struct {
	teams    map[uint]*store.Team
	teamErr  error
	forfeits chan uint
	dummies  chan uint
	touches  chan uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:    make(map[uint]*store.Team),
		forfeits: make(chan uint, 16),
		dummies:  make(chan uint, 16),
		touches:  make(chan uint, 16),
	}
}

func (f *fakeStore) TeamByUser(_ context.Context, userID uint) (*store.Team, error) {
	if f.teamErr != nil {
		return nil, f.teamErr
	}
	team, ok := f.teams[userID]
	if !ok {
		return nil, store.ErrTeamNotFound
	}
	return team, nil
}

func (f *fakeStore) ApplyForfeit(_ context.Context, userID uint) error {
	f.forfeits <- userID
	return nil
}

func (f *fakeStore) DeleteDummyTeams(_ context.Context, userID uint) error {
	f.dummies <- userID
	return nil
}

func (f *fakeStore) TouchLastVisit(_ context.Context, userID uint) error {
	f.touches <- userID
	return nil
}

// newBareArena builds a dispatcher without its loop so tests can call
// handlers synchronously and inspect state without races.
func newBareArena(t *testing.T) (*Arena, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	a := newArena(context.Background(), zap.NewNop(), fs, rand.New(rand.NewSource(1)))
	t.Cleanup(a.cancel)
	return a, fs
}

func connect(a *Arena, userID uint, name string) *Conn {
	c := &Conn{
		ID:       "conn-" + name,
		Identity: Identity{UserID: userID, Username: name},
		Outbox:   make(chan types.ServerMessage, 16),
	}
	a.handleConnect(c)
	return c
}

// drain empties a connection's outbox without blocking.
func drain(c *Conn) []types.ServerMessage {
	var out []types.ServerMessage
	for {
		select {
		case m, ok := <-c.Outbox:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func ofType(msgs []types.ServerMessage, typ string) []types.ServerMessage {
	var out []types.ServerMessage
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func recvUint(t *testing.T, ch <-chan uint, within time.Duration) uint {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for store call")
		return 0
	}
}

func expectNoUint(t *testing.T, ch <-chan uint, within time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("expected no store call, got one for user %d", v)
	case <-time.After(within):
	}
}

// recvInboxMsg waits for an async completion event to land on the
// dispatcher inbox.
func recvInboxMsg(t *testing.T, a *Arena, within time.Duration) Msg {
	t.Helper()
	select {
	case m := <-a.inbox:
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for inbox message")
		return nil
	}
}

// pair connects two users, queues both and returns the resulting
// session. Outboxes are drained so tests start from a clean slate.
func pair(t *testing.T, a *Arena) (*Conn, *Conn, *battle.Session) {
	t.Helper()
	alice := connect(a, 1, "alice")
	bob := connect(a, 2, "bob")
	a.handleJoinQueue(alice.ID)
	a.handleJoinQueue(bob.ID)

	rid := battle.RoomID{First: alice.ID, Second: bob.ID}
	s, ok := a.sessions[rid]
	require.True(t, ok, "pairing did not create a session")
	drain(alice)
	drain(bob)
	return alice, bob, s
}

func TestConnect_BroadcastsOnlineCount(t *testing.T) {
	a, fs := newBareArena(t)

	alice := connect(a, 1, "alice")
	connect(a, 2, "bob")

	msgs := drain(alice)
	online := ofType(msgs, types.EvtOnline)
	require.Len(t, online, 2)
	assert.Equal(t, 1, online[0].Count)
	assert.Equal(t, "alice", online[0].Username)
	assert.Equal(t, 2, online[1].Count)
	assert.Equal(t, "bob", online[1].Username)

	// Last-visit touch is dispatched for both.
	recvUint(t, fs.touches, time.Second)
	recvUint(t, fs.touches, time.Second)
}

func TestMatchmaker_PairsTwoOldest(t *testing.T) {
	a, _ := newBareArena(t)

	alice := connect(a, 1, "alice")
	bob := connect(a, 2, "bob")
	carol := connect(a, 3, "carol")
	drain(alice)
	drain(bob)
	drain(carol)

	a.handleJoinQueue(alice.ID)
	a.handleJoinQueue(bob.ID)
	a.handleJoinQueue(carol.ID)

	// The two oldest were paired, the third keeps waiting.
	assert.Equal(t, []string{carol.ID}, a.queue.Snapshot())
	require.Equal(t, 1, len(a.sessions))

	rid := battle.RoomID{First: alice.ID, Second: bob.ID}
	s, ok := a.sessions[rid]
	require.True(t, ok)
	assert.Equal(t, battle.PhaseForming, s.Phase())
	assert.Equal(t, rid, a.active[alice.ID])
	assert.Equal(t, rid, a.active[bob.ID])

	aliceStart := ofType(drain(alice), types.EvtBattleStarting)
	bobStart := ofType(drain(bob), types.EvtBattleStarting)
	require.Len(t, aliceStart, 1)
	require.Len(t, bobStart, 1)

	setupA, setupB := aliceStart[0].Setup, bobStart[0].Setup
	assert.Equal(t, setupA.Terrain, setupB.Terrain)
	assert.Equal(t, setupA.AllyFormation, setupB.EnemyFormation)
	assert.Equal(t, setupA.EnemyFormation, setupB.AllyFormation)
	for i, c := range setupA.Obstacles {
		assert.Equal(t, c.Mirror(), setupB.Obstacles[i])
	}

	// Queue-depth broadcast after carol's join reflects the remaining
	// queue of one.
	carolDepth := ofType(drain(carol), types.EvtQueueDepthChanged)
	require.NotEmpty(t, carolDepth)
	assert.Equal(t, 1, carolDepth[len(carolDepth)-1].Count)
}

func TestMatchmaker_DropsDeadQueueEntries(t *testing.T) {
	a, _ := newBareArena(t)

	alice := connect(a, 1, "alice")
	bob := connect(a, 2, "bob")

	// A queued connection that died without being pruned.
	a.queue.Enqueue("conn-ghost")

	a.handleJoinQueue(alice.ID)
	assert.Empty(t, a.sessions, "pairing with a dead entry must not happen")
	assert.Equal(t, []string{alice.ID}, a.queue.Snapshot())

	a.handleJoinQueue(bob.ID)
	require.Equal(t, 1, len(a.sessions))
	_, ok := a.sessions[battle.RoomID{First: alice.ID, Second: bob.ID}]
	assert.True(t, ok)
}

func TestJoinQueue_IdempotentAndGuarded(t *testing.T) {
	a, _ := newBareArena(t)

	alice := connect(a, 1, "alice")
	a.handleJoinQueue(alice.ID)
	a.handleJoinQueue(alice.ID)
	assert.Equal(t, []string{alice.ID}, a.queue.Snapshot())

	// A participant of a live session must not re-enter the queue.
	bob := connect(a, 2, "bob")
	a.handleJoinQueue(bob.ID)
	require.Equal(t, 1, len(a.sessions))
	a.handleJoinQueue(alice.ID)
	assert.Equal(t, 0, a.queue.Len())
	assert.Equal(t, 1, len(a.sessions))
}

func TestLeaveQueue_ThenRejoinAccepted(t *testing.T) {
	a, _ := newBareArena(t)

	alice := connect(a, 1, "alice")
	drain(alice)

	a.handleJoinQueue(alice.ID)
	a.handleLeaveQueue(alice.ID)
	assert.Equal(t, 0, a.queue.Len())

	depth := ofType(drain(alice), types.EvtQueueDepthChanged)
	require.NotEmpty(t, depth)
	assert.Equal(t, 0, depth[len(depth)-1].Count)

	a.handleJoinQueue(alice.ID)
	assert.Equal(t, []string{alice.ID}, a.queue.Snapshot())
}

func TestFetchRosters_ActivatesAndRepliesToRequesterOnly(t *testing.T) {
	a, fs := newBareArena(t)
	fs.teams[1] = &store.Team{ID: 10, UserID: 1, TeamName: "reds", Rating: 1200}
	fs.teams[2] = &store.Team{ID: 20, UserID: 2, TeamName: "blues", Rating: 1100}

	alice, bob, s := pair(t, a)

	a.handleFetchRosters(FetchRosters{ConnID: alice.ID, Room: s.Room()})
	done, ok := recvInboxMsg(t, a, time.Second).(rostersFetched)
	require.True(t, ok)
	a.handleRostersFetched(done)

	// One loaded side is marked ready; active needs both.
	assert.Equal(t, battle.PhaseForming, s.Phase())
	assert.True(t, s.Ready(alice.ID))

	rosters := ofType(drain(alice), types.EvtRosters)
	require.Len(t, rosters, 1)
	assert.Equal(t, "reds", rosters[0].Ally.TeamName)
	assert.Equal(t, "blues", rosters[0].Enemy.TeamName)
	assert.Empty(t, drain(bob), "rosters must go to the requester only")

	a.handleFetchRosters(FetchRosters{ConnID: bob.ID, Room: s.Room()})
	done, ok = recvInboxMsg(t, a, time.Second).(rostersFetched)
	require.True(t, ok)
	a.handleRostersFetched(done)

	assert.Equal(t, battle.PhaseActive, s.Phase())
	bobRosters := ofType(drain(bob), types.EvtRosters)
	require.Len(t, bobRosters, 1)
	assert.Equal(t, "blues", bobRosters[0].Ally.TeamName)
	assert.Equal(t, "reds", bobRosters[0].Enemy.TeamName)
}

func TestFetchRosters_StoreFailureLeavesSessionForming(t *testing.T) {
	a, fs := newBareArena(t)
	fs.teamErr = errors.New("connection refused")

	alice, _, s := pair(t, a)

	a.handleFetchRosters(FetchRosters{ConnID: alice.ID, Room: s.Room()})
	done, ok := recvInboxMsg(t, a, time.Second).(rostersFetched)
	require.True(t, ok)
	a.handleRostersFetched(done)

	assert.Equal(t, battle.PhaseForming, s.Phase())
	errs := ofType(drain(alice), types.EvtError)
	require.Len(t, errs, 1)
}

func TestFetchRosters_StaleCompletionDropped(t *testing.T) {
	a, fs := newBareArena(t)
	fs.teams[1] = &store.Team{ID: 10, UserID: 1}
	fs.teams[2] = &store.Team{ID: 20, UserID: 2}

	alice, bob, s := pair(t, a)

	a.handleFetchRosters(FetchRosters{ConnID: alice.ID, Room: s.Room()})
	done, ok := recvInboxMsg(t, a, time.Second).(rostersFetched)
	require.True(t, ok)

	// The opponent vanishes while the load is in flight.
	a.handleDisconnect(bob.ID)
	drain(alice)

	a.handleRostersFetched(done)
	assert.Empty(t, ofType(drain(alice), types.EvtRosters))
}

func TestEndTurn_CounterStrictlyIncreasing(t *testing.T) {
	a, _ := newBareArena(t)

	alice, bob, s := pair(t, a)
	require.NoError(t, s.MarkReady(alice.ID))
	require.NoError(t, s.MarkReady(bob.ID))

	payload := json.RawMessage(`{"char":"vex"}`)
	a.handleEndTurn(EndTurn{ConnID: alice.ID, Room: s.Room(), Payload: payload, Turns: 0})
	a.handleEndTurn(EndTurn{ConnID: bob.ID, Room: s.Room(), Payload: payload, Turns: 1})
	a.handleEndTurn(EndTurn{ConnID: bob.ID, Room: s.Room(), Payload: payload, Turns: 2})

	for _, c := range []*Conn{alice, bob} {
		turns := ofType(drain(c), types.EvtTurnAdvanced)
		require.Len(t, turns, 3)
		for i, m := range turns {
			assert.Equal(t, i+1, m.Turn)
		}
	}
	assert.Equal(t, 3, s.Turn())
}

func TestEndTurn_IgnoredBeforeActive(t *testing.T) {
	a, _ := newBareArena(t)

	alice, bob, s := pair(t, a)
	a.handleEndTurn(EndTurn{ConnID: alice.ID, Room: s.Room()})

	assert.Equal(t, 0, s.Turn())
	assert.Empty(t, ofType(drain(bob), types.EvtTurnAdvanced))
}

func TestRelays_ScopedToRoomMembers(t *testing.T) {
	a, _ := newBareArena(t)

	alice, bob, s := pair(t, a)
	carol := connect(a, 3, "carol")
	drain(bob)
	drain(carol)

	note := json.RawMessage(`"alice hits for 7"`)
	a.relayToOpponent(alice.ID, s.Room(), types.ServerMessage{Type: types.EvtCombatLog, Message: note})

	logs := ofType(drain(bob), types.EvtCombatLog)
	require.Len(t, logs, 1)
	assert.Empty(t, ofType(drain(alice), types.EvtCombatLog), "sender is excluded")
	assert.Empty(t, ofType(drain(carol), types.EvtCombatLog))

	// An outsider poking a foreign battle room is silently dropped.
	a.relayToOpponent(carol.ID, s.Room(), types.ServerMessage{Type: types.EvtCombatLog, Message: note})
	assert.Empty(t, ofType(drain(alice), types.EvtCombatLog))
	assert.Empty(t, ofType(drain(bob), types.EvtCombatLog))
}

func TestDisconnect_ActiveBattle_ForfeitsAndNotifiesOnce(t *testing.T) {
	a, fs := newBareArena(t)

	alice, bob, s := pair(t, a)
	require.NoError(t, s.MarkReady(alice.ID))
	require.NoError(t, s.MarkReady(bob.ID))

	a.handleDisconnect(alice.ID)

	left := ofType(drain(bob), types.EvtOpponentLeft)
	require.Len(t, left, 1, "survivor gets exactly one opponent-left")
	assert.Empty(t, drain(alice), "nothing reaches the disconnected side")

	assert.Equal(t, uint(1), recvUint(t, fs.forfeits, time.Second))
	assert.Equal(t, uint(1), recvUint(t, fs.dummies, time.Second))

	assert.Empty(t, a.sessions)
	_, held := a.active[bob.ID]
	assert.False(t, held, "survivor no longer holds a session reference")
	assert.Equal(t, battle.PhaseEnded, s.Phase())
}

func TestDisconnect_FormingBattle_NoForfeit(t *testing.T) {
	a, fs := newBareArena(t)

	alice, bob, _ := pair(t, a)
	a.handleDisconnect(alice.ID)

	require.Len(t, ofType(drain(bob), types.EvtOpponentLeft), 1)
	expectNoUint(t, fs.forfeits, 100*time.Millisecond)
	recvUint(t, fs.dummies, time.Second)
}

// A side that loaded into the battle abandons it even if the opponent
// never finished loading; the reverse charges nothing.
func TestDisconnect_OnlyLoadedSideForfeits(t *testing.T) {
	a, fs := newBareArena(t)

	alice, _, s := pair(t, a)
	require.NoError(t, s.MarkReady(alice.ID))

	a.handleDisconnect(alice.ID)
	assert.Equal(t, uint(1), recvUint(t, fs.forfeits, time.Second))
}

func TestDisconnect_UnloadedSideNotCharged(t *testing.T) {
	a, fs := newBareArena(t)

	alice, bob, s := pair(t, a)
	require.NoError(t, s.MarkReady(alice.ID))

	a.handleDisconnect(bob.ID)
	require.Len(t, ofType(drain(alice), types.EvtOpponentLeft), 1)
	expectNoUint(t, fs.forfeits, 100*time.Millisecond)
}

func TestDisconnect_WhileQueued_Dequeues(t *testing.T) {
	a, fs := newBareArena(t)

	alice := connect(a, 1, "alice")
	bob := connect(a, 2, "bob")
	a.handleJoinQueue(alice.ID)
	drain(bob)

	a.handleDisconnect(alice.ID)
	assert.Equal(t, 0, a.queue.Len())

	depth := ofType(drain(bob), types.EvtQueueDepthChanged)
	require.NotEmpty(t, depth)
	assert.Equal(t, 0, depth[len(depth)-1].Count)
	recvUint(t, fs.dummies, time.Second)
}

func TestChat_CommonAndArenaChannels(t *testing.T) {
	a, _ := newBareArena(t)

	alice, bob, _ := pair(t, a)
	carol := connect(a, 3, "carol")
	drain(alice)
	drain(bob)
	drain(carol)

	msg := json.RawMessage(`{"sender":"carol","text":"hi"}`)
	a.handleChat(Chat{ConnID: carol.ID, Channel: types.ChannelCommon, Message: msg})
	assert.Len(t, ofType(drain(alice), types.EvtChat), 1)
	assert.Len(t, ofType(drain(bob), types.EvtChat), 1)
	assert.Len(t, ofType(drain(carol), types.EvtChat), 1)

	// Arena chat stays inside the sender's battle room.
	a.handleChat(Chat{ConnID: alice.ID, Channel: types.ChannelArena, Message: msg})
	assert.Len(t, ofType(drain(alice), types.EvtChat), 1)
	assert.Len(t, ofType(drain(bob), types.EvtChat), 1)
	assert.Empty(t, ofType(drain(carol), types.EvtChat))

	// Arena chat from someone without a battle goes nowhere.
	a.handleChat(Chat{ConnID: carol.ID, Channel: types.ChannelArena, Message: msg})
	assert.Empty(t, ofType(drain(alice), types.EvtChat))
	assert.Empty(t, ofType(drain(bob), types.EvtChat))
}

// TestArena_LoopDispatch exercises the running dispatcher end to end
// through its inbox, the way the websocket layer drives it.
func TestArena_LoopDispatch(t *testing.T) {
	fs := newFakeStore()
	a := New(context.Background(), zap.NewNop(), fs, rand.New(rand.NewSource(1)))

	alice := &Conn{ID: "conn-alice", Identity: Identity{UserID: 1, Username: "alice"}, Outbox: make(chan types.ServerMessage, 16)}
	bob := &Conn{ID: "conn-bob", Identity: Identity{UserID: 2, Username: "bob"}, Outbox: make(chan types.ServerMessage, 16)}

	a.Inbox() <- Connect{Conn: alice}
	a.Inbox() <- Connect{Conn: bob}
	a.Inbox() <- JoinQueue{ConnID: alice.ID}
	a.Inbox() <- JoinQueue{ConnID: bob.ID}

	reply := make(chan View, 1)
	a.Inbox() <- GetView{Reply: reply}

	select {
	case v := <-reply:
		assert.Equal(t, 2, v.Online)
		assert.Empty(t, v.Queue)
		assert.Equal(t, 1, v.Sessions)
		rid := battle.RoomID{First: alice.ID, Second: bob.ID}
		assert.Equal(t, battle.PhaseForming, v.Phases[rid])
		assert.Equal(t, 0, v.Turns[rid])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for view")
	}

	a.Inbox() <- Shutdown{}
}
