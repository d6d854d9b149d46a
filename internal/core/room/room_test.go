package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/pokerroom/server/internal/actor"
	"github.com/pokerroom/server/internal/core/domain"
	"github.com/pokerroom/server/internal/core/messages"
)

// recorder is a fake Player actor: it appends every message it receives so
// tests can assert on what the Room broadcast, in order.
type recorder struct {
	mu       sync.Mutex
	received []messages.GamePlayerMessage
}

func (r *recorder) Setup(*actor.Context[messages.GamePlayerMessage])    {}
func (r *recorder) TearDown(*actor.Context[messages.GamePlayerMessage]) {}

func (r *recorder) HandleMessage(_ *actor.Context[messages.GamePlayerMessage], msg messages.GamePlayerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, msg)
}

func (r *recorder) snapshot() []messages.GamePlayerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messages.GamePlayerMessage, len(r.received))
	copy(out, r.received)
	return out
}

func spawnRecorder(t *testing.T) (messages.PlayerAddr, *recorder, actor.Stopper) {
	t.Helper()
	rec := &recorder{}
	addr, stopper := actor.Run[messages.GamePlayerMessage](rec, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)
	return addr, rec, stopper
}

// fakeStore is an in-memory RoomEventStore fake.
type fakeStore struct {
	mu     sync.Mutex
	events map[string][]domain.RoomEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string][]domain.RoomEvent)}
}

func (f *fakeStore) Append(_ context.Context, roomID string, evt domain.RoomEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[roomID] = append(f.events[roomID], evt)
	return nil
}

func (f *fakeStore) Load(_ context.Context, roomID string) ([]domain.RoomEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RoomEvent, len(f.events[roomID]))
	copy(out, f.events[roomID])
	return out, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }

func voter(id string) messages.PlayerInfo { return messages.PlayerInfo{ID: id, Voter: true} }

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func lastGameState(t *testing.T, rec *recorder) domain.GameState {
	t.Helper()
	msgs := rec.snapshot()
	for i := len(msgs) - 1; i >= 0; i-- {
		if gs, ok := msgs[i].(messages.GameStateChangedMsg); ok {
			return gs.State
		}
	}
	t.Fatalf("no GameStateChangedMsg observed")
	return domain.GameState{}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewWithCreatorSendsWelcome(t *testing.T) {
	addr, rec, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-1", "fibonacci", addr, voter("alice"), store, zap.NewNop(), Config{})
	_, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	eventually(t, func() bool { return len(rec.snapshot()) >= 1 })
	welcome, ok := rec.snapshot()[0].(messages.Welcome)
	require.True(t, ok)
	require.Equal(t, "room-1", welcome.RoomID)
	require.Len(t, welcome.Players, 1)

	events, _ := store.Load(context.Background(), "room-1")
	require.Len(t, events, 2)
	require.Equal(t, domain.EventCreated, events[0].Kind)
	require.Equal(t, domain.EventPlayerJoined, events[1].Kind)
}

func TestRevealOnAllVoted(t *testing.T) {
	aAddr, aRec, _ := spawnRecorder(t)
	bAddr, bRec, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-2", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: bAddr, Info: voter("bob")}))
	eventually(t, func() bool { return len(bRec.snapshot()) >= 1 })

	one := "1"
	two := "2"
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "alice", Vote: &one}))
	eventually(t, func() bool { return len(aRec.snapshot()) >= 3 })
	require.False(t, lastGameState(t, aRec).Open, "round must stay closed until every voter has voted")

	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "bob", Vote: &two}))
	eventually(t, func() bool { return lastGameState(t, bRec).Open })

	state := lastGameState(t, aRec)
	require.True(t, state.Open)
	require.Equal(t, &one, state.Votes["alice"])
	require.Equal(t, &two, state.Votes["bob"])
}

func TestNonVoterDoesNotGateReveal(t *testing.T) {
	aAddr, aRec, _ := spawnRecorder(t)
	bAddr, _, _ := spawnRecorder(t)
	cAddr, _, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-3", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: bAddr, Info: voter("bob")}))
	observer := messages.PlayerInfo{ID: "carol", Voter: false}
	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: cAddr, Info: observer}))

	one := "1"
	two := "2"
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "alice", Vote: &one}))
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "bob", Vote: &two}))

	eventually(t, func() bool { return lastGameState(t, aRec).Open })
	state := lastGameState(t, aRec)
	_, hasObserverVote := state.Votes["carol"]
	require.False(t, hasObserverVote, "non-voters never appear in the votes map")
}

func TestRevealOnVoterConversion(t *testing.T) {
	aAddr, aRec, _ := spawnRecorder(t)
	bAddr, _, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-11", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	observer := messages.PlayerInfo{ID: "bob", Voter: false}
	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: bAddr, Info: observer}))

	one := "1"
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "alice", Vote: &one}))
	time.Sleep(20 * time.Millisecond)
	require.False(t, lastGameState(t, aRec).Open, "round stays closed while bob is still an observer")

	// Bob converts to a voter without having cast a vote yet: this must not
	// reveal, since he still hasn't voted.
	require.NoError(t, roomAddr.Send(context.Background(), messages.UpdatePlayer{PlayerID: "bob", Voter: true, Name: nil}))
	time.Sleep(20 * time.Millisecond)
	require.False(t, lastGameState(t, aRec).Open, "converting to voter does not itself reveal")

	two := "2"
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "bob", Vote: &two}))
	eventually(t, func() bool { return lastGameState(t, aRec).Open })

	state := lastGameState(t, aRec)
	require.Equal(t, &one, state.Votes["alice"])
	require.Equal(t, &two, state.Votes["bob"])
}

func TestRevealTriggeredByUpdatePlayerDroppingOutAVoter(t *testing.T) {
	aAddr, aRec, _ := spawnRecorder(t)
	bAddr, _, _ := spawnRecorder(t)
	cAddr, _, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-12", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: bAddr, Info: voter("bob")}))
	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: cAddr, Info: voter("carol")}))

	one := "1"
	three := "3"
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "alice", Vote: &one}))
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "carol", Vote: &three}))
	time.Sleep(20 * time.Millisecond)
	require.False(t, lastGameState(t, aRec).Open, "round stays closed while bob, a voter, hasn't voted")

	// Bob converts to an observer without ever voting. Alice and carol are
	// now the only voters and both have voted, so this update itself must
	// reveal.
	require.NoError(t, roomAddr.Send(context.Background(), messages.UpdatePlayer{PlayerID: "bob", Voter: false, Name: nil}))
	eventually(t, func() bool { return lastGameState(t, aRec).Open })

	state := lastGameState(t, aRec)
	require.Equal(t, &one, state.Votes["alice"])
	_, bobStillVoting := state.Votes["bob"]
	require.False(t, bobStillVoting, "bob is no longer a voter and must not appear in votes")
}

func TestVoteIgnoredAfterForceOpen(t *testing.T) {
	aAddr, aRec, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-4", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.ForceOpen{}))
	eventually(t, func() bool { return lastGameState(t, aRec).Open })

	five := "5"
	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerVoted{PlayerID: "alice", Vote: &five}))
	time.Sleep(20 * time.Millisecond)

	state := lastGameState(t, aRec)
	require.Nil(t, state.Votes["alice"], "votes cast after force-open must be discarded")
}

func TestRestartClearsVotesAndCloses(t *testing.T) {
	aAddr, aRec, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-5", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.ForceOpen{}))
	eventually(t, func() bool { return lastGameState(t, aRec).Open })

	require.NoError(t, roomAddr.Send(context.Background(), messages.Restart{}))
	eventually(t, func() bool { return !lastGameState(t, aRec).Open })
}

func TestRestoreRejectsLogMissingLeadingCreated(t *testing.T) {
	_, ok := Restore("room-6", nil, newFakeStore(), zap.NewNop(), Config{})
	require.False(t, ok)

	bad := []domain.RoomEvent{domain.PlayerJoinedEvent("alice")}
	_, ok = Restore("room-6", bad, newFakeStore(), zap.NewNop(), Config{})
	require.False(t, ok)
}

func TestRestoreRejectsDuplicateCreated(t *testing.T) {
	events := []domain.RoomEvent{domain.Created("fibonacci"), domain.Created("fibonacci")}
	_, ok := Restore("room-7", events, newFakeStore(), zap.NewNop(), Config{})
	require.False(t, ok)
}

func TestRestoreProducesEmptyRoom(t *testing.T) {
	events := []domain.RoomEvent{domain.Created("fibonacci"), domain.PlayerJoinedEvent("alice")}
	r, ok := Restore("room-8", events, newFakeStore(), zap.NewNop(), Config{})
	require.True(t, ok)
	require.Equal(t, "fibonacci", r.deck)
	require.Empty(t, r.players, "restore never replays membership")
}

func TestIdleRoomClosesAfterGrace(t *testing.T) {
	aAddr, _, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-9", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{IdleGrace: 20 * time.Millisecond})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerLeft{PlayerID: "alice"}))

	select {
	case <-stopper.Done():
	case <-time.After(time.Second):
		t.Fatal("room never closed after idle grace elapsed")
	}
}

func TestRejoinCancelsIdleClose(t *testing.T) {
	aAddr, _, _ := spawnRecorder(t)
	bAddr, _, _ := spawnRecorder(t)
	store := newFakeStore()

	r := NewWithCreator("room-10", "fibonacci", aAddr, voter("alice"), store, zap.NewNop(), Config{IdleGrace: 30 * time.Millisecond})
	roomAddr, stopper := actor.Run[messages.RoomMessage](r, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)

	require.NoError(t, roomAddr.Send(context.Background(), messages.PlayerLeft{PlayerID: "alice"}))
	require.NoError(t, roomAddr.Send(context.Background(), messages.JoinRequest{PlayerAddr: bAddr, Info: voter("bob")}))

	select {
	case <-stopper.Done():
		t.Fatal("room closed despite a rejoin before the idle grace elapsed")
	case <-time.After(80 * time.Millisecond):
	}
}
