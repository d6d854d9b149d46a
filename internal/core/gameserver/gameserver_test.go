package gameserver

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
	"github.com/pokerroom/server/internal/core/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu     sync.Mutex
	events map[string][]domain.RoomEvent
}

func newFakeStore() *fakeStore { return &fakeStore{events: make(map[string][]domain.RoomEvent)} }

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

var _ ports.RoomEventStore = (*fakeStore)(nil)

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

func spawnRecorder(t *testing.T) (messages.PlayerAddr, *recorder) {
	t.Helper()
	rec := &recorder{}
	addr, stopper := actor.Run[messages.GamePlayerMessage](rec, actor.Options{MailboxCapacity: 8, Logger: zap.NewNop()})
	t.Cleanup(stopper.Stop)
	return addr, rec
}

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

// closeRooms shuts down every room the registry started, so that no room
// actor outlives the test that created it.
func closeRooms(gs *GameServer) {
	for _, addr := range gs.rooms {
		_ = addr.Send(context.Background(), messages.Close{})
	}
}

func spawnGameServer(t *testing.T, store ports.RoomEventStore) messages.GameServerAddr {
	t.Helper()
	gs := New(store, zap.NewNop(), Config{})
	addr, stopper := actor.Run[messages.GameServerMessage](gs, actor.Options{MailboxCapacity: 16, Logger: zap.NewNop()})
	t.Cleanup(func() {
		stopper.Stop()
		<-stopper.Done()
		closeRooms(gs)
	})
	return addr
}

func TestCreatePlacesCreatorAndPersists(t *testing.T) {
	store := newFakeStore()
	gsAddr := spawnGameServer(t, store)

	creatorAddr, creatorRec := spawnRecorder(t)
	require.NoError(t, gsAddr.Send(context.Background(), messages.Create{
		Deck:       "fibonacci",
		PlayerAddr: creatorAddr,
		Player:     messages.PlayerInfo{ID: "alice", Voter: true},
	}))

	eventually(t, func() bool { return len(creatorRec.snapshot()) >= 1 })
	welcome, ok := creatorRec.snapshot()[0].(messages.Welcome)
	require.True(t, ok)
	require.NotEmpty(t, welcome.RoomID)

	events, _ := store.Load(context.Background(), welcome.RoomID)
	require.Len(t, events, 2)
}

func TestJoinUnknownRoomRejects(t *testing.T) {
	store := newFakeStore()
	gsAddr := spawnGameServer(t, store)

	playerAddr, playerRec := spawnRecorder(t)
	require.NoError(t, gsAddr.Send(context.Background(), messages.Join{
		RoomID:     "does-not-exist",
		PlayerAddr: playerAddr,
		Player:     messages.PlayerInfo{ID: "bob", Voter: true},
	}))

	eventually(t, func() bool { return len(playerRec.snapshot()) >= 1 })
	rejected, ok := playerRec.snapshot()[0].(messages.RejectedMsg)
	require.True(t, ok)
	require.Equal(t, messages.RoomDoesNotExist, rejected.Reason)
}

func TestJoinRestoresRoomFromStore(t *testing.T) {
	store := newFakeStore()
	_ = store.Append(context.Background(), "room-persisted", domain.Created("fibonacci"))

	gsAddr := spawnGameServer(t, store)
	playerAddr, playerRec := spawnRecorder(t)
	require.NoError(t, gsAddr.Send(context.Background(), messages.Join{
		RoomID:     "room-persisted",
		PlayerAddr: playerAddr,
		Player:     messages.PlayerInfo{ID: "carol", Voter: true},
	}))

	eventually(t, func() bool { return len(playerRec.snapshot()) >= 1 })
	welcome, ok := playerRec.snapshot()[0].(messages.Welcome)
	require.True(t, ok)
	require.Equal(t, "room-persisted", welcome.RoomID)
	require.Len(t, welcome.Players, 1)
}

func TestJoinDropsStaleResidentEntryAndRestoresFromStore(t *testing.T) {
	store := newFakeStore()
	gs := New(store, zap.NewNop(), Config{})
	t.Cleanup(func() { closeRooms(gs) })

	creatorAddr, _ := spawnRecorder(t)
	gs.HandleMessage(nil, messages.Create{
		Deck:       "fibonacci",
		PlayerAddr: creatorAddr,
		Player:     messages.PlayerInfo{ID: "alice", Voter: true},
	})
	require.Len(t, gs.rooms, 1)

	var roomID string
	var roomAddr messages.RoomAddr
	for id, addr := range gs.rooms {
		roomID, roomAddr = id, addr
	}

	// Kill the resident room out from under the registry, simulating it
	// terminating (idle close, force-quit) between a lookup and this one.
	require.NoError(t, roomAddr.Send(context.Background(), messages.Close{}))
	eventually(t, func() bool { return !roomAddr.Alive() })

	joinerAddr, joinerRec := spawnRecorder(t)
	gs.HandleMessage(nil, messages.Join{
		RoomID:     roomID,
		PlayerAddr: joinerAddr,
		Player:     messages.PlayerInfo{ID: "carol", Voter: true},
	})

	eventually(t, func() bool { return len(joinerRec.snapshot()) >= 1 })
	welcome, ok := joinerRec.snapshot()[0].(messages.Welcome)
	require.True(t, ok)
	require.Equal(t, roomID, welcome.RoomID)
	require.Len(t, welcome.Players, 1, "restore never replays alice's old membership")

	require.NotEqual(t, roomAddr, gs.rooms[roomID], "the stale entry must be replaced, not reused")
	require.True(t, gs.rooms[roomID].Alive())
}

func TestCreateExternalRepliesWithRoomID(t *testing.T) {
	store := newFakeStore()
	gsAddr := spawnGameServer(t, store)

	reply := make(chan string, 1)
	require.NoError(t, gsAddr.Send(context.Background(), messages.CreateExternal{Deck: "fibonacci", Reply: reply}))

	select {
	case id := <-reply:
		require.NotEmpty(t, id)
	case <-time.After(time.Second):
		t.Fatal("never received room id")
	}
}
