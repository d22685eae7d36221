package room

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/M-Faheem-Khan/liveblocks/internal/transport/faketransport"
	"github.com/M-Faheem-Khan/liveblocks/internal/wire"
)

func testConfig(socket *faketransport.Socket, fetcher *faketransport.Fetcher) Config {
	return Config{
		RoomID:                  "r1",
		PublicAPIKey:            "pk_test",
		PublicAuthorizeEndpoint: "https://example.invalid/authorize",
		Throttle:                80 * time.Millisecond,
		Dialer:                  faketransport.NewDialer(socket),
		Fetcher:                 fetcher,
	}
}

func waitForState(t *testing.T, r *Room, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if r.Status() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %v, currently %v", want, r.Status())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func pushRoomState(t *testing.T, socket *faketransport.Socket) {
	t.Helper()
	require.NoError(t, socket.Push(map[string]any{
		"type":  int(wire.ServerRoomState),
		"users": []any{},
	}))
}

func pushEmptyRootStorage(t *testing.T, socket *faketransport.Socket) {
	t.Helper()
	require.NoError(t, socket.Push(map[string]any{
		"type": int(wire.ServerInitialStorageState),
		"items": []any{
			map[string]any{"id": "0:0", "type": "object", "data": map[string]any{}},
		},
	}))
}

// bootstrapToOpen drives a freshly started room through the handshake
// (ROOM_STATE, then an empty INITIAL_STORAGE_STATE) up to Open.
func bootstrapToOpen(t *testing.T, r *Room, socket *faketransport.Socket) {
	t.Helper()
	pushRoomState(t, socket)
	waitForState(t, r, Open)
	pushEmptyRootStorage(t, socket)
	require.Eventually(t, func() bool { return r.Root().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func lastStorageOps(t *testing.T, frames [][]byte) []wire.Op {
	t.Helper()
	for i := len(frames) - 1; i >= 0; i-- {
		var env struct {
			Ops []wire.Op `json:"ops"`
		}
		if err := json.Unmarshal(frames[i], &env); err == nil && env.Ops != nil {
			return env.Ops
		}
	}
	return nil
}

func countStorageFrames(t *testing.T, frames [][]byte) int {
	t.Helper()
	n := 0
	for _, f := range frames {
		var env struct {
			Ops []wire.Op `json:"ops"`
		}
		if err := json.Unmarshal(f, &env); err == nil && env.Ops != nil {
			n++
		}
	}
	return n
}

// S1: createClient({publicApiKey}), enter("r1"), server sends ROOM_STATE
// then INITIAL_STORAGE_STATE. Expect status open, root exists and empty.
func TestScenarioS1InitialSyncOpensRoom(t *testing.T) {
	socket := faketransport.NewSocket(4)
	fetcher := faketransport.NewFetcher(200, map[string]string{"token": "test-token"})

	r := New(testConfig(socket, fetcher))
	r.Start(true)
	defer r.Leave()

	pushRoomState(t, socket)
	waitForState(t, r, Open)

	pushEmptyRootStorage(t, socket)
	require.Eventually(t, func() bool { return r.Root() != nil && r.Root().Len() == 0 }, time.Second, 5*time.Millisecond)
}

// S2: A's locally committed op, replayed into a second room as a remote
// frame (as the relay would deliver it to peer B), must be observed there.
func TestScenarioS2RemoteOpObservedByPeer(t *testing.T) {
	socketA := faketransport.NewSocket(4)
	a := New(testConfig(socketA, faketransport.NewFetcher(200, map[string]string{"token": "token-a"})))
	a.Start(true)
	defer a.Leave()
	bootstrapToOpen(t, a, socketA)

	before := len(socketA.Sent)
	_, err := a.Root().Set("x", 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(socketA.Sent) > before }, time.Second, 5*time.Millisecond)

	ops := lastStorageOps(t, socketA.Sent[before:])
	require.Len(t, ops, 1)
	ops[0].Actor = 99 // as if originated by a different actor, from B's view

	socketB := faketransport.NewSocket(4)
	b := New(testConfig(socketB, faketransport.NewFetcher(200, map[string]string{"token": "token-b"})))
	b.Start(true)
	defer b.Leave()
	bootstrapToOpen(t, b, socketB)

	require.NoError(t, socketB.Push(map[string]any{
		"type": int(wire.ServerUpdateStorage),
		"ops":  ops,
	}))

	require.Eventually(t, func() bool {
		v, ok := b.Root().Get("x")
		return ok && v == float64(1)
	}, time.Second, 5*time.Millisecond)
}

// S3: setting x=1 then x=2 within one throttle window yields a single
// outbound UPDATE_STORAGE frame containing both ops in order.
func TestScenarioS3ThrottledBatchSingleFrame(t *testing.T) {
	socket := faketransport.NewSocket(4)
	r := New(testConfig(socket, faketransport.NewFetcher(200, map[string]string{"token": "t"})))
	r.Start(true)
	defer r.Leave()
	bootstrapToOpen(t, r, socket)

	before := len(socket.Sent)
	_, err := r.Root().Set("x", 1)
	require.NoError(t, err)
	_, err = r.Root().Set("x", 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return countStorageFrames(t, socket.Sent[before:]) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond) // long enough for a second flush to have fired if the batching were broken

	require.Equal(t, 1, countStorageFrames(t, socket.Sent[before:]))
	ops := lastStorageOps(t, socket.Sent[before:])
	require.Len(t, ops, 2)
}

// S4: A sets x=1, calls Undo. Local state loses x; a single inverse op is
// emitted to the server.
func TestScenarioS4UndoEmitsInverse(t *testing.T) {
	socket := faketransport.NewSocket(4)
	r := New(testConfig(socket, faketransport.NewFetcher(200, map[string]string{"token": "t"})))
	r.Start(true)
	defer r.Leave()
	bootstrapToOpen(t, r, socket)

	_, err := r.Root().Set("x", 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return countStorageFrames(t, socket.Sent) >= 1 }, time.Second, 5*time.Millisecond)
	before := len(socket.Sent)

	require.NoError(t, r.Undo())
	_, ok := r.Root().Get("x")
	require.False(t, ok)

	require.Eventually(t, func() bool { return countStorageFrames(t, socket.Sent[before:]) == 1 }, time.Second, 5*time.Millisecond)
	ops := lastStorageOps(t, socket.Sent[before:])
	require.Len(t, ops, 1)
	require.Equal(t, wire.OpUpdateObject, ops[0].Kind)
}

// S6: throttle out of range panics inside the coalescer room.New wires up —
// liveblocks.NewClient is the layer that turns this into a descriptive
// synchronous error before a Room is ever constructed.
func TestScenarioS6InvalidThrottlePanics(t *testing.T) {
	cfg := testConfig(faketransport.NewSocket(1), faketransport.NewFetcher(200, map[string]string{"token": "t"}))
	cfg.Throttle = 50 * time.Millisecond
	require.Panics(t, func() { New(cfg) })
}

// A USER_JOINED frame naming a peer's actor id must cause the next
// outbound presence frame to address that peer specifically, rather than
// broadcasting to the whole room (spec.md §4.2's targetActor diffusion).
func TestUserJoinedTargetsResyncAtTheJoiningPeer(t *testing.T) {
	socket := faketransport.NewSocket(4)
	r := New(testConfig(socket, faketransport.NewFetcher(200, map[string]string{"token": "t"})))
	r.Start(true)
	defer r.Leave()
	bootstrapToOpen(t, r, socket)

	before := len(socket.Sent)
	require.NoError(t, socket.Push(map[string]any{
		"type":  int(wire.ServerUserJoined),
		"actor": 7,
		"info":  map[string]any{},
	}))

	require.Eventually(t, func() bool {
		for _, f := range socket.Sent[before:] {
			var env struct {
				TargetActor *int `json:"targetActor"`
			}
			if err := json.Unmarshal(f, &env); err == nil && env.TargetActor != nil {
				return *env.TargetActor == 7
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestLeaveThenEnterYieldsFreshState(t *testing.T) {
	socket1 := faketransport.NewSocket(4)
	r1 := New(testConfig(socket1, faketransport.NewFetcher(200, map[string]string{"token": "t"})))
	r1.Start(true)
	bootstrapToOpen(t, r1, socket1)
	_, err := r1.Root().Set("x", 1)
	require.NoError(t, err)
	require.NoError(t, r1.Leave())

	socket2 := faketransport.NewSocket(4)
	r2 := New(testConfig(socket2, faketransport.NewFetcher(200, map[string]string{"token": "t"})))
	r2.Start(true)
	defer r2.Leave()
	bootstrapToOpen(t, r2, socket2)

	_, ok := r2.Root().Get("x")
	require.False(t, ok, "a fresh room must not carry over the previous instance's state")
}
