package presence

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDirectory(t *testing.T) (*Directory, *event.Bus) {
	t.Helper()
	logger := zap.NewNop()
	bus := event.NewBus(logger)
	t.Cleanup(bus.Close)
	return NewDirectory(bus, logger), bus
}

// transitionRecorder collects presence events thread-safely.
type transitionRecorder struct {
	mu     sync.Mutex
	events []event.PresenceEvent
}

func (r *transitionRecorder) record(ev event.PresenceEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *transitionRecorder) snapshot() []event.PresenceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.PresenceEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *transitionRecorder) waitFor(t *testing.T, n int) []event.PresenceEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	evs := r.snapshot()
	require.GreaterOrEqual(t, len(evs), n, "timed out waiting for %d events", n)
	return evs
}

func TestAddOrUpdate_NewCharacterComesOnline(t *testing.T) {
	dir, bus := newTestDirectory(t)
	rec := &transitionRecorder{}
	bus.SubscribePresence("test", rec.record)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)

	evs := rec.waitFor(t, 1)
	assert.True(t, evs[0].Online)
	assert.Equal(t, "c1", evs[0].Player.CharacterID)
	assert.Equal(t, "gs-1", evs[0].Player.ServerID)

	p, ok := dir.GetByName("alice") // lookup is case-insensitive
	require.True(t, ok)
	assert.Equal(t, "Alice", p.CharacterName)
	assert.Equal(t, 1, dir.Count())
}

func TestAddOrUpdate_RefreshDoesNotRefire(t *testing.T) {
	dir, bus := newTestDirectory(t)
	rec := &transitionRecorder{}
	bus.SubscribePresence("test", rec.record)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)

	rec.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "refresh must not re-fire came online")
}

func TestAddOrUpdate_ServerMigrationIsSilent(t *testing.T) {
	dir, bus := newTestDirectory(t)
	rec := &transitionRecorder{}
	bus.SubscribePresence("test", rec.record)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-2", "c1", "Alice", gate.SideAresden)

	rec.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)

	p, ok := dir.GetByName("Alice")
	require.True(t, ok)
	assert.Equal(t, "gs-2", p.ServerID)

	// The old server must no longer be able to evict the migrated entry.
	dir.UnregisterServer("gs-1")
	_, ok = dir.GetByName("Alice")
	assert.True(t, ok, "migrated entry survived stale server unregister")
}

func TestRemove_StaleServerIDIsNoOp(t *testing.T) {
	dir, _ := newTestDirectory(t)
	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)

	dir.Remove("gs-2", "c1", "Alice")
	assert.True(t, dir.IsOnline("c1"), "removal with stale server id must be ignored")

	dir.Remove("gs-1", "c1", "Alice")
	assert.False(t, dir.IsOnline("c1"))
}

func TestUnregisterServer_RemovesOnlyItsCharacters(t *testing.T) {
	dir, bus := newTestDirectory(t)
	rec := &transitionRecorder{}
	bus.SubscribePresence("test", rec.record)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "c2", "Bob", gate.SideAresden)
	dir.AddOrUpdate("gs-2", "c3", "Carol", gate.SideElvine)
	rec.waitFor(t, 3)

	dir.UnregisterServer("gs-1")

	evs := rec.waitFor(t, 5)
	var offline []string
	for _, ev := range evs {
		if !ev.Online {
			offline = append(offline, ev.Player.CharacterID)
		}
	}
	sort.Strings(offline)
	assert.Equal(t, []string{"c1", "c2"}, offline, "exactly one offline event per removed character")

	assert.False(t, dir.IsOnline("c1"))
	assert.False(t, dir.IsOnline("c2"))
	assert.True(t, dir.IsOnline("c3"), "other server's characters unaffected")
}

func TestReplaceForServer_FiresSymmetricDifference(t *testing.T) {
	dir, bus := newTestDirectory(t)
	rec := &transitionRecorder{}
	bus.SubscribePresence("test", rec.record)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "c2", "Bob", gate.SideAresden)
	rec.waitFor(t, 2)

	dir.ReplaceForServer("gs-1", []gate.OnlinePlayer{
		{CharacterID: "c2", CharacterName: "Bob", Side: gate.SideAresden},
		{CharacterID: "c3", CharacterName: "Carol", Side: gate.SideAresden},
	})

	evs := rec.waitFor(t, 4)
	var came, gone []string
	for _, ev := range evs[2:] {
		if ev.Online {
			came = append(came, ev.Player.CharacterID)
		} else {
			gone = append(gone, ev.Player.CharacterID)
		}
	}
	assert.Equal(t, []string{"c3"}, came)
	assert.Equal(t, []string{"c1"}, gone)

	assert.False(t, dir.IsOnline("c1"))
	assert.True(t, dir.IsOnline("c2"))
	assert.True(t, dir.IsOnline("c3"))
}

// GetAll must always equal the set of characters whose most recent operation
// was an add/update not yet followed by a matching remove.
func TestSnapshotConsistencyAcrossOperations(t *testing.T) {
	dir, _ := newTestDirectory(t)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "c2", "Bob", gate.SideAresden)
	dir.AddOrUpdate("gs-2", "c3", "Carol", gate.SideElvine)
	dir.Remove("gs-1", "c2", "Bob")
	dir.ReplaceForServer("gs-2", []gate.OnlinePlayer{
		{CharacterID: "c4", CharacterName: "Dave", Side: gate.SideElvine},
	})
	dir.AddOrUpdate("gs-1", "c2", "Bob", gate.SideAresden)

	var names []string
	for _, p := range dir.GetAll() {
		names = append(names, p.CharacterName)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"Alice", "Bob", "Dave"}, names)
}

func TestGetByIDsAndGetByServer(t *testing.T) {
	dir, _ := newTestDirectory(t)
	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "c2", "Bob", gate.SideAresden)
	dir.AddOrUpdate("gs-2", "c3", "Carol", gate.SideElvine)

	byIDs := dir.GetByIDs([]string{"c1", "c3", "c9"})
	assert.Len(t, byIDs, 2)

	byServer := dir.GetByServer("gs-1")
	assert.Len(t, byServer, 2)
	for _, p := range byServer {
		assert.Equal(t, "gs-1", p.ServerID)
	}
}

func TestConcurrentRegistersAndRemoves(t *testing.T) {
	dir, _ := newTestDirectory(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			names := []string{"Alice", "Bob", "Carol", "Dave"}
			for j := 0; j < 50; j++ {
				name := names[(n+j)%len(names)]
				dir.AddOrUpdate("gs-1", name, name, gate.SideAresden)
				if j%3 == 0 {
					dir.Remove("gs-1", name, name)
				}
			}
		}(i)
	}
	wg.Wait()

	// Whatever interleaving happened, the snapshot must be internally
	// consistent: every listed entry resolvable by name.
	for _, p := range dir.GetAll() {
		got, ok := dir.GetByName(p.CharacterName)
		require.True(t, ok)
		assert.Equal(t, p.CharacterID, got.CharacterID)
	}
}

func TestReplaceForServer_MigrationSurvivesStaleUnregister(t *testing.T) {
	dir, bus := newTestDirectory(t)
	rec := &transitionRecorder{}
	bus.SubscribePresence("test", rec.record)

	dir.AddOrUpdate("gs-1", "c1", "Alice", gate.SideAresden)

	// Full resync from another server claims the same character: same silent
	// migration as the AddOrUpdate path, no offline/online flap.
	dir.ReplaceForServer("gs-2", []gate.OnlinePlayer{
		{CharacterID: "c1", CharacterName: "Alice", Side: gate.SideAresden},
	})

	rec.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "migration via fullsync must not re-fire transitions")

	p, ok := dir.GetByName("Alice")
	require.True(t, ok)
	assert.Equal(t, "gs-2", p.ServerID)

	// A late unregister from the vacated server must not evict the entry.
	dir.UnregisterServer("gs-1")
	p, ok = dir.GetByName("Alice")
	require.True(t, ok, "migrated entry survived stale server unregister")
	assert.Equal(t, "gs-2", p.ServerID)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "stale unregister must not fire went offline")
	assert.Equal(t, 1, dir.Count())
}
