package party

import (
	"sync"
	"testing"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/event"
	"github.com/helrift/gate/gate/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSender records broadcasts instead of touching connections.
type fakeSender struct {
	mu    sync.Mutex
	calls []fakeBroadcast
}

type fakeBroadcast struct {
	recipients []string
	msgType    string
	payload    interface{}
}

func (f *fakeSender) Broadcast(recipients []string, msgType string, build func(string, []string) interface{}) {
	// Collapse to a single pseudo-server so tests see one payload covering
	// all recipients.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeBroadcast{
		recipients: recipients,
		msgType:    msgType,
		payload:    build("gs-test", recipients),
	})
}

func (f *fakeSender) BroadcastPayload(recipients []string, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeBroadcast{recipients: recipients, msgType: msgType, payload: payload})
}

func (f *fakeSender) BroadcastAll(msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeBroadcast{msgType: msgType, payload: payload})
}

func (f *fakeSender) all() []fakeBroadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeBroadcast, len(f.calls))
	copy(out, f.calls)
	return out
}

func setupSplitter(t *testing.T, remainderToEarner bool) (*Coordinator, *presence.Directory, *fakeSender, *Splitter) {
	t.Helper()
	logger := zap.NewNop()
	bus := event.NewBus(logger)
	t.Cleanup(bus.Close)
	dir := presence.NewDirectory(bus, logger)
	coord := NewCoordinator(&stubFriends{}, bus, logger)
	sender := &fakeSender{}
	sp := NewSplitter(coord, dir, sender, 60.0, remainderToEarner, logger)
	return coord, dir, sender, sp
}

func deltasByCharacter(t *testing.T, b fakeBroadcast) map[string]int64 {
	t.Helper()
	payload, ok := b.payload.(experiencePayload)
	require.True(t, ok)
	out := map[string]int64{}
	for _, d := range payload.Deltas {
		out[d.CharacterID] = d.BaseXPShare
	}
	return out
}

func TestProcessBatch_RemainderGoesToOnlineEarner(t *testing.T) {
	coord, dir, sender, sp := setupSplitter(t, true)

	p, err := coord.Create("A", "aa", "Alice", "Raiders", gate.SideAresden, gate.VisibilityPublic)
	require.NoError(t, err)
	_, err = coord.Join(p.ID, "B", "ab", "Bob")
	require.NoError(t, err)
	_, err = coord.Join(p.ID, "C", "ac", "Carol")
	require.NoError(t, err)

	dir.AddOrUpdate("gs-1", "A", "Alice", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "B", "Bob", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "C", "Carol", gate.SideAresden)

	sp.ProcessBatch([]XPEvent{{
		EventID:           "ev1",
		PartyID:           p.ID,
		EarnerCharacterID: "A",
		BaseXP:            10,
	}})

	calls := sender.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "party.experience", calls[0].msgType)

	deltas := deltasByCharacter(t, calls[0])
	assert.Equal(t, int64(4), deltas["A"], "share 3 plus remainder 1")
	assert.Equal(t, int64(3), deltas["B"])
	assert.Equal(t, int64(3), deltas["C"])

	var sum int64
	for _, v := range deltas {
		sum += v
	}
	assert.Equal(t, int64(10), sum)
}

func TestProcessBatch_OfflineEarnerDropsRemainder(t *testing.T) {
	coord, dir, sender, sp := setupSplitter(t, true)

	p, err := coord.Create("A", "aa", "Alice", "Raiders", gate.SideAresden, gate.VisibilityPublic)
	require.NoError(t, err)
	_, err = coord.Join(p.ID, "B", "ab", "Bob")
	require.NoError(t, err)
	_, err = coord.Join(p.ID, "C", "ac", "Carol")
	require.NoError(t, err)

	// Earner A stays offline.
	dir.AddOrUpdate("gs-1", "B", "Bob", gate.SideAresden)
	dir.AddOrUpdate("gs-1", "C", "Carol", gate.SideAresden)

	sp.ProcessBatch([]XPEvent{{
		EventID:           "ev1",
		PartyID:           p.ID,
		EarnerCharacterID: "A",
		BaseXP:            10,
	}})

	calls := sender.all()
	require.Len(t, calls, 1)
	deltas := deltasByCharacter(t, calls[0])
	assert.NotContains(t, deltas, "A", "offline members are excluded entirely")
	assert.Equal(t, int64(5), deltas["B"])
	assert.Equal(t, int64(5), deltas["C"])
}

func TestProcessBatch_DropsUnknownPartyAndAllOffline(t *testing.T) {
	coord, _, sender, sp := setupSplitter(t, true)

	p, err := coord.Create("A", "aa", "Alice", "Raiders", gate.SideAresden, gate.VisibilityPublic)
	require.NoError(t, err)

	sp.ProcessBatch([]XPEvent{
		{EventID: "ev1", PartyID: "missing", EarnerCharacterID: "A", BaseXP: 10},
		{EventID: "ev2", PartyID: p.ID, EarnerCharacterID: "A", BaseXP: 10}, // nobody online
		{EventID: "ev3", PartyID: p.ID, EarnerCharacterID: "A", BaseXP: 0},  // nothing to split
	})

	assert.Empty(t, sender.all(), "unsplittable events are dropped silently")
}

func TestProcessBatch_ShareRangeAndSourceForwarded(t *testing.T) {
	coord, dir, sender, sp := setupSplitter(t, false)

	p, err := coord.Create("A", "aa", "Alice", "Raiders", gate.SideAresden, gate.VisibilityPublic)
	require.NoError(t, err)
	dir.AddOrUpdate("gs-1", "A", "Alice", gate.SideAresden)

	sp.ProcessBatch([]XPEvent{{
		EventID:           "ev1",
		PartyID:           p.ID,
		EarnerCharacterID: "A",
		BaseXP:            7,
		SourceX:           1.5,
		SourceY:           2.5,
		SourceZ:           3.5,
	}})

	calls := sender.all()
	require.Len(t, calls, 1)
	payload, ok := calls[0].payload.(experiencePayload)
	require.True(t, ok)
	assert.Equal(t, p.ID, payload.PartyID)
	assert.Equal(t, 60.0, payload.ShareRange)
	assert.Equal(t, 1.5, payload.SourceX)
	assert.Equal(t, 2.5, payload.SourceY)
	assert.Equal(t, 3.5, payload.SourceZ)
	require.Len(t, payload.Deltas, 1)
	assert.Equal(t, int64(7), payload.Deltas[0].BaseXPShare,
		"sole online member gets the whole amount even without remainder-to-earner")
}
