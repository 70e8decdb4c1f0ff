package event

import (
	"sync"
	"testing"
	"time"

	"github.com/helrift/gate/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func collect[T any](mu *sync.Mutex, dst *[]T) func(T) {
	return func(ev T) {
		mu.Lock()
		*dst = append(*dst, ev)
		mu.Unlock()
	}
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var mu sync.Mutex
	var a, b []PresenceEvent
	bus.SubscribePresence("a", collect(&mu, &a))
	bus.SubscribePresence("b", collect(&mu, &b))

	bus.PublishPresence(PresenceEvent{Online: true, Player: gate.OnlinePlayer{CharacterID: "c1"}})
	bus.PublishPresence(PresenceEvent{Online: false, Player: gate.OnlinePlayer{CharacterID: "c1"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(a) == 2 && len(b) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, a[0].Online)
	assert.False(t, a[1].Online, "per-subscriber order matches publish order")
}

func TestBus_PartyEvents(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var mu sync.Mutex
	var got []PartyEvent
	bus.SubscribeParty("p", collect(&mu, &got))

	bus.PublishParty(PartyEvent{
		Party:      gate.Party{ID: "p1"},
		Recipients: []string{"c1", "c2"},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "p1", got[0].Party.ID)
	assert.Equal(t, []string{"c1", "c2"}, got[0].Recipients)
}

func TestBus_PanickingSubscriberKeepsRunning(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var mu sync.Mutex
	var survived []PresenceEvent
	calls := 0
	bus.SubscribePresence("panicky", func(PresenceEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})
	bus.SubscribePresence("healthy", collect(&mu, &survived))

	bus.PublishPresence(PresenceEvent{Online: true})
	bus.PublishPresence(PresenceEvent{Online: true})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2 && len(survived) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBus_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	block := make(chan struct{})
	bus.SubscribePresence("stuck", func(PresenceEvent) { <-block })

	// Far more events than the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subBuf*2; i++ {
			bus.PublishPresence(PresenceEvent{Online: true})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	close(block)
}

func TestBus_PublishAfterCloseIsNoOp(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.SubscribePresence("x", func(PresenceEvent) {})
	bus.Close()
	bus.PublishPresence(PresenceEvent{Online: true}) // must not panic
	bus.PublishParty(PartyEvent{})
	bus.Close() // idempotent
}
