// Package event carries presence and party transitions from the services
// that produce them to independent subscriber tasks. Publishers always emit
// after their own locks are released; each subscriber drains a private
// buffered channel on its own goroutine, so a slow or panicking subscriber
// never stalls the publisher or its siblings.
package event

import (
	"sync"

	"github.com/helrift/gate/gate"
	"go.uber.org/zap"
)

const subBuf = 256

// PresenceEvent is a "came online" (Online=true) or "went offline"
// (Online=false) transition for one character.
type PresenceEvent struct {
	Online bool
	Player gate.OnlinePlayer
}

// PartyEvent is a "party changed" notification carrying the resulting party
// (or its last known state before disbandment) and the full recipient set.
type PartyEvent struct {
	Party      gate.Party
	Recipients []string
}

type presenceSub struct {
	name string
	ch   chan PresenceEvent
}

type partySub struct {
	name string
	ch   chan PartyEvent
}

// Bus is the in-process event bus.
type Bus struct {
	mu           sync.RWMutex
	presenceSubs []*presenceSub
	partySubs    []*partySub
	closed       bool
	wg           sync.WaitGroup
	logger       *zap.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// SubscribePresence registers fn for presence transitions. fn runs on a
// dedicated goroutine; a panic is logged and the subscriber keeps running.
func (b *Bus) SubscribePresence(name string, fn func(PresenceEvent)) {
	s := &presenceSub{name: name, ch: make(chan PresenceEvent, subBuf)}
	b.mu.Lock()
	b.presenceSubs = append(b.presenceSubs, s)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range s.ch {
			b.invoke(name, func() { fn(ev) })
		}
	}()
}

// SubscribeParty registers fn for party-changed events.
func (b *Bus) SubscribeParty(name string, fn func(PartyEvent)) {
	s := &partySub{name: name, ch: make(chan PartyEvent, subBuf)}
	b.mu.Lock()
	b.partySubs = append(b.partySubs, s)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range s.ch {
			b.invoke(name, func() { fn(ev) })
		}
	}()
}

// PublishPresence delivers ev to every presence subscriber, non-blocking. A
// full subscriber buffer drops the event for that subscriber only.
func (b *Bus) PublishPresence(ev PresenceEvent) {
	b.mu.RLock()
	subs := b.presenceSubs
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("presence event dropped for slow subscriber",
				zap.String("subscriber", s.name),
				zap.String("character_id", ev.Player.CharacterID))
		}
	}
}

// PublishParty delivers ev to every party subscriber, non-blocking.
func (b *Bus) PublishParty(ev PartyEvent) {
	b.mu.RLock()
	subs := b.partySubs
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("party event dropped for slow subscriber",
				zap.String("subscriber", s.name),
				zap.String("party_id", ev.Party.ID))
		}
	}
}

// Close stops delivery and waits for subscriber goroutines to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.presenceSubs {
		close(s.ch)
	}
	for _, s := range b.partySubs {
		close(s.ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				zap.String("subscriber", name),
				zap.Any("recover", r))
		}
	}()
	fn()
}
