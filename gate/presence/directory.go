// Package presence tracks which characters are online and on which game
// server. It is the transition spine of the gate: every register, remove and
// resync is diffed into "came online" / "went offline" events consumed by the
// party coordinator, the notification fan-out and the realm admission
// controller.
package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/event"
	"go.uber.org/zap"
)

// Directory is the in-process presence authority. Character names are the
// primary key (case-insensitive); per-server membership sets are kept
// alongside so a whole server can be cleared in one call.
//
// Transition events are published after the internal lock is released, so a
// subscriber may safely call back into the directory without deadlocking. The
// cost is that two rapid transitions of the same character may be observed
// slightly out of order, which is acceptable because all queries are
// idempotent snapshots.
type Directory struct {
	mu            sync.Mutex
	onlineByName  map[string]gate.OnlinePlayer // lowercased name → entry
	namesByServer map[string]map[string]bool   // server id → set of lowercased names
	bus           *event.Bus
	logger        *zap.Logger
}

// NewDirectory creates an empty Directory publishing transitions on bus.
func NewDirectory(bus *event.Bus, logger *zap.Logger) *Directory {
	return &Directory{
		onlineByName:  make(map[string]gate.OnlinePlayer),
		namesByServer: make(map[string]map[string]bool),
		bus:           bus,
		logger:        logger,
	}
}

func nameKey(name string) string { return strings.ToLower(name) }

// RegisterServer ensures a membership set exists for serverID. Idempotent.
func (d *Directory) RegisterServer(serverID string) {
	if serverID == "" {
		return
	}
	d.mu.Lock()
	if _, ok := d.namesByServer[serverID]; !ok {
		d.namesByServer[serverID] = make(map[string]bool)
	}
	d.mu.Unlock()
}

// UnregisterServer removes every character whose current server is serverID
// and emits one "went offline" transition per removed character.
func (d *Directory) UnregisterServer(serverID string) {
	if serverID == "" {
		return
	}
	var gone []gate.OnlinePlayer

	d.mu.Lock()
	if names, ok := d.namesByServer[serverID]; ok {
		for name := range names {
			// A character may have migrated away since this server last
			// synced; only evict entries still attributed to it.
			if p, ok := d.onlineByName[name]; ok && strings.EqualFold(p.ServerID, serverID) {
				delete(d.onlineByName, name)
				gone = append(gone, p)
			}
		}
	}
	delete(d.namesByServer, serverID)
	d.mu.Unlock()

	for _, p := range gone {
		d.bus.PublishPresence(event.PresenceEvent{Online: false, Player: p})
	}
	d.logger.Info("server presence cleared",
		zap.String("server_id", serverID),
		zap.Int("removed", len(gone)))
}

// AddOrUpdate inserts or refreshes an entry. A character with no prior entry
// fires "came online"; a character already online (for example moving server
// without an intervening unregister) is migrated silently.
func (d *Directory) AddOrUpdate(serverID, characterID, characterName, side string) {
	if serverID == "" || characterName == "" {
		return
	}
	key := nameKey(characterName)
	entry := gate.OnlinePlayer{
		CharacterID:   characterID,
		CharacterName: characterName,
		ServerID:      serverID,
		Side:          side,
		LastSeen:      time.Now().UTC(),
	}

	cameOnline := false

	d.mu.Lock()
	prev, existed := d.onlineByName[key]
	if existed && prev.ServerID != serverID {
		// Server migration: detach from the old server's set so a later
		// UnregisterServer for it does not evict the newer registration.
		if old, ok := d.namesByServer[prev.ServerID]; ok {
			delete(old, key)
		}
	}
	set, ok := d.namesByServer[serverID]
	if !ok {
		set = make(map[string]bool)
		d.namesByServer[serverID] = set
	}
	set[key] = true
	d.onlineByName[key] = entry
	cameOnline = !existed
	d.mu.Unlock()

	if cameOnline {
		d.bus.PublishPresence(event.PresenceEvent{Online: true, Player: entry})
	}
}

// Remove deletes the entry only if its recorded server matches serverID. A
// removal referencing a stale server id is a silent no-op, protecting against
// out-of-order unregister/register races.
func (d *Directory) Remove(serverID, characterID, characterName string) {
	if serverID == "" || characterName == "" {
		return
	}
	key := nameKey(characterName)
	var gone *gate.OnlinePlayer

	d.mu.Lock()
	if set, ok := d.namesByServer[serverID]; ok {
		delete(set, key)
	}
	if p, ok := d.onlineByName[key]; ok && strings.EqualFold(p.ServerID, serverID) {
		delete(d.onlineByName, key)
		gone = &p
	}
	d.mu.Unlock()

	if gone != nil {
		d.bus.PublishPresence(event.PresenceEvent{Online: false, Player: *gone})
	}
}

// ReplaceForServer is the full-resync path: the server's membership becomes
// exactly players, firing "came online" for newly-present characters and
// "went offline" for ones that disappeared.
func (d *Directory) ReplaceForServer(serverID string, players []gate.OnlinePlayer) {
	if serverID == "" {
		return
	}
	now := time.Now().UTC()
	var came, gone []gate.OnlinePlayer

	d.mu.Lock()
	newSet := make(map[string]bool, len(players))
	for _, pl := range players {
		if pl.CharacterName == "" {
			continue
		}
		key := nameKey(pl.CharacterName)
		newSet[key] = true
		prev, existed := d.onlineByName[key]
		if existed && prev.ServerID != serverID {
			// Same silent-migration rule as AddOrUpdate: detach from the old
			// server's set so its eventual unregister cannot evict the entry.
			if old, ok := d.namesByServer[prev.ServerID]; ok {
				delete(old, key)
			}
		}
		entry := gate.OnlinePlayer{
			CharacterID:   pl.CharacterID,
			CharacterName: pl.CharacterName,
			ServerID:      serverID,
			Side:          pl.Side,
			LastSeen:      now,
		}
		d.onlineByName[key] = entry
		if !existed {
			came = append(came, entry)
		}
	}
	if old, ok := d.namesByServer[serverID]; ok {
		for name := range old {
			if newSet[name] {
				continue
			}
			if p, ok := d.onlineByName[name]; ok && strings.EqualFold(p.ServerID, serverID) {
				delete(d.onlineByName, name)
				gone = append(gone, p)
			}
		}
	}
	d.namesByServer[serverID] = newSet
	d.mu.Unlock()

	for _, p := range came {
		d.bus.PublishPresence(event.PresenceEvent{Online: true, Player: p})
	}
	for _, p := range gone {
		d.bus.PublishPresence(event.PresenceEvent{Online: false, Player: p})
	}
}

// GetByName returns the entry for a character name, if online.
func (d *Directory) GetByName(characterName string) (gate.OnlinePlayer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.onlineByName[nameKey(characterName)]
	return p, ok
}

// GetAll returns a snapshot of every online character.
func (d *Directory) GetAll() []gate.OnlinePlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]gate.OnlinePlayer, 0, len(d.onlineByName))
	for _, p := range d.onlineByName {
		out = append(out, p)
	}
	return out
}

// GetByIDs returns the online entries whose character id is in ids.
func (d *Directory) GetByIDs(ids []string) []gate.OnlinePlayer {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []gate.OnlinePlayer
	for _, p := range d.onlineByName {
		if want[p.CharacterID] {
			out = append(out, p)
		}
	}
	return out
}

// GetByServer returns the online entries attributed to serverID.
func (d *Directory) GetByServer(serverID string) []gate.OnlinePlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []gate.OnlinePlayer
	for name := range d.namesByServer[serverID] {
		if p, ok := d.onlineByName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of online characters.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.onlineByName)
}

// IsOnline reports whether a character id has a current entry.
func (d *Directory) IsOnline(characterID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.onlineByName {
		if p.CharacterID == characterID {
			return true
		}
	}
	return false
}
