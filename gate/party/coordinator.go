// Package party implements the in-memory party registry and lifecycle state
// machine, plus the experience splitter that turns raw XP events into
// per-character deltas.
package party

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/event"
	"go.uber.org/zap"
)

// FriendSetResolver supplies a viewer's friend set for visibility filtering.
// Implemented by the friend graph service.
type FriendSetResolver interface {
	FriendSet(ctx context.Context, accountID, characterID string) (map[string]bool, error)
}

// Coordinator manages all active parties. A character is a member of at most
// one party at any time, enforced by the byChar index maintained alongside
// the party table under the same mutex.
type Coordinator struct {
	mu      sync.Mutex
	parties map[string]*gate.Party // party id → party
	byChar  map[string]string      // character id → party id

	friends FriendSetResolver
	bus     *event.Bus
	logger  *zap.Logger
}

// NewCoordinator creates an empty Coordinator publishing changes on bus.
func NewCoordinator(friends FriendSetResolver, bus *event.Bus, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		parties: make(map[string]*gate.Party),
		byChar:  make(map[string]string),
		friends: friends,
		bus:     bus,
		logger:  logger,
	}
}

// Create allocates a new party with the creator as sole member and leader.
// If the character already has a party it is returned unchanged (idempotent
// create). Side must be one of the two playable factions.
func (c *Coordinator) Create(characterID, accountID, characterName, partyName, side, visibility string) (gate.Party, error) {
	side = strings.ToLower(side)
	if !gate.ValidSide(side) {
		return gate.Party{}, fmt.Errorf("invalid side %q for party: %w", side, gate.ErrInvalidState)
	}
	if visibility != gate.VisibilityFriendsOnly {
		visibility = gate.VisibilityPublic
	}

	c.mu.Lock()
	if pid, ok := c.byChar[characterID]; ok {
		existing := c.parties[pid].Clone()
		c.mu.Unlock()
		return existing, nil
	}
	p := &gate.Party{
		ID:         uuid.NewString(),
		LeaderID:   characterID,
		Name:       partyName,
		Side:       side,
		Visibility: visibility,
		Members: []gate.PartyMember{{
			CharacterID:   characterID,
			AccountID:     accountID,
			CharacterName: characterName,
		}},
		CreatedAt: time.Now().UTC(),
	}
	c.parties[p.ID] = p
	c.byChar[characterID] = p.ID
	snapshot := p.Clone()
	c.mu.Unlock()

	c.logger.Info("party created",
		zap.String("party_id", snapshot.ID),
		zap.String("leader_id", characterID))
	c.bus.PublishParty(event.PartyEvent{Party: snapshot, Recipients: snapshot.MemberIDs()})
	return snapshot, nil
}

// Join adds a character to an existing party. Joining a party the character
// is already in returns it unchanged. A character that already belongs to a
// different party fails closed: the existing party is returned together with
// ErrConflict.
func (c *Coordinator) Join(partyID, characterID, accountID, characterName string) (gate.Party, error) {
	c.mu.Lock()
	p, ok := c.parties[partyID]
	if !ok {
		c.mu.Unlock()
		return gate.Party{}, fmt.Errorf("party %s: %w", partyID, gate.ErrNotFound)
	}
	if p.HasMember(characterID) {
		snapshot := p.Clone()
		c.mu.Unlock()
		return snapshot, nil
	}
	if pid, ok := c.byChar[characterID]; ok && pid != partyID {
		existing := c.parties[pid].Clone()
		c.mu.Unlock()
		return existing, fmt.Errorf("character %s already in party %s: %w", characterID, pid, gate.ErrConflict)
	}
	p.Members = append(p.Members, gate.PartyMember{
		CharacterID:   characterID,
		AccountID:     accountID,
		CharacterName: characterName,
	})
	c.byChar[characterID] = partyID
	snapshot := p.Clone()
	c.mu.Unlock()

	c.bus.PublishParty(event.PartyEvent{Party: snapshot, Recipients: snapshot.MemberIDs()})
	return snapshot, nil
}

// Leave removes the character from their current party. Leadership passes to
// the first remaining member in list order; an emptied party is deleted. The
// broadcast recipient set is captured before mutation so the leaver's own
// connection also receives the final state. The returned bool is false when
// the party was disbanded.
func (c *Coordinator) Leave(characterID string) (gate.Party, bool, error) {
	c.mu.Lock()
	pid, ok := c.byChar[characterID]
	if !ok {
		c.mu.Unlock()
		return gate.Party{}, false, fmt.Errorf("character %s has no party: %w", characterID, gate.ErrNotFound)
	}
	p := c.parties[pid]
	recipients := p.MemberIDs()

	delete(c.byChar, characterID)
	for i, m := range p.Members {
		if m.CharacterID == characterID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			break
		}
	}

	if len(p.Members) == 0 {
		delete(c.parties, pid)
		last := p.Clone()
		c.mu.Unlock()
		c.logger.Info("party disbanded", zap.String("party_id", pid))
		c.bus.PublishParty(event.PartyEvent{Party: last, Recipients: recipients})
		return last, false, nil
	}

	if p.LeaderID == characterID {
		p.LeaderID = p.Members[0].CharacterID
	}
	snapshot := p.Clone()
	c.mu.Unlock()

	c.bus.PublishParty(event.PartyEvent{Party: snapshot, Recipients: recipients})
	return snapshot, true, nil
}

// SetLeader reassigns leadership. No-op unless newLeaderID is a current
// member; no event fires if leadership does not actually change.
func (c *Coordinator) SetLeader(partyID, newLeaderID string) (gate.Party, error) {
	c.mu.Lock()
	p, ok := c.parties[partyID]
	if !ok {
		c.mu.Unlock()
		return gate.Party{}, fmt.Errorf("party %s: %w", partyID, gate.ErrNotFound)
	}
	if !p.HasMember(newLeaderID) || p.LeaderID == newLeaderID {
		snapshot := p.Clone()
		c.mu.Unlock()
		return snapshot, nil
	}
	p.LeaderID = newLeaderID
	snapshot := p.Clone()
	c.mu.Unlock()

	c.bus.PublishParty(event.PartyEvent{Party: snapshot, Recipients: snapshot.MemberIDs()})
	return snapshot, nil
}

// KickMember removes targetID from the party. Only the current leader may
// kick; kicking a non-member is a no-op. The kicked character stays in the
// recipient set so their connection hears the final state. Returns false when
// the kick disbanded the party.
func (c *Coordinator) KickMember(partyID, kickerID, targetID string) (gate.Party, bool, error) {
	c.mu.Lock()
	p, ok := c.parties[partyID]
	if !ok {
		c.mu.Unlock()
		return gate.Party{}, false, fmt.Errorf("party %s: %w", partyID, gate.ErrNotFound)
	}
	if p.LeaderID != kickerID || !p.HasMember(targetID) {
		snapshot := p.Clone()
		c.mu.Unlock()
		return snapshot, true, nil
	}
	recipients := p.MemberIDs()

	delete(c.byChar, targetID)
	for i, m := range p.Members {
		if m.CharacterID == targetID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			break
		}
	}

	if len(p.Members) == 0 {
		delete(c.parties, partyID)
		last := p.Clone()
		c.mu.Unlock()
		c.logger.Info("party disbanded by kick", zap.String("party_id", partyID))
		c.bus.PublishParty(event.PartyEvent{Party: last, Recipients: recipients})
		return last, false, nil
	}

	if p.LeaderID == targetID {
		p.LeaderID = p.Members[0].CharacterID
	}
	snapshot := p.Clone()
	c.mu.Unlock()

	c.bus.PublishParty(event.PartyEvent{Party: snapshot, Recipients: recipients})
	return snapshot, true, nil
}

// GetByID returns the party with the given id.
func (c *Coordinator) GetByID(partyID string) (gate.Party, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.parties[partyID]
	if !ok {
		return gate.Party{}, false
	}
	return p.Clone(), true
}

// GetByCharacterID returns the party a character belongs to.
func (c *Coordinator) GetByCharacterID(characterID string) (gate.Party, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pid, ok := c.byChar[characterID]
	if !ok {
		return gate.Party{}, false
	}
	return c.parties[pid].Clone(), true
}

// ListAll returns every party, optionally filtered by side ("" = all).
func (c *Coordinator) ListAll(side string) []gate.Party {
	side = strings.ToLower(side)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]gate.Party, 0, len(c.parties))
	for _, p := range c.parties {
		if side != "" && p.Side != side {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

// ListVisible returns the parties on a side that the viewer may see: Public
// parties always; FriendsOnly parties when the viewer is a member or at least
// one member is in the viewer's friend set. The friend set is resolved at
// most once per call, and only if a FriendsOnly party is actually hit.
func (c *Coordinator) ListVisible(ctx context.Context, side, viewerAccountID, viewerCharacterID string) ([]gate.Party, error) {
	sideParties := c.ListAll(side)

	if viewerCharacterID == "" {
		out := sideParties[:0]
		for _, p := range sideParties {
			if p.Visibility == gate.VisibilityPublic {
				out = append(out, p)
			}
		}
		return out, nil
	}

	var viewerFriends map[string]bool
	var out []gate.Party

	for _, p := range sideParties {
		if p.Visibility == gate.VisibilityPublic {
			out = append(out, p)
			continue
		}
		if p.HasMember(viewerCharacterID) {
			out = append(out, p)
			continue
		}
		if viewerFriends == nil {
			fs, err := c.friends.FriendSet(ctx, viewerAccountID, viewerCharacterID)
			if err != nil {
				c.logger.Warn("friend set resolution failed for party listing",
					zap.String("character_id", viewerCharacterID),
					zap.Error(err))
				fs = map[string]bool{}
			}
			viewerFriends = fs
		}
		for _, m := range p.Members {
			if viewerFriends[m.CharacterID] {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}
