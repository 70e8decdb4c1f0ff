// Package friends implements the friend graph workflow: request, accept,
// reject, cancel, delete and the self-healing snapshot read. Friend state
// lives inside each character's persisted document; writes to the other side
// of a relationship are best-effort, and one-sided links are corrected lazily
// on the next snapshot rather than transactionally.
package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/notify"
	"github.com/helrift/gate/gate/presence"
	"github.com/helrift/gate/model"
	"github.com/helrift/gate/store"
	"go.uber.org/zap"
)

// Push message types emitted by the workflow.
const (
	msgRequestReceived = "friend.request.received"
	msgRequestAccepted = "friend.request.accepted"
	msgRequestRejected = "friend.request.rejected"
)

type requestPayload struct {
	CharacterID       string `json:"characterId"`
	CharacterName     string `json:"characterName"`
	TargetCharacterID string `json:"targetCharacterId"`
}

// FriendView is one friend annotated with live presence.
type FriendView struct {
	CharacterID string `json:"characterId"`
	Name        string `json:"name"`
	Note        string `json:"note"`
	Since       int64  `json:"since"`
	IsOnline    bool   `json:"isOnline"`
	ServerID    string `json:"serverId,omitempty"`
}

// RequestView is one pending request, incoming or outgoing.
type RequestView struct {
	CharacterID string `json:"characterId"`
	Name        string `json:"name"`
	Since       int64  `json:"since"`
}

// Snapshot is the full friend-graph view returned to a client.
type Snapshot struct {
	Friends  []FriendView  `json:"friends"`
	Incoming []RequestView `json:"incoming"`
	Outgoing []RequestView `json:"outgoing"`
}

// Service owns the friend graph workflow for all characters.
type Service struct {
	store    store.CharacterStore
	presence *presence.Directory
	fanout   notify.Sender
	logger   *zap.Logger
}

// NewService wires the friend graph service.
func NewService(st store.CharacterStore, presence *presence.Directory, fanout notify.Sender, logger *zap.Logger) *Service {
	return &Service{store: st, presence: presence, fanout: fanout, logger: logger}
}

// SendRequest resolves targetName and writes a reciprocal pending-request
// pair: outgoing on the caller, incoming on the target. Already-mutual
// friends make it a no-op success. Sending to yourself is invalid.
func (s *Service) SendRequest(ctx context.Context, accountID, characterID, targetName string) error {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return err
	}
	target, err := s.store.GetCharacterByName(ctx, targetName)
	if err != nil {
		return err
	}
	if target.ID == caller.ID {
		return fmt.Errorf("cannot friend yourself: %w", gate.ErrInvalidState)
	}

	callerFriends := caller.FriendMap()
	targetFriends := target.FriendMap()
	if _, a := callerFriends[target.ID]; a {
		if _, b := targetFriends[caller.ID]; b {
			return nil
		}
	}

	now := time.Now().UnixMilli()

	reqs := caller.RequestMap()
	reqs[target.ID] = model.FriendRequestEntry{
		Name:      target.Name,
		Direction: model.RequestOutgoing,
		Since:     now,
	}
	caller.SetRequestMap(reqs)
	if err := s.store.SaveCharacter(ctx, caller); err != nil {
		return err
	}

	treqs := target.RequestMap()
	treqs[caller.ID] = model.FriendRequestEntry{
		Name:      caller.Name,
		Direction: model.RequestIncoming,
		Since:     now,
	}
	target.SetRequestMap(treqs)
	if err := s.store.SaveCharacter(ctx, target); err != nil {
		s.logger.Warn("failed to write incoming request on target, will self-heal",
			zap.String("target_id", target.ID), zap.Error(err))
	}

	s.fanout.BroadcastPayload([]string{target.ID}, msgRequestReceived, requestPayload{
		CharacterID:       caller.ID,
		CharacterName:     caller.Name,
		TargetCharacterID: target.ID,
	})
	return nil
}

// Accept turns an incoming request into a mutual friendship: both pending
// entries are removed and a reciprocal FriendEntry pair is written.
func (s *Service) Accept(ctx context.Context, accountID, characterID, fromCharacterID string) error {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return err
	}
	reqs := caller.RequestMap()
	req, ok := reqs[fromCharacterID]
	if !ok || req.Direction != model.RequestIncoming {
		return fmt.Errorf("no incoming request from %s: %w", fromCharacterID, gate.ErrNotFound)
	}
	other, err := s.store.GetCharacterByID(ctx, fromCharacterID)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()

	delete(reqs, fromCharacterID)
	caller.SetRequestMap(reqs)
	friends := caller.FriendMap()
	friends[other.ID] = model.FriendEntry{Name: other.Name, Since: now}
	caller.SetFriendMap(friends)
	if err := s.store.SaveCharacter(ctx, caller); err != nil {
		return err
	}

	oreqs := other.RequestMap()
	delete(oreqs, caller.ID)
	other.SetRequestMap(oreqs)
	ofriends := other.FriendMap()
	ofriends[caller.ID] = model.FriendEntry{Name: caller.Name, Since: now}
	other.SetFriendMap(ofriends)
	if err := s.store.SaveCharacter(ctx, other); err != nil {
		s.logger.Warn("failed to write reciprocal friend entry, will self-heal",
			zap.String("other_id", other.ID), zap.Error(err))
	}

	s.fanout.BroadcastPayload([]string{other.ID}, msgRequestAccepted, requestPayload{
		CharacterID:       caller.ID,
		CharacterName:     caller.Name,
		TargetCharacterID: other.ID,
	})
	return nil
}

// Reject removes an incoming request locally and best-effort removes the
// matching outgoing entry from the requester's record.
func (s *Service) Reject(ctx context.Context, accountID, characterID, fromCharacterID string) error {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return err
	}
	reqs := caller.RequestMap()
	if _, ok := reqs[fromCharacterID]; !ok {
		return fmt.Errorf("no request from %s: %w", fromCharacterID, gate.ErrNotFound)
	}
	delete(reqs, fromCharacterID)
	caller.SetRequestMap(reqs)
	if err := s.store.SaveCharacter(ctx, caller); err != nil {
		return err
	}

	s.removeRemoteRequest(ctx, fromCharacterID, caller.ID)

	s.fanout.BroadcastPayload([]string{fromCharacterID}, msgRequestRejected, requestPayload{
		CharacterID:       caller.ID,
		CharacterName:     caller.Name,
		TargetCharacterID: fromCharacterID,
	})
	return nil
}

// Cancel withdraws the caller's own outgoing request. The remote incoming
// entry is removed best-effort.
func (s *Service) Cancel(ctx context.Context, accountID, characterID, targetCharacterID string) error {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return err
	}
	reqs := caller.RequestMap()
	req, ok := reqs[targetCharacterID]
	if !ok || req.Direction != model.RequestOutgoing {
		return fmt.Errorf("no outgoing request to %s: %w", targetCharacterID, gate.ErrNotFound)
	}
	delete(reqs, targetCharacterID)
	caller.SetRequestMap(reqs)
	if err := s.store.SaveCharacter(ctx, caller); err != nil {
		return err
	}

	s.removeRemoteRequest(ctx, targetCharacterID, caller.ID)
	return nil
}

// Delete removes a friend locally; the reciprocal entry on the other
// character's record is removed best-effort.
func (s *Service) Delete(ctx context.Context, accountID, characterID, friendCharacterID string) error {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return err
	}
	friends := caller.FriendMap()
	if _, ok := friends[friendCharacterID]; !ok {
		return fmt.Errorf("not a friend: %s: %w", friendCharacterID, gate.ErrNotFound)
	}
	delete(friends, friendCharacterID)
	caller.SetFriendMap(friends)
	if err := s.store.SaveCharacter(ctx, caller); err != nil {
		return err
	}

	other, err := s.store.GetCharacterByID(ctx, friendCharacterID)
	if err != nil {
		s.logger.Warn("friend delete: other side not loaded", zap.Error(err))
		return nil
	}
	ofriends := other.FriendMap()
	if _, ok := ofriends[caller.ID]; ok {
		delete(ofriends, caller.ID)
		other.SetFriendMap(ofriends)
		if err := s.store.SaveCharacter(ctx, other); err != nil {
			s.logger.Warn("friend delete: reciprocal removal failed",
				zap.String("other_id", other.ID), zap.Error(err))
		}
	}
	return nil
}

// GetSnapshot returns the friend list annotated with live presence plus the
// split pending-request lists. Friend entries whose other side no longer
// exists or no longer lists the caller are treated as stale, pruned from the
// caller's document and persisted (self-healing read). Transient lookup
// failures leave the entry in place.
func (s *Service) GetSnapshot(ctx context.Context, accountID, characterID string) (Snapshot, error) {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return Snapshot{}, err
	}

	friends := caller.FriendMap()
	dirty := false
	snap := Snapshot{Friends: make([]FriendView, 0, len(friends))}

	for friendID, entry := range friends {
		other, err := s.store.GetCharacterByID(ctx, friendID)
		if err != nil {
			if errors.Is(err, gate.ErrNotFound) {
				delete(friends, friendID)
				dirty = true
				continue
			}
			// Transient: keep the entry, skip validation this round.
		} else {
			if !strings.EqualFold(other.Name, entry.Name) {
				// Name no longer maps to the expected character.
				delete(friends, friendID)
				dirty = true
				continue
			}
			if _, reciprocal := other.FriendMap()[caller.ID]; !reciprocal {
				delete(friends, friendID)
				dirty = true
				continue
			}
		}

		view := FriendView{
			CharacterID: friendID,
			Name:        entry.Name,
			Note:        entry.Note,
			Since:       entry.Since,
		}
		if p, ok := s.presence.GetByName(entry.Name); ok {
			view.IsOnline = true
			view.ServerID = p.ServerID
		}
		snap.Friends = append(snap.Friends, view)
	}

	if dirty {
		caller.SetFriendMap(friends)
		if err := s.store.SaveCharacter(ctx, caller); err != nil {
			s.logger.Warn("failed to persist pruned friend list",
				zap.String("character_id", caller.ID), zap.Error(err))
		}
	}

	for id, req := range caller.RequestMap() {
		view := RequestView{CharacterID: id, Name: req.Name, Since: req.Since}
		switch req.Direction {
		case model.RequestIncoming:
			snap.Incoming = append(snap.Incoming, view)
		case model.RequestOutgoing:
			snap.Outgoing = append(snap.Outgoing, view)
		}
	}
	return snap, nil
}

// FriendSet resolves the caller's friend set as character ids. Used by the
// party coordinator for FriendsOnly visibility.
func (s *Service) FriendSet(ctx context.Context, accountID, characterID string) (map[string]bool, error) {
	caller, err := s.store.GetCharacter(ctx, accountID, characterID)
	if err != nil {
		return nil, err
	}
	friends := caller.FriendMap()
	out := make(map[string]bool, len(friends))
	for id := range friends {
		out[id] = true
	}
	return out, nil
}

// FriendsOf returns the ids of characters that list characterID as a friend.
// Used to pick recipients for friend presence pushes.
func (s *Service) FriendsOf(ctx context.Context, characterID string) ([]string, error) {
	return s.store.FriendsOf(ctx, characterID)
}

// removeRemoteRequest deletes the pending entry keyed by requesterID on the
// remote character's record. Failures are logged only.
func (s *Service) removeRemoteRequest(ctx context.Context, remoteID, keyID string) {
	other, err := s.store.GetCharacterByID(ctx, remoteID)
	if err != nil {
		s.logger.Warn("remote request cleanup: lookup failed",
			zap.String("remote_id", remoteID), zap.Error(err))
		return
	}
	reqs := other.RequestMap()
	if _, ok := reqs[keyID]; !ok {
		return
	}
	delete(reqs, keyID)
	other.SetRequestMap(reqs)
	if err := s.store.SaveCharacter(ctx, other); err != nil {
		s.logger.Warn("remote request cleanup: save failed",
			zap.String("remote_id", remoteID), zap.Error(err))
	}
}
