package notify

import (
	"context"
	"errors"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/event"
	"go.uber.org/zap"
)

// Push message types produced by the listeners.
const (
	msgPartyState     = "party.state"
	msgFriendPresence = "friend.presence"
)

// PartyLeaver is the slice of the party coordinator the cleanup listener
// needs.
type PartyLeaver interface {
	Leave(characterID string) (gate.Party, bool, error)
}

// FriendLookup answers "who lists this character as a friend".
type FriendLookup interface {
	FriendsOf(ctx context.Context, characterID string) ([]string, error)
}

type partyMemberDto struct {
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName"`
}

type partyDto struct {
	PartyID           string           `json:"partyId"`
	LeaderCharacterID string           `json:"leaderCharacterId"`
	PartyName         string           `json:"partyName"`
	Side              string           `json:"side"`
	Visibility        string           `json:"visibility"`
	Members           []partyMemberDto `json:"members"`
}

type partyStatePayload struct {
	Party      partyDto `json:"party"`
	Recipients []string `json:"recipients"`
}

type friendPresencePayload struct {
	FriendID   string   `json:"friendId"`
	FriendName string   `json:"friendName"`
	IsOnline   bool     `json:"isOnline"`
	Recipients []string `json:"recipients"`
}

func toPartyDto(p gate.Party) partyDto {
	members := make([]partyMemberDto, len(p.Members))
	for i, m := range p.Members {
		members[i] = partyMemberDto{CharacterID: m.CharacterID, CharacterName: m.CharacterName}
	}
	return partyDto{
		PartyID:           p.ID,
		LeaderCharacterID: p.LeaderID,
		PartyName:         p.Name,
		Side:              p.Side,
		Visibility:        p.Visibility,
		Members:           members,
	}
}

// SubscribePartyState pushes every party-changed event to its recipient set
// as a party.state envelope, one per involved server.
func SubscribePartyState(bus *event.Bus, fanout *Fanout) {
	bus.SubscribeParty("party-state-push", func(ev event.PartyEvent) {
		dto := toPartyDto(ev.Party)
		fanout.Broadcast(ev.Recipients, msgPartyState, func(_ string, serverRecipients []string) interface{} {
			return partyStatePayload{Party: dto, Recipients: serverRecipients}
		})
	})
}

// SubscribeFriendPresence tells everyone who has the transitioning character
// as a friend that they came online or went offline.
func SubscribeFriendPresence(bus *event.Bus, fanout *Fanout, friends FriendLookup, logger *zap.Logger) {
	bus.SubscribePresence("friend-presence-push", func(ev event.PresenceEvent) {
		ids, err := friends.FriendsOf(context.Background(), ev.Player.CharacterID)
		if err != nil {
			logger.Warn("friend reverse lookup failed, presence push skipped",
				zap.String("character_id", ev.Player.CharacterID),
				zap.Error(err))
			return
		}
		if len(ids) == 0 {
			return
		}
		fanout.Broadcast(ids, msgFriendPresence, func(_ string, serverRecipients []string) interface{} {
			return friendPresencePayload{
				FriendID:   ev.Player.CharacterID,
				FriendName: ev.Player.CharacterName,
				IsOnline:   ev.Online,
				Recipients: serverRecipients,
			}
		})
	})
}

// SubscribePartyCleanup removes a character from their party when they go
// offline. The resulting party.state broadcast reaches the remaining members
// through the normal party-changed path.
func SubscribePartyCleanup(bus *event.Bus, parties PartyLeaver, logger *zap.Logger) {
	bus.SubscribePresence("party-offline-cleanup", func(ev event.PresenceEvent) {
		if ev.Online {
			return
		}
		if _, _, err := parties.Leave(ev.Player.CharacterID); err != nil && !errors.Is(err, gate.ErrNotFound) {
			logger.Warn("party cleanup on disconnect failed",
				zap.String("character_id", ev.Player.CharacterID),
				zap.Error(err))
		}
	})
}
