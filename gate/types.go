package gate

import "time"

// Sides are the two playable factions. Anything else is rejected for
// side-scoped operations such as party creation.
const (
	SideAresden = "aresden"
	SideElvine  = "elvine"
)

// Party visibility values.
const (
	VisibilityPublic      = "Public"
	VisibilityFriendsOnly = "FriendsOnly"
)

// OnlinePlayer is one presence directory entry: a character currently online
// on a specific game server.
type OnlinePlayer struct {
	CharacterID   string    `json:"characterId"`
	CharacterName string    `json:"characterName"`
	ServerID      string    `json:"serverId"`
	Side          string    `json:"side"`
	LastSeen      time.Time `json:"lastSeen"`
}

// PartyMember is one member of a party; name and account are denormalized at
// join time.
type PartyMember struct {
	CharacterID   string `json:"characterId"`
	AccountID     string `json:"accountId"`
	CharacterName string `json:"characterName"`
}

// Party is a small, mutually-exclusive grouping of characters with one
// leader. A party exists exactly while its member list is non-empty.
type Party struct {
	ID         string        `json:"partyId"`
	LeaderID   string        `json:"leaderCharacterId"`
	Name       string        `json:"partyName"`
	Side       string        `json:"side"`
	Visibility string        `json:"visibility"`
	Members    []PartyMember `json:"members"`
	CreatedAt  time.Time     `json:"-"`
}

// HasMember reports whether characterID is a current member.
func (p *Party) HasMember(characterID string) bool {
	for _, m := range p.Members {
		if m.CharacterID == characterID {
			return true
		}
	}
	return false
}

// MemberIDs returns the member character ids in list order.
func (p *Party) MemberIDs() []string {
	out := make([]string, len(p.Members))
	for i, m := range p.Members {
		out[i] = m.CharacterID
	}
	return out
}

// Clone returns a deep copy safe to hand to subscribers after the
// coordinator's lock is released.
func (p *Party) Clone() Party {
	cp := *p
	cp.Members = make([]PartyMember, len(p.Members))
	copy(cp.Members, p.Members)
	return cp
}

// ValidSide reports whether s is one of the two playable factions.
func ValidSide(s string) bool {
	return s == SideAresden || s == SideElvine
}
