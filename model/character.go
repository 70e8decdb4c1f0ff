package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// FriendEntry is one friend stored inside a character document, keyed by the
// friend's character id.
type FriendEntry struct {
	Name  string `json:"name"`
	Note  string `json:"note"`
	Since int64  `json:"since"` // unix millis
}

// FriendRequestEntry is one pending friend request stored inside a character
// document, keyed by the other character's id.
type FriendRequestEntry struct {
	Name      string `json:"name"`
	Direction string `json:"direction"` // "incoming" or "outgoing"
	Since     int64  `json:"since"`
}

const (
	RequestIncoming = "incoming"
	RequestOutgoing = "outgoing"
)

// Character is the persisted character document. The friend list and the
// pending-request list live inside the document itself; FriendLink rows are a
// derived reverse index maintained by the store on save.
type Character struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	AccountID      string         `gorm:"index:idx_char_account;size:36;not null" json:"account_id"`
	Name           string         `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Side           string         `gorm:"size:16" json:"side"`
	Friends        datatypes.JSON `json:"friends"`
	FriendRequests datatypes.JSON `json:"friend_requests"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// FriendLink is the reverse index row "CharacterID lists FriendID as a
// friend". It exists only to answer "who has X as a friend" without scanning
// every character document.
type FriendLink struct {
	CharacterID string `gorm:"primaryKey;size:36" json:"character_id"`
	FriendID    string `gorm:"primaryKey;size:36;index:idx_link_friend" json:"friend_id"`
}

// FriendMap decodes the Friends document column. A nil or empty column
// decodes to an empty map.
func (c *Character) FriendMap() map[string]FriendEntry {
	out := make(map[string]FriendEntry)
	if len(c.Friends) > 0 {
		_ = json.Unmarshal(c.Friends, &out)
	}
	return out
}

// SetFriendMap encodes m back into the Friends column.
func (c *Character) SetFriendMap(m map[string]FriendEntry) {
	raw, _ := json.Marshal(m)
	c.Friends = datatypes.JSON(raw)
}

// RequestMap decodes the FriendRequests document column.
func (c *Character) RequestMap() map[string]FriendRequestEntry {
	out := make(map[string]FriendRequestEntry)
	if len(c.FriendRequests) > 0 {
		_ = json.Unmarshal(c.FriendRequests, &out)
	}
	return out
}

// SetRequestMap encodes m back into the FriendRequests column.
func (c *Character) SetRequestMap(m map[string]FriendRequestEntry) {
	raw, _ := json.Marshal(m)
	c.FriendRequests = datatypes.JSON(raw)
}
