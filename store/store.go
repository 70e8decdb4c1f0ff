// Package store is the persistence collaborator boundary. The gate core only
// sees these interfaces; the gorm implementation lives alongside so tests can
// swap in an in-memory database.
package store

import (
	"context"

	"github.com/helrift/gate/model"
)

// CharacterStore loads and saves character documents. Lookup misses map to
// gate.ErrNotFound; any other database failure maps to gate.ErrTransient.
type CharacterStore interface {
	// GetCharacter fetches a character owned by accountID. Ownership is part
	// of the key: a valid character id under the wrong account is a miss.
	GetCharacter(ctx context.Context, accountID, characterID string) (*model.Character, error)
	GetCharacterByID(ctx context.Context, characterID string) (*model.Character, error)
	GetCharacterByName(ctx context.Context, name string) (*model.Character, error)
	// SaveCharacter persists the document and rebuilds its FriendLink reverse
	// index rows in the same transaction.
	SaveCharacter(ctx context.Context, c *model.Character) error
	// FriendsOf returns the ids of characters that list characterID as a
	// friend (reverse lookup over the FriendLink index).
	FriendsOf(ctx context.Context, characterID string) ([]string, error)
}

// AccountStore backs the login endpoint.
type AccountStore interface {
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	CreateAccount(ctx context.Context, a *model.Account) error
	TouchLogin(ctx context.Context, accountID, ip string) error
}
