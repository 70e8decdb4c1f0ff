package store

import (
	"context"
	"testing"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/model"
	"github.com/helrift/gate/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *GormStore {
	t.Helper()
	return NewGormStore(testutil.SetupTestDB(t))
}

func TestGetCharacter_OwnershipIsPartOfTheKey(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	c := &model.Character{ID: "c1", AccountID: "a1", Name: "Alice", Side: gate.SideAresden}
	require.NoError(t, s.SaveCharacter(ctx, c))

	got, err := s.GetCharacter(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = s.GetCharacter(ctx, "a2", "c1")
	assert.ErrorIs(t, err, gate.ErrNotFound, "right id, wrong account is a miss")

	_, err = s.GetCharacterByName(ctx, "Nobody")
	assert.ErrorIs(t, err, gate.ErrNotFound)
}

func TestSaveCharacter_RebuildsFriendLinks(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	c := &model.Character{ID: "c1", AccountID: "a1", Name: "Alice"}
	c.SetFriendMap(map[string]model.FriendEntry{
		"c2": {Name: "Bob"},
		"c3": {Name: "Carol"},
	})
	require.NoError(t, s.SaveCharacter(ctx, c))

	ids, err := s.FriendsOf(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)

	// Shrinking the friend map must also shrink the index.
	c.SetFriendMap(map[string]model.FriendEntry{"c3": {Name: "Carol"}})
	require.NoError(t, s.SaveCharacter(ctx, c))

	ids, err = s.FriendsOf(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.FriendsOf(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestAccountRoundTrip(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	_, err := s.GetAccountByUsername(ctx, "alice")
	assert.ErrorIs(t, err, gate.ErrNotFound)

	a := &model.Account{ID: "a1", Username: "alice", PasswordHash: "x", Status: 1}
	require.NoError(t, s.CreateAccount(ctx, a))

	got, err := s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Nil(t, got.LastLoginAt)

	require.NoError(t, s.TouchLogin(ctx, "a1", "10.0.0.1"))
	got, err = s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, "10.0.0.1", got.LastLoginIP)
}
