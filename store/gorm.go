package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/model"
	"gorm.io/gorm"
)

// GormStore implements CharacterStore and AccountStore over a gorm handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func wrapErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, gate.ErrNotFound)
	}
	return fmt.Errorf("%s: %v: %w", op, err, gate.ErrTransient)
}

func (s *GormStore) GetCharacter(ctx context.Context, accountID, characterID string) (*model.Character, error) {
	var c model.Character
	err := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", characterID, accountID).
		First(&c).Error
	if err != nil {
		return nil, wrapErr("get character", err)
	}
	return &c, nil
}

func (s *GormStore) GetCharacterByID(ctx context.Context, characterID string) (*model.Character, error) {
	var c model.Character
	err := s.db.WithContext(ctx).Where("id = ?", characterID).First(&c).Error
	if err != nil {
		return nil, wrapErr("get character by id", err)
	}
	return &c, nil
}

func (s *GormStore) GetCharacterByName(ctx context.Context, name string) (*model.Character, error) {
	var c model.Character
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&c).Error
	if err != nil {
		return nil, wrapErr("get character by name", err)
	}
	return &c, nil
}

// SaveCharacter writes the document and rebuilds its FriendLink rows so the
// reverse index always reflects the saved friend map.
func (s *GormStore) SaveCharacter(ctx context.Context, c *model.Character) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		if err := tx.Where("character_id = ?", c.ID).Delete(&model.FriendLink{}).Error; err != nil {
			return err
		}
		friends := c.FriendMap()
		if len(friends) == 0 {
			return nil
		}
		links := make([]model.FriendLink, 0, len(friends))
		for friendID := range friends {
			links = append(links, model.FriendLink{CharacterID: c.ID, FriendID: friendID})
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return wrapErr("save character", err)
	}
	return nil
}

func (s *GormStore) FriendsOf(ctx context.Context, characterID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&model.FriendLink{}).
		Where("friend_id = ?", characterID).
		Pluck("character_id", &ids).Error
	if err != nil {
		return nil, wrapErr("friends of", err)
	}
	return ids, nil
}

func (s *GormStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	var a model.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&a).Error
	if err != nil {
		return nil, wrapErr("get account", err)
	}
	return &a, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return wrapErr("create account", err)
	}
	return nil
}

func (s *GormStore) TouchLogin(ctx context.Context, accountID, ip string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{"last_login_at": &now, "last_login_ip": ip}).Error
	if err != nil {
		return wrapErr("touch login", err)
	}
	return nil
}
