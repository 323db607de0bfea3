package telegram

import (
	"context"
	"encoding/base64"

	"github.com/go-faster/errors"
	"github.com/gotd/td/session"
)

// SessionStore persists encoded session strings per linked account.
type SessionStore interface {
	LoadSession(ctx context.Context, accountID uint) (string, error)
	SaveSession(ctx context.Context, accountID uint, session string) error
}

// EncodeSession turns raw gotd session data into a session string.
func EncodeSession(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func DecodeSession(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode session string")
	}
	return data, nil
}

// AccountStorage is a gotd session storage bound to one account row.
type AccountStorage struct {
	store     SessionStore
	accountID uint
}

func NewAccountStorage(store SessionStore, accountID uint) *AccountStorage {
	return &AccountStorage{store: store, accountID: accountID}
}

func (s *AccountStorage) LoadSession(ctx context.Context) ([]byte, error) {
	str, err := s.store.LoadSession(ctx, s.accountID)
	if err != nil {
		return nil, errors.Wrap(err, "load session")
	}
	if str == "" {
		return nil, session.ErrNotFound
	}
	return DecodeSession(str)
}

func (s *AccountStorage) StoreSession(ctx context.Context, data []byte) error {
	if err := s.store.SaveSession(ctx, s.accountID, EncodeSession(data)); err != nil {
		return errors.Wrap(err, "store session")
	}
	return nil
}
