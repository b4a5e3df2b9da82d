package telegram

import (
	"bytes"
	"context"
	"errors"

	"telegram-bridge/internal/storage"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"
)

// SessionStore persists the serialized client session. Load returns
// storage.ErrRecordNotFound when nothing has been stored yet.
type SessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, data string) error
	Delete(ctx context.Context) error
}

// sessionStorage adapts a SessionStore to the client's session.Storage.
//
// The client stores its session every time a connection comes up. A write is
// only passed on when the authorization itself changed; salt and config
// refreshes are dropped. With bestEffort set a failed write is logged
// instead of failing the connection.
type sessionStorage struct {
	store      SessionStore
	bestEffort bool
	log        zerolog.Logger
}

func (s sessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.store.Load(ctx)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (s sessionStorage) StoreSession(ctx context.Context, data []byte) error {
	current, err := s.store.Load(ctx)
	if err == nil && sameAuthorization([]byte(current), data) {
		return nil
	}

	if err := s.store.Save(ctx, string(data)); err != nil {
		if !s.bestEffort {
			return err
		}
		s.log.Warn().Err(err).Msg("session not stored, keeping the previous one")
	}
	return nil
}

// sameAuthorization reports whether two serialized sessions carry the same
// data center and auth key.
func sameAuthorization(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	da, err := decodeSession(a)
	if err != nil {
		return false
	}
	db, err := decodeSession(b)
	if err != nil {
		return false
	}
	return da.DC == db.DC &&
		da.Addr == db.Addr &&
		bytes.Equal(da.AuthKey, db.AuthKey) &&
		bytes.Equal(da.AuthKeyID, db.AuthKeyID)
}

func decodeSession(raw []byte) (*session.Data, error) {
	ctx := context.Background()
	mem := new(session.StorageMemory)
	if err := mem.StoreSession(ctx, raw); err != nil {
		return nil, err
	}
	return (&session.Loader{Storage: mem}).Load(ctx)
}
