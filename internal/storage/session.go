package storage

import (
	"context"
	"fmt"

	"telegram-bridge/internal/models"
	"telegram-bridge/internal/secret"
)

// GitSessionStore keeps the encrypted protocol-client session in the session
// document. Callers only ever see plain text.
type GitSessionStore struct {
	store *Store
	box   *secret.Box
}

func NewGitSessionStore(s *Store, box *secret.Box) *GitSessionStore {
	return &GitSessionStore{store: s, box: box}
}

// Load returns ErrRecordNotFound when no session has been stored.
func (g *GitSessionStore) Load(ctx context.Context) (string, error) {
	var doc models.SessionDocument
	if _, err := g.store.Get(ctx, KindSession, &doc); err != nil {
		return "", err
	}
	if doc.Session == nil || *doc.Session == "" {
		return "", ErrRecordNotFound
	}
	plain, err := g.box.Open(*doc.Session)
	if err != nil {
		return "", fmt.Errorf("decrypt session: %w", err)
	}
	return plain, nil
}

// Save writes data unless the stored session already decrypts to it. Each
// seal uses a fresh nonce, so comparing ciphertext would always differ.
func (g *GitSessionStore) Save(ctx context.Context, data string) error {
	sealed, err := g.box.Seal(data)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	return Update(ctx, g.store, KindSession, func(doc *models.SessionDocument) error {
		if doc.Session != nil {
			if current, err := g.box.Open(*doc.Session); err == nil && current == data {
				return ErrNoChange
			}
		}
		doc.Session = &sealed
		return nil
	})
}

func (g *GitSessionStore) Delete(ctx context.Context) error {
	return Update(ctx, g.store, KindSession, func(doc *models.SessionDocument) error {
		if doc.Session == nil {
			return ErrNoChange
		}
		doc.Session = nil
		return nil
	})
}
