package storage

import (
	"context"
	"fmt"
	"sort"

	"telegram-bridge/internal/models"
)

// UserStore reads and writes UserRecords inside the user-base document.
type UserStore struct {
	store *Store
}

func NewUserStore(s *Store) *UserStore {
	return &UserStore{store: s}
}

// All returns every user ordered by telegram id.
func (u *UserStore) All(ctx context.Context) ([]models.UserRecord, error) {
	var doc models.UsersDocument
	if _, err := u.store.Get(ctx, KindUsers, &doc); err != nil {
		return nil, err
	}
	out := make([]models.UserRecord, 0, len(doc.Users))
	for _, rec := range doc.Users {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (u *UserStore) Get(ctx context.Context, telegramID int64) (*models.UserRecord, error) {
	var doc models.UsersDocument
	if _, err := u.store.Get(ctx, KindUsers, &doc); err != nil {
		return nil, err
	}
	rec, ok := doc.Users[(&models.UserRecord{TelegramID: telegramID}).Key()]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (u *UserStore) FindByGitHubID(ctx context.Context, githubID int64) (*models.UserRecord, error) {
	users, err := u.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].GitHubID != 0 && users[i].GitHubID == githubID {
			return &users[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

// Save inserts or replaces rec. A GitHub id may belong to one user only.
func (u *UserStore) Save(ctx context.Context, rec models.UserRecord) error {
	return Update(ctx, u.store, KindUsers, func(doc *models.UsersDocument) error {
		if doc.Users == nil {
			doc.Users = map[string]models.UserRecord{}
		}
		if err := checkGitHubID(doc, rec); err != nil {
			return err
		}
		doc.Users[rec.Key()] = rec
		return nil
	})
}

// Modify applies fn to the stored user with telegramID and writes it back.
// fn may return ErrNoChange to skip the write.
func (u *UserStore) Modify(ctx context.Context, telegramID int64, fn func(rec *models.UserRecord) error) error {
	key := (&models.UserRecord{TelegramID: telegramID}).Key()
	return Update(ctx, u.store, KindUsers, func(doc *models.UsersDocument) error {
		rec, ok := doc.Users[key]
		if !ok {
			return ErrRecordNotFound
		}
		if err := fn(&rec); err != nil {
			return err
		}
		if err := checkGitHubID(doc, rec); err != nil {
			return err
		}
		doc.Users[key] = rec
		return nil
	})
}

func (u *UserStore) Delete(ctx context.Context, telegramID int64) error {
	key := (&models.UserRecord{TelegramID: telegramID}).Key()
	return Update(ctx, u.store, KindUsers, func(doc *models.UsersDocument) error {
		if _, ok := doc.Users[key]; !ok {
			return ErrNoChange
		}
		delete(doc.Users, key)
		return nil
	})
}

func checkGitHubID(doc *models.UsersDocument, rec models.UserRecord) error {
	if rec.GitHubID == 0 {
		return nil
	}
	for key, other := range doc.Users {
		if key != rec.Key() && other.GitHubID == rec.GitHubID {
			return fmt.Errorf("%w: github id %d already linked to telegram user %d", ErrDuplicate, rec.GitHubID, other.TelegramID)
		}
	}
	return nil
}
