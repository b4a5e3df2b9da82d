package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"telegram-bridge/internal/models"
	"telegram-bridge/internal/storage"
)

type fakeGitHub struct {
	mu        sync.Mutex
	ids       map[string]int64
	login     string
	labels    []string
	comments  []Comment
	reactions map[int64][]Reaction
	lookups   int
}

func (g *fakeGitHub) UserID(_ context.Context, username string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	id, ok := g.ids[strings.ToLower(username)]
	if !ok {
		return 0, fmt.Errorf("user %s: 404 Not Found", username)
	}
	return id, nil
}

func (g *fakeGitHub) Login(context.Context) (string, error) { return g.login, nil }

func (g *fakeGitHub) IssueLabels(context.Context, string, string, int) ([]string, error) {
	return g.labels, nil
}

func (g *fakeGitHub) ListComments(context.Context, string, string, int) ([]Comment, error) {
	return g.comments, nil
}

func (g *fakeGitHub) ListReactions(_ context.Context, _, _ string, id int64) ([]Reaction, error) {
	return g.reactions[id], nil
}

func (g *fakeGitHub) AddReaction(_ context.Context, _, _ string, id int64, content string) error {
	if g.reactions == nil {
		g.reactions = map[int64][]Reaction{}
	}
	g.reactions[id] = append(g.reactions[id], Reaction{User: g.login, Content: content})
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[int64]models.UserRecord
}

func newMemUsers(recs ...models.UserRecord) *memUsers {
	u := &memUsers{users: map[int64]models.UserRecord{}}
	for _, r := range recs {
		u.users[r.TelegramID] = r
	}
	return u
}

func (u *memUsers) All(context.Context) ([]models.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]models.UserRecord, 0, len(u.users))
	for _, r := range u.users {
		r.RfcComments = append([]models.RfcComment(nil), r.RfcComments...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out, nil
}

func (u *memUsers) FindByGitHubID(_ context.Context, id int64) (*models.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.users {
		if r.GitHubID == id {
			r.RfcComments = append([]models.RfcComment(nil), r.RfcComments...)
			return &r, nil
		}
	}
	return nil, storage.ErrRecordNotFound
}

func (u *memUsers) Modify(_ context.Context, telegramID int64, fn func(*models.UserRecord) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	r, ok := u.users[telegramID]
	if !ok {
		return storage.ErrRecordNotFound
	}
	r.RfcComments = append([]models.RfcComment(nil), r.RfcComments...)
	if err := fn(&r); err != nil {
		if errors.Is(err, storage.ErrNoChange) {
			return nil
		}
		return err
	}
	u.users[telegramID] = r
	return nil
}

func (u *memUsers) get(telegramID int64) models.UserRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.users[telegramID]
}

type dm struct {
	to   int64
	html string
}

type fakeMessenger struct {
	chats map[int64]bool
	sent  []dm
}

func (m *fakeMessenger) HasChat(_ context.Context, id int64) (bool, error) {
	return m.chats[id], nil
}

func (m *fakeMessenger) SendHTML(_ context.Context, id int64, html string) error {
	m.sent = append(m.sent, dm{id, html})
	return nil
}

func (m *fakeMessenger) to(id int64) []string {
	var out []string
	for _, d := range m.sent {
		if d.to == id {
			out = append(out, d.html)
		}
	}
	return out
}
