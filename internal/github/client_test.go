package github

import (
	"context"
	"encoding/base64"
	"testing"

	"telegram-bridge/internal/models"
	"telegram-bridge/internal/storage"

	"github.com/h2non/gock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apiURL    = "https://api.github.com"
	chatsPath = "/repos/ubq/store/contents/plugin-store/ubq/telegram-bridge/chat-storage.json"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	gh, err := NewClientFactory().NewClient(context.Background(), "ghp_test")
	require.NoError(t, err)
	return NewAPI(gh, "ubq", "store")
}

func fileJSON(body, sha string) map[string]any {
	return map[string]any{
		"type":     "file",
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte(body)),
		"sha":      sha,
	}
}

func TestGetContent(t *testing.T) {
	defer gock.Off()

	gock.New(apiURL).
		Get(chatsPath).
		MatchParam("ref", "__storage__").
		MatchHeader("Authorization", "Bearer ghp_test").
		Reply(200).
		JSON(fileJSON(`{"chats":[]}`, "abc"))

	body, rev, err := newTestAPI(t).GetContent(context.Background(), "plugin-store/ubq/telegram-bridge/chat-storage.json", "__storage__")
	require.NoError(t, err)
	assert.JSONEq(t, `{"chats":[]}`, string(body))
	assert.Equal(t, "abc", rev)
	assert.True(t, gock.IsDone())
}

func TestGetContentNotFound(t *testing.T) {
	defer gock.Off()

	gock.New(apiURL).Get(chatsPath).Reply(404).JSON(map[string]string{"message": "Not Found"})

	_, _, err := newTestAPI(t).GetContent(context.Background(), "plugin-store/ubq/telegram-bridge/chat-storage.json", "__storage__")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateOrUpdateConflict(t *testing.T) {
	defer gock.Off()

	gock.New(apiURL).
		Put(chatsPath).
		Reply(409).
		JSON(map[string]string{"message": "is at def but expected abc"})

	_, err := newTestAPI(t).CreateOrUpdate(context.Background(), "plugin-store/ubq/telegram-bridge/chat-storage.json", "__storage__", []byte(`{}`), "abc", "chore: update")
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestStoreBootstrapsThroughAPI(t *testing.T) {
	defer gock.Off()

	gock.New(apiURL).Get(chatsPath).Reply(404).JSON(map[string]string{"message": "No commit found for the ref __storage__"})
	gock.New(apiURL).Get("/repos/ubq/store/branches/__storage__").Reply(404).JSON(map[string]string{"message": "Branch not found"})
	gock.New(apiURL).Get("/repos/ubq/store$").Reply(200).JSON(map[string]any{"name": "store", "default_branch": "main"})
	gock.New(apiURL).Get("/repos/ubq/store/branches/main").Reply(200).JSON(map[string]any{"name": "main", "commit": map[string]any{"sha": "c0ffee"}})
	gock.New(apiURL).
		Post("/repos/ubq/store/git/refs").
		JSON(map[string]string{"ref": "refs/heads/__storage__", "sha": "c0ffee"}).
		Reply(201).
		JSON(map[string]any{"ref": "refs/heads/__storage__"})
	gock.New(apiURL).Get(chatsPath).Reply(404).JSON(map[string]string{"message": "Not Found"})
	gock.New(apiURL).Put(chatsPath).Reply(201).JSON(map[string]any{"content": map[string]any{"sha": "s1"}})
	gock.New(apiURL).Get(chatsPath).Reply(200).JSON(fileJSON(`{"chats":[]}`, "s1"))

	store := storage.New(newTestAPI(t), "ubq", "telegram-bridge", "__storage__", zerolog.Nop())

	var doc models.ChatsDocument
	rev, err := store.Get(context.Background(), storage.KindChats, &doc)
	require.NoError(t, err)
	assert.Equal(t, "s1", rev)
	assert.Empty(t, doc.Chats)
	assert.True(t, gock.IsDone())
}

func TestListCommentsPaginates(t *testing.T) {
	defer gock.Off()

	gock.New(apiURL).
		Get("/repos/ubq/devpool/issues/42/comments").
		MatchParam("page", "2").
		Reply(200).
		JSON([]map[string]any{{"id": 2, "body": "second", "user": map[string]any{"login": "bob"}, "created_at": "2026-05-02T10:00:00Z"}})
	gock.New(apiURL).
		Get("/repos/ubq/devpool/issues/42/comments").
		Reply(200).
		SetHeader("Link", `<https://api.github.com/repos/ubq/devpool/issues/42/comments?page=2>; rel="next"`).
		JSON([]map[string]any{{"id": 1, "body": "first", "user": map[string]any{"login": "alice"}, "created_at": "2026-05-01T10:00:00Z"}})

	comments, err := newTestAPI(t).ListComments(context.Background(), "ubq", "devpool", 42)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "alice", comments[0].Author)
	assert.Equal(t, "bob", comments[1].Author)
	assert.Equal(t, 2026, comments[1].CreatedAt.Year())
}

func TestReactionsAndUsers(t *testing.T) {
	defer gock.Off()

	gock.New(apiURL).Get("/users/alice").Reply(200).JSON(map[string]any{"login": "alice", "id": 501})
	gock.New(apiURL).Get("/user$").Reply(200).JSON(map[string]any{"login": "bridge-bot", "id": 9})
	gock.New(apiURL).
		Get("/repos/ubq/devpool/issues/comments/77/reactions").
		Reply(200).
		JSON([]map[string]any{{"content": "eyes", "user": map[string]any{"login": "bridge-bot"}}})
	gock.New(apiURL).
		Post("/repos/ubq/devpool/issues/comments/77/reactions").
		JSON(map[string]string{"content": "eyes"}).
		Reply(201).
		JSON(map[string]any{"content": "eyes"})

	api := newTestAPI(t)
	ctx := context.Background()

	id, err := api.UserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(501), id)

	login, err := api.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bridge-bot", login)

	reactions, err := api.ListReactions(ctx, "ubq", "devpool", 77)
	require.NoError(t, err)
	assert.Equal(t, "bridge-bot", reactions[0].User)

	require.NoError(t, api.AddReaction(ctx, "ubq", "devpool", 77, "eyes"))
	assert.True(t, gock.IsDone())
}
