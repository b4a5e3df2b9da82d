package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"telegram-bridge/internal/workroom"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

const archiveFolder = 1

var ErrNotAuthorized = errors.New("telegram: no authorized session, run `bridge login`")

type Credentials struct {
	AppID   int
	AppHash string
}

// MTProto opens user-account sessions for workroom transitions. Each Connect
// starts a fresh client from the stored session and closes it when fn
// returns.
type MTProto struct {
	creds    Credentials
	sessions SessionStore
	// botUsername resolves the Bot API account so it can be added to chats.
	botUsername func(ctx context.Context) (string, error)
	log         zerolog.Logger
}

func NewMTProto(creds Credentials, sessions SessionStore, botUsername func(context.Context) (string, error), log zerolog.Logger) *MTProto {
	return &MTProto{
		creds:       creds,
		sessions:    sessions,
		botUsername: botUsername,
		log:         log.With().Str("component", "mtproto").Logger(),
	}
}

// newClient builds a client over the stored session. Only login needs its
// session writes to succeed.
func (m *MTProto) newClient(bestEffort bool) *telegram.Client {
	return telegram.NewClient(m.creds.AppID, m.creds.AppHash, telegram.Options{
		SessionStorage: sessionStorage{store: m.sessions, bestEffort: bestEffort, log: m.log},
		NoUpdates:      true,
	})
}

func (m *MTProto) Connect(ctx context.Context, fn func(context.Context, workroom.Protocol) error) error {
	client := m.newClient(true)
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("self: %w", err)
		}

		p := newProtocol(client.API(), self.ID)
		if m.botUsername != nil {
			if err := p.resolveBot(ctx, m.botUsername); err != nil {
				m.log.Warn().Err(err).Msg("bot account not resolved, adding it may fail")
			}
		}
		return fn(ctx, p)
	})
}

// protocol implements workroom.Protocol over basic group chats.
type protocol struct {
	api  *tg.Client
	self int64

	mu     sync.Mutex
	hashes map[int64]int64
}

func newProtocol(api *tg.Client, self int64) *protocol {
	return &protocol{api: api, self: self, hashes: map[int64]int64{}}
}

func (p *protocol) SelfID() int64 { return p.self }

func (p *protocol) resolveBot(ctx context.Context, username func(context.Context) (string, error)) error {
	name, err := username(ctx)
	if err != nil {
		return err
	}
	resolved, err := peer.DefaultResolver(p.api).ResolveDomain(ctx, name)
	if err != nil {
		return wrap("resolve bot", err)
	}
	u, ok := resolved.(*tg.InputPeerUser)
	if !ok {
		return fmt.Errorf("resolve bot: @%s is not a user", name)
	}
	p.mu.Lock()
	p.hashes[u.UserID] = u.AccessHash
	p.mu.Unlock()
	return nil
}

// remember caches access hashes so later calls can address these users.
func (p *protocol) remember(users []tg.UserClass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.AccessHash != 0 {
			p.hashes[user.ID] = user.AccessHash
		}
	}
}

// Remember seeds access hashes recorded by an earlier session, typically the
// member hashes a closed workroom kept on its record. Hashes already seen in
// this session win.
func (p *protocol) Remember(hashes map[int64]int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, hash := range hashes {
		if _, ok := p.hashes[id]; !ok && hash != 0 {
			p.hashes[id] = hash
		}
	}
}

func (p *protocol) accessHash(userID int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hashes[userID]
}

// inputUser addresses userID with the best access hash known. A user never
// seen in this session nor remembered goes out with hash 0 and the server
// may reject the call.
func (p *protocol) inputUser(userID int64) tg.InputUserClass {
	if userID == p.self {
		return &tg.InputUserSelf{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &tg.InputUser{UserID: userID, AccessHash: p.hashes[userID]}
}

func chatPeer(chatID int64) *tg.InputPeerChat {
	return &tg.InputPeerChat{ChatID: chatID}
}

func (p *protocol) CreateGroup(ctx context.Context, title string, members []int64) (int64, error) {
	users := make([]tg.InputUserClass, 0, len(members))
	for _, id := range members {
		users = append(users, p.inputUser(id))
	}

	res, err := p.api.MessagesCreateChat(ctx, &tg.MessagesCreateChatRequest{Users: users, Title: title})
	if err != nil {
		return 0, wrap("create chat", err)
	}

	chats, created := updateEntities(res.Updates)
	p.remember(created)
	for _, c := range chats {
		if chat, ok := c.(*tg.Chat); ok {
			return chat.ID, nil
		}
	}
	return 0, errors.New("create chat: no chat in response")
}

func (p *protocol) ExportInviteLink(ctx context.Context, chatID int64) (string, error) {
	res, err := p.api.MessagesExportChatInvite(ctx, &tg.MessagesExportChatInviteRequest{Peer: chatPeer(chatID)})
	if err != nil {
		return "", wrap("export invite", err)
	}
	if invite, ok := res.(*tg.ChatInviteExported); ok {
		return invite.Link, nil
	}
	return "", fmt.Errorf("export invite: unexpected %T", res)
}

func (p *protocol) SetDescription(ctx context.Context, chatID int64, about string) error {
	_, err := p.api.MessagesEditChatAbout(ctx, &tg.MessagesEditChatAboutRequest{Peer: chatPeer(chatID), About: about})
	return wrap("edit about", err)
}

func (p *protocol) PromoteAdmin(ctx context.Context, chatID, userID int64) error {
	_, err := p.api.MessagesEditChatAdmin(ctx, &tg.MessagesEditChatAdminRequest{
		ChatID:  chatID,
		UserID:  p.inputUser(userID),
		IsAdmin: true,
	})
	return wrap("promote admin", err)
}

func (p *protocol) Archive(ctx context.Context, chatID int64) error {
	return p.moveToFolder(ctx, chatID, archiveFolder)
}

func (p *protocol) Unarchive(ctx context.Context, chatID int64) error {
	return p.moveToFolder(ctx, chatID, 0)
}

func (p *protocol) moveToFolder(ctx context.Context, chatID int64, folder int) error {
	_, err := p.api.FoldersEditPeerFolders(ctx, []tg.InputFolderPeer{{Peer: chatPeer(chatID), FolderID: folder}})
	return wrap("edit peer folders", err)
}

func (p *protocol) GetFullChat(ctx context.Context, chatID int64) (*workroom.Membership, error) {
	res, err := p.api.MessagesGetFullChat(ctx, chatID)
	if err != nil {
		return nil, wrap("get full chat", err)
	}
	p.remember(res.Users)

	full, ok := res.FullChat.(*tg.ChatFull)
	if !ok {
		return nil, fmt.Errorf("get full chat: unexpected %T", res.FullChat)
	}

	participants, ok := full.Participants.(*tg.ChatParticipants)
	if !ok {
		return &workroom.Membership{Forbidden: true}, nil
	}

	m := &workroom.Membership{Participants: make([]workroom.Participant, 0, len(participants.Participants))}
	for _, part := range participants.Participants {
		entry := workroom.Participant{UserID: part.GetUserID(), AccessHash: p.accessHash(part.GetUserID())}
		switch part.(type) {
		case *tg.ChatParticipantCreator:
			entry.Creator = true
			entry.Admin = true
		case *tg.ChatParticipantAdmin:
			entry.Admin = true
		}
		m.Participants = append(m.Participants, entry)
	}
	return m, nil
}

func (p *protocol) AddMember(ctx context.Context, chatID, userID int64) error {
	_, err := p.api.MessagesAddChatUser(ctx, &tg.MessagesAddChatUserRequest{
		ChatID:   chatID,
		UserID:   p.inputUser(userID),
		FwdLimit: 50,
	})
	return wrap("add chat user", err)
}

func (p *protocol) RemoveMember(ctx context.Context, chatID, userID int64) error {
	_, err := p.api.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
		ChatID: chatID,
		UserID: p.inputUser(userID),
	})
	return wrap("delete chat user", err)
}

func (p *protocol) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := p.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     chatPeer(chatID),
		Message:  text,
		RandomID: rand.Int64(),
	})
	return wrap("send message", err)
}

func updateEntities(u tg.UpdatesClass) ([]tg.ChatClass, []tg.UserClass) {
	switch u := u.(type) {
	case *tg.Updates:
		return u.Chats, u.Users
	case *tg.UpdatesCombined:
		return u.Chats, u.Users
	}
	return nil, nil
}
