package workroom

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"telegram-bridge/internal/models"
	"telegram-bridge/internal/storage"
)

type memChats struct {
	mu   sync.Mutex
	recs map[string]models.ChatRecord

	saves int
	// failSave makes the save with this 1-based number fail.
	failSave int
}

func newMemChats(recs ...models.ChatRecord) *memChats {
	c := &memChats{recs: map[string]models.ChatRecord{}}
	for _, r := range recs {
		c.recs[r.TaskNodeID] = r
	}
	return c
}

func (c *memChats) Find(_ context.Context, id string) (*models.ChatRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.recs[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	r.UserIDs = append([]int64(nil), r.UserIDs...)
	r.AccessHashes = maps.Clone(r.AccessHashes)
	return &r, nil
}

func (c *memChats) Insert(_ context.Context, rec models.ChatRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.recs[rec.TaskNodeID]; ok {
		return storage.ErrDuplicate
	}
	c.recs[rec.TaskNodeID] = rec
	return nil
}

func (c *memChats) Save(_ context.Context, rec models.ChatRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if c.saves == c.failSave {
		return errors.New("storage: 502 bad gateway")
	}
	if _, ok := c.recs[rec.TaskNodeID]; !ok {
		return storage.ErrRecordNotFound
	}
	c.recs[rec.TaskNodeID] = rec
	return nil
}

func (c *memChats) get(id string) models.ChatRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recs[id]
}

type floodWait time.Duration

func (f floodWait) Error() string             { return fmt.Sprintf("FLOOD_WAIT (%s)", time.Duration(f)) }
func (f floodWait) RetryAfter() time.Duration { return time.Duration(f) }

// fakeProtocol records every call. failOnce errors are returned the first
// time a member op hits that user; failAlways errors on every attempt.
type fakeProtocol struct {
	self       int64
	nextChatID int64
	link       string
	members    *Membership

	createErr  error
	panicOn    string
	failOnce   map[int64]error
	failAlways map[int64]error

	calls    []string
	created  []int64
	removed  []int64
	added    []int64
	attempts []int64
	messages []string
	archived bool

	// hashes is what the session can address; addedHashes is the hash each
	// AddMember went out with.
	hashes      map[int64]int64
	addedHashes map[int64]int64
}

func (p *fakeProtocol) SelfID() int64 { return p.self }

func (p *fakeProtocol) Remember(hashes map[int64]int64) {
	if p.hashes == nil {
		p.hashes = map[int64]int64{}
	}
	for id, hash := range hashes {
		p.hashes[id] = hash
	}
}

func (p *fakeProtocol) CreateGroup(_ context.Context, title string, members []int64) (int64, error) {
	p.calls = append(p.calls, "create:"+title)
	if p.panicOn == "create" {
		panic("protocol exploded")
	}
	if p.createErr != nil {
		return 0, p.createErr
	}
	p.created = append(p.created, p.nextChatID)
	return p.nextChatID, nil
}

func (p *fakeProtocol) ExportInviteLink(context.Context, int64) (string, error) {
	p.calls = append(p.calls, "link")
	return p.link, nil
}

func (p *fakeProtocol) SetDescription(_ context.Context, _ int64, about string) error {
	p.calls = append(p.calls, "about:"+about)
	return nil
}

func (p *fakeProtocol) PromoteAdmin(_ context.Context, _ int64, userID int64) error {
	p.calls = append(p.calls, fmt.Sprintf("promote:%d", userID))
	return nil
}

func (p *fakeProtocol) Archive(context.Context, int64) error {
	p.calls = append(p.calls, "archive")
	p.archived = true
	return nil
}

func (p *fakeProtocol) Unarchive(context.Context, int64) error {
	p.calls = append(p.calls, "unarchive")
	p.archived = false
	return nil
}

func (p *fakeProtocol) GetFullChat(context.Context, int64) (*Membership, error) {
	p.calls = append(p.calls, "full")
	return p.members, nil
}

func (p *fakeProtocol) memberOp(userID int64) error {
	p.attempts = append(p.attempts, userID)
	if err, ok := p.failOnce[userID]; ok {
		delete(p.failOnce, userID)
		return err
	}
	return p.failAlways[userID]
}

func (p *fakeProtocol) AddMember(_ context.Context, _ int64, userID int64) error {
	if err := p.memberOp(userID); err != nil {
		return err
	}
	p.added = append(p.added, userID)
	if p.addedHashes == nil {
		p.addedHashes = map[int64]int64{}
	}
	p.addedHashes[userID] = p.hashes[userID]
	return nil
}

func (p *fakeProtocol) RemoveMember(_ context.Context, _ int64, userID int64) error {
	if err := p.memberOp(userID); err != nil {
		return err
	}
	p.removed = append(p.removed, userID)
	if p.members != nil {
		p.members.Participants = slices.DeleteFunc(p.members.Participants, func(part Participant) bool {
			return part.UserID == userID
		})
	}
	return nil
}

func (p *fakeProtocol) SendMessage(_ context.Context, _ int64, text string) error {
	p.messages = append(p.messages, text)
	return nil
}

type fakeConnector struct {
	p     *fakeProtocol
	err   error
	opens int
}

func (c *fakeConnector) Connect(ctx context.Context, fn func(context.Context, Protocol) error) error {
	c.opens++
	if c.err != nil {
		return c.err
	}
	return fn(ctx, c.p)
}

type comment struct {
	owner, repo string
	number      int
	body        string
}

type fakeCommenter struct {
	err      error
	comments []comment
}

func (f *fakeCommenter) CreateComment(_ context.Context, owner, repo string, number int, body string) error {
	if f.err != nil {
		return f.err
	}
	f.comments = append(f.comments, comment{owner, repo, number, body})
	return nil
}
