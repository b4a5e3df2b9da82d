package storage

import (
	"context"
	"errors"
	"fmt"

	"telegram-bridge/internal/models"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
)

// ChatStore reads and writes ChatRecords inside the chats document.
type ChatStore struct {
	store *Store
}

func NewChatStore(s *Store) *ChatStore {
	return &ChatStore{store: s}
}

func (c *ChatStore) All(ctx context.Context) ([]models.ChatRecord, error) {
	var doc models.ChatsDocument
	rev, err := c.store.Get(ctx, KindChats, &doc)
	if err != nil {
		return nil, err
	}
	for i := range doc.Chats {
		doc.Chats[i].Revision = rev
	}
	return doc.Chats, nil
}

// Find returns the record of the issue with taskNodeID or ErrRecordNotFound.
func (c *ChatStore) Find(ctx context.Context, taskNodeID string) (*models.ChatRecord, error) {
	chats, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].TaskNodeID == taskNodeID {
			return &chats[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

func (c *ChatStore) FindByChatID(ctx context.Context, chatID int64) (*models.ChatRecord, error) {
	chats, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if chats[i].ChatID == chatID {
			return &chats[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

// Insert adds a new record. The task and chat ids must both be unused.
func (c *ChatStore) Insert(ctx context.Context, rec models.ChatRecord) error {
	return Update(ctx, c.store, KindChats, func(doc *models.ChatsDocument) error {
		for _, existing := range doc.Chats {
			if existing.TaskNodeID == rec.TaskNodeID {
				return fmt.Errorf("%w: task %s already has chat %d", ErrDuplicate, rec.TaskNodeID, existing.ChatID)
			}
			if rec.ChatID != 0 && existing.ChatID == rec.ChatID {
				return fmt.Errorf("%w: chat %d already belongs to task %s", ErrDuplicate, rec.ChatID, existing.TaskNodeID)
			}
		}
		doc.Chats = append(doc.Chats, rec)
		return nil
	})
}

// Save replaces the stored record that has rec's task id.
func (c *ChatStore) Save(ctx context.Context, rec models.ChatRecord) error {
	return Update(ctx, c.store, KindChats, func(doc *models.ChatsDocument) error {
		for i := range doc.Chats {
			if doc.Chats[i].TaskNodeID == rec.TaskNodeID {
				doc.Chats[i] = rec
				return nil
			}
		}
		return ErrRecordNotFound
	})
}
