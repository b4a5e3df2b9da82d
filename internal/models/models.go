package models

import (
	"slices"
	"strconv"
	"time"
)

type ChatStatus string

const (
	ChatOpen     ChatStatus = "open"
	ChatClosed   ChatStatus = "closed"
	ChatReopened ChatStatus = "reopened"
)

// CanTransition reports whether a record in status from may move to to.
// An empty from means no record exists yet.
func CanTransition(from, to ChatStatus) bool {
	switch to {
	case ChatOpen:
		return from == ""
	case ChatClosed:
		return from == ChatOpen || from == ChatReopened
	case ChatReopened:
		return from == ChatClosed
	}
	return false
}

// ChatRecord links a GitHub issue to its workroom.
type ChatRecord struct {
	Status     ChatStatus `json:"status"`
	TaskNodeID string     `json:"taskNodeId"`
	ChatID     int64      `json:"chatId"`
	ChatName   string     `json:"chatName"`
	UserIDs    []int64    `json:"userIds"`
	// AccessHashes holds the provider access hash of each snapshotted member.
	AccessHashes map[int64]int64 `json:"accessHashes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ModifiedAt   time.Time       `json:"modifiedAt"`

	// Revision of the storage document this record was read from.
	Revision string `json:"-"`
}

// MergeSnapshot adds ids to UserIDs in order, skipping those already
// present, and records their access hashes. Earlier entries are never
// dropped, so a close that is retried after members were removed keeps them.
func (r *ChatRecord) MergeSnapshot(ids []int64, hashes map[int64]int64) {
	for _, id := range ids {
		if !slices.Contains(r.UserIDs, id) {
			r.UserIDs = append(r.UserIDs, id)
		}
	}
	for id, hash := range hashes {
		if hash == 0 {
			continue
		}
		if r.AccessHashes == nil {
			r.AccessHashes = map[int64]int64{}
		}
		r.AccessHashes[id] = hash
	}
}

type Trigger string

const (
	TriggerPayment          Trigger = "payment"
	TriggerReminder         Trigger = "reminder"
	TriggerDisqualification Trigger = "disqualification"
	TriggerReview           Trigger = "review"
	TriggerRFC              Trigger = "rfc"
)

var AllTriggers = []Trigger{
	TriggerPayment,
	TriggerReminder,
	TriggerDisqualification,
	TriggerReview,
	TriggerRFC,
}

// UserRecord is a Telegram user linked to a GitHub account.
type UserRecord struct {
	TelegramID          int64            `json:"telegramId"`
	GitHubID            int64            `json:"githubId,omitempty"`
	GitHubUsername      string           `json:"githubUsername"`
	WalletAddress       *string          `json:"walletAddress"`
	ListeningTo         map[Trigger]bool `json:"listeningTo"`
	AdditionalListeners []string         `json:"additionalListeners"`
	RfcComments         []RfcComment     `json:"rfcComments"`
}

func (u *UserRecord) Key() string {
	return strconv.FormatInt(u.TelegramID, 10)
}

func (u *UserRecord) IsListening(t Trigger) bool {
	return u.ListeningTo[t]
}

// UpsertRfcComment replaces the entry with the same comment id or appends c.
func (u *UserRecord) UpsertRfcComment(c RfcComment) {
	for i := range u.RfcComments {
		if u.RfcComments[i].CommentID == c.CommentID {
			u.RfcComments[i] = c
			return
		}
	}
	u.RfcComments = append(u.RfcComments, c)
}

func (u *UserRecord) RemoveRfcComment(commentID int64) bool {
	before := len(u.RfcComments)
	u.RfcComments = slices.DeleteFunc(u.RfcComments, func(c RfcComment) bool {
		return c.CommentID == commentID
	})
	return len(u.RfcComments) != before
}

// RfcComment is a request for comment addressed to the owning user that has
// not been answered yet.
type RfcComment struct {
	CommentID            int64      `json:"commentId"`
	CommentURL           string     `json:"commentUrl"`
	CommentText          string     `json:"commentText"`
	Owner                string     `json:"owner"`
	Repo                 string     `json:"repo"`
	IssueNumber          int        `json:"issueNumber"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	FollowUpAllowedAfter string     `json:"followUpAllowedAfter"`
	LastPush             *time.Time `json:"lastPush"`
}

// Due reports whether a follow-up may be sent at now.
func (c *RfcComment) Due(now time.Time) (bool, error) {
	window, err := time.ParseDuration(c.FollowUpAllowedAfter)
	if err != nil {
		return false, err
	}
	since := c.CreatedAt
	if c.LastPush != nil {
		since = *c.LastPush
	}
	return now.Sub(since) > window, nil
}

// Storage documents, one JSON file each.

type ChatsDocument struct {
	Chats []ChatRecord `json:"chats"`
}

type UsersDocument struct {
	Users map[string]UserRecord `json:"users"`
}

type SessionDocument struct {
	Session *string `json:"session"`
}
