// Package workroom drives the group chat that accompanies each GitHub issue
// through its create, close and reopen transitions.
package workroom

import (
	"context"
	"slices"
)

// Participant is one member of a workroom as reported by the provider.
type Participant struct {
	UserID int64
	// AccessHash lets a later session address the user once they have left.
	AccessHash int64
	Creator    bool
	Admin      bool
}

// Membership is the provider's view of a chat's members. Forbidden is set
// when the provider hid the member list, which is not the expected shape.
type Membership struct {
	Participants []Participant
	Forbidden    bool
}

// CreatorID returns the id of the chat creator, or 0 when it is not listed.
func (m *Membership) CreatorID() int64 {
	for _, p := range m.Participants {
		if p.Creator {
			return p.UserID
		}
	}
	return 0
}

// MemberIDs returns every participant id plus extra, without duplicates.
func (m *Membership) MemberIDs(extra ...int64) []int64 {
	ids := make([]int64, 0, len(m.Participants)+len(extra))
	for _, p := range m.Participants {
		ids = append(ids, p.UserID)
	}
	for _, id := range extra {
		if id != 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// AccessHashes returns the known access hashes keyed by user id.
func (m *Membership) AccessHashes() map[int64]int64 {
	hashes := map[int64]int64{}
	for _, p := range m.Participants {
		if p.AccessHash != 0 {
			hashes[p.UserID] = p.AccessHash
		}
	}
	return hashes
}

// Protocol is the group-chat client the workroom machine drives. Any call may
// fail with an error implementing membership.RateLimited.
type Protocol interface {
	// SelfID is the account the protocol client is logged in as.
	SelfID() int64
	// Remember makes access hashes from an earlier session usable by the
	// member calls of this one.
	Remember(hashes map[int64]int64)
	CreateGroup(ctx context.Context, title string, members []int64) (chatID int64, err error)
	ExportInviteLink(ctx context.Context, chatID int64) (string, error)
	SetDescription(ctx context.Context, chatID int64, about string) error
	PromoteAdmin(ctx context.Context, chatID, userID int64) error
	Archive(ctx context.Context, chatID int64) error
	Unarchive(ctx context.Context, chatID int64) error
	GetFullChat(ctx context.Context, chatID int64) (*Membership, error)
	AddMember(ctx context.Context, chatID, userID int64) error
	RemoveMember(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Connector opens a protocol session for the duration of fn.
type Connector interface {
	Connect(ctx context.Context, fn func(ctx context.Context, p Protocol) error) error
}

// Issue identifies the GitHub issue a transition is about.
type Issue struct {
	NodeID  string
	Owner   string
	Repo    string
	Number  int
	Title   string
	HTMLURL string
}
