package notify

import (
	"context"
	"testing"
	"time"

	"telegram-bridge/internal/clock"
	"telegram-bridge/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

var thread = IssueRef{
	Owner:  "ubiquity",
	Repo:   "devpool",
	Number: 42,
	Title:  "Add retries",
	URL:    "https://github.com/ubiquity/devpool/issues/42",
}

func user(tg, gh int64, login string, triggers ...models.Trigger) models.UserRecord {
	listening := map[models.Trigger]bool{}
	for _, t := range triggers {
		listening[t] = true
	}
	return models.UserRecord{TelegramID: tg, GitHubID: gh, GitHubUsername: login, ListeningTo: listening}
}

type fixture struct {
	s     *Scheduler
	gh    *fakeGitHub
	users *memUsers
	msgr  *fakeMessenger
	clock *clock.FakeClock
}

func newFixture(t *testing.T, recs ...models.UserRecord) *fixture {
	t.Helper()
	f := &fixture{
		gh: &fakeGitHub{
			ids:   map[string]int64{"alice": 501, "bob": 502, "carol": 503},
			login: "bridge-bot",
		},
		users: newMemUsers(recs...),
		msgr:  &fakeMessenger{chats: map[int64]bool{}},
		clock: clock.Fake(t0),
	}
	for _, r := range recs {
		f.msgr.chats[r.TelegramID] = true
	}
	f.s = New(f.gh, f.users, f.msgr, f.clock, zerolog.Nop())
	return f
}

func commentEvent(id int64, author, body string, at time.Time) CommentEvent {
	return CommentEvent{
		Issue: thread,
		Comment: Comment{
			ID:        id,
			Author:    author,
			Body:      body,
			URL:       thread.URL + "#issuecomment-1",
			CreatedAt: at,
		},
	}
}

func TestPaymentRespectsSubscription(t *testing.T) {
	f := newFixture(t,
		user(1, 501, "alice", models.TriggerPayment),
		user(2, 502, "bob"),
	)

	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(9, "ubiquity-os", paymentBody, t0)))

	alice := f.msgr.to(1)
	require.Len(t, alice, 1)
	assert.Contains(t, alice[0], "https://pay.ubq.fi?claim=abc123")
	assert.Contains(t, alice[0], "ubiquity/devpool#42")
	assert.Empty(t, f.msgr.to(2), "bob is not listening to payments")
}

func TestPaymentWithoutClaimIsDropped(t *testing.T) {
	f := newFixture(t, user(3, 503, "carol", models.TriggerPayment))

	body := "@carol [ 5 DAI ] https://pay.ubq.fi?claim=x"
	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(9, "ubiquity-os", body, t0)))
	assert.Empty(t, f.msgr.sent)
}

func TestNoDirectChatNoDelivery(t *testing.T) {
	f := newFixture(t, user(1, 501, "alice", models.TriggerReminder))
	f.msgr.chats[1] = false

	body := "@alice, this task has been idle for a while. Please provide an update."
	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(9, "ubiquity-os", body, t0)))
	assert.Empty(t, f.msgr.sent)
}

func TestUnresolvableUserIsSkipped(t *testing.T) {
	f := newFixture(t, user(1, 501, "alice", models.TriggerReminder))

	body := "@ghost, this task has been idle for a while.\n@alice, this task has been idle for a while."
	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(9, "ubiquity-os", body, t0)))
	assert.Len(t, f.msgr.to(1), 1)
	assert.Len(t, f.msgr.sent, 1)
}

func TestAdditionalListeners(t *testing.T) {
	lead := user(7, 0, "", models.TriggerReview)
	lead.AdditionalListeners = []string{"Alice"}
	f := newFixture(t, user(1, 501, "alice", models.TriggerReview), lead)

	ev := AssignmentEvent{Issue: thread, Actor: "bob", Target: "alice"}
	require.NoError(t, f.s.HandleReviewRequested(context.Background(), ev))

	assert.Len(t, f.msgr.to(1), 1)
	require.Len(t, f.msgr.to(7), 1)
	assert.Contains(t, f.msgr.to(7)[0], "bob")
}

func TestAssignmentSkipsSelfAction(t *testing.T) {
	f := newFixture(t, user(1, 501, "alice", models.TriggerDisqualification))

	require.NoError(t, f.s.HandleUnassigned(context.Background(), AssignmentEvent{Issue: thread, Actor: "Alice", Target: "alice"}))
	assert.Empty(t, f.msgr.sent)

	require.NoError(t, f.s.HandleUnassigned(context.Background(), AssignmentEvent{Issue: thread, Actor: "bob", Target: "alice"}))
	require.Len(t, f.msgr.to(1), 1)
	assert.Contains(t, f.msgr.to(1)[0], "Unassigned")
}

func TestUsernameLookupsAreCached(t *testing.T) {
	f := newFixture(t, user(1, 501, "alice", models.TriggerReview))

	ev := AssignmentEvent{Issue: thread, Actor: "bob", Target: "alice"}
	require.NoError(t, f.s.HandleReviewRequested(context.Background(), ev))
	require.NoError(t, f.s.HandleReviewRequested(context.Background(), ev))
	assert.Equal(t, 1, f.gh.lookups)
}

func TestRFCCaptureUsesPriorityWindow(t *testing.T) {
	f := newFixture(t, user(2, 502, "bob", models.TriggerRFC))
	f.gh.labels = []string{"Priority: 3 (High)"}

	ev := commentEvent(77, "alice", "rfc @bob should we retry on 502?", t0)
	require.NoError(t, f.s.HandleComment(context.Background(), ev))

	require.Len(t, f.msgr.to(2), 1, "immediate rfc notice")
	rec := f.users.get(2)
	require.Len(t, rec.RfcComments, 1)
	rfc := rec.RfcComments[0]
	assert.Equal(t, int64(77), rfc.CommentID)
	assert.Equal(t, "72h0m0s", rfc.FollowUpAllowedAfter)
	assert.Equal(t, 42, rfc.IssueNumber)
	assert.Nil(t, rfc.LastPush)
}

func TestRFCNotCapturedWhenMuted(t *testing.T) {
	f := newFixture(t, user(2, 502, "bob"))

	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(77, "alice", "rfc @bob", t0)))
	assert.Empty(t, f.users.get(2).RfcComments)
	assert.Empty(t, f.msgr.sent)
}

func pendingRFC(id int64, window string, created time.Time) models.RfcComment {
	return models.RfcComment{
		CommentID:            id,
		CommentURL:           thread.URL + "#issuecomment-77",
		CommentText:          "rfc @bob should we retry on 502?",
		Owner:                thread.Owner,
		Repo:                 thread.Repo,
		IssueNumber:          thread.Number,
		CreatedAt:            created,
		FollowUpAllowedAfter: window,
	}
}

func TestSweepFollowsUpOnceAndReactsOnce(t *testing.T) {
	bob := user(2, 502, "bob", models.TriggerRFC)
	bob.RfcComments = []models.RfcComment{pendingRFC(77, "24h0m0s", t0.Add(-25*time.Hour))}
	f := newFixture(t, bob)
	f.gh.comments = []Comment{{ID: 77, Author: "alice", CreatedAt: t0.Add(-25 * time.Hour)}}

	require.NoError(t, f.s.Sweep(context.Background()))
	require.Len(t, f.msgr.to(2), 1)
	assert.Contains(t, f.msgr.to(2)[0], "not answered")

	rfc := f.users.get(2).RfcComments[0]
	require.NotNil(t, rfc.LastPush)
	assert.True(t, rfc.LastPush.Equal(t0))
	assert.Equal(t, []Reaction{{User: "bridge-bot", Content: AckReaction}}, f.gh.reactions[77])

	// not due again until another window has passed
	require.NoError(t, f.s.Sweep(context.Background()))
	assert.Len(t, f.msgr.to(2), 1)

	f.clock.Advance(25 * time.Hour)
	require.NoError(t, f.s.Sweep(context.Background()))
	assert.Len(t, f.msgr.to(2), 2)
	assert.Len(t, f.gh.reactions[77], 1, "reaction is not duplicated")
}

func TestSweepRemovesAnsweredEntries(t *testing.T) {
	bob := user(2, 502, "bob", models.TriggerRFC)
	bob.RfcComments = []models.RfcComment{pendingRFC(77, "24h0m0s", t0.Add(-48*time.Hour))}
	f := newFixture(t, bob)
	f.gh.comments = []Comment{
		{ID: 77, Author: "alice", CreatedAt: t0.Add(-48 * time.Hour)},
		{ID: 78, Author: "Bob", CreatedAt: t0.Add(-47 * time.Hour)},
	}

	require.NoError(t, f.s.Sweep(context.Background()))
	assert.Empty(t, f.msgr.sent)
	assert.Empty(t, f.users.get(2).RfcComments)

	f.clock.Advance(100 * time.Hour)
	require.NoError(t, f.s.Sweep(context.Background()))
	assert.Empty(t, f.msgr.sent)
}

func TestReplyInThreadDropsPendingRFC(t *testing.T) {
	bob := user(2, 502, "bob", models.TriggerRFC)
	bob.RfcComments = []models.RfcComment{pendingRFC(77, "120h0m0s", t0.Add(-time.Hour))}
	f := newFixture(t, bob)

	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(80, "bob", "yes, retry with backoff", t0)))
	assert.Empty(t, f.users.get(2).RfcComments)
	assert.Empty(t, f.msgr.sent)
}

func TestSweepSkipsBadWindow(t *testing.T) {
	bob := user(2, 502, "bob", models.TriggerRFC)
	bob.RfcComments = []models.RfcComment{
		pendingRFC(76, "soon", t0.Add(-48*time.Hour)),
		pendingRFC(77, "24h0m0s", t0.Add(-48*time.Hour)),
	}
	f := newFixture(t, bob)

	require.NoError(t, f.s.Sweep(context.Background()))
	assert.Len(t, f.msgr.to(2), 1)
}

func TestTriggerCommentStillAnswersPendingRFC(t *testing.T) {
	bob := user(2, 502, "bob", models.TriggerRFC)
	bob.RfcComments = []models.RfcComment{pendingRFC(77, "120h0m0s", t0.Add(-time.Hour))}
	f := newFixture(t, bob, user(1, 501, "alice", models.TriggerPayment))

	require.NoError(t, f.s.HandleComment(context.Background(), commentEvent(81, "bob", paymentBody, t0)))
	assert.Empty(t, f.users.get(2).RfcComments)
	assert.Len(t, f.msgr.to(1), 1, "the payment is still delivered")
}

func TestSweepRemovesAnsweredEntryBeforeWindow(t *testing.T) {
	bob := user(2, 502, "bob", models.TriggerRFC)
	bob.RfcComments = []models.RfcComment{pendingRFC(77, "120h0m0s", t0.Add(-2*time.Hour))}
	f := newFixture(t, bob)
	f.gh.comments = []Comment{
		{ID: 77, Author: "alice", CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: 78, Author: "bob", CreatedAt: t0.Add(-time.Hour)},
	}

	require.NoError(t, f.s.Sweep(context.Background()))
	assert.Empty(t, f.users.get(2).RfcComments)
	assert.Empty(t, f.msgr.sent)
}
