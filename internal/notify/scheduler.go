// Package notify turns GitHub activity into direct messages for the users
// subscribed to it and chases unanswered requests for comment.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-bridge/internal/cache"
	"telegram-bridge/internal/clock"
	"telegram-bridge/internal/metrics"
	"telegram-bridge/internal/models"
	"telegram-bridge/internal/storage"

	"github.com/rs/zerolog"
)

const (
	// AckReaction marks an RFC comment this bridge has already followed up on.
	AckReaction = "eyes"

	defaultWindow = 120 * time.Hour
	userIDTTL     = time.Hour
)

type Comment struct {
	ID        int64
	Author    string
	Body      string
	URL       string
	CreatedAt time.Time
}

type Reaction struct {
	User    string
	Content string
}

// GitHub is the slice of the hosting API the scheduler reads from.
type GitHub interface {
	UserID(ctx context.Context, username string) (int64, error)
	// Login is the account the client is authenticated as.
	Login(ctx context.Context) (string, error)
	IssueLabels(ctx context.Context, owner, repo string, number int) ([]string, error)
	ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error)
	ListReactions(ctx context.Context, owner, repo string, commentID int64) ([]Reaction, error)
	AddReaction(ctx context.Context, owner, repo string, commentID int64, content string) error
}

type Users interface {
	All(ctx context.Context) ([]models.UserRecord, error)
	FindByGitHubID(ctx context.Context, githubID int64) (*models.UserRecord, error)
	Modify(ctx context.Context, telegramID int64, fn func(rec *models.UserRecord) error) error
}

// Messenger delivers direct messages. HasChat reports whether the user has
// ever started a conversation with the bot.
type Messenger interface {
	HasChat(ctx context.Context, userID int64) (bool, error)
	SendHTML(ctx context.Context, userID int64, html string) error
}

// IssueRef locates an issue or pull request.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
	Title  string
	URL    string
}

type CommentEvent struct {
	Issue   IssueRef
	Comment Comment
}

// AssignmentEvent covers unassignment and review requests: Actor is the
// user who acted, Target the user affected.
type AssignmentEvent struct {
	Issue  IssueRef
	Actor  string
	Target string
}

// Outcome labels a delivery attempt in logs and metrics.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeMuted      Outcome = "muted"
	OutcomeNoClaim    Outcome = "no_claim"
	OutcomeNoChat     Outcome = "no_chat"
	OutcomeSelfAction Outcome = "self_action"
	OutcomeFailed     Outcome = "failed"
)

type Scheduler struct {
	gh    GitHub
	users Users
	msgr  Messenger
	clock clock.Clock
	log   zerolog.Logger

	ids *cache.Cache[string, int64]

	loginMu sync.Mutex
	login   string
}

func New(gh GitHub, users Users, msgr Messenger, c clock.Clock, log zerolog.Logger) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{
		gh:    gh,
		users: users,
		msgr:  msgr,
		clock: c,
		log:   log.With().Str("component", "notify").Logger(),
		ids:   cache.New[string, int64](),
	}
}

// IDCache exposes the username cache so the caller can run its janitor.
func (s *Scheduler) IDCache() *cache.Cache[string, int64] { return s.ids }

// HandleComment dispatches payment and reminder comments. Any other comment
// is checked for RFC mentions and then triggers a follow-up sweep. Every
// comment answers the author's pending RFCs in its thread.
func (s *Scheduler) HandleComment(ctx context.Context, ev CommentEvent) error {
	s.dropAnswered(ctx, ev)

	trigger, targets := Classify(ev.Comment.Body)
	if trigger != "" {
		base := message{
			Owner: ev.Issue.Owner, Repo: ev.Issue.Repo, Number: ev.Issue.Number,
			Title: ev.Issue.Title, URL: ev.Issue.URL, CommentURL: ev.Comment.URL,
			Actor: ev.Comment.Author,
		}
		for _, t := range targets {
			m := base
			m.Username = t.Username
			m.ClaimURL = t.ClaimURL
			s.notifyUsername(ctx, trigger, t.Username, m)
		}
		return nil
	}

	for _, name := range RFCMentions(ev.Comment.Body) {
		s.captureRFC(ctx, ev, name)
	}
	return s.Sweep(ctx)
}

// HandleUnassigned tells the removed assignee, unless they removed
// themselves.
func (s *Scheduler) HandleUnassigned(ctx context.Context, ev AssignmentEvent) error {
	return s.handleAssignment(ctx, models.TriggerDisqualification, ev)
}

func (s *Scheduler) HandleReviewRequested(ctx context.Context, ev AssignmentEvent) error {
	return s.handleAssignment(ctx, models.TriggerReview, ev)
}

func (s *Scheduler) handleAssignment(ctx context.Context, trigger models.Trigger, ev AssignmentEvent) error {
	if ev.Target == "" {
		return nil
	}
	if strings.EqualFold(ev.Actor, ev.Target) {
		s.record(trigger, OutcomeSelfAction, 0, ev.Target)
		return nil
	}
	s.notifyUsername(ctx, trigger, ev.Target, message{
		Username: ev.Target, Actor: ev.Actor,
		Owner: ev.Issue.Owner, Repo: ev.Issue.Repo, Number: ev.Issue.Number,
		Title: ev.Issue.Title, URL: ev.Issue.URL,
	})
	return nil
}

// notifyUsername delivers to the user linked to username and to every user
// listing username among their additional listeners.
func (s *Scheduler) notifyUsername(ctx context.Context, trigger models.Trigger, username string, m message) {
	for _, rec := range s.recipients(ctx, username) {
		s.deliver(ctx, trigger, &rec, m, nil)
	}
}

func (s *Scheduler) recipients(ctx context.Context, username string) []models.UserRecord {
	var out []models.UserRecord

	if rec, err := s.resolve(ctx, username); err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			s.log.Warn().Err(err).Str("username", username).Msg("could not resolve user")
		}
	} else {
		out = append(out, *rec)
	}

	all, err := s.users.All(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not load additional listeners")
		return out
	}
	for _, u := range all {
		if len(out) > 0 && u.TelegramID == out[0].TelegramID {
			continue
		}
		for _, l := range u.AdditionalListeners {
			if strings.EqualFold(l, username) {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

// resolve maps a GitHub username to its stored user through the numeric
// GitHub id.
func (s *Scheduler) resolve(ctx context.Context, username string) (*models.UserRecord, error) {
	id, err := s.ids.GetOrLoad(strings.ToLower(username), userIDTTL, func() (int64, error) {
		return s.gh.UserID(ctx, username)
	})
	if err != nil {
		return nil, fmt.Errorf("lookup github user %s: %w", username, err)
	}
	return s.users.FindByGitHubID(ctx, id)
}

// deliver applies the subscription policy and sends the rendered message.
// tmpl overrides the trigger's default template.
func (s *Scheduler) deliver(ctx context.Context, trigger models.Trigger, rec *models.UserRecord, m message, tmpl func(message) (string, error)) Outcome {
	outcome, err := s.send(ctx, trigger, rec, m, tmpl)
	s.record(trigger, outcome, rec.TelegramID, m.Username)
	if err != nil {
		s.log.Warn().Err(err).Str("trigger", string(trigger)).Int64("telegram_id", rec.TelegramID).Msg("notification not delivered")
	}
	return outcome
}

func (s *Scheduler) send(ctx context.Context, trigger models.Trigger, rec *models.UserRecord, m message, tmpl func(message) (string, error)) (Outcome, error) {
	if !rec.IsListening(trigger) {
		return OutcomeMuted, nil
	}
	if trigger == models.TriggerPayment && m.ClaimURL == "" {
		return OutcomeNoClaim, nil
	}

	ok, err := s.msgr.HasChat(ctx, rec.TelegramID)
	if err != nil {
		return OutcomeFailed, err
	}
	if !ok {
		return OutcomeNoChat, nil
	}

	if tmpl == nil {
		tmpl = func(m message) (string, error) { return render(trigger, m) }
	}
	body, err := tmpl(m)
	if err != nil {
		return OutcomeFailed, err
	}
	if err := s.msgr.SendHTML(ctx, rec.TelegramID, body); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSent, nil
}

func (s *Scheduler) record(trigger models.Trigger, outcome Outcome, telegramID int64, username string) {
	metrics.Notifications.WithLabelValues(string(trigger), string(outcome)).Inc()
	s.log.Debug().
		Str("trigger", string(trigger)).
		Str("outcome", string(outcome)).
		Int64("telegram_id", telegramID).
		Str("username", username).
		Msg("notification")
}

// FollowUpWindow maps the issue's "Priority: N" label to how long an RFC may
// stay unanswered: one day at priority 5, five days at priority 1 or when
// no priority is set.
func FollowUpWindow(labels []string) time.Duration {
	for _, l := range labels {
		m := priorityRe.FindStringSubmatch(strings.TrimSpace(l))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > 5 {
			continue
		}
		return time.Duration(6-n) * 24 * time.Hour
	}
	return defaultWindow
}
