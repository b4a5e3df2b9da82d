package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telegram-bridge/internal/models"
	"telegram-bridge/internal/storage"
)

const excerptLen = 200

// captureRFC notifies the mentioned user and stores the comment on their
// record so Sweep can follow up if it stays unanswered.
func (s *Scheduler) captureRFC(ctx context.Context, ev CommentEvent, username string) {
	m := message{
		Username: username, Actor: ev.Comment.Author,
		Owner: ev.Issue.Owner, Repo: ev.Issue.Repo, Number: ev.Issue.Number,
		Title: ev.Issue.Title, URL: ev.Issue.URL, CommentURL: ev.Comment.URL,
		Excerpt: excerpt(ev.Comment.Body, excerptLen),
	}
	s.notifyUsername(ctx, models.TriggerRFC, username, m)

	rec, err := s.resolve(ctx, username)
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			s.log.Warn().Err(err).Str("username", username).Msg("rfc target not resolved")
		}
		return
	}
	if !rec.IsListening(models.TriggerRFC) {
		return
	}

	labels, err := s.gh.IssueLabels(ctx, ev.Issue.Owner, ev.Issue.Repo, ev.Issue.Number)
	if err != nil {
		s.log.Warn().Err(err).Msg("issue labels unavailable, using default follow-up window")
	}
	window := FollowUpWindow(labels)

	entry := models.RfcComment{
		CommentID:            ev.Comment.ID,
		CommentURL:           ev.Comment.URL,
		CommentText:          ev.Comment.Body,
		Owner:                ev.Issue.Owner,
		Repo:                 ev.Issue.Repo,
		IssueNumber:          ev.Issue.Number,
		CreatedAt:            ev.Comment.CreatedAt,
		UpdatedAt:            s.clock.Now().UTC(),
		FollowUpAllowedAfter: window.String(),
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.UpdatedAt
	}

	err = s.users.Modify(ctx, rec.TelegramID, func(u *models.UserRecord) error {
		for _, existing := range u.RfcComments {
			if existing.CommentID == entry.CommentID {
				entry.LastPush = existing.LastPush
			}
		}
		u.UpsertRfcComment(entry)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("telegram_id", rec.TelegramID).Int64("comment_id", entry.CommentID).Msg("rfc not stored")
		return
	}
	s.log.Info().
		Int64("telegram_id", rec.TelegramID).
		Int64("comment_id", entry.CommentID).
		Str("window", entry.FollowUpAllowedAfter).
		Msg("rfc captured")
}

// dropAnswered removes RFC entries in the event's thread that its author
// has just answered.
func (s *Scheduler) dropAnswered(ctx context.Context, ev CommentEvent) {
	if ev.Comment.Author == "" {
		return
	}
	rec, err := s.resolve(ctx, ev.Comment.Author)
	if err != nil {
		return
	}

	var answered []int64
	for _, rfc := range rec.RfcComments {
		if sameThread(rfc, ev.Issue) && rfc.CommentID != ev.Comment.ID && ev.Comment.CreatedAt.After(rfc.CreatedAt) {
			answered = append(answered, rfc.CommentID)
		}
	}
	if len(answered) == 0 {
		return
	}
	s.removeRFCs(ctx, rec.TelegramID, answered...)
}

// Sweep removes every RFC entry the user has answered since and follows up
// on the rest once their window has elapsed. Per-entry failures are logged
// and skipped; only failing to list users is returned.
func (s *Scheduler) Sweep(ctx context.Context) error {
	users, err := s.users.All(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	now := s.clock.Now()
	threads := map[string][]Comment{}

	for i := range users {
		u := &users[i]
		var answered []int64

		for _, rfc := range u.RfcComments {
			log := s.log.With().Int64("telegram_id", u.TelegramID).Int64("comment_id", rfc.CommentID).Logger()

			comments, err := s.thread(ctx, threads, rfc)
			if err != nil {
				log.Warn().Err(err).Msg("thread unavailable")
				continue
			}
			if answeredIn(comments, u.GitHubUsername, rfc) {
				answered = append(answered, rfc.CommentID)
				continue
			}

			due, err := rfc.Due(now)
			if err != nil {
				log.Warn().Err(err).Msg("bad follow-up window")
				continue
			}
			if !due || !u.IsListening(models.TriggerRFC) {
				continue
			}

			if s.followUp(ctx, u, rfc) != OutcomeSent {
				continue
			}
			pushed := now.UTC()
			err = s.users.Modify(ctx, u.TelegramID, func(rec *models.UserRecord) error {
				for j := range rec.RfcComments {
					if rec.RfcComments[j].CommentID == rfc.CommentID {
						rec.RfcComments[j].LastPush = &pushed
						return nil
					}
				}
				return storage.ErrNoChange
			})
			if err != nil {
				log.Error().Err(err).Msg("follow-up sent but lastPush not stored")
			}
			s.acknowledge(ctx, rfc)
		}

		if len(answered) > 0 {
			s.removeRFCs(ctx, u.TelegramID, answered...)
		}
	}
	return nil
}

func (s *Scheduler) followUp(ctx context.Context, u *models.UserRecord, rfc models.RfcComment) Outcome {
	m := message{
		Username:   u.GitHubUsername,
		Owner:      rfc.Owner,
		Repo:       rfc.Repo,
		Number:     rfc.IssueNumber,
		CommentURL: rfc.CommentURL,
		Excerpt:    excerpt(rfc.CommentText, excerptLen),
	}
	return s.deliver(ctx, models.TriggerRFC, u, m, func(m message) (string, error) {
		return execute(followUpTmpl, m)
	})
}

// acknowledge reacts to the RFC comment unless this account already has.
func (s *Scheduler) acknowledge(ctx context.Context, rfc models.RfcComment) {
	login, err := s.selfLogin(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("cannot determine own login")
		return
	}
	reactions, err := s.gh.ListReactions(ctx, rfc.Owner, rfc.Repo, rfc.CommentID)
	if err != nil {
		s.log.Warn().Err(err).Int64("comment_id", rfc.CommentID).Msg("reactions unavailable")
		return
	}
	for _, r := range reactions {
		if r.Content == AckReaction && strings.EqualFold(r.User, login) {
			return
		}
	}
	if err := s.gh.AddReaction(ctx, rfc.Owner, rfc.Repo, rfc.CommentID, AckReaction); err != nil {
		s.log.Warn().Err(err).Int64("comment_id", rfc.CommentID).Msg("reaction not added")
	}
}

func (s *Scheduler) selfLogin(ctx context.Context) (string, error) {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	if s.login != "" {
		return s.login, nil
	}
	login, err := s.gh.Login(ctx)
	if err != nil {
		return "", err
	}
	s.login = login
	return login, nil
}

func (s *Scheduler) thread(ctx context.Context, seen map[string][]Comment, rfc models.RfcComment) ([]Comment, error) {
	key := fmt.Sprintf("%s/%s#%d", rfc.Owner, rfc.Repo, rfc.IssueNumber)
	if c, ok := seen[key]; ok {
		return c, nil
	}
	c, err := s.gh.ListComments(ctx, rfc.Owner, rfc.Repo, rfc.IssueNumber)
	if err != nil {
		return nil, err
	}
	seen[key] = c
	return c, nil
}

func (s *Scheduler) removeRFCs(ctx context.Context, telegramID int64, ids ...int64) {
	err := s.users.Modify(ctx, telegramID, func(rec *models.UserRecord) error {
		changed := false
		for _, id := range ids {
			if rec.RemoveRfcComment(id) {
				changed = true
			}
		}
		if !changed {
			return storage.ErrNoChange
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("telegram_id", telegramID).Msg("answered rfc entries not removed")
		return
	}
	s.log.Info().Int64("telegram_id", telegramID).Int("count", len(ids)).Msg("answered rfc entries removed")
}

func answeredIn(comments []Comment, username string, rfc models.RfcComment) bool {
	if username == "" {
		return false
	}
	for _, c := range comments {
		if c.ID != rfc.CommentID && strings.EqualFold(c.Author, username) && c.CreatedAt.After(rfc.CreatedAt) {
			return true
		}
	}
	return false
}

func sameThread(rfc models.RfcComment, issue IssueRef) bool {
	return strings.EqualFold(rfc.Owner, issue.Owner) &&
		strings.EqualFold(rfc.Repo, issue.Repo) &&
		rfc.IssueNumber == issue.Number
}
