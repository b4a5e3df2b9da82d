package workroom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"telegram-bridge/internal/clock"
	"telegram-bridge/internal/lock"
	"telegram-bridge/internal/membership"
	"telegram-bridge/internal/metrics"
	"telegram-bridge/internal/models"
	"telegram-bridge/internal/storage"

	"github.com/rs/zerolog"
)

const (
	DefaultLockTTL  = 15 * time.Minute
	DefaultLockWait = 30 * time.Second
)

// ChatRepository is the slice of storage.ChatStore the machine needs.
type ChatRepository interface {
	Find(ctx context.Context, taskNodeID string) (*models.ChatRecord, error)
	Insert(ctx context.Context, rec models.ChatRecord) error
	Save(ctx context.Context, rec models.ChatRecord) error
}

type IssueCommenter interface {
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

type Options struct {
	Chats      ChatRepository
	Connector  Connector
	Comments   IssueCommenter
	Locker     lock.Locker
	Reconciler *membership.Reconciler
	Clock      clock.Clock
	// BotID is the Bot API account that joins every workroom as admin.
	BotID int64
	Log   zerolog.Logger

	LockTTL  time.Duration
	LockWait time.Duration
}

// Machine runs workroom transitions. Each transition holds the per-issue
// lock for its whole duration and reports its outcome as a Result.
type Machine struct {
	chats      ChatRepository
	connector  Connector
	comments   IssueCommenter
	locker     lock.Locker
	reconciler *membership.Reconciler
	clock      clock.Clock
	botID      int64
	log        zerolog.Logger
	lockTTL    time.Duration
	lockWait   time.Duration
}

func New(opts Options) *Machine {
	m := &Machine{
		chats:      opts.Chats,
		connector:  opts.Connector,
		comments:   opts.Comments,
		locker:     opts.Locker,
		reconciler: opts.Reconciler,
		clock:      opts.Clock,
		botID:      opts.BotID,
		log:        opts.Log.With().Str("component", "workroom").Logger(),
		lockTTL:    opts.LockTTL,
		lockWait:   opts.LockWait,
	}
	if m.locker == nil {
		m.locker = lock.NewLocal()
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.reconciler == nil {
		m.reconciler = membership.NewReconciler(m.clock, opts.Log)
	}
	if m.lockTTL <= 0 {
		m.lockTTL = DefaultLockTTL
	}
	if m.lockWait <= 0 {
		m.lockWait = DefaultLockWait
	}
	return m
}

// Create opens a workroom for issue unless one is already recorded.
func (m *Machine) Create(ctx context.Context, issue Issue) Result {
	return m.run(ctx, "create", ReasonChatCreateFailed, issue, func(ctx context.Context, log zerolog.Logger) Result {
		existing, err := m.chats.Find(ctx, issue.NodeID)
		switch {
		case err == nil:
			return ok(ReasonChatExists, existing.ChatID)
		case !errors.Is(err, storage.ErrRecordNotFound):
			return failed(http.StatusInternalServerError, ReasonChatCreateFailed, 0, err)
		}

		name := ChatName(issue)
		var chatID int64
		err = m.connector.Connect(ctx, func(ctx context.Context, p Protocol) error {
			id, err := p.CreateGroup(ctx, name, []int64{m.botID})
			if err != nil {
				return fmt.Errorf("create group: %w", err)
			}
			chatID = id

			link, err := p.ExportInviteLink(ctx, id)
			if err != nil {
				return fmt.Errorf("export invite link: %w", err)
			}
			if link == "" {
				return errors.New("export invite link: provider returned no link")
			}

			body, err := inviteComment(name, link)
			if err != nil {
				return fmt.Errorf("render invite comment: %w", err)
			}
			if err := m.comments.CreateComment(ctx, issue.Owner, issue.Repo, issue.Number, body); err != nil {
				return fmt.Errorf("post invite comment: %w", err)
			}

			if err := p.SetDescription(ctx, id, issue.HTMLURL); err != nil {
				return fmt.Errorf("set description: %w", err)
			}
			if err := p.PromoteAdmin(ctx, id, m.botID); err != nil {
				return fmt.Errorf("promote bot: %w", err)
			}
			return nil
		})
		if err != nil {
			m.logOrphan(log, chatID, err)
			return failed(http.StatusInternalServerError, ReasonChatCreateFailed, chatID, err)
		}

		now := m.clock.Now().UTC()
		rec := models.ChatRecord{
			Status:     models.ChatOpen,
			TaskNodeID: issue.NodeID,
			ChatID:     chatID,
			ChatName:   name,
			UserIDs:    []int64{},
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if err := m.chats.Insert(ctx, rec); err != nil {
			m.logOrphan(log, chatID, err)
			return failed(http.StatusInternalServerError, ReasonChatCreateFailed, chatID, err)
		}
		return Result{Status: http.StatusCreated, Reason: ReasonChatCreated, ChatID: chatID}
	})
}

// Close archives the workroom of issue, snapshots its members onto the record
// and removes them. A missing record is not an error. The snapshot is merged
// into the recorded one so a retried close cannot shrink it.
func (m *Machine) Close(ctx context.Context, issue Issue) Result {
	return m.run(ctx, "close", ReasonChatCloseFailed, issue, func(ctx context.Context, log zerolog.Logger) Result {
		rec, err := m.chats.Find(ctx, issue.NodeID)
		switch {
		case errors.Is(err, storage.ErrRecordNotFound):
			return ok(ReasonChatNotFound, 0)
		case err != nil:
			return failed(http.StatusInternalServerError, ReasonChatCloseFailed, 0, err)
		case rec.Status == models.ChatClosed:
			return ok(ReasonAlreadyClosed, rec.ChatID)
		case !models.CanTransition(rec.Status, models.ChatClosed):
			return failed(http.StatusConflict, ReasonInvalidStatus, rec.ChatID, fmt.Errorf("cannot close chat in status %q", rec.Status))
		}

		err = m.connector.Connect(ctx, func(ctx context.Context, p Protocol) error {
			members, err := p.GetFullChat(ctx, rec.ChatID)
			if err != nil {
				return fmt.Errorf("get full chat: %w", err)
			}
			if err := p.Archive(ctx, rec.ChatID); err != nil {
				return fmt.Errorf("archive: %w", err)
			}

			if members.Forbidden {
				log.Warn().Int64("chat_id", rec.ChatID).Msg("member list unavailable, members left in place")
				return nil
			}

			if err := p.SendMessage(ctx, rec.ChatID, closedNotice(issue)); err != nil {
				log.Warn().Err(err).Int64("chat_id", rec.ChatID).Msg("closure notice not sent")
			}

			rec.MergeSnapshot(members.MemberIDs(members.CreatorID()), members.AccessHashes())
			rec.ModifiedAt = m.clock.Now().UTC()
			if err := m.chats.Save(ctx, *rec); err != nil {
				return fmt.Errorf("save member snapshot: %w", err)
			}

			remove := func(ctx context.Context, userID int64) error {
				return p.RemoveMember(ctx, rec.ChatID, userID)
			}
			report, err := m.reconciler.Run(ctx, rec.UserIDs, remove, m.botID, p.SelfID())
			log.Info().
				Int64("chat_id", rec.ChatID).
				Int("removed", len(report.Succeeded)).
				Int("failed", len(report.Failed)).
				Int("waits", report.Waits).
				Dur("waited", report.Waited).
				Msg("members removed")
			return err
		})
		if err != nil {
			return failed(http.StatusInternalServerError, ReasonChatCloseFailed, rec.ChatID, err)
		}

		rec.Status = models.ChatClosed
		rec.ModifiedAt = m.clock.Now().UTC()
		if err := m.chats.Save(ctx, *rec); err != nil {
			return failed(http.StatusInternalServerError, ReasonChatCloseFailed, rec.ChatID, err)
		}
		return ok(ReasonChatClosed, rec.ChatID)
	})
}

// Reopen restores a closed workroom and invites its snapshotted members
// back. Unlike Close, a missing record is a failure.
func (m *Machine) Reopen(ctx context.Context, issue Issue) Result {
	return m.run(ctx, "reopen", ReasonChatReopenFailed, issue, func(ctx context.Context, log zerolog.Logger) Result {
		rec, err := m.chats.Find(ctx, issue.NodeID)
		switch {
		case errors.Is(err, storage.ErrRecordNotFound):
			return failed(http.StatusNotFound, ReasonChatNotFound, 0, fmt.Errorf("no workroom recorded for task %s", issue.NodeID))
		case err != nil:
			return failed(http.StatusInternalServerError, ReasonChatReopenFailed, 0, err)
		case !models.CanTransition(rec.Status, models.ChatReopened):
			return failed(http.StatusConflict, ReasonInvalidStatus, rec.ChatID, fmt.Errorf("cannot reopen chat in status %q", rec.Status))
		}

		err = m.connector.Connect(ctx, func(ctx context.Context, p Protocol) error {
			if err := p.Unarchive(ctx, rec.ChatID); err != nil {
				return fmt.Errorf("unarchive: %w", err)
			}

			self := p.SelfID()
			p.Remember(rec.AccessHashes)
			members, err := p.GetFullChat(ctx, rec.ChatID)
			if err != nil {
				return fmt.Errorf("get full chat: %w", err)
			}
			creator := members.CreatorID()
			if creator == 0 {
				creator = self
			}
			if creator != self {
				if err := p.AddMember(ctx, rec.ChatID, creator); err != nil {
					return fmt.Errorf("re-add creator %d: %w", creator, err)
				}
			}

			rec.Status = models.ChatReopened
			rec.ModifiedAt = m.clock.Now().UTC()
			if err := m.chats.Save(ctx, *rec); err != nil {
				return fmt.Errorf("save status: %w", err)
			}

			add := func(ctx context.Context, userID int64) error {
				return p.AddMember(ctx, rec.ChatID, userID)
			}
			report, err := m.reconciler.Run(ctx, rec.UserIDs, add, m.botID, self, creator)
			log.Info().
				Int64("chat_id", rec.ChatID).
				Int("invited", len(report.Succeeded)).
				Int("failed", len(report.Failed)).
				Int("waits", report.Waits).
				Msg("members invited back")
			if err != nil {
				return err
			}

			if err := p.SendMessage(ctx, rec.ChatID, reopenedNotice(issue)); err != nil {
				log.Warn().Err(err).Int64("chat_id", rec.ChatID).Msg("reopened notice not sent")
			}
			return nil
		})
		if err != nil {
			return failed(http.StatusInternalServerError, ReasonChatReopenFailed, rec.ChatID, err)
		}
		return ok(ReasonChatReopened, rec.ChatID)
	})
}

type transitionFunc func(ctx context.Context, log zerolog.Logger) Result

// run serializes fn with other transitions on the same issue and converts a
// panic inside it into a failure Result.
func (m *Machine) run(ctx context.Context, name string, failReason Reason, issue Issue, fn transitionFunc) (res Result) {
	log := m.log.With().Str("transition", name).Str("task_node_id", issue.NodeID).Logger()

	defer func() {
		if r := recover(); r != nil {
			res = failed(http.StatusInternalServerError, failReason, res.ChatID, fmt.Errorf("panic: %v", r))
		}
		metrics.Transitions.WithLabelValues(name, string(res.Reason)).Inc()

		ev := log.Info()
		if !res.OK() {
			ev = log.Error().Err(res.Err)
		}
		ev.Int("status", res.Status).Str("reason", string(res.Reason)).Int64("chat_id", res.ChatID).Msg("transition finished")
	}()

	acquireCtx, cancel := context.WithTimeout(ctx, m.lockWait)
	release, err := m.locker.Acquire(acquireCtx, "workroom:"+issue.NodeID, m.lockTTL)
	cancel()
	if err != nil {
		status := http.StatusLocked
		if !errors.Is(err, lock.ErrBusy) {
			status = http.StatusServiceUnavailable
		}
		return failed(status, ReasonChatBusy, 0, err)
	}
	defer release()

	return fn(ctx, log)
}

func (m *Machine) logOrphan(log zerolog.Logger, chatID int64, err error) {
	if chatID == 0 {
		return
	}
	log.Error().Err(err).Int64("orphan_chat_id", chatID).Msg("workroom left without a record, clean up manually")
}
