// Package membership applies bulk member additions and removals against a
// rate-limited chat API without losing its place when told to slow down.
package membership

import (
	"context"
	"errors"
	"time"

	"telegram-bridge/internal/clock"
	"telegram-bridge/internal/metrics"

	"github.com/rs/zerolog"
)

// RateLimited is implemented by provider errors that ask the caller to wait
// before retrying.
type RateLimited interface {
	error
	RetryAfter() time.Duration
}

// Op adds or removes one member.
type Op func(ctx context.Context, userID int64) error

type Outcome struct {
	Index   int
	UserID  int64
	Success bool
	Skipped bool
	// Wait is set when the provider rate-limited this member. The cursor
	// has not advanced and the same member is retried on the next call.
	Wait time.Duration
	Err  error
}

// Cursor is the checkpoint of one bulk operation: the member list, the index
// of the next member to process and the last error seen.
type Cursor struct {
	members []int64
	next    int
	skip    map[int64]struct{}
	op      Op
	lastErr error
}

// NewCursor drops duplicate ids, keeping the first occurrence. Ids in skip
// (the bot and the account driving the API) are never passed to op.
func NewCursor(members []int64, op Op, skip ...int64) *Cursor {
	seen := make(map[int64]struct{}, len(members))
	unique := make([]int64, 0, len(members))
	for _, id := range members {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	skipSet := make(map[int64]struct{}, len(skip))
	for _, id := range skip {
		skipSet[id] = struct{}{}
	}
	return &Cursor{members: unique, skip: skipSet, op: op}
}

func (c *Cursor) Done() bool { return c.next >= len(c.members) }

func (c *Cursor) Remaining() []int64 { return c.members[c.next:] }

func (c *Cursor) LastErr() error { return c.lastErr }

// Next processes the member under the cursor. ok is false once the list is
// exhausted.
func (c *Cursor) Next(ctx context.Context) (out Outcome, ok bool) {
	if c.Done() {
		return Outcome{}, false
	}

	idx := c.next
	id := c.members[idx]
	out = Outcome{Index: idx, UserID: id}

	if _, ok := c.skip[id]; ok {
		c.next++
		out.Skipped = true
		out.Success = true
		return out, true
	}

	err := c.op(ctx, id)
	c.lastErr = err
	if err == nil {
		c.next++
		out.Success = true
		return out, true
	}

	var rl RateLimited
	if errors.As(err, &rl) && ctx.Err() == nil {
		out.Wait = rl.RetryAfter()
		if out.Wait <= 0 {
			out.Wait = time.Second
		}
		out.Err = err
		return out, true
	}

	c.next++
	out.Err = err
	return out, true
}

type Report struct {
	Succeeded []int64
	Failed    []int64
	Skipped   int
	Waits     int
	Waited    time.Duration
}

type Reconciler struct {
	clock         clock.Clock
	log           zerolog.Logger
	progressEvery time.Duration
}

func NewReconciler(c clock.Clock, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		clock:         c,
		log:           log.With().Str("component", "membership").Logger(),
		progressEvery: time.Minute,
	}
}

// Run drives a cursor over members until every one has been processed,
// sleeping whenever the provider asks for it and resuming at the member that
// was rate limited. The returned error is only ever a context error.
func (r *Reconciler) Run(ctx context.Context, members []int64, op Op, skip ...int64) (Report, error) {
	var report Report
	cur := NewCursor(members, op, skip...)

	for {
		out, ok := cur.Next(ctx)
		if !ok {
			return report, nil
		}

		switch {
		case out.Wait > 0:
			report.Waits++
			report.Waited += out.Wait
			metrics.FloodWaits.Inc()
			metrics.FloodWaitSeconds.Observe(out.Wait.Seconds())
			if err := r.wait(ctx, out.Wait, len(cur.Remaining())); err != nil {
				return report, err
			}
		case out.Skipped:
			report.Skipped++
		case out.Success:
			report.Succeeded = append(report.Succeeded, out.UserID)
		default:
			report.Failed = append(report.Failed, out.UserID)
			r.log.Warn().Err(out.Err).Int64("user_id", out.UserID).Int("index", out.Index).Msg("member operation failed")
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
	}
}

func (r *Reconciler) wait(ctx context.Context, total time.Duration, remaining int) error {
	r.log.Info().Dur("wait", total).Int("remaining", remaining).Msg("rate limited, waiting")

	left := total
	for left > 0 {
		step := min(left, r.progressEvery)
		if err := r.clock.Sleep(ctx, step); err != nil {
			return err
		}
		left -= step
		if left > 0 {
			r.log.Info().Dur("left", left).Int("remaining", remaining).Msg("still waiting on rate limit")
		}
	}
	return nil
}
