package github

import (
	"context"
	"fmt"

	"telegram-bridge/internal/notify"
	"telegram-bridge/internal/workroom"

	"github.com/google/go-github/v80/github"
)

type Workrooms interface {
	Create(ctx context.Context, issue workroom.Issue) workroom.Result
	Close(ctx context.Context, issue workroom.Issue) workroom.Result
	Reopen(ctx context.Context, issue workroom.Issue) workroom.Result
}

type Notifier interface {
	HandleComment(ctx context.Context, ev notify.CommentEvent) error
	HandleUnassigned(ctx context.Context, ev notify.AssignmentEvent) error
	HandleReviewRequested(ctx context.Context, ev notify.AssignmentEvent) error
}

// TransitionError carries a failed workroom Result out of a handler.
type TransitionError struct {
	Result workroom.Result
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("workroom %s (%d): %v", e.Result.Reason, e.Result.Status, e.Result.Err)
}

func (e *TransitionError) Unwrap() error { return e.Result.Err }

// Register wires the bridge's handlers. Either side may be nil when its
// backend is not configured.
func Register(d *Dispatcher, rooms Workrooms, notes Notifier) {
	if rooms != nil {
		create := transition(rooms.Create)
		d.On(IssueLabeled, create)
		d.On(IssueAssigned, create)
		d.On(IssueClosed, transition(rooms.Close))
		d.On(IssueReopened, transition(rooms.Reopen))
	}

	if notes != nil {
		comment := func(ctx context.Context, del *Delivery) error {
			e, ok := del.Payload.(*github.IssueCommentEvent)
			if !ok {
				return unexpected(del)
			}
			return notes.HandleComment(ctx, notify.CommentEvent{
				Issue: notify.IssueRef{
					Owner:  e.GetRepo().GetOwner().GetLogin(),
					Repo:   e.GetRepo().GetName(),
					Number: e.GetIssue().GetNumber(),
					Title:  e.GetIssue().GetTitle(),
					URL:    e.GetIssue().GetHTMLURL(),
				},
				Comment: notify.Comment{
					ID:        e.GetComment().GetID(),
					Author:    e.GetComment().GetUser().GetLogin(),
					Body:      e.GetComment().GetBody(),
					URL:       e.GetComment().GetHTMLURL(),
					CreatedAt: e.GetComment().GetCreatedAt().Time,
				},
			})
		}
		d.On(CommentCreated, comment)
		d.On(CommentEdited, comment)

		d.On(IssueUnassigned, func(ctx context.Context, del *Delivery) error {
			e, ok := del.Payload.(*github.IssuesEvent)
			if !ok {
				return unexpected(del)
			}
			return notes.HandleUnassigned(ctx, notify.AssignmentEvent{
				Issue: notify.IssueRef{
					Owner:  e.GetRepo().GetOwner().GetLogin(),
					Repo:   e.GetRepo().GetName(),
					Number: e.GetIssue().GetNumber(),
					Title:  e.GetIssue().GetTitle(),
					URL:    e.GetIssue().GetHTMLURL(),
				},
				Actor:  e.GetSender().GetLogin(),
				Target: e.GetAssignee().GetLogin(),
			})
		})

		d.On(PullReviewRequested, func(ctx context.Context, del *Delivery) error {
			e, ok := del.Payload.(*github.PullRequestEvent)
			if !ok {
				return unexpected(del)
			}
			return notes.HandleReviewRequested(ctx, notify.AssignmentEvent{
				Issue: notify.IssueRef{
					Owner:  e.GetRepo().GetOwner().GetLogin(),
					Repo:   e.GetRepo().GetName(),
					Number: e.GetPullRequest().GetNumber(),
					Title:  e.GetPullRequest().GetTitle(),
					URL:    e.GetPullRequest().GetHTMLURL(),
				},
				Actor:  e.GetSender().GetLogin(),
				Target: e.GetRequestedReviewer().GetLogin(),
			})
		})
	}
}

func transition(fn func(context.Context, workroom.Issue) workroom.Result) Handler {
	return func(ctx context.Context, del *Delivery) error {
		e, ok := del.Payload.(*github.IssuesEvent)
		if !ok {
			return unexpected(del)
		}
		res := fn(ctx, workroom.Issue{
			NodeID:  e.GetIssue().GetNodeID(),
			Owner:   e.GetRepo().GetOwner().GetLogin(),
			Repo:    e.GetRepo().GetName(),
			Number:  e.GetIssue().GetNumber(),
			Title:   e.GetIssue().GetTitle(),
			HTMLURL: e.GetIssue().GetHTMLURL(),
		})
		if !res.OK() {
			return &TransitionError{Result: res}
		}
		return nil
	}
}

func unexpected(del *Delivery) error {
	return fmt.Errorf("%s: unexpected payload %T", del.Key(), del.Payload)
}
