package github

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v80/github"
	"github.com/rs/zerolog"
)

// IssueRef locates the issue or pull request a delivery is about.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

// Delivery is one parsed webhook delivery.
type Delivery struct {
	ID     string
	Event  string
	Action string
	// Payload is the go-github event type for Event, e.g. *github.IssuesEvent.
	Payload any
	Issue   *IssueRef
}

func (d *Delivery) Key() string { return d.Event + "." + d.Action }

// ParseDelivery decodes payload as an event of type event.
func ParseDelivery(id, event string, payload []byte) (*Delivery, error) {
	parsed, err := github.ParseWebHook(event, payload)
	if err != nil {
		return nil, err
	}

	d := &Delivery{ID: id, Event: event, Payload: parsed}
	switch e := parsed.(type) {
	case *github.IssuesEvent:
		d.Action = e.GetAction()
		d.Issue = issueRef(e.GetRepo(), e.GetIssue().GetNumber())
	case *github.IssueCommentEvent:
		d.Action = e.GetAction()
		d.Issue = issueRef(e.GetRepo(), e.GetIssue().GetNumber())
	case *github.PullRequestEvent:
		d.Action = e.GetAction()
		d.Issue = issueRef(e.GetRepo(), e.GetPullRequest().GetNumber())
	}
	return d, nil
}

func issueRef(repo *github.Repository, number int) *IssueRef {
	if repo == nil || number == 0 {
		return nil
	}
	return &IssueRef{Owner: repo.GetOwner().GetLogin(), Repo: repo.GetName(), Number: number}
}

type Handler func(ctx context.Context, d *Delivery) error

// Dispatcher maps "<event>.<action>" keys to handlers, run in registration
// order.
type Dispatcher struct {
	handlers map[string][]Handler
	log      zerolog.Logger
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{handlers: map[string][]Handler{}, log: log}
}

func (d *Dispatcher) On(e Event, h Handler) {
	d.handlers[e.Key()] = append(d.handlers[e.Key()], h)
}

func (d *Dispatcher) Handlers(key string) []Handler {
	return d.handlers[key]
}

// Dispatch runs every handler for the delivery. A failing handler does not
// stop the ones after it; all failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, del *Delivery) error {
	handlers := d.handlers[del.Key()]
	if len(handlers) == 0 {
		d.log.Debug().Str("delivery", del.ID).Str("event", del.Key()).Msg("no handlers")
		return nil
	}

	var errs []error
	for i, h := range handlers {
		if err := runHandler(ctx, h, del); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", del.Key(), i, err))
		}
	}
	return errors.Join(errs...)
}

func runHandler(ctx context.Context, h Handler, del *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, del)
}
