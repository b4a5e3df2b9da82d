package github

// Event is a webhook event and action the bridge subscribes to.
type Event struct {
	Name   string
	Action string
	Label  string
}

func (e Event) Key() string { return e.Name + "." + e.Action }

var (
	IssueLabeled        = Event{Name: "issues", Action: "labeled", Label: "Issue labeled"}
	IssueAssigned       = Event{Name: "issues", Action: "assigned", Label: "Issue assigned"}
	IssueUnassigned     = Event{Name: "issues", Action: "unassigned", Label: "Issue unassigned"}
	IssueClosed         = Event{Name: "issues", Action: "closed", Label: "Issue closed"}
	IssueReopened       = Event{Name: "issues", Action: "reopened", Label: "Issue reopened"}
	CommentCreated      = Event{Name: "issue_comment", Action: "created", Label: "Comment created"}
	CommentEdited       = Event{Name: "issue_comment", Action: "edited", Label: "Comment edited"}
	PullReviewRequested = Event{Name: "pull_request", Action: "review_requested", Label: "Review requested"}
)

var SupportedEvents = []Event{
	IssueLabeled,
	IssueAssigned,
	IssueUnassigned,
	IssueClosed,
	IssueReopened,
	CommentCreated,
	CommentEdited,
	PullReviewRequested,
}
