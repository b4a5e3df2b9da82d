package github

import (
	"context"
	"fmt"
	"net/http"

	"telegram-bridge/internal/notify"
	"telegram-bridge/internal/storage"

	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

type ClientFactory struct {
	baseURL string
}

func NewClientFactory() *ClientFactory {
	return &ClientFactory{}
}

// WithBaseURL points clients at a GitHub Enterprise or test server.
func (f *ClientFactory) WithBaseURL(u string) *ClientFactory {
	f.baseURL = u
	return f
}

// NewClient returns a client authenticated with a static token.
func (f *ClientFactory) NewClient(ctx context.Context, token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if f.baseURL == "" {
		return client, nil
	}
	return client.WithEnterpriseURLs(f.baseURL, f.baseURL)
}

// API adapts the go-github client to the capability interfaces of the
// storage, workroom and notify packages. owner and repo name the repository
// that hosts the storage branch.
type API struct {
	gh    *github.Client
	owner string
	repo  string
}

func NewAPI(gh *github.Client, owner, repo string) *API {
	return &API{gh: gh, owner: owner, repo: repo}
}

func status(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func (a *API) GetContent(ctx context.Context, path, ref string) ([]byte, string, error) {
	file, _, resp, err := a.gh.Repositories.GetContents(ctx, a.owner, a.repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if status(resp) == http.StatusNotFound {
		return nil, "", storage.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if file == nil {
		return nil, "", fmt.Errorf("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return []byte(content), file.GetSHA(), nil
}

func (a *API) CreateOrUpdate(ctx context.Context, path, ref string, body []byte, revision, message string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: body,
		Branch:  github.Ptr(ref),
	}
	if revision != "" {
		opts.SHA = github.Ptr(revision)
	}

	res, resp, err := a.gh.Repositories.CreateFile(ctx, a.owner, a.repo, path, opts)
	switch status(resp) {
	case http.StatusNotFound:
		return "", storage.ErrNotFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	if err != nil {
		return "", err
	}
	return res.GetContent().GetSHA(), nil
}

func (a *API) BranchHead(ctx context.Context, name string) (string, error) {
	b, resp, err := a.gh.Repositories.GetBranch(ctx, a.owner, a.repo, name, 1)
	if status(resp) == http.StatusNotFound {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return b.GetCommit().GetSHA(), nil
}

func (a *API) DefaultBranchHead(ctx context.Context) (string, error) {
	r, _, err := a.gh.Repositories.Get(ctx, a.owner, a.repo)
	if err != nil {
		return "", err
	}
	return a.BranchHead(ctx, r.GetDefaultBranch())
}

// CreateBranch creates refs/heads/name at fromSHA. A branch created
// concurrently by another writer counts as success.
func (a *API) CreateBranch(ctx context.Context, name, fromSHA string) error {
	body := map[string]string{"ref": "refs/heads/" + name, "sha": fromSHA}
	req, err := a.gh.NewRequest(http.MethodPost, fmt.Sprintf("repos/%s/%s/git/refs", a.owner, a.repo), body)
	if err != nil {
		return err
	}
	resp, err := a.gh.Do(ctx, req, nil)
	if status(resp) == http.StatusUnprocessableEntity {
		if _, herr := a.BranchHead(ctx, name); herr == nil {
			return nil
		}
	}
	return err
}

func (a *API) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := a.gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.Ptr(body)})
	return err
}

func (a *API) UserID(ctx context.Context, username string) (int64, error) {
	u, _, err := a.gh.Users.Get(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.GetID(), nil
}

func (a *API) Login(ctx context.Context) (string, error) {
	u, _, err := a.gh.Users.Get(ctx, "")
	if err != nil {
		return "", err
	}
	return u.GetLogin(), nil
}

func (a *API) IssueLabels(ctx context.Context, owner, repo string, number int) ([]string, error) {
	labels, _, err := a.gh.Issues.ListLabelsByIssue(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names, nil
}

func (a *API) ListComments(ctx context.Context, owner, repo string, number int) ([]notify.Comment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}

	var out []notify.Comment
	for {
		comments, resp, err := a.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, err
		}
		for _, c := range comments {
			out = append(out, notify.Comment{
				ID:        c.GetID(),
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				URL:       c.GetHTMLURL(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (a *API) ListReactions(ctx context.Context, owner, repo string, commentID int64) ([]notify.Reaction, error) {
	reactions, _, err := a.gh.Reactions.ListIssueCommentReactions(ctx, owner, repo, commentID, &github.ListReactionOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, err
	}
	out := make([]notify.Reaction, 0, len(reactions))
	for _, r := range reactions {
		out = append(out, notify.Reaction{User: r.GetUser().GetLogin(), Content: r.GetContent()})
	}
	return out, nil
}

func (a *API) AddReaction(ctx context.Context, owner, repo string, commentID int64, content string) error {
	_, _, err := a.gh.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, content)
	return err
}
