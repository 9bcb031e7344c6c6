package greenbranch

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v68/github"
)

// GitHubPublisher implements UpstreamPublisher by opening a pull
// request through the GitHub REST API, for Managers configured with
// PushMode == "pull_request".
type GitHubPublisher struct {
	client *gh.Client
	Owner  string
	Repo   string
}

// NewGitHubPublisher builds a publisher authenticated with token (a
// personal access token or GitHub App installation token -- anything
// go-github's WithAuthToken accepts).
func NewGitHubPublisher(owner, repo, token string) *GitHubPublisher {
	return &GitHubPublisher{
		client: gh.NewClient(nil).WithAuthToken(token),
		Owner:  owner,
		Repo:   repo,
	}
}

// PublishPullRequest opens a new pull request for head against base,
// or returns the URL of one already open for the same pair -- the
// integration branch name is content-addressed by commit hash
// (see pushViaPullRequest), so a retry after a transient push failure
// must not create a duplicate PR.
func (p *GitHubPublisher) PublishPullRequest(ctx context.Context, head, base, title, body string) (string, error) {
	if existing, err := p.findOpen(ctx, head, base); err == nil && existing != "" {
		return existing, nil
	}

	pr, _, err := p.client.PullRequests.Create(ctx, p.Owner, p.Repo, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Head:  gh.Ptr(head),
		Base:  gh.Ptr(base),
		Body:  gh.Ptr(body),
	})
	if err != nil {
		return "", fmt.Errorf("create pull request %s -> %s: %w", head, base, err)
	}
	return pr.GetHTMLURL(), nil
}

func (p *GitHubPublisher) findOpen(ctx context.Context, head, base string) (string, error) {
	prs, _, err := p.client.PullRequests.List(ctx, p.Owner, p.Repo, &gh.PullRequestListOptions{
		Head:  p.Owner + ":" + head,
		Base:  base,
		State: "open",
	})
	if err != nil {
		return "", err
	}
	if len(prs) == 0 {
		return "", nil
	}
	return prs[0].GetHTMLURL(), nil
}
