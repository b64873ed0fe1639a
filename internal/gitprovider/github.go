package gitprovider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v68/github"
)

// GitHubProvider implements GitProvider with go-github.
type GitHubProvider struct {
	client *github.Client
}

// NewGitHubProvider authenticates against api.github.com with token.
func NewGitHubProvider(token string) *GitHubProvider {
	return &GitHubProvider{client: github.NewClient(nil).WithAuthToken(token)}
}

// NewGitHubEnterpriseProvider targets a GitHub Enterprise Server API root,
// e.g. https://ghe.example.com/api/v3/.
func NewGitHubEnterpriseProvider(apiURL, token string) (*GitHubProvider, error) {
	client, err := github.NewClient(nil).WithAuthToken(token).WithEnterpriseURLs(apiURL, apiURL)
	if err != nil {
		return nil, fmt.Errorf("github: enterprise url %q: %w", apiURL, err)
	}
	return &GitHubProvider{client: client}, nil
}

func (g *GitHubProvider) Name() string { return "github" }

func (g *GitHubProvider) CreatePR(ctx context.Context, repo RepoRef, pr PRRequest) (*PRResult, error) {
	created, _, err := g.client.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title: github.Ptr(pr.Title),
		Head:  github.Ptr(pr.HeadBranch),
		Base:  github.Ptr(pr.BaseBranch),
		Body:  github.Ptr(pr.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("github: create pr: %w", err)
	}

	if len(pr.Labels) > 0 {
		if _, _, err := g.client.Issues.AddLabelsToIssue(ctx, repo.Owner, repo.Name, created.GetNumber(), pr.Labels); err != nil {
			// The PR exists; a missing label is not worth failing over.
			slog.Warn("github: add labels", "pr", created.GetNumber(), "error", err)
		}
	}

	return &PRResult{
		Number: created.GetNumber(),
		URL:    created.GetHTMLURL(),
	}, nil
}
