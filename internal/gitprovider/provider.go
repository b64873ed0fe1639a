// Package gitprovider talks to git hosting platforms (GitHub, Gitea) for
// the parts of publishing that plain git cannot do, such as opening pull
// requests, and owns the naming of automated branches and remote URLs.
package gitprovider

import "context"

// GitProvider opens pull requests on one hosting platform.
type GitProvider interface {
	// Name returns the provider identifier ("github", "gitea").
	Name() string

	// CreatePR opens a pull request from HeadBranch into BaseBranch.
	CreatePR(ctx context.Context, repo RepoRef, pr PRRequest) (*PRResult, error)
}

// RepoRef identifies a hosted repository.
type RepoRef struct {
	Host     string
	Owner    string // org, user, or group path
	Name     string
	CloneURL string
}

// PRRequest contains the fields needed to open a pull request.
type PRRequest struct {
	Title      string
	Body       string // markdown
	HeadBranch string
	BaseBranch string
	Labels     []string
}

// PRResult is returned after a pull request is created.
type PRResult struct {
	Number int
	URL    string
}
