package gitprovider

import (
	"context"
	"strings"
	"testing"

	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
)

func creds(m map[string]string) credentials.Resolver {
	return credentials.Chain{credentials.Static(m)}
}

func TestNewRegistry_DisabledWithoutTokens(t *testing.T) {
	r := NewRegistry(creds(nil))

	p, err := r.Resolve(RepoRef{Host: "github.com", Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if _, ok := p.(*DisabledProvider); !ok {
		t.Fatalf("expected disabled github provider, got %T", p)
	}
	_, err = p.CreatePR(context.Background(), RepoRef{}, PRRequest{})
	if err == nil || !strings.Contains(err.Error(), "GITHUB_TOKEN is not set") {
		t.Errorf("CreatePR() error = %v, want reason mentioning GITHUB_TOKEN", err)
	}

	gitea, _ := r.ResolveByName("gitea")
	_, err = gitea.CreatePR(context.Background(), RepoRef{}, PRRequest{})
	if err == nil || !strings.Contains(err.Error(), "GITEA_URL and GITEA_TOKEN not set") {
		t.Errorf("gitea error = %v", err)
	}
}

func TestNewRegistry_GitHubToken(t *testing.T) {
	r := NewRegistry(creds(map[string]string{GitHubTokenVar: "ghp_x"}))
	p, err := r.Resolve(RepoRef{Host: "GitHub.com", Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if _, ok := p.(*GitHubProvider); !ok {
		t.Errorf("expected *GitHubProvider, got %T", p)
	}
}

func TestNewRegistry_GiteaByHost(t *testing.T) {
	r := NewRegistry(creds(map[string]string{
		GiteaURLVar:   "https://gitea.stump.wtf/",
		GiteaTokenVar: "tok",
	}))
	p, err := r.Resolve(RepoRef{Host: "gitea.stump.wtf", Owner: "joe", Name: "home"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.Name() != "gitea" {
		t.Errorf("Name() = %q, want gitea", p.Name())
	}
	if _, ok := p.(*GiteaProvider); !ok {
		t.Errorf("expected *GiteaProvider, got %T", p)
	}
}

func TestNewRegistry_GitHubEnterpriseHost(t *testing.T) {
	r := NewRegistry(creds(map[string]string{
		GitHubTokenVar:  "ghp_x",
		GitHubAPIURLVar: "https://ghe.example.com/api/v3/",
	}))
	p, err := r.Resolve(RepoRef{Host: "ghe.example.com", Owner: "o", Name: "r"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if _, ok := p.(*GitHubProvider); !ok {
		t.Errorf("expected *GitHubProvider, got %T", p)
	}
}

func TestRegistry_ResolveUnknownHost(t *testing.T) {
	r := NewRegistry(creds(nil))
	_, err := r.Resolve(RepoRef{Host: "bitbucket.org", Owner: "o", Name: "r"})
	if err == nil || !strings.Contains(err.Error(), "no matching provider") {
		t.Errorf("Resolve() error = %v, want no matching provider", err)
	}
}

func TestRegistry_RegisterHost(t *testing.T) {
	r := NewRegistry(creds(nil))
	r.RegisterHost("git.internal", "gitea")
	p, err := r.Resolve(RepoRef{Host: "git.internal"})
	if err != nil || p.Name() != "gitea" {
		t.Errorf("Resolve() = %v, %v; want gitea", p, err)
	}
	if _, err := r.ResolveByName("bitbucket"); err == nil {
		t.Error("ResolveByName(bitbucket) should fail")
	}
}
