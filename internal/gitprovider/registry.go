package gitprovider

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
)

// Credential names consulted by NewRegistry.
const (
	GitHubTokenVar  = "GITHUB_TOKEN"
	GitHubAPIURLVar = "GITHUB_API_URL"
	GiteaURLVar     = "GITEA_URL"
	GiteaTokenVar   = "GITEA_TOKEN"
)

// Registry maps provider names to implementations and picks one for a
// remote by host.
type Registry struct {
	providers map[string]GitProvider
	hosts     map[string]string // lowercase host -> provider name
}

// NewRegistry registers GitHub and Gitea from creds. A provider whose
// configuration is missing is registered disabled, so resolution still
// succeeds and the failure surfaces with a reason when a PR is attempted.
func NewRegistry(creds credentials.Resolver) *Registry {
	r := &Registry{
		providers: make(map[string]GitProvider),
		hosts:     map[string]string{"github.com": "github"},
	}

	token, hasToken := creds.Lookup(GitHubTokenVar)
	apiURL, hasAPI := creds.Lookup(GitHubAPIURLVar)
	switch {
	case !hasToken:
		r.Register("github", NewDisabledProvider("github", GitHubTokenVar+" is not set"))
	case hasAPI:
		p, err := NewGitHubEnterpriseProvider(apiURL, token)
		if err != nil {
			r.Register("github", NewDisabledProvider("github", err.Error()))
			break
		}
		r.Register("github", p)
		r.addHost(apiURL, "github")
	default:
		r.Register("github", NewGitHubProvider(token))
	}

	giteaURL, hasURL := creds.Lookup(GiteaURLVar)
	giteaToken, hasGiteaToken := creds.Lookup(GiteaTokenVar)
	if hasURL {
		r.addHost(giteaURL, "gitea")
	}
	if hasURL && hasGiteaToken {
		r.Register("gitea", NewGiteaProvider(giteaURL, giteaToken))
	} else {
		var missing []string
		if !hasURL {
			missing = append(missing, GiteaURLVar)
		}
		if !hasGiteaToken {
			missing = append(missing, GiteaTokenVar)
		}
		r.Register("gitea", NewDisabledProvider("gitea", fmt.Sprintf("%s not set", strings.Join(missing, " and "))))
	}

	return r
}

func (r *Registry) addHost(rawURL, provider string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		slog.Warn("ignoring unparseable provider url", "provider", provider, "url", rawURL)
		return
	}
	r.hosts[strings.ToLower(u.Hostname())] = provider
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, provider GitProvider) {
	r.providers[name] = provider
}

// RegisterHost routes repositories on host to the named provider.
func (r *Registry) RegisterHost(host, provider string) {
	r.hosts[strings.ToLower(host)] = provider
}

// Resolve selects the provider for repo by its host.
func (r *Registry) Resolve(repo RepoRef) (GitProvider, error) {
	name, ok := r.hosts[strings.ToLower(repo.Host)]
	if !ok {
		return nil, fmt.Errorf("cannot resolve git provider for %s/%s on host %q: no matching provider", repo.Owner, repo.Name, repo.Host)
	}
	return r.ResolveByName(name)
}

// ResolveByName returns the provider registered under name.
func (r *Registry) ResolveByName(name string) (GitProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("git provider %q is not registered", name)
	}
	return p, nil
}
