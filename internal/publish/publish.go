// Package publish commits whatever codex left in a workspace to a fresh
// branch and pushes it upstream. Nothing here fails the pipeline: every
// problem becomes a warning on the Outcome.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
	"github.com/teabranch/agentic-developer-mcp/internal/gitprovider"
	"github.com/teabranch/agentic-developer-mcp/internal/process"
	"github.com/teabranch/agentic-developer-mcp/internal/redact"
)

const (
	DefaultUsernameVar = "GIT_USERNAME"
	DefaultTokenVar    = "GIT_TOKEN"
	DefaultGitTimeout  = 5 * time.Minute
	DefaultBaseBranch  = "main"
)

// Options configures a Publisher. Zero values use the defaults above.
type Options struct {
	GitBinary   string
	AuthorName  string
	AuthorEmail string
	UsernameVar string
	TokenVar    string
	Timeout     time.Duration

	// AllowHTTP keeps an http:// origin's scheme when the PAT is added.
	// Otherwise the push goes over https to the same host.
	AllowHTTP bool

	OpenPR     bool
	BaseBranch string
	Labels     []string
}

// defaultClock is shared by Publishers without their own Clock so branch
// names stay unique across the whole process.
var defaultClock gitprovider.BranchClock

// Outcome describes what publishing achieved.
type Outcome struct {
	Branch         string
	HadChanges     bool
	Committed      bool
	Pushed         bool
	PullRequestURL string
	// Message is the user-facing summary line, empty when publishing was
	// aborted before a branch existed.
	Message  string
	Warnings []string
}

func (o *Outcome) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn("publish", "branch", o.Branch, "warning", msg)
	o.Warnings = append(o.Warnings, msg)
}

// Publisher runs the git side of a pipeline run.
type Publisher struct {
	Runner      process.Runner
	Credentials credentials.Resolver
	// Providers opens pull requests when OpenPR is set. May be nil.
	Providers *gitprovider.Registry
	// Clock defaults to a process-wide clock.
	Clock *gitprovider.BranchClock
	// Redactor scrubs secrets from git output placed in warnings. May be nil.
	Redactor *redact.Filter
	Options
}

// CommitMessage is the message used for automated commits.
func CommitMessage(branch, request string) string {
	return fmt.Sprintf("Automated changes from Codex CLI - %s request: %s", branch, request)
}

// Publish branches, commits and pushes the changes in dir. component is
// the optional branch label.
func (p *Publisher) Publish(ctx context.Context, dir, request, component string) *Outcome {
	clock := p.Clock
	if clock == nil {
		clock = &defaultClock
	}
	filter := p.Redactor
	if filter == nil {
		filter = redact.New(nil)
	}
	r := &run{p: p, dir: dir, filter: filter}
	out := &Outcome{Branch: gitprovider.AutomatedBranchName(component, clock.Next())}

	if res, err := r.git(ctx, "status"); err != nil || res.ExitCode != 0 {
		out.warn("Git repository not properly initialized or accessible. Status check failed: %s", r.detail(res, err))
		return out
	}

	if res, err := r.git(ctx, "checkout", "-b", out.Branch); err != nil || res.ExitCode != 0 {
		out.warn("Failed to create branch %s: %s", out.Branch, r.detail(res, err))
		return out
	}

	if res, err := r.git(ctx, "add", "."); err != nil || res.ExitCode != 0 {
		out.warn("Failed to add files to git. Return code: %d\nStderr: %s\nWorking directory: %s", res.ExitCode, r.detail(res, err), dir)
		return out
	}

	status, err := r.git(ctx, "status", "--porcelain")
	if err != nil || status.ExitCode != 0 {
		out.warn("Failed to inspect staged changes: %s", r.detail(status, err))
		return out
	}
	if strings.TrimSpace(status.Stdout) == "" {
		out.Message = fmt.Sprintf("No changes to commit. Branch %s created but not pushed.", out.Branch)
		return out
	}
	out.HadChanges = true

	if res, err := r.git(ctx, "commit", "-m", CommitMessage(out.Branch, request)); err != nil || res.ExitCode != 0 {
		out.warn("Failed to save changes to git: %s", r.detail(res, err))
		return out
	}
	out.Committed = true
	out.Message = "Changes saved to branch: " + out.Branch

	origin := r.originURL(ctx)
	restore := r.applyToken(ctx, origin, out)

	res, err := r.git(ctx, "push", "-u", "origin", out.Branch)
	if restore != nil {
		restore()
	}
	if err != nil || res.ExitCode != 0 {
		out.warn("Failed to push branch %s: %s", out.Branch, r.detail(res, err))
		return out
	}
	out.Pushed = true

	if p.OpenPR {
		r.openPR(ctx, origin, request, out)
	}
	return out
}

// run carries per-call state so a shared Publisher is safe for
// concurrent use.
type run struct {
	p      *Publisher
	dir    string
	filter *redact.Filter
}

// applyToken rewrites origin to carry the PAT when both username and
// token resolve. The returned func puts the original URL back so the
// token is not left in .git/config.
func (r *run) applyToken(ctx context.Context, origin string, out *Outcome) func() {
	if r.p.Credentials == nil || origin == "" {
		return nil
	}
	tokenVar := orDefault(r.p.TokenVar, DefaultTokenVar)
	user, okUser := r.p.Credentials.Lookup(orDefault(r.p.UsernameVar, DefaultUsernameVar))
	token, okToken := r.p.Credentials.Lookup(tokenVar)
	if !okUser || !okToken {
		slog.Debug("no PAT credentials; pushing with ambient git credentials")
		return nil
	}
	r.filter.Add(tokenVar, token)

	authenticate := gitprovider.AuthenticatedURL
	if gitprovider.IsPlainHTTP(origin) {
		if r.p.AllowHTTP {
			authenticate = gitprovider.InsecureAuthenticatedURL
			slog.Warn("sending git token to plain http remote", "remote", r.filter.Redact(origin))
		} else {
			slog.Info("pushing http remote over https", "remote", r.filter.Redact(origin))
		}
	}
	authURL, err := authenticate(origin, user, token)
	if err != nil {
		if !errors.Is(err, gitprovider.ErrUnsupportedRemote) {
			out.warn("Could not add token credentials to remote: %v", err)
		}
		return nil
	}
	if res, err := r.git(ctx, "remote", "set-url", "origin", authURL); err != nil || res.ExitCode != 0 {
		out.warn("Failed to set authenticated remote: %s", r.detail(res, err))
		return nil
	}
	return func() {
		// Background context: the push may have used up ctx's deadline.
		if res, err := r.git(context.Background(), "remote", "set-url", "origin", origin); err != nil || res.ExitCode != 0 {
			slog.Warn("failed to restore origin url", "dir", r.dir, "error", r.detail(res, err))
		}
	}
}

func (r *run) originURL(ctx context.Context) string {
	res, err := r.git(ctx, "remote", "get-url", "origin")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}

func (r *run) openPR(ctx context.Context, origin, request string, out *Outcome) {
	if r.p.Providers == nil {
		out.warn("Pull request requested but no git providers are configured")
		return
	}
	repo, err := gitprovider.ParseRemote(origin)
	if err != nil {
		out.warn("Failed to open pull request: %v", err)
		return
	}
	provider, err := r.p.Providers.Resolve(repo)
	if err != nil {
		out.warn("Failed to open pull request: %v", err)
		return
	}
	pr, err := provider.CreatePR(ctx, repo, gitprovider.PRRequest{
		Title:      "Automated changes: " + out.Branch,
		Body:       "Generated by Codex CLI.\n\n**Request**\n\n" + request,
		HeadBranch: out.Branch,
		BaseBranch: orDefault(r.p.BaseBranch, DefaultBaseBranch),
		Labels:     r.p.Labels,
	})
	if err != nil {
		out.warn("Failed to open pull request: %s", r.filter.Redact(err.Error()))
		return
	}
	out.PullRequestURL = pr.URL
}

func (r *run) git(ctx context.Context, args ...string) (process.Result, error) {
	p := r.p
	env := map[string]string{"GIT_TERMINAL_PROMPT": "0"}
	if p.AuthorName != "" {
		env["GIT_AUTHOR_NAME"] = p.AuthorName
		env["GIT_COMMITTER_NAME"] = p.AuthorName
	}
	if p.AuthorEmail != "" {
		env["GIT_AUTHOR_EMAIL"] = p.AuthorEmail
		env["GIT_COMMITTER_EMAIL"] = p.AuthorEmail
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultGitTimeout
	}
	return p.Runner.Run(ctx, process.Command{
		Name:    orDefault(p.GitBinary, "git"),
		Args:    args,
		Dir:     r.dir,
		Env:     env,
		Timeout: timeout,
	})
}

// detail picks the most useful diagnostic from a git call: the runner
// error, else stderr, else stdout. Secrets are scrubbed.
func (r *run) detail(res process.Result, err error) string {
	var s string
	switch {
	case err != nil:
		s = err.Error()
	case strings.TrimSpace(res.Stderr) != "":
		s = strings.TrimSpace(res.Stderr)
	default:
		s = strings.TrimSpace(res.Stdout)
	}
	return r.filter.Redact(s)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
