package pipeline

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teabranch/agentic-developer-mcp/internal/agent"
	"github.com/teabranch/agentic-developer-mcp/internal/codex"
	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
	"github.com/teabranch/agentic-developer-mcp/internal/gitprovider"
	"github.com/teabranch/agentic-developer-mcp/internal/process"
	"github.com/teabranch/agentic-developer-mcp/internal/publish"
	"github.com/teabranch/agentic-developer-mcp/internal/redact"
	"github.com/teabranch/agentic-developer-mcp/internal/workspace"
)

// Options is the single configuration object for a pipeline.
type Options struct {
	GitBinary     string
	WorkspaceRoot string
	// CloneDepth > 0 makes clones shallow; 0 clones full history.
	CloneDepth     int
	GitTimeout     time.Duration
	KeepWorkspace  bool
	FixPermissions bool

	Codex   codex.Options
	Publish publish.Options
}

// Deps are the collaborators shared across runs.
type Deps struct {
	Runner      process.Runner
	Credentials credentials.Resolver
	// Providers is needed only when Publish.OpenPR is set.
	Providers  *gitprovider.Registry
	Store      Store
	Stream     Stream
	Summarizer Summarizer
	Tracer     trace.Tracer
}

// New assembles a Pipeline from opts.
func New(opts Options, deps Deps) *Pipeline {
	filter := redact.New(nil)

	pubOpts := opts.Publish
	if pubOpts.GitBinary == "" {
		pubOpts.GitBinary = opts.GitBinary
	}
	if pubOpts.Timeout == 0 {
		pubOpts.Timeout = opts.GitTimeout
	}

	invoker := &codex.Invoker{
		Runner:      deps.Runner,
		Credentials: deps.Credentials,
		Options:     opts.Codex,
	}
	if opts.FixPermissions {
		invoker.Repair = codex.NewPermissionRepair(deps.Runner, opts.Codex.DockerBinary, opts.Codex.Image)
	}

	mode := opts.Codex.Mode
	if mode == "" {
		mode = codex.ModeContainer
	}

	return &Pipeline{
		Provisioner: &workspace.Provisioner{
			Runner:    deps.Runner,
			Root:      opts.WorkspaceRoot,
			GitBinary: opts.GitBinary,
			Depth:     opts.CloneDepth,
			Timeout:   opts.GitTimeout,
		},
		Reader:  &agent.Reader{Runner: deps.Runner, GitBinary: opts.GitBinary},
		Invoker: invoker,
		Publisher: &publish.Publisher{
			Runner:      deps.Runner,
			Credentials: deps.Credentials,
			Providers:   deps.Providers,
			Redactor:    filter,
			Options:     pubOpts,
		},
		Store:         deps.Store,
		Stream:        deps.Stream,
		Summarizer:    deps.Summarizer,
		Tracer:        deps.Tracer,
		Redactor:      filter,
		Credentials:   deps.Credentials,
		SecretVars:    SecretVars(opts),
		KeepWorkspace: opts.KeepWorkspace,
		Mode:          string(mode),
	}
}

// SecretVars lists the credential names whose values must never leave the
// server.
func SecretVars(opts Options) []string {
	apiKey := opts.Codex.APIKeyVar
	if apiKey == "" {
		apiKey = codex.DefaultAPIKeyVar
	}
	token := opts.Publish.TokenVar
	if token == "" {
		token = publish.DefaultTokenVar
	}
	return []string{
		apiKey,
		token,
		gitprovider.GitHubTokenVar,
		gitprovider.GiteaTokenVar,
		AnthropicKeyVar,
	}
}
