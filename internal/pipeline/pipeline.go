// Package pipeline runs one developer-agent request end to end: clone the
// repository, read its .agent descriptor, run codex and publish the
// result. Run always produces text; failures are described, not returned.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/teabranch/agentic-developer-mcp/internal/agent"
	"github.com/teabranch/agentic-developer-mcp/internal/codex"
	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
	"github.com/teabranch/agentic-developer-mcp/internal/db"
	"github.com/teabranch/agentic-developer-mcp/internal/process"
	"github.com/teabranch/agentic-developer-mcp/internal/publish"
	"github.com/teabranch/agentic-developer-mcp/internal/redact"
	"github.com/teabranch/agentic-developer-mcp/internal/workspace"
)

const summaryTimeout = time.Minute

// Request is one instruct-developer call.
type Request struct {
	Repository string `json:"repository"`
	Request    string `json:"request"`
	Folder     string `json:"folder,omitempty"`
}

// Provisioner clones a repository into a fresh workspace.
type Provisioner interface {
	Provision(ctx context.Context, repository, folder string) (*workspace.Workspace, error)
}

// DescriptorReader loads the .agent descriptor of a working copy.
type DescriptorReader interface {
	Read(ctx context.Context, dir string) (*agent.Descriptor, error)
}

// Invoker runs codex.
type Invoker interface {
	Invoke(ctx context.Context, inv codex.Invocation) (*codex.Result, error)
}

// Publisher commits and pushes the generated changes.
type Publisher interface {
	Publish(ctx context.Context, dir, request, component string) *publish.Outcome
}

// Store records run history. *db.DB satisfies it.
type Store interface {
	InsertRun(r *db.Run) (int64, error)
	FinishRun(id int64, res db.RunResult) error
	UpdateRunSummary(id int64, summary string) error
}

// Stream receives live codex output per run. *hub.Hub satisfies it.
type Stream interface {
	Open(id int64)
	Publish(id int64, line string)
	Close(id int64)
}

// Summarizer condenses a run's output for the history view.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Pipeline sequences the stages. Store, Stream, Summarizer and Tracer are
// optional. A Pipeline is safe for concurrent use.
type Pipeline struct {
	Provisioner Provisioner
	Reader      DescriptorReader
	Invoker     Invoker
	Publisher   Publisher

	Store      Store
	Stream     Stream
	Summarizer Summarizer
	Tracer     trace.Tracer

	// Redactor scrubs secrets from everything the pipeline returns,
	// streams or stores.
	Redactor *redact.Filter
	// Credentials and SecretVars feed Redactor at the start of each run so
	// secrets added to a dotenv file after startup are still scrubbed.
	Credentials credentials.Resolver
	SecretVars  []string

	KeepWorkspace bool
	// Mode is recorded in run history.
	Mode string

	summaries sync.WaitGroup
}

// outcome is what gets written to run history.
type outcome struct {
	status    string
	errorKind string
	modelID   string
	branch    string
	pushed    bool
	prURL     string
}

// Ticket identifies a run recorded by Begin. ID is zero when run history
// is disabled or the insert failed.
type Ticket struct {
	ID   int64  `json:"id,omitempty"`
	UUID string `json:"uuid"`
}

// Run executes req and returns the text for the caller.
func (p *Pipeline) Run(ctx context.Context, req Request) string {
	return p.Execute(ctx, req, p.Begin(req))
}

// Begin records req as running and opens its live stream, so callers can
// hand out the run's identity before Execute starts.
func (p *Pipeline) Begin(req Request) Ticket {
	filter := p.filter()
	t := Ticket{UUID: uuid.NewString()}
	if p.Store != nil {
		id, err := p.Store.InsertRun(&db.Run{
			UUID:       t.UUID,
			Repository: filter.Redact(req.Repository),
			Folder:     req.Folder,
			Request:    filter.Redact(req.Request),
			Mode:       p.Mode,
		})
		if err != nil {
			slog.Warn("failed to record run start", "run_uuid", t.UUID, "error", err)
		} else {
			t.ID = id
		}
	}
	if p.Stream != nil && t.ID > 0 {
		p.Stream.Open(t.ID)
	}
	return t
}

// Execute runs a request recorded by Begin and returns the text for the
// caller.
func (p *Pipeline) Execute(ctx context.Context, req Request, t Ticket) string {
	start := time.Now()
	filter := p.filter()

	ctx, span := p.tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("repository", filter.Redact(req.Repository)),
		attribute.String("folder", req.Folder),
	))
	defer span.End()

	runID := t.ID
	log := slog.With("run_id", runID, "run_uuid", t.UUID)
	log.Info("run started", "repository", filter.Redact(req.Repository), "folder", req.Folder)

	text, out := p.execute(ctx, req, t, log)
	text = filter.Redact(text)

	span.SetAttributes(attribute.String("status", out.status))
	if out.errorKind != "" {
		span.SetStatus(codes.Error, out.errorKind)
	}
	elapsed := time.Since(start)
	log.Info("run finished", "status", out.status, "error_kind", out.errorKind,
		"branch", out.branch, "pushed", out.pushed, "elapsed", elapsed)

	p.finish(runID, out, text, elapsed, log)
	return text
}

// Wait blocks until background summaries have finished.
func (p *Pipeline) Wait() {
	p.summaries.Wait()
}

func (p *Pipeline) execute(ctx context.Context, req Request, t Ticket, log *slog.Logger) (string, outcome) {
	if strings.TrimSpace(req.Repository) == "" {
		return "repository is required", outcome{status: db.StatusFailed, errorKind: "ValidationError"}
	}
	if strings.TrimSpace(req.Request) == "" {
		return "request is required", outcome{status: db.StatusFailed, errorKind: "ValidationError"}
	}

	ws, err := stage(ctx, p.tracer(), "workspace.provision", func(ctx context.Context) (*workspace.Workspace, error) {
		return p.Provisioner.Provision(ctx, req.Repository, req.Folder)
	})
	if err != nil {
		return err.Error(), failed(err)
	}
	defer p.cleanup(ws, log)

	desc, err := stage(ctx, p.tracer(), "agent.read", func(ctx context.Context) (*agent.Descriptor, error) {
		return p.Reader.Read(ctx, ws.Dir)
	})
	if err != nil {
		return err.Error(), failed(err)
	}
	log.Info("agent descriptor loaded", "model", desc.ModelID, "instruction_bytes", len(desc.Instruction))

	inv := codex.Invocation{
		Dir:           ws.Dir,
		ModelID:       desc.ModelID,
		Instruction:   desc.Instruction,
		Request:       req.Request,
		ContainerName: codex.ContainerPrefix + t.UUID,
	}
	var lw *process.LineWriter
	if p.Stream != nil && t.ID > 0 {
		filter := p.filter()
		lw = process.NewLineWriter(func(line string) {
			p.Stream.Publish(t.ID, filter.Redact(line))
		})
		inv.Stream = lw
	}
	res, err := stage(ctx, p.tracer(), "codex.invoke", func(ctx context.Context) (*codex.Result, error) {
		return p.Invoker.Invoke(ctx, inv)
	})
	if lw != nil {
		lw.Flush()
	}
	if err != nil {
		out := failed(err)
		out.modelID = desc.ModelID
		return err.Error(), out
	}

	pub, _ := stage(ctx, p.tracer(), "publish", func(ctx context.Context) (*publish.Outcome, error) {
		return p.Publisher.Publish(ctx, ws.Dir, req.Request, workspace.ComponentLabel(req.Folder)), nil
	})

	return Format(res, pub), outcome{
		status:  db.StatusCompleted,
		modelID: desc.ModelID,
		branch:  pub.Branch,
		pushed:  pub.Pushed,
		prURL:   pub.PullRequestURL,
	}
}

// Format renders a successful generation: codex output, then the publish
// message, then the pull request link, then one Warning line per problem.
func Format(res *codex.Result, pub *publish.Outcome) string {
	var b strings.Builder
	b.WriteString(res.Output)
	if pub != nil && pub.Message != "" {
		b.WriteString("\n\n")
		b.WriteString(pub.Message)
	}
	if pub != nil && pub.PullRequestURL != "" {
		b.WriteString("\n\nPull request: ")
		b.WriteString(pub.PullRequestURL)
	}
	warnings := append([]string(nil), res.Warnings...)
	if pub != nil {
		warnings = append(warnings, pub.Warnings...)
	}
	for _, w := range warnings {
		b.WriteString("\n\nWarning: ")
		b.WriteString(w)
	}
	return b.String()
}

// ErrorKind names the failure class of err for run history.
func ErrorKind(err error) string {
	var (
		cloneErr   *workspace.CloneError
		instrErr   *agent.MissingInstructionError
		configErr  *agent.MissingConfigError
		modelErr   *agent.MissingModelIdError
		credErr    *credentials.MissingError
		timeoutErr *codex.TimeoutError
		invokeErr  *codex.InvocationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cloneErr):
		return "CloneError"
	case errors.As(err, &instrErr):
		return "MissingInstructionError"
	case errors.As(err, &configErr):
		return "MissingConfigError"
	case errors.As(err, &modelErr):
		return "MissingModelIdError"
	case errors.As(err, &credErr):
		return "MissingCredentialError"
	case errors.As(err, &timeoutErr):
		return "InvocationTimeoutError"
	case errors.As(err, &invokeErr):
		return "InvocationError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	default:
		return "Error"
	}
}

func failed(err error) outcome {
	out := outcome{status: db.StatusFailed, errorKind: ErrorKind(err)}
	if out.errorKind == "InvocationTimeoutError" {
		out.status = db.StatusTimedOut
	}
	return out
}

// stage runs fn in its own span.
func stage[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorKind(err))
	}
	return v, err
}

func (p *Pipeline) cleanup(ws *workspace.Workspace, log *slog.Logger) {
	if p.KeepWorkspace {
		log.Info("keeping workspace", "dir", ws.Root)
		return
	}
	if err := ws.Remove(); err != nil {
		log.Warn("failed to remove workspace", "dir", ws.Root, "error", err)
	}
}

func (p *Pipeline) finish(runID int64, out outcome, text string, elapsed time.Duration, log *slog.Logger) {
	if p.Stream != nil && runID > 0 {
		p.Stream.Close(runID)
	}
	if p.Store == nil || runID == 0 {
		return
	}
	err := p.Store.FinishRun(runID, db.RunResult{
		Status:         out.status,
		ModelID:        out.modelID,
		Branch:         out.branch,
		Pushed:         out.pushed,
		PullRequestURL: out.prURL,
		ErrorKind:      out.errorKind,
		Output:         text,
		Duration:       elapsed,
	})
	if err != nil {
		log.Warn("failed to record run result", "error", err)
		return
	}

	if p.Summarizer == nil || out.status != db.StatusCompleted {
		return
	}
	p.summaries.Add(1)
	go func() {
		defer p.summaries.Done()
		ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()

		summary, err := p.Summarizer.Summarize(ctx, text)
		if err != nil {
			log.Warn("failed to summarize run", "error", err)
			return
		}
		if err := p.Store.UpdateRunSummary(runID, p.filter().Redact(summary)); err != nil {
			log.Warn("failed to store run summary", "error", err)
		}
	}()
}

// filter returns the redaction filter refreshed with the current values
// of SecretVars.
func (p *Pipeline) filter() *redact.Filter {
	f := p.Redactor
	if f == nil {
		f = redact.New(nil)
	}
	if p.Credentials != nil {
		for _, name := range p.SecretVars {
			if v, ok := p.Credentials.Lookup(name); ok {
				f.Add(name, v)
			}
		}
	}
	return f
}

func (p *Pipeline) tracer() trace.Tracer {
	if p.Tracer == nil {
		return noop.NewTracerProvider().Tracer("pipeline")
	}
	return p.Tracer
}
