// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"strings"
	"sync"

	"github.com/teabranch/agentic-developer-mcp/internal/process"
)

// Handler produces the outcome of one scripted command.
type Handler func(ctx context.Context, cmd process.Command) (process.Result, error)

// Respond returns a Handler with a fixed exit code and output.
func Respond(exitCode int, stdout, stderr string) Handler {
	return func(context.Context, process.Command) (process.Result, error) {
		return process.Result{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
	}
}

type route struct {
	prefix  string
	handler Handler
}

// Runner records every command and answers from the first route whose
// prefix matches Command.String(). Unmatched commands exit 0 silently.
type Runner struct {
	mu     sync.Mutex
	routes []route
	calls  []process.Command
}

// New returns an empty Runner.
func New() *Runner { return &Runner{} }

// On registers h for commands starting with prefix, e.g. "git clone".
func (r *Runner) On(prefix string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{prefix: prefix, handler: h})
	return r
}

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	var h Handler
	line := cmd.String()
	for _, rt := range r.routes {
		if strings.HasPrefix(line, rt.prefix) {
			h = rt.handler
			break
		}
	}
	r.mu.Unlock()

	if h == nil {
		return process.Result{}, nil
	}
	res, err := h(ctx, cmd)
	if cmd.Stdout != nil && res.Stdout != "" {
		_, _ = cmd.Stdout.Write([]byte(res.Stdout))
	}
	return res, err
}

// Calls returns a copy of the recorded commands in order.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]process.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns Command.String() for every recorded command.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Ran reports whether any recorded command starts with prefix.
func (r *Runner) Ran(prefix string) bool {
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

// Find returns the first recorded command starting with prefix.
func (r *Runner) Find(prefix string) (process.Command, bool) {
	for _, c := range r.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			return c, true
		}
	}
	return process.Command{}, false
}
