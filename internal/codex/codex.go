// Package codex runs the codex code-generation CLI against a workspace,
// either as a local binary or inside a container.
package codex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teabranch/agentic-developer-mcp/internal/credentials"
	"github.com/teabranch/agentic-developer-mcp/internal/process"
)

// Mode selects how codex is launched.
type Mode string

const (
	ModeDirect    Mode = "direct"
	ModeContainer Mode = "container"
)

// ParseMode validates a mode name from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDirect:
		return ModeDirect, nil
	case ModeContainer, "docker":
		return ModeContainer, nil
	default:
		return "", fmt.Errorf("unknown codex mode %q (want direct or container)", s)
	}
}

// stopTimeout bounds each docker kill or rm issued after an aborted run.
const stopTimeout = 30 * time.Second

const (
	DefaultTimeout   = 10 * time.Minute
	DefaultBinary    = "codex"
	DefaultDocker    = "docker"
	DefaultImage     = "codex-cli"
	DefaultAPIKeyVar = "OPENAI_API_KEY"

	// ContainerWorkdir is where the workspace is mounted in container mode.
	ContainerWorkdir = "/workspace"
	// ContainerPrefix starts the name of every codex container.
	ContainerPrefix = "agentic-dev-"
	// PromptDelimiter separates the repository's instruction from the
	// caller's request in the combined prompt.
	PromptDelimiter = "\n\n---\n\n## Request\n\n"
)

// Options configures an Invoker. Zero values fall back to the defaults.
type Options struct {
	Mode         Mode
	Binary       string
	DockerBinary string
	Image        string
	TTY          bool
	Timeout      time.Duration
	// APIKeyVar is the credential name looked up for the provider key.
	APIKeyVar string
}

// Invocation is one codex run.
type Invocation struct {
	Dir         string
	ModelID     string
	Instruction string
	Request     string
	// Stream, when set, receives stdout as it is produced.
	Stream io.Writer
	// ContainerName names the container in container mode. Empty
	// generates ContainerPrefix plus a random UUID.
	ContainerName string
}

// Result is a successful run.
type Result struct {
	Output   string
	Stderr   string
	Elapsed  time.Duration
	Warnings []string
}

// TimeoutError reports a run that exceeded its budget. The process group
// has been killed by the time it is returned.
type TimeoutError struct {
	Timeout time.Duration
	Stdout  string
	Stderr  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Codex CLI timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return process.ErrTimeout }

// InvocationError reports a non-zero exit with the full captured output.
type InvocationError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("Codex CLI failed with return code %d\nStderr: %s\nStdout: %s", e.ExitCode, e.Stderr, e.Stdout)
}

// Repairer fixes up a workspace after a container wrote into it.
type Repairer interface {
	Repair(ctx context.Context, dir string) error
}

// Invoker launches codex.
type Invoker struct {
	Runner      process.Runner
	Credentials credentials.Resolver
	// Repair runs after container-mode invocations. Nil disables it.
	Repair Repairer
	Options
}

// BuildPrompt joins the instruction and the request with PromptDelimiter.
// An empty instruction yields the bare request.
func BuildPrompt(instruction, request string) string {
	instruction = strings.TrimSpace(instruction)
	request = strings.TrimSpace(request)
	if instruction == "" {
		return request
	}
	return instruction + PromptDelimiter + request
}

// Invoke runs codex in inv.Dir. The API key is resolved before anything is
// started; a missing key returns *credentials.MissingError.
func (i *Invoker) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	keyVar := i.APIKeyVar
	if keyVar == "" {
		keyVar = DefaultAPIKeyVar
	}
	apiKey, err := credentials.Require(i.Credentials, keyVar)
	if err != nil {
		return nil, err
	}

	if i.mode() == ModeContainer && inv.ContainerName == "" {
		inv.ContainerName = ContainerPrefix + uuid.NewString()
	}
	cmd := i.command(inv, apiKey)
	slog.Info("running codex",
		"mode", i.mode(),
		"container", inv.ContainerName,
		"model", inv.ModelID,
		"dir", inv.Dir,
		"api_key_chars", len(apiKey),
		"timeout", cmd.Timeout,
	)

	res, err := i.Runner.Run(ctx, cmd)
	if err != nil {
		// Killing the docker client leaves the container to the daemon.
		aborted := res.TimedOut || errors.Is(err, process.ErrTimeout) || ctx.Err() != nil
		if aborted && i.mode() == ModeContainer {
			i.stopContainer(inv.ContainerName)
		}
		if res.TimedOut || errors.Is(err, process.ErrTimeout) {
			return nil, &TimeoutError{Timeout: cmd.Timeout, Stdout: res.Stdout, Stderr: res.Stderr}
		}
		return nil, fmt.Errorf("run codex: %w", err)
	}
	slog.Info("codex finished", "exit_code", res.ExitCode, "elapsed", res.Elapsed,
		"stdout_bytes", len(res.Stdout), "stderr_bytes", len(res.Stderr))

	if res.ExitCode != 0 {
		return nil, &InvocationError{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}

	out := &Result{Output: res.Stdout, Stderr: res.Stderr, Elapsed: res.Elapsed}
	if i.mode() == ModeContainer && i.Repair != nil {
		if err := i.Repair.Repair(ctx, inv.Dir); err != nil {
			slog.Warn("permission repair failed", "dir", inv.Dir, "error", err)
			out.Warnings = append(out.Warnings, "permission repair failed: "+err.Error())
		}
	}
	return out, nil
}

func (i *Invoker) mode() Mode {
	if i.Mode == "" {
		return ModeContainer
	}
	return i.Mode
}

func (i *Invoker) docker() string {
	if i.DockerBinary == "" {
		return DefaultDocker
	}
	return i.DockerBinary
}

// stopContainer kills a container that may outlive its docker client,
// falling back to a forced remove. It runs on a fresh context because the
// run's context is usually done by now.
func (i *Invoker) stopContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*stopTimeout)
	defer cancel()

	kill := process.Command{Name: i.docker(), Args: []string{"kill", name}, Timeout: stopTimeout}
	res, err := i.Runner.Run(ctx, kill)
	if err == nil && res.ExitCode == 0 {
		slog.Info("killed codex container", "container", name)
		return
	}
	slog.Debug("docker kill failed, removing container", "container", name, "error", err, "stderr", res.Stderr)

	rm := process.Command{Name: i.docker(), Args: []string{"rm", "-f", name}, Timeout: stopTimeout}
	res, err = i.Runner.Run(ctx, rm)
	if err != nil || res.ExitCode != 0 {
		slog.Warn("failed to stop codex container", "container", name, "error", err, "stderr", strings.TrimSpace(res.Stderr))
	}
}

func (i *Invoker) timeout() time.Duration {
	if i.Timeout <= 0 {
		return DefaultTimeout
	}
	return i.Timeout
}

// command builds the process for inv. The key is passed through the
// environment only, so it never shows up in argv or process listings.
func (i *Invoker) command(inv Invocation, apiKey string) process.Command {
	prompt := BuildPrompt(inv.Instruction, inv.Request)
	env := map[string]string{DefaultAPIKeyVar: apiKey}

	if i.mode() == ModeDirect {
		bin := i.Binary
		if bin == "" {
			bin = DefaultBinary
		}
		return process.Command{
			Name:    bin,
			Args:    []string{"exec", "--full-auto", "--model", inv.ModelID, prompt},
			Dir:     inv.Dir,
			Env:     env,
			Timeout: i.timeout(),
			Stdout:  inv.Stream,
		}
	}

	image := i.Image
	if image == "" {
		image = DefaultImage
	}
	args := []string{"run", "--rm", "--name", inv.ContainerName}
	if i.TTY {
		args = append(args, "--tty")
	}
	args = append(args,
		"-v", inv.Dir+":"+ContainerWorkdir,
		"-w", ContainerWorkdir,
		"-e", DefaultAPIKeyVar,
		"-e", "VOLUME_PATH="+ContainerWorkdir,
		image,
		"-a", "full-auto", "--model", inv.ModelID, prompt,
	)
	return process.Command{
		Name:    i.docker(),
		Args:    args,
		Dir:     inv.Dir,
		Env:     env,
		Timeout: i.timeout(),
		Stdout:  inv.Stream,
	}
}
