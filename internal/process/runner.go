// Package process runs external programs (git, docker, codex) behind a
// narrow interface so callers can substitute scripted doubles in tests.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"
)

// ErrTimeout is returned (wrapped) when a command outlives its Timeout.
var ErrTimeout = errors.New("process timed out")

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// Command describes one process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string // added on top of the parent environment
	Timeout time.Duration     // zero means no limit beyond ctx
	Stdout  io.Writer         // optional live copy of stdout
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
}

// Runner executes a Command. A non-zero exit is reported through
// Result.ExitCode with a nil error; errors mean the process could not be
// started, timed out, or ctx was cancelled.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner implements Runner with os/exec. Each child is placed in its
// own process group and the whole group is killed on timeout so that
// grandchildren (docker, shells) do not outlive the run.
type ExecRunner struct{}

// Run starts cmd and blocks until it exits or its deadline passes.
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // callers build args from validated input
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envSlice(c.Env)...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	if c.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stdout)
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		ExitCode: exitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  time.Since(start),
	}

	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			res.TimedOut = true
			return res, fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, c.Timeout)
		}
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, nil
	}
	return res, fmt.Errorf("start %s: %w", c.Name, err)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
