// Package workspace materializes a disposable working copy of a remote
// repository for a single pipeline run.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teabranch/agentic-developer-mcp/internal/process"
)

// DirPrefix names every workspace directory so Sweep can find them.
const DirPrefix = "agentic-dev-"

// DefaultGitTimeout bounds each clone step.
const DefaultGitTimeout = 5 * time.Minute

// ErrInvalidFolder is returned for folders that escape the repository.
var ErrInvalidFolder = errors.New("folder must be a relative path inside the repository")

// Workspace is one run's checkout.
type Workspace struct {
	Root   string // unique temp directory holding the clone
	Dir    string // working directory: Root, or Root/Folder for sparse clones
	Folder string // normalized folder, "" for the repository root
}

// Remove deletes the workspace from disk.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// CloneError reports a failed clone or sparse-checkout step. Stderr holds
// git's diagnostic output verbatim.
type CloneError struct {
	Repository string
	Folder     string
	Stage      string // "clone" or "sparse-checkout"
	Stderr     string
	Err        error
}

func (e *CloneError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Stage == "sparse-checkout" {
		return fmt.Sprintf("Failed to restrict sparse checkout of %s to %s: %s", e.Repository, e.Folder, detail)
	}
	return fmt.Sprintf("Failed to clone %s: %s", e.Repository, detail)
}

func (e *CloneError) Unwrap() error { return e.Err }

// Provisioner clones repositories into fresh temp directories.
type Provisioner struct {
	Runner    process.Runner
	Root      string // parent of workspace dirs; empty means os.TempDir()
	GitBinary string // defaults to "git"
	// Depth > 0 makes clones shallow. It applies to full and sparse clones.
	Depth   int
	Timeout time.Duration
}

// Provision allocates a workspace and clones repository into it. A folder
// of "" or "/" yields a full clone; anything else yields a blob-filtered
// sparse clone restricted to that folder.
func (p *Provisioner) Provision(ctx context.Context, repository, folder string) (*Workspace, error) {
	if strings.TrimSpace(repository) == "" {
		return nil, errors.New("repository is required")
	}
	norm, err := NormalizeFolder(folder)
	if err != nil {
		return nil, err
	}

	if p.Root != "" {
		if err := os.MkdirAll(p.Root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	}
	root, err := os.MkdirTemp(p.Root, DirPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{Root: root, Dir: root, Folder: norm}

	args := []string{"clone"}
	if norm != "" {
		args = append(args, "--filter=blob:none", "--sparse")
	}
	if p.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(p.Depth))
	}
	args = append(args, "--", repository, root)

	slog.Info("cloning repository", "repository", repository, "folder", norm, "depth", p.Depth, "dir", root)
	if err := p.git(ctx, "", args...); err != nil {
		_ = ws.Remove()
		return nil, cloneErr(err, repository, norm, "clone")
	}

	if norm != "" {
		if err := p.git(ctx, root, "sparse-checkout", "set", norm); err != nil {
			_ = ws.Remove()
			return nil, cloneErr(err, repository, norm, "sparse-checkout")
		}
		ws.Dir = filepath.Join(root, filepath.FromSlash(norm))
	}
	return ws, nil
}

// gitFailure carries a non-zero git exit through to cloneErr.
type gitFailure struct {
	res process.Result
}

func (g *gitFailure) Error() string {
	return fmt.Sprintf("git exited with code %d", g.res.ExitCode)
}

func (p *Provisioner) git(ctx context.Context, dir string, args ...string) error {
	bin := p.GitBinary
	if bin == "" {
		bin = "git"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultGitTimeout
	}
	res, err := p.Runner.Run(ctx, process.Command{
		Name:    bin,
		Args:    args,
		Dir:     dir,
		Env:     map[string]string{"GIT_TERMINAL_PROMPT": "0"},
		Timeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", process.Command{Name: bin, Args: args}, err)
	}
	if res.ExitCode != 0 {
		return &gitFailure{res: res}
	}
	return nil
}

func cloneErr(err error, repository, folder, stage string) error {
	ce := &CloneError{Repository: repository, Folder: folder, Stage: stage, Err: err}
	var gf *gitFailure
	if errors.As(err, &gf) {
		ce.Stderr = gf.res.Stderr
	}
	return ce
}

// NormalizeFolder trims slashes and cleans folder. Root ("" or "/") maps
// to "". Paths that climb out of the repository are rejected.
func NormalizeFolder(folder string) (string, error) {
	f := strings.TrimSpace(strings.ReplaceAll(folder, "\\", "/"))
	f = strings.Trim(f, "/")
	if f == "" {
		return "", nil
	}
	f = path.Clean(f)
	if f == "." {
		return "", nil
	}
	if f == ".." || strings.HasPrefix(f, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
	}
	return f, nil
}

// ComponentLabel derives the branch label for a folder: its last segment.
// Root yields "".
func ComponentLabel(folder string) string {
	norm, err := NormalizeFolder(folder)
	if err != nil || norm == "" {
		return ""
	}
	return path.Base(norm)
}

// Sweep removes workspace directories under root older than maxAge and
// returns how many were deleted. It bounds the disk used when workspaces
// are kept for inspection.
func Sweep(root string, maxAge time.Duration, now time.Time) (int, error) {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), DirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		full := filepath.Join(root, e.Name())
		if err := os.RemoveAll(full); err != nil {
			slog.Warn("failed to remove stale workspace", "dir", full, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
