// Package agent reads the .agent/ descriptor a repository ships to steer
// code generation: an instruction document and a model selection.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/teabranch/agentic-developer-mcp/internal/process"
)

// Layout of the descriptor inside a working copy.
const (
	Dir             = ".agent"
	InstructionFile = "system.md"
	ConfigFile      = "agent.json"
)

// Descriptor is the parsed .agent/ directory.
type Descriptor struct {
	Instruction string
	ModelID     string
	ConfigPath  string
}

// MissingInstructionError reports an absent or unreadable system.md. The
// listing and latest commit help the caller see what was actually cloned.
type MissingInstructionError struct {
	Path         string
	Err          error
	Listing      []string
	LatestCommit string
}

func (e *MissingInstructionError) Error() string {
	commit := e.LatestCommit
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("Failed reading system prompt: %v. \n Latest commit: %s . \n items (%d) are:\n%s",
		e.Err, commit, len(e.Listing), strings.Join(e.Listing, "\n"))
}

func (e *MissingInstructionError) Unwrap() error { return e.Err }

// MissingConfigError reports an absent or malformed agent.json.
type MissingConfigError struct {
	Path string
	Err  error
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("Failed reading agent config %s: %v", e.Path, e.Err)
}

func (e *MissingConfigError) Unwrap() error { return e.Err }

// MissingModelIdError reports an agent.json without a usable modelId.
type MissingModelIdError struct {
	Path string
}

func (e *MissingModelIdError) Error() string {
	return "modelId not found in agent.json"
}

// Reader loads descriptors. Runner is only used as a fallback to find the
// latest commit when the repository cannot be opened in-process; it may be
// nil.
type Reader struct {
	Runner    process.Runner
	GitBinary string
}

// Read parses <dir>/.agent/. It never writes to dir.
func (r *Reader) Read(ctx context.Context, dir string) (*Descriptor, error) {
	instrPath := filepath.Join(dir, Dir, InstructionFile)
	instruction, err := os.ReadFile(instrPath)
	if err != nil {
		return nil, &MissingInstructionError{
			Path:         instrPath,
			Err:          err,
			Listing:      listing(dir),
			LatestCommit: r.latestCommit(ctx, dir),
		}
	}

	cfgPath := filepath.Join(dir, Dir, ConfigFile)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, &MissingConfigError{Path: cfgPath, Err: err}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MissingConfigError{Path: cfgPath, Err: err}
	}

	var modelID string
	if v, ok := raw["modelId"]; ok {
		if err := json.Unmarshal(v, &modelID); err != nil {
			return nil, &MissingModelIdError{Path: cfgPath}
		}
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, &MissingModelIdError{Path: cfgPath}
	}

	return &Descriptor{
		Instruction: string(instruction),
		ModelID:     modelID,
		ConfigPath:  cfgPath,
	}, nil
}

func listing(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{fmt.Sprintf("(unreadable: %v)", err)}
	}
	if len(entries) == 0 {
		return []string{"(empty directory)"}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (r *Reader) latestCommit(ctx context.Context, dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if head, err := repo.Head(); err == nil {
			return head.Hash().String()
		}
	}
	slog.Debug("go-git could not resolve HEAD, falling back to git CLI", "dir", dir, "error", err)

	if r.Runner == nil {
		return ""
	}
	bin := r.GitBinary
	if bin == "" {
		bin = "git"
	}
	res, err := r.Runner.Run(ctx, process.Command{
		Name:    bin,
		Args:    []string{"rev-parse", "HEAD"},
		Dir:     dir,
		Timeout: 10 * time.Second,
	})
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
