// Package gittest builds throwaway git repositories for tests that need a
// real git binary. Tests calling these helpers are skipped when git is not
// on PATH.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Identity is exported into every git invocation so commits work on
// machines without a global user.name.
var Identity = map[string]string{
	"GIT_AUTHOR_NAME":     "gittest",
	"GIT_AUTHOR_EMAIL":    "gittest@example.com",
	"GIT_COMMITTER_NAME":  "gittest",
	"GIT_COMMITTER_EMAIL": "gittest@example.com",
	"GIT_CONFIG_NOSYSTEM": "1",
}

// RequireGit skips t when git is unavailable.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// Git runs git in dir and fails t on a non-zero exit. It returns trimmed
// stdout.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range Identity {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// NewRepo creates a repository on branch main holding files (path ->
// content) in a single commit and returns its directory.
func NewRepo(t testing.TB, files map[string]string) string {
	t.Helper()
	RequireGit(t)

	dir := t.TempDir()
	Git(t, dir, "init", "-q", "-b", "main")
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	Git(t, dir, "add", ".")
	Git(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

// NewBareRemote clones src into a bare repository usable as a push target
// and returns its path.
func NewBareRemote(t testing.TB, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "remote.git")
	Git(t, filepath.Dir(dir), "clone", "-q", "--bare", src, dir)
	return dir
}

// FileURL returns a file:// URL for a local repository path. Partial and
// shallow clones only honor their flags over a URL transport.
func FileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}
