package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teabranch/agentic-developer-mcp/internal/gittest"
	"github.com/teabranch/agentic-developer-mcp/internal/process/processtest"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestRead_Valid(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		".agent/system.md":  "You are a careful Go developer.\n",
		".agent/agent.json": `{"modelId": " o4-mini ", "name": "go-dev"}`,
	})

	d, err := (&Reader{}).Read(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "You are a careful Go developer.\n", d.Instruction)
	assert.Equal(t, "o4-mini", d.ModelID)
	assert.Equal(t, filepath.Join(dir, ".agent", "agent.json"), d.ConfigPath)
}

func TestRead_MissingInstruction(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"main.go":           "package main\n",
		".agent/agent.json": `{"modelId": "o4-mini"}`,
	})
	runner := processtest.New().On("git rev-parse HEAD", processtest.Respond(0, "abc123\n", ""))

	_, err := (&Reader{Runner: runner}).Read(context.Background(), dir)
	require.Error(t, err)

	var mi *MissingInstructionError
	require.True(t, errors.As(err, &mi))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.ElementsMatch(t, []string{".agent", "main.go"}, mi.Listing)
	assert.Equal(t, "abc123", mi.LatestCommit)
	assert.Contains(t, err.Error(), "system prompt")
	assert.Contains(t, err.Error(), "Latest commit: abc123")
	assert.Contains(t, err.Error(), "items (2) are:")
}

func TestRead_MissingInstructionEmptyDir(t *testing.T) {
	_, err := (&Reader{}).Read(context.Background(), t.TempDir())

	var mi *MissingInstructionError
	require.True(t, errors.As(err, &mi))
	assert.Equal(t, []string{"(empty directory)"}, mi.Listing)
	assert.Contains(t, err.Error(), "Latest commit: unknown")
}

func TestRead_MissingInstructionUsesGoGit(t *testing.T) {
	repo := gittest.NewRepo(t, map[string]string{"README.md": "hi\n"})
	head := gittest.Git(t, repo, "rev-parse", "HEAD")

	runner := processtest.New()
	_, err := (&Reader{Runner: runner}).Read(context.Background(), repo)

	var mi *MissingInstructionError
	require.True(t, errors.As(err, &mi))
	assert.Equal(t, head, mi.LatestCommit)
	assert.Empty(t, runner.Calls(), "go-git should resolve HEAD without the CLI")
}

func TestRead_ConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		config    *string
		wantModel bool
	}{
		{name: "absent", config: nil},
		{name: "malformed", config: strptr(`{"modelId": `)},
		{name: "not an object", config: strptr(`["o4-mini"]`)},
		{name: "no modelId", config: strptr(`{"name": "x"}`), wantModel: true},
		{name: "empty modelId", config: strptr(`{"modelId": "  "}`), wantModel: true},
		{name: "null modelId", config: strptr(`{"modelId": null}`), wantModel: true},
		{name: "numeric modelId", config: strptr(`{"modelId": 4}`), wantModel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string]string{".agent/system.md": "instructions"}
			if tt.config != nil {
				files[".agent/agent.json"] = *tt.config
			}
			writeFiles(t, dir, files)

			_, err := (&Reader{}).Read(context.Background(), dir)
			require.Error(t, err)
			if tt.wantModel {
				var mm *MissingModelIdError
				require.True(t, errors.As(err, &mm), "got %T", err)
				assert.Contains(t, err.Error(), "modelId")
				return
			}
			var mc *MissingConfigError
			require.True(t, errors.As(err, &mc), "got %T", err)
			assert.Contains(t, err.Error(), "Failed reading agent config")
		})
	}
}

func strptr(s string) *string { return &s }
