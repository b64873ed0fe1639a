package codex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teabranch/agentic-developer-mcp/internal/process/processtest"
)

func TestPermissionRepair_LocalChown(t *testing.T) {
	runner := processtest.New()
	p := &PermissionRepair{Runner: runner, UID: 1000, GID: 1000}

	require.NoError(t, p.Repair(context.Background(), "/tmp/ws"))
	assert.Equal(t, []string{"chown -R 1000:1000 /tmp/ws", "chmod -R u+rwX /tmp/ws"}, runner.Lines())
}

func TestPermissionRepair_FallsBackToContainer(t *testing.T) {
	runner := processtest.New().On("chown", processtest.Respond(1, "", "Operation not permitted"))
	p := &PermissionRepair{Runner: runner, Image: "codex-cli", UID: 501, GID: 20}

	require.NoError(t, p.Repair(context.Background(), "/tmp/ws"))
	lines := runner.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "docker run --rm --user 0:0 --entrypoint chown -v /tmp/ws:/workspace codex-cli -R 501:20 /workspace", lines[1])
}

func TestPermissionRepair_BothFail(t *testing.T) {
	runner := processtest.New().
		On("chown", processtest.Respond(1, "", "Operation not permitted")).
		On("docker", processtest.Respond(125, "", "Cannot connect to the Docker daemon"))
	p := &PermissionRepair{Runner: runner, UID: 1, GID: 1}

	err := p.Repair(context.Background(), "/tmp/ws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operation not permitted")
	assert.Contains(t, err.Error(), "Docker daemon")
}
