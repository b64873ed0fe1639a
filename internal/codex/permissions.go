package codex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teabranch/agentic-developer-mcp/internal/process"
)

const repairTimeout = 2 * time.Minute

// PermissionRepair hands files a container created in the workspace back
// to the server's user so git can stage and commit them. It first tries a
// local chown and, if that is not permitted, repeats the chown from inside
// a throwaway container that runs as root. POSIX only.
type PermissionRepair struct {
	Runner       process.Runner
	DockerBinary string
	Image        string
	UID, GID     int
}

// NewPermissionRepair targets the current process's uid and gid.
func NewPermissionRepair(runner process.Runner, dockerBinary, image string) *PermissionRepair {
	return &PermissionRepair{
		Runner:       runner,
		DockerBinary: dockerBinary,
		Image:        image,
		UID:          os.Getuid(),
		GID:          os.Getgid(),
	}
}

// Repair implements Repairer.
func (p *PermissionRepair) Repair(ctx context.Context, dir string) error {
	owner := fmt.Sprintf("%d:%d", p.UID, p.GID)

	local := process.Command{Name: "chown", Args: []string{"-R", owner, dir}, Timeout: repairTimeout}
	localErr := p.run(ctx, local)
	if localErr == nil {
		return p.run(ctx, process.Command{Name: "chmod", Args: []string{"-R", "u+rwX", dir}, Timeout: repairTimeout})
	}

	docker := p.DockerBinary
	if docker == "" {
		docker = DefaultDocker
	}
	image := p.Image
	if image == "" {
		image = DefaultImage
	}
	viaContainer := process.Command{
		Name: docker,
		Args: []string{
			"run", "--rm", "--user", "0:0", "--entrypoint", "chown",
			"-v", dir + ":" + ContainerWorkdir,
			image, "-R", owner, ContainerWorkdir,
		},
		Timeout: repairTimeout,
	}
	if err := p.run(ctx, viaContainer); err != nil {
		return errors.Join(localErr, err)
	}
	return nil
}

func (p *PermissionRepair) run(ctx context.Context, cmd process.Command) error {
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", cmd.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}
