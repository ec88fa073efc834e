// container.go implements the container lifecycle for containerized
// training runs: launching via `docker run`, discovery via label-filtered
// listing, and stop/remove via the Docker SDK.
//
// All managed containers are identified by the "distrun.managed-by" label,
// which separates them from unrelated containers on the same host.
package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// containerNamePrefix namespaces the container names created by distrun,
// so a run named "gpt-demo" produces the container "distrun-gpt-demo".
const containerNamePrefix = "distrun-"

// ContainerName returns the Docker container name for a run name.
func ContainerName(runName string) string {
	return containerNamePrefix + runName
}

// LaunchRun starts a containerized training run with `docker run -d`.
//
// The container gets:
//   - the distrun label set (BuildLabels) for later discovery
//   - all host GPUs (--gpus all); per-run GPU partitioning is the
//     launcher's job inside the container, same as on the host
//   - the working directory bind-mounted at /workspace so the training
//     script, dataset paths, and the log file resolve as they would for
//     a host launch
//   - the synthesized launcher invocation as its command; output goes to
//     the Docker log stream (follow with `docker logs -f`)
//
// os/exec is used rather than the SDK's ContainerCreate/ContainerStart
// because the CLI flag surface maps directly onto what we need, while the
// SDK would require assembling Config/HostConfig structs (GPU device
// requests included) by hand.
func LaunchRun(ctx context.Context, spec *model.LaunchSpec, argv []string, env []string, workDir string, createdAt time.Time) (string, error) {
	labels := BuildLabels(spec, createdAt)

	args := make([]string, 0, len(labels)*2+len(argv)+16)
	args = append(args, "run", "-d")
	args = append(args, "--name", ContainerName(spec.Name))
	args = append(args, "--gpus", "all")
	args = append(args, "-v", workDir+":/workspace")
	args = append(args, "-w", "/workspace")
	for _, kv := range env {
		args = append(args, "-e", kv)
	}
	args = append(args, LabelArgs(labels)...)
	args = append(args, spec.Image)
	args = append(args, argv...)

	// #nosec G204 — argv is synthesized from a validated spec
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker run failed for run %q: %s",
				spec.Name, strings.TrimSpace(string(output))),
			err,
		)
	}

	// `docker run -d` prints the new container ID on stdout.
	return strings.TrimSpace(string(output)), nil
}

// ListManagedRuns queries the Docker daemon for all containers carrying
// the "distrun.managed-by=distrun" label and reconstructs a TrainingRun
// for each. Stopped and exited containers are included, since finished
// runs remain listable until removed.
//
// Containers with unparseable labels are skipped rather than failing the
// whole listing; one corrupted container should not hide the others.
func ListManagedRuns(ctx context.Context, cli *Client) ([]*model.TrainingRun, error) {
	// Server-side label filtering is more efficient than listing
	// everything and filtering in Go.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list training containers",
			err,
		)
	}

	runs := make([]*model.TrainingRun, 0, len(containers))
	for _, c := range containers {
		run, parseErr := buildRun(c)
		if parseErr != nil {
			continue
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// FindRunByName returns the managed run with the given name, or a
// CLIError with ExitRunNotFound when no such run exists.
func FindRunByName(ctx context.Context, cli *Client, name string) (*model.TrainingRun, error) {
	runs, err := ListManagedRuns(ctx, cli)
	if err != nil {
		return nil, err
	}

	for _, run := range runs {
		if run.Name == name {
			return run, nil
		}
	}

	return nil, model.NewCLIError(
		model.ExitRunNotFound,
		fmt.Sprintf("no training run named %q", name),
	)
}

// buildRun converts a Docker API container entry into a TrainingRun,
// combining the static labels with the live container state.
func buildRun(c types.Container) (*model.TrainingRun, error) {
	run, err := ParseLabels(c.Labels)
	if err != nil {
		return nil, err
	}

	run.ContainerID = c.ID
	// Docker returns names with a leading "/" — an API artifact, not
	// meaningful to users.
	if len(c.Names) > 0 {
		run.ContainerName = strings.TrimPrefix(c.Names[0], "/")
	}
	run.Status = DeriveStatus(c.State)

	return run, nil
}

// DeriveStatus maps a Docker container state string onto a RunStatus.
// Docker's own vocabulary is wider (created, restarting, paused, dead);
// anything that is not actively running is reported as exited, except an
// explicit user stop which Docker also reports as "exited" — the
// distinction is not recoverable from state alone, so "stopped" is only
// produced by the stop command's own output, never by listing.
func DeriveStatus(dockerState string) model.RunStatus {
	if dockerState == "running" {
		return model.StatusRunning
	}
	return model.StatusExited
}

// StopRun stops the container behind a run via the Docker SDK, giving
// the launcher its default grace period (SIGTERM, then SIGKILL after the
// daemon's timeout).
func StopRun(ctx context.Context, cli *Client, run *model.TrainingRun) error {
	// StopOptions with nil Timeout uses Docker's default (10 seconds).
	err := cli.Inner().ContainerStop(ctx, run.ContainerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop run %q", run.Name),
			err,
		)
	}
	return nil
}

// RemoveRun removes the container behind a run. With force, Docker kills
// a still-running container first.
func RemoveRun(ctx context.Context, cli *Client, run *model.TrainingRun, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, run.ContainerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove run %q", run.Name),
			err,
		)
	}
	return nil
}
