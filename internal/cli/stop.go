// Package cli — stop.go implements the "distrun stop" command.
//
// The stop command gracefully stops a containerized training run by name,
// optionally removing the container afterwards with --remove. Docker's
// default grace period applies: SIGTERM first, SIGKILL if the launcher
// does not shut its workers down in time.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/distrun/internal/docker"
	"github.com/mmr-tortoise/distrun/internal/model"
)

// stopFlags holds the flag values for the stop command.
type stopFlags struct {
	remove bool // --remove: remove the container after stopping
}

// NewStopCommand creates the "stop" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewStopCommand() *cobra.Command {
	flags := &stopFlags{}

	cmd := &cobra.Command{
		Use:   "stop <run-name>",
		Short: "Stop a containerized training run",
		Long: `Stop a running containerized training run by name.

Examples:
  distrun stop gpt-demo
  distrun stop --remove gpt-demo`,

		// Args validates that exactly one positional argument (run name)
		// is provided.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.remove, "remove", false, "Remove the container after stopping")

	return cmd
}

// runStop locates the named run, stops its container, and optionally
// removes it.
func runStop(ctx context.Context, name string, flags *stopFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	run, err := docker.FindRunByName(ctx, cli, name)
	if err != nil {
		return err // FindRunByName returns ExitRunNotFound for unknown names
	}
	debugLog("found run", "name", run.Name, "container", run.ContainerID, "status", run.Status.String())

	// Stopping an already-exited container is a no-op for Docker, so no
	// status pre-check is needed.
	if err := docker.StopRun(ctx, cli, run); err != nil {
		return err
	}
	run.Status = model.StatusStopped

	removed := false
	if flags.remove {
		if err := docker.RemoveRun(ctx, cli, run, false); err != nil {
			return err
		}
		removed = true
	}

	printStopResult(run, removed)
	return nil
}

// printStopResult outputs the stop outcome in text or JSON format.
func printStopResult(run *model.TrainingRun, removed bool) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":        run.Name,
			"status":      run.Status.String(),
			"containerId": TruncateID(run.ContainerID),
			"removed":     removed,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if removed {
		fmt.Printf("Stopped and removed run %q\n", run.Name)
		return
	}
	fmt.Printf("Stopped run %q\n", run.Name)
}
