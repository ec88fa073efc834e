// Package cli — run.go implements the "distrun run" command.
//
// The run command is the primary user-facing operation. It resolves the
// launch parameters through the full precedence chain, synthesizes the
// launcher invocation, records a run manifest, and executes the launcher —
// either directly on the host (the default) or inside a GPU container
// when --image is set.
//
// Orchestration steps:
//  1. Resolve launch parameters (defaults, preset file, env, flags)
//  2. Probe GPU count if requested, then validate the resolved spec
//  3. Synthesize the launcher command line
//  4. Write the run manifest next to the log file
//  5. Execute: host launch with teed output, or detached container
//  6. Output results (text or JSON)
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/distrun/internal/docker"
	"github.com/mmr-tortoise/distrun/internal/launcher"
	"github.com/mmr-tortoise/distrun/internal/manifest"
	"github.com/mmr-tortoise/distrun/internal/model"
	"github.com/mmr-tortoise/distrun/internal/port"
)

// runFlags holds the flag values for the run command.
// The shared launch flags are embedded; dryRun and workDir are run-only.
type runFlags struct {
	launchFlags
	dryRun  bool   // --dry-run: print the command instead of executing
	workDir string // --workdir: working directory for the launch
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] [-- script-args...]",
		Short: "Resolve and execute a distributed training launch",
		Long: `Resolve launch parameters and execute the training launcher.

Parameters are resolved in precedence order: built-in defaults, the
preset file (distrun.jsonc), environment variables (DISTPAN, TPDEGREE,
GPUNUM, PLACEMENT, USE_SHARD_INIT, ...), then CLI flags. The child's
stdout and stderr are merged and teed to both the console and the log
file, and its exit status becomes distrun's own.

Arguments after "--" are passed to the training script unchanged.

Examples:
  distrun run
  distrun run --distplan colossalai --tp-degree 2 --gpus 4 --shardinit
  distrun run --gpus auto --placement cuda
  distrun run --preset zero2-offload -- --batch_size 16
  distrun run --image nvcr.io/nvidia/pytorch:24.06-py3 --name nightly
  distrun run --dry-run --json`,

		// Positional arguments are only accepted after "--"; anything
		// before the dash is a usage error.
		Args: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash > 0 || (dash < 0 && len(args) > 0) {
				return fmt.Errorf("unexpected argument %q (script arguments go after \"--\")", args[0])
			}
			return nil
		},

		// RunE is used instead of Run so we can return errors. Cobra will
		// pass them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, flags, args)
		},
	}

	addLaunchFlags(cmd, &flags.launchFlags)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the resolved command without executing it")
	cmd.Flags().StringVar(&flags.workDir, "workdir", "", "Working directory for the launch (default: current directory)")

	return cmd
}

// runRun is the main orchestration function for the run command.
func runRun(cmd *cobra.Command, flags *runFlags, extraArgs []string) error {
	ctx := cmd.Context()

	// Step 1: Resolve the launch spec through all precedence layers.
	spec, err := resolveSpec(ctx, cmd, &flags.launchFlags, extraArgs)
	if err != nil {
		return err
	}

	// Step 2: Determine the working directory and anchor the log file to
	// it, so "distrun run --workdir /data/exp1" logs under /data/exp1.
	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
	}
	logPath := spec.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(workDir, logPath)
	}
	spec.LogFile = logPath

	// Step 3: Synthesize the launcher command line.
	launch := launcher.BuildCommand(spec)
	debugLog("synthesized command", "command", launch.String())

	// Step 4: Dry run stops here — print what would execute, write nothing.
	if flags.dryRun {
		printPlanResult(spec, launch)
		return nil
	}

	// Step 5: For multi-node launches, check the rendezvous port locally
	// before committing anything to disk.
	checkRendezvousPort(spec)

	// Step 6: Record the manifest before spawning, so even a launch that
	// dies immediately leaves its parameters next to the log.
	startedAt := time.Now().UTC()
	m := &manifest.Manifest{
		Spec:      *spec,
		Command:   launch.String(),
		Argv:      launch.Argv(),
		StartedAt: startedAt,
	}
	if err := manifest.Write(m); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write run manifest", err)
	}

	// Step 7: Execute. Container launches detach; host launches block
	// until the training process exits.
	if spec.Image != "" {
		return runInContainer(ctx, spec, launch, workDir, startedAt)
	}
	return runOnHost(ctx, spec, launch, workDir, logPath)
}

// checkRendezvousPort warns when a multi-node launch's rendezvous port is
// already bound on this host. Not fatal: only the master node needs to
// bind MASTER_PORT, and this host may be a worker — but on the master the
// launch would fail, so the warning suggests a nearby free port.
func checkRendezvousPort(spec *model.LaunchSpec) {
	if spec.Nodes <= 1 {
		return
	}

	scanner := port.NewScanner()
	if scanner.IsAvailable(spec.MasterPort) {
		return
	}

	if free, err := scanner.FindAvailable(spec.MasterPort+1, spec.MasterPort+100); err == nil {
		slog.Warn("rendezvous port is already in use on this host",
			"port", spec.MasterPort,
			"hint", fmt.Sprintf("if this host is the master, pass --master-port %d", free))
		return
	}
	slog.Warn("rendezvous port is already in use on this host", "port", spec.MasterPort)
}

// runOnHost executes the launcher directly, teeing its combined output to
// the console and the log file. Ctrl-C is forwarded to the child via
// context cancellation so an interrupted run shuts down the whole process
// group rather than orphaning workers.
func runOnHost(ctx context.Context, spec *model.LaunchSpec, launch *launcher.Command, workDir, logPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Launching %q (%d processes, log: %s)\n", spec.Name, spec.WorldSize(), logPath)

	runner := launcher.NewRunner()
	if err := runner.Run(ctx, launch, workDir, logPath); err != nil {
		return err
	}

	printRunResult(spec, logPath, "")
	return nil
}

// runInContainer starts the launch detached inside a GPU container and
// returns immediately. The run is tracked through container labels; use
// "distrun list" and "distrun stop" for lifecycle management.
func runInContainer(ctx context.Context, spec *model.LaunchSpec, launch *launcher.Command, workDir string, startedAt time.Time) error {
	containerID, err := docker.LaunchRun(ctx, spec, launch.Argv(), launch.Env, workDir, startedAt)
	if err != nil {
		return err
	}
	debugLog("container started", "id", containerID)

	printRunResult(spec, spec.LogFile, containerID)
	return nil
}

// printRunResult outputs the run outcome in text or JSON format.
// containerID is empty for host launches.
func printRunResult(spec *model.LaunchSpec, logPath, containerID string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":     spec.Name,
			"distplan": spec.DistPlan.String(),
			"logFile":  logPath,
			"manifest": manifest.PathFor(logPath),
		}
		if containerID != "" {
			result["containerId"] = containerID
			result["containerName"] = docker.ContainerName(spec.Name)
			result["status"] = model.StatusRunning.String()
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if containerID != "" {
		fmt.Printf("Started run %q in container %s\n", spec.Name, docker.ContainerName(spec.Name))
		fmt.Printf("  Container: %.12s\n", containerID)
		fmt.Printf("  Follow:    docker logs -f %s\n", docker.ContainerName(spec.Name))
		return
	}

	fmt.Printf("Run %q completed\n", spec.Name)
	fmt.Printf("  Log:      %s\n", logPath)
	fmt.Printf("  Manifest: %s\n", manifest.PathFor(logPath))
}
