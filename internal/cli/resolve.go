// Package cli — resolve.go implements the flag layer of launch parameter
// resolution, shared by the run and plan commands.
//
// Both commands accept the same launch flags and resolve them through the
// same precedence chain: built-in defaults, then the preset file, then
// environment variables, then CLI flags. Only flags the user actually set
// (cobra's Changed check) override the lower layers, so an untouched flag
// default never shadows an environment variable.
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/distrun/internal/accel"
	"github.com/mmr-tortoise/distrun/internal/config"
	"github.com/mmr-tortoise/distrun/internal/model"
)

// launchFlags holds the flag values shared by the run and plan commands.
// These are bound to cobra flags in addLaunchFlags.
type launchFlags struct {
	configFile string // --config: preset file path
	preset     string // --preset: named preset from the file
	name       string // --name: run name
	script     string // --script: training entry script
	distPlan   string // --distplan: distribution strategy
	tpDegree   int    // --tp-degree: tensor-parallel degree
	gpus       string // --gpus: per-node GPU count, or "auto" to probe
	nodes      int    // --nodes: participating node count
	masterAddr string // --master-addr: multi-node rendezvous address
	masterPort int    // --master-port: multi-node rendezvous port
	placement  string // --placement: parameter placement policy
	shardInit  bool   // --shardinit: sharded parameter initialization
	ompThreads int    // --omp-threads: OMP_NUM_THREADS for the child
	launcher   string // --launcher: torchrun or colossalai
	logFile    string // --log-file: combined-output log path
	image      string // --image: run inside a container from this image
}

// addLaunchFlags registers the shared launch flags on a command.
// The flag defaults shown in help mirror the resolver's built-in defaults,
// but the values are only applied when the user actually sets them.
func addLaunchFlags(cmd *cobra.Command, flags *launchFlags) {
	cmd.Flags().StringVar(&flags.configFile, "config", config.DefaultFileName, "Preset file path")
	cmd.Flags().StringVar(&flags.preset, "preset", "", "Named preset from the preset file")
	cmd.Flags().StringVar(&flags.name, "name", "", "Run name (default: derived from script)")
	cmd.Flags().StringVar(&flags.script, "script", config.DefaultScript, "Training entry script")
	cmd.Flags().StringVar(&flags.distPlan, "distplan", "", "Distribution plan: colossalai, zero1, zero2, torch_ddp, torch_zero")
	cmd.Flags().IntVar(&flags.tpDegree, "tp-degree", config.DefaultTPDegree, "Tensor parallelism degree")
	cmd.Flags().StringVar(&flags.gpus, "gpus", "", `GPUs per node, or "auto" to probe with nvidia-smi`)
	cmd.Flags().IntVar(&flags.nodes, "nodes", config.DefaultNodes, "Number of nodes")
	cmd.Flags().StringVar(&flags.masterAddr, "master-addr", "", "Rendezvous address for multi-node runs")
	cmd.Flags().IntVar(&flags.masterPort, "master-port", config.DefaultMasterPort, "Rendezvous port for multi-node runs")
	cmd.Flags().StringVar(&flags.placement, "placement", "", "Parameter placement: cpu, cuda, auto, const")
	cmd.Flags().BoolVar(&flags.shardInit, "shardinit", false, "Shard parameters during initialization")
	cmd.Flags().IntVar(&flags.ompThreads, "omp-threads", config.DefaultOMPThreads, "OMP_NUM_THREADS for the training process")
	cmd.Flags().StringVar(&flags.launcher, "launcher", "", "Launcher binary: torchrun or colossalai")
	cmd.Flags().StringVar(&flags.logFile, "log-file", config.DefaultLogFile, "Log file for combined child output")
	cmd.Flags().StringVar(&flags.image, "image", "", "Run inside a container from this image")
}

// resolveSpec runs the full resolution pipeline: preset file, environment,
// then the flags the user set on this invocation. The returned spec has
// passed validation and has a concrete GPU count (auto already probed).
//
// extraArgs are positional arguments after "--", passed through to the
// training script untouched.
func resolveSpec(ctx context.Context, cmd *cobra.Command, flags *launchFlags, extraArgs []string) (*model.LaunchSpec, error) {
	// Layer 1+2: preset file over built-in defaults.
	file, err := config.LoadFile(flags.configFile)
	if err != nil {
		return nil, err
	}
	preset, err := file.Select(flags.preset)
	if err != nil {
		return nil, err
	}
	if preset != nil {
		debugLog("applying preset", "file", flags.configFile, "preset", flags.preset)
	}

	// Layer 3: environment variables.
	spec, err := config.Resolve(getenvFor(cmd), preset)
	if err != nil {
		return nil, err
	}

	// Layer 4: CLI flags, highest precedence. Only explicitly set flags
	// are applied.
	if err := applyFlags(cmd, flags, spec); err != nil {
		return nil, err
	}

	if len(extraArgs) > 0 {
		spec.ExtraArgs = append(spec.ExtraArgs, extraArgs...)
	}

	// The multi-node rendezvous port default is applied only now: a flag
	// alone can turn a launch multi-node, so no earlier layer knows the
	// final node count.
	if spec.Nodes > 1 && spec.MasterPort == 0 {
		spec.MasterPort = config.DefaultMasterPort
	}

	// GPU probing happens after all layers so a concrete count from any
	// layer suppresses the probe.
	if spec.GPUsPerNode == config.GPUsAuto {
		count, probeErr := accel.DetectGPUCount(ctx)
		if probeErr != nil {
			return nil, probeErr
		}
		debugLog("probed GPU count", "gpus", count)
		spec.GPUsPerNode = count
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	debugLog("resolved launch spec",
		"name", spec.Name,
		"distplan", spec.DistPlan.String(),
		"tp_degree", spec.TPDegree,
		"gpus", spec.GPUsPerNode,
		"nodes", spec.Nodes,
		"placement", spec.Placement.String(),
		"shardinit", spec.ShardInit,
	)
	return spec, nil
}

// applyFlags overlays explicitly set CLI flags onto the resolved spec.
// cobra's Changed reports whether the user passed the flag, which is the
// only case where the flag should override environment or preset values.
func applyFlags(cmd *cobra.Command, flags *launchFlags, spec *model.LaunchSpec) error {
	set := cmd.Flags().Changed

	if set("script") {
		spec.Script = flags.script
		// A new script means a new derived name, unless --name pins it.
		spec.Name = config.DefaultRunName(flags.script)
	}
	if set("distplan") {
		plan, err := model.ParseDistPlan(flags.distPlan)
		if err != nil {
			return flagError("distplan", err)
		}
		spec.DistPlan = plan
	}
	if set("tp-degree") {
		spec.TPDegree = flags.tpDegree
	}
	if set("gpus") {
		count, err := parseGPUFlag(flags.gpus)
		if err != nil {
			return flagError("gpus", err)
		}
		spec.GPUsPerNode = count
	}
	if set("nodes") {
		spec.Nodes = flags.nodes
	}
	if set("master-addr") {
		spec.MasterAddr = flags.masterAddr
	}
	if set("master-port") {
		spec.MasterPort = flags.masterPort
	}
	if set("placement") {
		placement, err := model.ParsePlacement(flags.placement)
		if err != nil {
			return flagError("placement", err)
		}
		spec.Placement = placement
	}
	if set("shardinit") {
		spec.ShardInit = flags.shardInit
	}
	if set("omp-threads") {
		spec.OMPThreads = flags.ompThreads
	}
	if set("launcher") {
		kind, err := model.ParseLauncherKind(flags.launcher)
		if err != nil {
			return flagError("launcher", err)
		}
		spec.Launcher = kind
	}
	if set("log-file") {
		spec.LogFile = flags.logFile
	}
	if set("image") {
		spec.Image = flags.image
	}
	if set("name") {
		if err := model.ValidateName(flags.name); err != nil {
			return flagError("name", err)
		}
		spec.Name = flags.name
	}

	return nil
}

// parseGPUFlag parses the --gpus flag value: a positive integer, or
// "auto" (equivalently 0) to request probing, matching the GPUNUM
// environment variable's accepted forms.
func parseGPUFlag(s string) (int, error) {
	if s == "auto" {
		return config.GPUsAuto, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf(`expected a non-negative integer or "auto", got %q`, s)
	}
	return n, nil
}

// flagError wraps a flag parse failure as a configuration error.
func flagError(flag string, err error) error {
	return model.WrapCLIError(model.ExitConfigInvalid,
		fmt.Sprintf("invalid --%s value", flag), err)
}

// getenvFor returns the environment lookup used during resolution.
// Indirecting through the command makes the resolver testable without
// mutating the process environment.
func getenvFor(cmd *cobra.Command) func(string) string {
	if lookup, ok := cmd.Context().Value(envLookupKey{}).(func(string) string); ok {
		return lookup
	}
	return osGetenv
}

// osGetenv is the production environment lookup.
var osGetenv = os.Getenv

// envLookupKey is the context key tests use to inject a fake environment.
type envLookupKey struct{}

// WithEnvLookup returns a context carrying an environment lookup override.
// Production code never sets this; it exists for command-level tests.
func WithEnvLookup(ctx context.Context, lookup func(string) string) context.Context {
	return context.WithValue(ctx, envLookupKey{}, lookup)
}
