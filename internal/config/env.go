package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// Environment variable names recognized during resolution.
//
// The first five are inherited verbatim from the original launch scripts
// (including the DISTPAN spelling), so existing wrappers and CI jobs keep
// working without changes. The rest follow the torchrun conventions or
// carry the DISTRUN_ prefix to avoid collisions.
const (
	// EnvDistPlan selects the distribution strategy (closed set).
	EnvDistPlan = "DISTPAN"

	// EnvTPDegree sets the tensor-parallel degree.
	EnvTPDegree = "TPDEGREE"

	// EnvGPUNum sets the per-node process count. The literal value "auto"
	// (or 0) requests accelerator probing before launch.
	EnvGPUNum = "GPUNUM"

	// EnvPlacement sets the memory/device placement policy.
	EnvPlacement = "PLACEMENT"

	// EnvShardInit toggles sharded parameter initialization. Accepts the
	// Python-style spellings "True"/"False" used by the original scripts
	// as well as the usual Go boolean forms.
	EnvShardInit = "USE_SHARD_INIT"

	// EnvNodes sets the number of participating nodes.
	EnvNodes = "NNODES"

	// EnvMasterAddr sets the rendezvous address for multi-node launches.
	EnvMasterAddr = "MASTER_ADDR"

	// EnvMasterPort sets the rendezvous port for multi-node launches.
	EnvMasterPort = "MASTER_PORT"

	// EnvOMPThreads sets OMP_NUM_THREADS for the child process.
	EnvOMPThreads = "OMP_NUM_THREADS"

	// EnvLauncher selects the launcher binary (torchrun or colossalai).
	EnvLauncher = "DISTRUN_LAUNCHER"

	// EnvLogFile sets the path the child's output is duplicated to.
	EnvLogFile = "DISTRUN_LOG_FILE"
)

// Built-in defaults, matching the original launch script's values.
const (
	// DefaultScript is the training entry script launched when none is given.
	DefaultScript = "train_gpt_demo.py"

	// DefaultTPDegree is the tensor-parallel degree (no tensor splitting).
	DefaultTPDegree = 1

	// DefaultGPUsPerNode is the per-node process count.
	DefaultGPUsPerNode = 1

	// DefaultNodes is the node count (standalone single-node launch).
	DefaultNodes = 1

	// DefaultMasterPort is the torchrun rendezvous port used when a
	// multi-node launch does not specify one.
	DefaultMasterPort = 29500

	// DefaultOMPThreads is the OMP_NUM_THREADS value injected into the
	// child environment.
	DefaultOMPThreads = 16

	// DefaultLogFile is the combined-output log path.
	DefaultLogFile = "run.log"
)

// GPUsAuto is the sentinel GPUsPerNode value meaning "probe the host for
// accelerators before launching". It never survives into a validated spec:
// the run/plan commands replace it with a detected count first.
const GPUsAuto = 0

// Resolve builds a LaunchSpec from built-in defaults, an optional preset,
// and the process environment, in that precedence order.
//
// The getenv parameter is injected (typically os.Getenv) so resolution can
// be tested without mutating the test process environment.
//
// The returned spec is NOT yet validated: the caller may still overlay
// explicitly-set CLI flags, and only after the last layer is applied can
// it resolve GPUsAuto and apply the multi-node rendezvous port default
// (a flag alone may turn a launch multi-node, so defaulting MasterPort
// here would be premature). All parse failures are CLIErrors with
// ExitConfigInvalid that name the offending variable.
func Resolve(getenv func(string) string, preset *Preset) (*model.LaunchSpec, error) {
	// Layer 1: built-in defaults.
	spec := &model.LaunchSpec{
		Script:      DefaultScript,
		DistPlan:    model.PlanColossalAI,
		TPDegree:    DefaultTPDegree,
		GPUsPerNode: DefaultGPUsPerNode,
		Nodes:       DefaultNodes,
		Placement:   model.PlacementCPU,
		ShardInit:   false,
		OMPThreads:  DefaultOMPThreads,
		Launcher:    model.LauncherTorchrun,
		LogFile:     DefaultLogFile,
	}

	// Layer 2: preset file entry, if one was selected.
	if preset != nil {
		if err := preset.applyTo(spec); err != nil {
			return nil, err
		}
	}

	// Layer 3: environment variables. Each variable is parsed only when
	// set, so an empty environment leaves the lower layers untouched.
	if err := applyEnv(getenv, spec); err != nil {
		return nil, err
	}

	// The run name is derived last so a preset- or env-provided script
	// influences the default. The CLI may still override it via --name.
	if spec.Name == "" {
		spec.Name = DefaultRunName(spec.Script)
	}

	return spec, nil
}

// applyEnv overlays every recognized environment variable onto the spec.
func applyEnv(getenv func(string) string, spec *model.LaunchSpec) error {
	if v := getenv(EnvDistPlan); v != "" {
		plan, err := model.ParseDistPlan(v)
		if err != nil {
			return envError(EnvDistPlan, err)
		}
		spec.DistPlan = plan
	}

	if v := getenv(EnvTPDegree); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return envError(EnvTPDegree, err)
		}
		spec.TPDegree = n
	}

	if v := getenv(EnvGPUNum); v != "" {
		n, err := parseGPUCount(v)
		if err != nil {
			return envError(EnvGPUNum, err)
		}
		spec.GPUsPerNode = n
	}

	if v := getenv(EnvPlacement); v != "" {
		placement, err := model.ParsePlacement(v)
		if err != nil {
			return envError(EnvPlacement, err)
		}
		spec.Placement = placement
	}

	if v := getenv(EnvShardInit); v != "" {
		b, err := parseShellBool(v)
		if err != nil {
			return envError(EnvShardInit, err)
		}
		spec.ShardInit = b
	}

	if v := getenv(EnvNodes); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return envError(EnvNodes, err)
		}
		spec.Nodes = n
	}

	if v := getenv(EnvMasterAddr); v != "" {
		spec.MasterAddr = v
	}

	if v := getenv(EnvMasterPort); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return envError(EnvMasterPort, err)
		}
		spec.MasterPort = n
	}

	if v := getenv(EnvOMPThreads); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return envError(EnvOMPThreads, err)
		}
		spec.OMPThreads = n
	}

	if v := getenv(EnvLauncher); v != "" {
		kind, err := model.ParseLauncherKind(v)
		if err != nil {
			return envError(EnvLauncher, err)
		}
		spec.Launcher = kind
	}

	if v := getenv(EnvLogFile); v != "" {
		spec.LogFile = v
	}

	return nil
}

// envError wraps a parse failure with the variable name so the user knows
// exactly which assignment to fix.
func envError(variable string, err error) error {
	return model.WrapCLIError(model.ExitConfigInvalid,
		fmt.Sprintf("invalid value for %s", variable), err)
}

// parsePositiveInt parses a base-10 integer and rejects values below 1.
func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1, got %d", n)
	}
	return n, nil
}

// parseGPUCount parses the GPUNUM variable. Unlike the other counters it
// accepts the literal "auto" (and 0) as a request for accelerator probing.
func parseGPUCount(s string) (int, error) {
	if strings.EqualFold(strings.TrimSpace(s), "auto") {
		return GPUsAuto, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer or \"auto\": %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", n)
	}
	return n, nil
}

// parseShellBool parses a boolean the way the original launch scripts
// spelled them. strconv.ParseBool already accepts True/False/TRUE/1/0;
// this wrapper only improves the error message.
func parseShellBool(s string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("not a boolean: %q (use True or False)", s)
	}
	return b, nil
}

// DefaultRunName derives a run name from the training script path:
// the base name without extension, sanitized to the alphanumeric-and-hyphen
// alphabet that run names (and Docker container names) require.
//
// Example: "examples/train_gpt_demo.py" → "train-gpt-demo".
func DefaultRunName(script string) string {
	base := filepath.Base(script)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	// Replace common separators with hyphens, then drop anything outside
	// the allowed alphabet.
	base = strings.ReplaceAll(base, "_", "-")
	base = strings.ReplaceAll(base, ".", "-")

	var result strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	name := strings.Trim(result.String(), "-")

	if name == "" {
		name = "run"
	}
	return name
}
