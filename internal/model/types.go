// Package model defines the domain types for the distrun CLI.
//
// All entities in this package are pure data structures with no external
// dependencies. They describe a single distributed-training launch: which
// distribution plan to use, how the model's tensors are partitioned, how
// many processes to spawn per node, and where parameters are placed.
//
// Key design decision: for containerized runs, all state is persisted via
// Docker container labels, so TrainingRun is a transient representation
// reconstructed from Docker API queries at runtime.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DistPlan selects the distribution strategy forwarded to the training
// process. The set is closed: the training script only understands these
// five plans, so anything else is rejected before a process is spawned.
type DistPlan string

const (
	// PlanColossalAI uses the ColossalAI Gemini/tensor-parallel engine.
	PlanColossalAI DistPlan = "colossalai"

	// PlanZero1 uses ZeRO stage 1 (optimizer state sharding).
	PlanZero1 DistPlan = "zero1"

	// PlanZero2 uses ZeRO stage 2 (optimizer state + gradient sharding).
	PlanZero2 DistPlan = "zero2"

	// PlanTorchDDP uses plain PyTorch DistributedDataParallel.
	PlanTorchDDP DistPlan = "torch_ddp"

	// PlanTorchZero uses PyTorch DDP with the ZeroRedundancyOptimizer.
	PlanTorchZero DistPlan = "torch_zero"
)

// String returns the string representation of DistPlan.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (p DistPlan) String() string {
	return string(p)
}

// IsValid checks whether the DistPlan value is one of the
// predefined valid plans.
func (p DistPlan) IsValid() bool {
	switch p {
	case PlanColossalAI, PlanZero1, PlanZero2, PlanTorchDDP, PlanTorchZero:
		return true
	default:
		return false
	}
}

// ParseDistPlan converts a string to a DistPlan.
// Returns an error if the string does not match any valid plan.
func ParseDistPlan(s string) (DistPlan, error) {
	plan := DistPlan(strings.ToLower(s))
	if !plan.IsValid() {
		return "", fmt.Errorf("invalid distribution plan: %q (valid: colossalai, zero1, zero2, torch_ddp, torch_zero)", s)
	}
	return plan, nil
}

// Placement selects the memory/device placement policy for model parameters
// and optimizer state. It is forwarded verbatim to the training process;
// the launcher only validates that the value is in the known set.
type Placement string

const (
	// PlacementCPU keeps parameters in host memory and moves them to the
	// accelerator on demand.
	PlacementCPU Placement = "cpu"

	// PlacementCUDA keeps everything in accelerator memory.
	PlacementCUDA Placement = "cuda"

	// PlacementAuto lets the runtime decide per-chunk placement based on
	// available accelerator memory.
	PlacementAuto Placement = "auto"

	// PlacementConst uses a constant device memory budget.
	PlacementConst Placement = "const"
)

// String returns the string representation of Placement.
func (p Placement) String() string {
	return string(p)
}

// IsValid checks whether the Placement value is one of the
// predefined valid policies.
func (p Placement) IsValid() bool {
	switch p {
	case PlacementCPU, PlacementCUDA, PlacementAuto, PlacementConst:
		return true
	default:
		return false
	}
}

// ParsePlacement converts a string to a Placement.
// Returns an error if the string does not match any valid policy.
func ParsePlacement(s string) (Placement, error) {
	placement := Placement(strings.ToLower(s))
	if !placement.IsValid() {
		return "", fmt.Errorf("invalid placement policy: %q (valid: cpu, cuda, auto, const)", s)
	}
	return placement, nil
}

// LauncherKind identifies which external launcher binary spawns the
// per-rank training processes. Both launchers accept the same logical
// parameters but differ in binary name and flag spelling.
type LauncherKind string

const (
	// LauncherTorchrun uses the torchrun elastic launcher (the default).
	LauncherTorchrun LauncherKind = "torchrun"

	// LauncherColossalAI uses the `colossalai run` launcher.
	LauncherColossalAI LauncherKind = "colossalai"
)

// String returns the string representation of LauncherKind.
func (k LauncherKind) String() string {
	return string(k)
}

// IsValid checks whether the LauncherKind value is one of the
// supported launchers.
func (k LauncherKind) IsValid() bool {
	switch k {
	case LauncherTorchrun, LauncherColossalAI:
		return true
	default:
		return false
	}
}

// ParseLauncherKind converts a string to a LauncherKind.
// Returns an error if the string does not match any supported launcher.
func ParseLauncherKind(s string) (LauncherKind, error) {
	kind := LauncherKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid launcher: %q (valid: torchrun, colossalai)", s)
	}
	return kind, nil
}

// RunStatus represents the lifecycle state of a containerized training run.
// The state is derived from the Docker container state at query time:
//
//	running → the training container is executing
//	exited  → the container finished (successfully or not)
//	stopped → the container was stopped by the user before completion
type RunStatus string

const (
	// StatusRunning indicates the training container is currently executing.
	StatusRunning RunStatus = "running"

	// StatusExited indicates the container terminated on its own.
	StatusExited RunStatus = "exited"

	// StatusStopped indicates the container was stopped via `distrun stop`.
	StatusStopped RunStatus = "stopped"
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid checks whether the RunStatus value is one of the
// predefined valid states.
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusExited, StatusStopped:
		return true
	default:
		return false
	}
}

// ParseRunStatus converts a string to a RunStatus.
// Returns an error if the string does not match any valid status.
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid run status: %q (valid: running, exited, stopped)", s)
	}
	return status, nil
}

// LaunchSpec is the fully resolved description of a single training launch.
// It is the primary aggregate entity in the domain: the config layer
// produces it, the launcher layer turns it into an argv, and the docker
// layer persists it as container labels for containerized runs.
type LaunchSpec struct {
	// Name is the unique identifier for this run. Used for log headers,
	// manifest files, and container names/labels.
	// Must contain only alphanumeric characters and hyphens.
	Name string `json:"name" yaml:"name"`

	// Script is the path to the training entry script handed to the launcher.
	Script string `json:"script" yaml:"script"`

	// DistPlan is the distribution strategy forwarded as a flag.
	DistPlan DistPlan `json:"distPlan" yaml:"distPlan"`

	// TPDegree is the tensor-parallel degree: the number of partitions the
	// model's tensors are split across. Consumed, not computed, by distrun.
	TPDegree int `json:"tpDegree" yaml:"tpDegree"`

	// GPUsPerNode is the number of training processes the launcher spawns
	// on each node (one per accelerator).
	GPUsPerNode int `json:"gpusPerNode" yaml:"gpusPerNode"`

	// Nodes is the number of participating nodes. 1 means a standalone
	// single-node launch with no rendezvous endpoint.
	Nodes int `json:"nodes" yaml:"nodes"`

	// MasterAddr is the rendezvous address for multi-node launches.
	// Ignored when Nodes == 1.
	MasterAddr string `json:"masterAddr,omitempty" yaml:"masterAddr,omitempty"`

	// MasterPort is the rendezvous port for multi-node launches.
	MasterPort int `json:"masterPort,omitempty" yaml:"masterPort,omitempty"`

	// Placement is the memory/device placement policy forwarded as a flag.
	Placement Placement `json:"placement" yaml:"placement"`

	// ShardInit controls sharded parameter initialization. Forwarded as a
	// boolean flag to the training process.
	ShardInit bool `json:"shardInit" yaml:"shardInit"`

	// OMPThreads is the OMP_NUM_THREADS value injected into the child
	// process environment.
	OMPThreads int `json:"ompThreads" yaml:"ompThreads"`

	// Launcher selects which external launcher binary to invoke.
	Launcher LauncherKind `json:"launcher" yaml:"launcher"`

	// LogFile is the path the child's combined output is duplicated to,
	// in addition to the console.
	LogFile string `json:"logFile" yaml:"logFile"`

	// Image, when non-empty, runs the launcher inside a container built
	// from this image instead of directly on the host.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// ExtraArgs are passed through to the training script unmodified,
	// after the synthesized flags.
	ExtraArgs []string `json:"extraArgs,omitempty" yaml:"extraArgs,omitempty"`
}

// Validate checks the LaunchSpec for internal consistency. It is called
// after resolution and before any process is spawned, so every launch
// failure past this point comes from the external launcher itself.
func (s *LaunchSpec) Validate() error {
	if s.Script == "" {
		return fmt.Errorf("launch spec: training script must not be empty")
	}
	if err := ValidateName(s.Name); err != nil {
		return fmt.Errorf("launch spec: %w", err)
	}
	if !s.DistPlan.IsValid() {
		return fmt.Errorf("launch spec: invalid distribution plan %q", s.DistPlan)
	}
	if !s.Placement.IsValid() {
		return fmt.Errorf("launch spec: invalid placement policy %q", s.Placement)
	}
	if !s.Launcher.IsValid() {
		return fmt.Errorf("launch spec: invalid launcher %q", s.Launcher)
	}
	if s.TPDegree < 1 {
		return fmt.Errorf("launch spec: tensor-parallel degree %d must be at least 1", s.TPDegree)
	}
	if s.GPUsPerNode < 1 {
		return fmt.Errorf("launch spec: GPUs per node %d must be at least 1", s.GPUsPerNode)
	}
	if s.Nodes < 1 {
		return fmt.Errorf("launch spec: node count %d must be at least 1", s.Nodes)
	}
	// The tensor-parallel group cannot be wider than the world size:
	// every partition needs its own rank.
	worldSize := s.Nodes * s.GPUsPerNode
	if s.TPDegree > worldSize {
		return fmt.Errorf("launch spec: tensor-parallel degree %d exceeds world size %d (%d nodes × %d GPUs)",
			s.TPDegree, worldSize, s.Nodes, s.GPUsPerNode)
	}
	if s.OMPThreads < 1 {
		return fmt.Errorf("launch spec: OMP thread count %d must be at least 1", s.OMPThreads)
	}
	if s.Nodes > 1 {
		if s.MasterAddr == "" {
			return fmt.Errorf("launch spec: multi-node launch (%d nodes) requires a master address", s.Nodes)
		}
		if s.MasterPort < 1 || s.MasterPort > 65535 {
			return fmt.Errorf("launch spec: master port %d out of range (1-65535)", s.MasterPort)
		}
	}
	if s.LogFile == "" {
		return fmt.Errorf("launch spec: log file path must not be empty")
	}
	return nil
}

// WorldSize returns the total number of training processes across all nodes.
func (s *LaunchSpec) WorldSize() int {
	return s.Nodes * s.GPUsPerNode
}

// nameRegex validates run names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid run name.
// Valid names contain only alphanumeric characters and hyphens,
// and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("run name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid run name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// TrainingRun represents a containerized training run reconstructed from
// Docker container labels and state. It pairs the launch parameters with
// the container identity that executes them.
//
// All fields except Status and the container identity are parsed back from
// labels written at launch time — there is no state file on disk.
type TrainingRun struct {
	// Name is the unique run identifier, also used in the container name.
	Name string `json:"name"`

	// DistPlan is the distribution strategy the run was launched with.
	DistPlan DistPlan `json:"distPlan"`

	// TPDegree is the tensor-parallel degree of the run.
	TPDegree int `json:"tpDegree"`

	// GPUsPerNode is the per-node process count of the run.
	GPUsPerNode int `json:"gpusPerNode"`

	// Placement is the placement policy of the run.
	Placement Placement `json:"placement"`

	// ShardInit records whether sharded initialization was enabled.
	ShardInit bool `json:"shardInit"`

	// Script is the training entry script inside the container.
	Script string `json:"script"`

	// LogFile is the in-container log path the run tees output to.
	LogFile string `json:"logFile"`

	// ContainerID is the Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// Status is the current lifecycle state, derived from container state.
	Status RunStatus `json:"status"`

	// CreatedAt is the timestamp when the run was launched.
	CreatedAt time.Time `json:"createdAt"`
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
//
// Note that a failing launcher child process does NOT map to one of these
// constants: its own nonzero exit status is propagated verbatim, so
// wrapping distrun in existing tooling observes the same codes as
// invoking the launcher directly.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates configuration resolution or validation
	// failed (malformed environment variable, unknown preset, bad enum).
	ExitConfigInvalid ExitCode = 2

	// ExitLauncherNotFound indicates the external launcher binary could
	// not be located on PATH.
	ExitLauncherNotFound ExitCode = 3

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 4

	// ExitRunNotFound indicates the named training run does not exist.
	ExitRunNotFound ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
// This follows Go's error wrapping convention introduced in Go 1.13.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
