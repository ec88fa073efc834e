package launcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// Command is a fully synthesized launcher invocation: the program to run,
// its arguments, and the environment additions layered on top of the
// inherited process environment.
type Command struct {
	// Program is the launcher binary name, resolved against PATH at
	// execution time.
	Program string

	// Args are the launcher arguments, including the training script and
	// its forwarded flags.
	Args []string

	// Env holds KEY=VALUE additions appended to the inherited environment.
	Env []string
}

// BuildCommand synthesizes the launcher command line for a validated spec.
//
// For torchrun the shape matches the original launch script:
//
//	torchrun --standalone --nproc_per_node=<gpus> <script>
//	    --tp_degree=<n> --placement=<policy> --shardinit=<bool> --distplan=<plan>
//
// Multi-node launches replace --standalone with an explicit rendezvous
// (--nnodes/--master_addr/--master_port). The colossalai launcher takes the
// same logical parameters through its `run` subcommand. Script flags are
// forwarded one-to-one from the spec; extra args are appended unmodified.
func BuildCommand(spec *model.LaunchSpec) *Command {
	var program string
	var args []string

	switch spec.Launcher {
	case model.LauncherColossalAI:
		program = "colossalai"
		args = append(args, "run")
		args = append(args, nodeArgs(spec)...)
	default:
		program = "torchrun"
		args = append(args, nodeArgs(spec)...)
	}

	args = append(args, spec.Script)
	args = append(args, scriptArgs(spec)...)
	args = append(args, spec.ExtraArgs...)

	return &Command{
		Program: program,
		Args:    args,
		Env: []string{
			"OMP_NUM_THREADS=" + strconv.Itoa(spec.OMPThreads),
		},
	}
}

// nodeArgs produces the process-topology flags shared by both launchers.
func nodeArgs(spec *model.LaunchSpec) []string {
	if spec.Nodes == 1 {
		// Standalone mode lets the launcher pick a local rendezvous,
		// so no master endpoint is needed.
		return []string{
			"--standalone",
			fmt.Sprintf("--nproc_per_node=%d", spec.GPUsPerNode),
		}
	}
	return []string{
		fmt.Sprintf("--nnodes=%d", spec.Nodes),
		fmt.Sprintf("--nproc_per_node=%d", spec.GPUsPerNode),
		fmt.Sprintf("--master_addr=%s", spec.MasterAddr),
		fmt.Sprintf("--master_port=%d", spec.MasterPort),
	}
}

// scriptArgs produces the flags forwarded to the training script itself.
// These are the one-to-one images of the launch environment variables.
func scriptArgs(spec *model.LaunchSpec) []string {
	return []string{
		fmt.Sprintf("--tp_degree=%d", spec.TPDegree),
		fmt.Sprintf("--placement=%s", spec.Placement),
		fmt.Sprintf("--shardinit=%s", strconv.FormatBool(spec.ShardInit)),
		fmt.Sprintf("--distplan=%s", spec.DistPlan),
	}
}

// Argv returns the full argument vector, program included. This is the
// form handed to `docker run` for containerized launches.
func (c *Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Program)
	argv = append(argv, c.Args...)
	return argv
}

// String renders the command for log headers and dry-run output.
// Environment additions are printed first, in the env(1) style the
// original script used, and arguments containing whitespace are quoted.
func (c *Command) String() string {
	var b strings.Builder
	for _, kv := range c.Env {
		b.WriteString(kv)
		b.WriteString(" ")
	}
	for i, arg := range c.Argv() {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(quoteArg(arg))
	}
	return b.String()
}

// quoteArg wraps an argument in single quotes when it contains characters
// that would split or glob in a shell. Only used for display.
func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\"'$*?[]{}()<>|&;") {
		return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
	}
	return arg
}
