// Package launcher synthesizes and executes the external launcher command
// line for a training run.
//
// The package has two halves:
//
//   - command.go turns a validated LaunchSpec into the exact argv and
//     environment additions for the launcher binary (torchrun or
//     colossalai). Synthesis is pure, so the mapping from configuration
//     to flag/value pairs is directly testable.
//   - runner.go spawns the synthesized command via os/exec, duplicating
//     the child's stdout and stderr to both the console and a log file,
//     and translates the child's exit status back to the CLI layer.
//
// The launcher itself is an opaque collaborator: distrun never inspects
// or coordinates the per-rank training processes it spawns.
package launcher
