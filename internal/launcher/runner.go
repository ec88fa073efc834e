package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// Runner executes a synthesized launcher command, duplicating the child's
// output streams to both the console and a log file.
//
// Console writers and the PATH lookup are injected so tests can capture
// output and simulate a missing launcher binary without touching the
// host PATH.
type Runner struct {
	// Stdout receives the child's standard output alongside the log file.
	Stdout io.Writer

	// Stderr receives the child's standard error alongside the log file.
	Stderr io.Writer

	// LookPath resolves the launcher binary. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// NewRunner creates a Runner wired to the process's own streams.
func NewRunner() *Runner {
	return &Runner{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		LookPath: exec.LookPath,
	}
}

// Run spawns the command and blocks until it exits.
//
// Both stdout and stderr of the child are duplicated: each stream goes to
// the corresponding console stream AND to the shared log file, preserving
// the `2>&1 | tee run.log` behavior of the original script. The log file
// is created (truncated) before the spawn and starts with a header line
// recording the exact command, so a log is self-describing.
//
// Error contract:
//   - launcher binary not on PATH → CLIError with ExitLauncherNotFound
//   - child exited nonzero → CLIError whose Code IS the child's exit code
//   - context canceled (signal) → the ctx error, after the child is killed
func (r *Runner) Run(ctx context.Context, cmd *Command, workDir, logPath string) error {
	// Resolve the binary up front for a clear error before any file is
	// touched. exec would fail later anyway, but with a murkier message.
	path, err := r.LookPath(cmd.Program)
	if err != nil {
		return model.WrapCLIError(model.ExitLauncherNotFound,
			fmt.Sprintf("launcher %q not found on PATH", cmd.Program), err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to create log file %s", logPath), err)
	}
	defer func() { _ = logFile.Close() }()

	// Header line so the log alone identifies what produced it.
	fmt.Fprintf(logFile, "# %s distrun exec: %s\n",
		time.Now().UTC().Format(time.RFC3339), cmd.String())

	child := exec.CommandContext(ctx, path, cmd.Args...)
	child.Dir = workDir

	// Inherit the current process environment and add the synthesized
	// variables. os.Environ() returns a copy, so appending is safe.
	child.Env = append(os.Environ(), cmd.Env...)

	// Tee: each stream is duplicated to the console and the log file.
	// MultiWriter writes sequentially, so interleaving within a single
	// stream is preserved; ordering ACROSS the two streams is up to the
	// child's own flushing, exactly as with shell redirection.
	child.Stdout = io.MultiWriter(r.Stdout, logFile)
	child.Stderr = io.MultiWriter(r.Stderr, logFile)

	err = child.Run()
	if err == nil {
		return nil
	}

	// A canceled context means we were interrupted (Ctrl+C, SIGTERM) and
	// exec already killed the child; report the interruption, not the
	// child's induced exit status.
	if ctx.Err() != nil {
		return model.WrapCLIError(model.ExitGeneralError, "launch interrupted", ctx.Err())
	}

	// Propagate the child's own exit code verbatim. Scripts wrapping
	// distrun observe the same status they would get from the launcher.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return model.WrapCLIError(model.ExitCode(exitErr.ExitCode()),
			fmt.Sprintf("launcher exited with status %d", exitErr.ExitCode()), err)
	}

	return model.WrapCLIError(model.ExitGeneralError, "failed to run launcher", err)
}
