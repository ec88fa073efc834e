// Package accel probes the host for accelerators.
//
// distrun never talks to the GPU driver directly: like the launchers it
// wraps, it shells out to the vendor tooling (nvidia-smi) and parses the
// listing. The parse step is a pure function so the counting logic is
// testable without hardware.
package accel

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// DetectGPUCount returns the number of GPUs visible on this host by
// running `nvidia-smi -L`, which prints one line per device:
//
//	GPU 0: NVIDIA A100-SXM4-80GB (UUID: GPU-...)
//	GPU 1: NVIDIA A100-SXM4-80GB (UUID: GPU-...)
//
// It is called only when the user requests probing (GPUNUM=auto or
// --gpus=0). A failed probe is a configuration error: the user should
// pass an explicit count on hosts without the NVIDIA tooling.
func DetectGPUCount(ctx context.Context) (int, error) {
	// #nosec G204 — fixed binary name and flag, no user input
	cmd := exec.CommandContext(ctx, "nvidia-smi", "-L")

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		msg := "GPU probe failed: is nvidia-smi installed? Pass an explicit GPU count instead of \"auto\""
		if detail != "" {
			msg = fmt.Sprintf("%s (nvidia-smi: %s)", msg, detail)
		}
		return 0, model.WrapCLIError(model.ExitConfigInvalid, msg, err)
	}

	count := CountGPULines(stdout.String())
	if count == 0 {
		return 0, model.NewCLIError(model.ExitConfigInvalid,
			"GPU probe found no devices; pass an explicit GPU count instead of \"auto\"")
	}
	return count, nil
}

// CountGPULines counts device entries in `nvidia-smi -L` output.
// Only lines starting with the "GPU <index>:" prefix are counted; MIG
// sub-device lines are indented and therefore skipped.
func CountGPULines(output string) int {
	count := 0
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "GPU ") && strings.Contains(line, ":") {
			count++
		}
	}
	return count
}
