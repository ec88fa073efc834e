// Package manifest writes a YAML record next to each run's log file.
//
// The manifest captures everything needed to reproduce a launch — the
// resolved spec, the exact synthesized command line, and the start time —
// so a log directory is self-contained even after the shell history and
// environment that produced the run are gone.
package manifest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// Manifest is the on-disk YAML structure describing one launch.
type Manifest struct {
	// Spec is the fully resolved launch specification.
	Spec model.LaunchSpec `yaml:"spec"`

	// Command is the display form of the synthesized launcher invocation,
	// env additions included.
	Command string `yaml:"command"`

	// Argv is the machine-readable argument vector, program first.
	Argv []string `yaml:"argv"`

	// StartedAt is the launch timestamp in UTC.
	StartedAt time.Time `yaml:"startedAt"`
}

// PathFor returns the manifest path derived from a log file path.
// Keeping the two side by side ties a log to its parameters.
func PathFor(logFile string) string {
	return logFile + ".manifest.yml"
}

// Write serializes the manifest to the path derived from the spec's log
// file. Called just before the launcher is spawned, so even a run that
// dies immediately leaves its parameters behind.
func Write(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode run manifest: %w", err)
	}

	path := PathFor(m.Spec.LogFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run manifest %s: %w", path, err)
	}
	return nil
}

// Load reads a manifest back from disk.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse run manifest %s: %w", path, err)
	}
	return &m, nil
}

// Encode renders the manifest as YAML without touching disk, for the
// `plan -o yaml` output path.
func Encode(m *Manifest) ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run manifest: %w", err)
	}
	return data, nil
}
