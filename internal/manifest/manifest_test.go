package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// TestWriteLoad verifies a manifest written before launch can be read back
// with the launch parameters intact.
func TestWriteLoad(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "run.log")

	m := &Manifest{
		Spec: model.LaunchSpec{
			Name:        "gpt-demo",
			Script:      "train_gpt_demo.py",
			DistPlan:    model.PlanZero2,
			TPDegree:    2,
			GPUsPerNode: 4,
			Nodes:       1,
			Placement:   model.PlacementAuto,
			ShardInit:   true,
			OMPThreads:  16,
			Launcher:    model.LauncherTorchrun,
			LogFile:     logFile,
		},
		Command:   "OMP_NUM_THREADS=16 torchrun --standalone ...",
		Argv:      []string{"torchrun", "--standalone"},
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, Write(m))

	// The manifest sits next to the log it describes.
	path := PathFor(logFile)
	assert.FileExists(t, path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Spec, loaded.Spec)
	assert.Equal(t, m.Argv, loaded.Argv)
	assert.True(t, m.StartedAt.Equal(loaded.StartedAt))
}

// TestLoad_Malformed verifies parse failures are reported with the path.
func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("spec: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

// TestPathFor pins the log-to-manifest naming convention.
func TestPathFor(t *testing.T) {
	assert.Equal(t, "run.log.manifest.yml", PathFor("run.log"))
	assert.Equal(t, "logs/gpt.log.manifest.yml", PathFor("logs/gpt.log"))
}
