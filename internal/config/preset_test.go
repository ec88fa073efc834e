package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// writePresetFile writes a preset file into a temp directory and returns
// its path. t.TempDir handles cleanup automatically.
func writePresetFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoadFile_JSONC verifies that a commented preset file parses and that
// the selected preset overlays the defaults during resolution.
func TestLoadFile_JSONC(t *testing.T) {
	path := writePresetFile(t, `{
		// Team presets for the GPT example.
		"defaultPreset": "gemini-cpu",
		"presets": {
			"gemini-cpu": {
				/* Gemini with host-memory offload. */
				"distPlan": "colossalai",
				"placement": "cpu",
				"tpDegree": 2,
				"shardInit": true,
			},
			"ddp-bench": {
				"distPlan": "torch_ddp",
				"placement": "cuda",
				"extraArgs": ["--batch_size=8"],
			},
		},
	}`)

	file, err := LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, []string{"ddp-bench", "gemini-cpu"}, file.Names())

	// Explicit selection.
	preset, err := file.Select("ddp-bench")
	require.NoError(t, err)
	require.NotNil(t, preset)

	spec, err := Resolve(envMap(nil), preset)
	require.NoError(t, err)
	assert.Equal(t, model.PlanTorchDDP, spec.DistPlan)
	assert.Equal(t, model.PlacementCUDA, spec.Placement)
	assert.Equal(t, []string{"--batch_size=8"}, spec.ExtraArgs)

	// Falling back to the file's default preset.
	preset, err = file.Select("")
	require.NoError(t, err)
	require.NotNil(t, preset)

	spec, err = Resolve(envMap(nil), preset)
	require.NoError(t, err)
	assert.Equal(t, 2, spec.TPDegree)
	assert.True(t, spec.ShardInit)
}

// TestLoadFile_Missing verifies that an absent preset file is not an error.
func TestLoadFile_Missing(t *testing.T) {
	file, err := LoadFile(filepath.Join(t.TempDir(), "nope.jsonc"))
	assert.NoError(t, err)
	assert.Nil(t, file)
}

// TestLoadFile_Malformed verifies that a broken preset file fails loudly
// instead of silently launching with defaults.
func TestLoadFile_Malformed(t *testing.T) {
	path := writePresetFile(t, `{"presets": [`)

	_, err := LoadFile(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
}

// TestFile_Select_Errors covers the failure modes of preset selection.
func TestFile_Select_Errors(t *testing.T) {
	file := &File{
		Presets: map[string]Preset{"gemini-cpu": {}},
	}

	// Unknown explicit name lists what is available.
	_, err := file.Select("gemini-gpu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini-cpu")

	// Requesting a preset with no file at all.
	var missing *File
	_, err = missing.Select("anything")
	require.Error(t, err)

	// No file and no request is fine.
	preset, err := missing.Select("")
	assert.NoError(t, err)
	assert.Nil(t, preset)

	// File with no default preset and no request is fine too.
	preset, err = file.Select("")
	assert.NoError(t, err)
	assert.Nil(t, preset)
}

// TestPreset_InvalidEnum verifies that enum typos in the file are caught
// at the preset layer.
func TestPreset_InvalidEnum(t *testing.T) {
	preset := &Preset{DistPlan: "zeroinf"}
	_, err := Resolve(envMap(nil), preset)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
}
