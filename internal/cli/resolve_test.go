package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// newResolveCommand builds a bare command carrying the shared launch
// flags, with a fake environment injected through the context.
func newResolveCommand(t *testing.T, env map[string]string) (*cobra.Command, *launchFlags) {
	t.Helper()

	flags := &launchFlags{}
	cmd := &cobra.Command{Use: "test"}
	addLaunchFlags(cmd, flags)

	cmd.SetContext(WithEnvLookup(context.Background(), func(key string) string {
		return env[key]
	}))
	return cmd, flags
}

// setFlag sets a flag value and marks it as changed, mimicking the user
// passing it on the command line.
func setFlag(t *testing.T, cmd *cobra.Command, name, value string) {
	t.Helper()
	require.NoError(t, cmd.Flags().Set(name, value))
}

func TestResolveSpec_Defaults(t *testing.T) {
	cmd, flags := newResolveCommand(t, nil)

	spec, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)

	assert.Equal(t, "train-gpt-demo", spec.Name)
	assert.Equal(t, "train_gpt_demo.py", spec.Script)
	assert.Equal(t, model.PlanColossalAI, spec.DistPlan)
	assert.Equal(t, 1, spec.TPDegree)
	assert.Equal(t, 1, spec.GPUsPerNode)
	assert.Equal(t, model.PlacementCPU, spec.Placement)
	assert.False(t, spec.ShardInit)
}

// TestResolveSpec_FlagsOverrideEnvironment verifies the top layer of the
// precedence chain: a flag the user set wins over the environment, but an
// untouched flag default does not.
func TestResolveSpec_FlagsOverrideEnvironment(t *testing.T) {
	cmd, flags := newResolveCommand(t, map[string]string{
		"DISTPAN":  "zero1",
		"TPDEGREE": "4",
		"GPUNUM":   "8",
	})
	setFlag(t, cmd, "tp-degree", "8")

	spec, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)

	// Flag wins where set.
	assert.Equal(t, 8, spec.TPDegree)
	// Environment wins where the flag was left alone.
	assert.Equal(t, model.PlanZero1, spec.DistPlan)
	assert.Equal(t, 8, spec.GPUsPerNode)
}

// TestResolveSpec_EnvironmentOverridesPreset verifies the middle layers:
// the environment beats the preset file, which beats the defaults.
func TestResolveSpec_EnvironmentOverridesPreset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "distrun.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// project presets
		"defaultPreset": "big",
		"presets": {
			"big": {
				"tpDegree": 2,
				"gpusPerNode": 4,
				"placement": "cuda",
			},
		},
	}`), 0o644))

	cmd, flags := newResolveCommand(t, map[string]string{
		"TPDEGREE": "4",
	})
	setFlag(t, cmd, "config", path)

	spec, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)

	// Environment beats the preset; the preset beats the defaults.
	assert.Equal(t, 4, spec.TPDegree)
	assert.Equal(t, 4, spec.GPUsPerNode)
	assert.Equal(t, model.PlacementCUDA, spec.Placement)
	assert.Equal(t, model.PlanColossalAI, spec.DistPlan)
}

func TestResolveSpec_UnknownPreset(t *testing.T) {
	cmd, flags := newResolveCommand(t, nil)
	setFlag(t, cmd, "preset", "nope")

	_, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
}

func TestResolveSpec_InvalidFlagValues(t *testing.T) {
	tests := []struct {
		name  string
		flag  string
		value string
	}{
		{"bad distplan", "distplan", "zero9"},
		{"bad placement", "placement", "disk"},
		{"bad launcher", "launcher", "mpirun"},
		{"bad gpus", "gpus", "many"},
		{"bad name", "name", "-leading-hyphen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, flags := newResolveCommand(t, nil)
			setFlag(t, cmd, tt.flag, tt.value)

			_, err := resolveSpec(cmd.Context(), cmd, flags, nil)
			require.Error(t, err)

			var cliErr *model.CLIError
			require.ErrorAs(t, err, &cliErr)
			assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
		})
	}
}

// TestResolveSpec_ScriptRederivesName verifies that changing the script
// changes the derived run name, unless --name pins it explicitly.
func TestResolveSpec_ScriptRederivesName(t *testing.T) {
	cmd, flags := newResolveCommand(t, nil)
	setFlag(t, cmd, "script", "finetune_llama.py")

	spec, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)
	assert.Equal(t, "finetune-llama", spec.Name)

	cmd, flags = newResolveCommand(t, nil)
	setFlag(t, cmd, "script", "finetune_llama.py")
	setFlag(t, cmd, "name", "nightly")

	spec, err = resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)
	assert.Equal(t, "nightly", spec.Name)
}

// TestResolveSpec_MultiNodeFlagsDefaultPort verifies that a launch made
// multi-node purely through flags still gets the standard rendezvous
// port: the default is applied after all layers, not inside one of them.
func TestResolveSpec_MultiNodeFlagsDefaultPort(t *testing.T) {
	cmd, flags := newResolveCommand(t, nil)
	setFlag(t, cmd, "nodes", "2")
	setFlag(t, cmd, "master-addr", "10.0.0.1")
	setFlag(t, cmd, "gpus", "2")

	spec, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)
	assert.Equal(t, 29500, spec.MasterPort)

	// An explicit port is never overridden by the default.
	cmd, flags = newResolveCommand(t, nil)
	setFlag(t, cmd, "nodes", "2")
	setFlag(t, cmd, "master-addr", "10.0.0.1")
	setFlag(t, cmd, "master-port", "29600")
	setFlag(t, cmd, "gpus", "2")

	spec, err = resolveSpec(cmd.Context(), cmd, flags, nil)
	require.NoError(t, err)
	assert.Equal(t, 29600, spec.MasterPort)
}

func TestParseGPUFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"auto", 0, false},
		{"0", 0, false},
		{"4", 4, false},
		{"many", 0, true},
		{"-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseGPUFlag(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSpec_ExtraArgs(t *testing.T) {
	cmd, flags := newResolveCommand(t, nil)

	spec, err := resolveSpec(cmd.Context(), cmd, flags, []string{"--batch_size", "16"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--batch_size", "16"}, spec.ExtraArgs)
}

// TestResolveSpec_ValidationFailure verifies that an impossible shape is
// rejected after all layers are applied.
func TestResolveSpec_ValidationFailure(t *testing.T) {
	cmd, flags := newResolveCommand(t, map[string]string{
		"TPDEGREE": "8",
		"GPUNUM":   "2",
	})

	_, err := resolveSpec(cmd.Context(), cmd, flags, nil)
	assert.Error(t, err)
}
