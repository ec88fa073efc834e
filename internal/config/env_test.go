package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// envMap returns a getenv function backed by a map, so resolution can be
// tested without touching the test process environment.
func envMap(vars map[string]string) func(string) string {
	return func(key string) string {
		return vars[key]
	}
}

// TestResolve_Defaults verifies that an empty environment and no preset
// produce the built-in defaults from the original launch script.
func TestResolve_Defaults(t *testing.T) {
	spec, err := Resolve(envMap(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultScript, spec.Script)
	assert.Equal(t, model.PlanColossalAI, spec.DistPlan)
	assert.Equal(t, DefaultTPDegree, spec.TPDegree)
	assert.Equal(t, DefaultGPUsPerNode, spec.GPUsPerNode)
	assert.Equal(t, DefaultNodes, spec.Nodes)
	assert.Equal(t, model.PlacementCPU, spec.Placement)
	assert.False(t, spec.ShardInit)
	assert.Equal(t, DefaultOMPThreads, spec.OMPThreads)
	assert.Equal(t, model.LauncherTorchrun, spec.Launcher)
	assert.Equal(t, DefaultLogFile, spec.LogFile)
	assert.Equal(t, "train-gpt-demo", spec.Name)
}

// TestResolve_EnvironmentVariables verifies that every recognized variable
// maps onto the expected spec field, using the exact spellings the
// original scripts exported.
func TestResolve_EnvironmentVariables(t *testing.T) {
	spec, err := Resolve(envMap(map[string]string{
		"DISTPAN":          "zero2",
		"TPDEGREE":         "4",
		"GPUNUM":           "8",
		"PLACEMENT":        "auto",
		"USE_SHARD_INIT":   "True",
		"NNODES":           "2",
		"MASTER_ADDR":      "10.0.0.5",
		"MASTER_PORT":      "29501",
		"OMP_NUM_THREADS":  "32",
		"DISTRUN_LAUNCHER": "colossalai",
		"DISTRUN_LOG_FILE": "logs/gpt.log",
	}), nil)
	require.NoError(t, err)

	assert.Equal(t, model.PlanZero2, spec.DistPlan)
	assert.Equal(t, 4, spec.TPDegree)
	assert.Equal(t, 8, spec.GPUsPerNode)
	assert.Equal(t, model.PlacementAuto, spec.Placement)
	assert.True(t, spec.ShardInit)
	assert.Equal(t, 2, spec.Nodes)
	assert.Equal(t, "10.0.0.5", spec.MasterAddr)
	assert.Equal(t, 29501, spec.MasterPort)
	assert.Equal(t, 32, spec.OMPThreads)
	assert.Equal(t, model.LauncherColossalAI, spec.Launcher)
	assert.Equal(t, "logs/gpt.log", spec.LogFile)
}

// TestResolve_GPUNumAuto verifies that GPUNUM=auto (any case) resolves to
// the probing sentinel rather than a literal count.
func TestResolve_GPUNumAuto(t *testing.T) {
	for _, v := range []string{"auto", "AUTO", "Auto", "0"} {
		spec, err := Resolve(envMap(map[string]string{"GPUNUM": v}), nil)
		require.NoError(t, err, "GPUNUM=%s", v)
		assert.Equal(t, GPUsAuto, spec.GPUsPerNode, "GPUNUM=%s", v)
	}
}

// TestResolve_ShardInitSpellings verifies the boolean spellings accepted
// for USE_SHARD_INIT, including the Python-style True/False the shell
// scripts passed through.
func TestResolve_ShardInitSpellings(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
		hasError bool
	}{
		{"True", true, false},
		{"False", false, false},
		{"true", true, false},
		{"false", false, false},
		{"1", true, false},
		{"0", false, false},
		{"yes", false, true},
		{"enabled", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			spec, err := Resolve(envMap(map[string]string{"USE_SHARD_INIT": tt.value}), nil)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, spec.ShardInit)
			}
		})
	}
}

// TestResolve_InvalidValues verifies that malformed assignments fail with
// ExitConfigInvalid and an error message naming the variable.
func TestResolve_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"unknown plan", map[string]string{"DISTPAN": "zero3"}},
		{"non-numeric degree", map[string]string{"TPDEGREE": "two"}},
		{"zero degree", map[string]string{"TPDEGREE": "0"}},
		{"negative gpus", map[string]string{"GPUNUM": "-1"}},
		{"unknown placement", map[string]string{"PLACEMENT": "disk"}},
		{"bad boolean", map[string]string{"USE_SHARD_INIT": "maybe"}},
		{"bad node count", map[string]string{"NNODES": "0"}},
		{"bad port", map[string]string{"MASTER_PORT": "high"}},
		{"unknown launcher", map[string]string{"DISTRUN_LAUNCHER": "mpirun"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(envMap(tt.vars), nil)
			require.Error(t, err)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)

			// The message must point at the offending variable.
			for key := range tt.vars {
				assert.Contains(t, err.Error(), key)
			}
		})
	}
}

// TestResolve_MasterPortLeftUnset verifies that Resolve never defaults
// the rendezvous port: a later flag layer may still change the node
// count, so the multi-node default belongs after all layers are applied.
func TestResolve_MasterPortLeftUnset(t *testing.T) {
	multi, err := Resolve(envMap(map[string]string{
		"NNODES":      "2",
		"MASTER_ADDR": "10.0.0.1",
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, multi.Nodes)
	assert.Equal(t, "10.0.0.1", multi.MasterAddr)
	assert.Equal(t, 0, multi.MasterPort)

	explicit, err := Resolve(envMap(map[string]string{
		"NNODES":      "2",
		"MASTER_ADDR": "10.0.0.1",
		"MASTER_PORT": "29600",
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, 29600, explicit.MasterPort)
}

// TestResolve_EnvOverridesPreset verifies the precedence order: a variable
// set in the environment wins over the same field from a preset.
func TestResolve_EnvOverridesPreset(t *testing.T) {
	degree := 8
	preset := &Preset{
		DistPlan: "zero1",
		TPDegree: &degree,
	}

	spec, err := Resolve(envMap(map[string]string{"DISTPAN": "torch_ddp"}), preset)
	require.NoError(t, err)

	// Env beats preset for the plan, preset beats default for the degree.
	assert.Equal(t, model.PlanTorchDDP, spec.DistPlan)
	assert.Equal(t, 8, spec.TPDegree)
}

// TestDefaultRunName verifies run name derivation from script paths.
func TestDefaultRunName(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{"train_gpt_demo.py", "train-gpt-demo"},
		{"examples/language/train_gpt_demo.py", "train-gpt-demo"},
		{"bench.v2.py", "bench-v2"},
		{"TrainGPT.py", "TrainGPT"},
		{"___.py", "run"},
		{"", "run"},
	}

	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRunName(tt.script))
		})
	}
}
