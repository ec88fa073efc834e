package docker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// Label key constants define the Docker label keys used to persist launch
// parameters on training containers. These labels are the sole persistence
// mechanism — there is no external state file, so a run survives distrun
// restarts and is visible to plain `docker inspect`.
//
// All keys share the "distrun." prefix to namespace them away from labels
// set by other tools.
const (
	// LabelPrefix is the common prefix for all distrun labels.
	LabelPrefix = "distrun."

	// LabelManagedBy identifies containers launched by distrun.
	// This is the primary label used for filtering and discovery.
	// Key: "distrun.managed-by", Value: always "distrun".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelName stores the run's unique identifier.
	LabelName = LabelPrefix + "name"

	// LabelDistPlan stores the distribution strategy of the run.
	LabelDistPlan = LabelPrefix + "distplan"

	// LabelTPDegree stores the tensor-parallel degree as a decimal string.
	LabelTPDegree = LabelPrefix + "tp-degree"

	// LabelGPUs stores the per-node process count as a decimal string.
	LabelGPUs = LabelPrefix + "gpus"

	// LabelPlacement stores the placement policy of the run.
	LabelPlacement = LabelPrefix + "placement"

	// LabelShardInit stores whether sharded initialization was enabled
	// ("true" or "false").
	LabelShardInit = LabelPrefix + "shard-init"

	// LabelScript stores the training entry script path inside the container.
	LabelScript = LabelPrefix + "script"

	// LabelLogFile stores the in-container combined-output log path.
	LabelLogFile = LabelPrefix + "log-file"

	// LabelCreatedAt stores the launch timestamp, RFC3339 formatted.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "distrun"

// BuildLabels constructs the Docker label map for a launch. The labels
// allow full reconstruction of the TrainingRun from container inspection
// alone, keeping each value human-readable rather than packing the spec
// into a single encoded blob.
func BuildLabels(spec *model.LaunchSpec, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelName:      spec.Name,
		LabelDistPlan:  spec.DistPlan.String(),
		LabelTPDegree:  strconv.Itoa(spec.TPDegree),
		LabelGPUs:      strconv.Itoa(spec.GPUsPerNode),
		LabelPlacement: spec.Placement.String(),
		LabelShardInit: strconv.FormatBool(spec.ShardInit),
		LabelScript:    spec.Script,
		LabelLogFile:   spec.LogFile,
		// RFC3339 in UTC keeps timestamps comparable regardless of the
		// host machine's timezone.
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs a TrainingRun from Docker container labels.
// This is the inverse of BuildLabels, used by the list and stop commands.
//
// Container identity and Status are NOT filled in here — they come from
// the container listing itself, not from static label values.
func ParseLabels(labels map[string]string) (*model.TrainingRun, error) {
	// Check required labels up front so the error can list everything
	// that is missing at once.
	requiredKeys := []string{
		LabelManagedBy,
		LabelName,
		LabelDistPlan,
		LabelTPDegree,
		LabelGPUs,
		LabelPlacement,
	}
	var missing []string
	for _, key := range requiredKeys {
		if labels[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("container is missing required labels: %s", strings.Join(missing, ", "))
	}

	plan, err := model.ParseDistPlan(labels[LabelDistPlan])
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", LabelDistPlan, err)
	}

	placement, err := model.ParsePlacement(labels[LabelPlacement])
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", LabelPlacement, err)
	}

	tpDegree, err := strconv.Atoi(labels[LabelTPDegree])
	if err != nil {
		return nil, fmt.Errorf("label %s: not an integer: %q", LabelTPDegree, labels[LabelTPDegree])
	}

	gpus, err := strconv.Atoi(labels[LabelGPUs])
	if err != nil {
		return nil, fmt.Errorf("label %s: not an integer: %q", LabelGPUs, labels[LabelGPUs])
	}

	run := &model.TrainingRun{
		Name:        labels[LabelName],
		DistPlan:    plan,
		TPDegree:    tpDegree,
		GPUsPerNode: gpus,
		Placement:   placement,
		Script:      labels[LabelScript],
		LogFile:     labels[LabelLogFile],
	}

	// Optional labels: absence means the zero value, not an error, so
	// containers launched by older versions still parse.
	if v := labels[LabelShardInit]; v != "" {
		shardInit, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return nil, fmt.Errorf("label %s: not a boolean: %q", LabelShardInit, v)
		}
		run.ShardInit = shardInit
	}

	if v := labels[LabelCreatedAt]; v != "" {
		createdAt, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			return nil, fmt.Errorf("label %s: not an RFC3339 timestamp: %q", LabelCreatedAt, v)
		}
		run.CreatedAt = createdAt
	}

	return run, nil
}

// LabelArgs renders the label map as `docker run` --label flags, sorted
// deterministically so the synthesized command line is stable.
func LabelArgs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	// Sort for stable argv output (useful in tests and dry-run display).
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "--label", k+"="+labels[k])
	}
	return args
}
