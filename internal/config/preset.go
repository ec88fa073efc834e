package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/distrun/internal/model"
)

// DefaultFileName is the preset file looked up in the working directory
// when --config is not given.
const DefaultFileName = "distrun.jsonc"

// File represents a parsed distrun.jsonc project file. It holds named
// launch presets plus an optional default preset applied when the user
// does not pass --preset.
//
// The file is JSONC: comments and trailing commas are stripped with
// github.com/tidwall/jsonc before parsing, so teams can annotate why a
// preset pins a particular plan or placement.
type File struct {
	// DefaultPreset names the preset applied when none is requested.
	// Empty means no preset is applied by default.
	DefaultPreset string `json:"defaultPreset,omitempty"`

	// Presets maps preset names to partial launch specifications.
	Presets map[string]Preset `json:"presets,omitempty"`
}

// Preset is a partial launch specification from the project file.
// Every field is optional; unset fields leave the lower-precedence
// layer (the built-in defaults) untouched.
//
// Numeric and boolean fields use pointers so that an explicit zero/false
// in the file is distinguishable from "not specified".
type Preset struct {
	// Script is the training entry script path.
	Script string `json:"script,omitempty"`

	// DistPlan is the distribution strategy name.
	DistPlan string `json:"distPlan,omitempty"`

	// TPDegree is the tensor-parallel degree.
	TPDegree *int `json:"tpDegree,omitempty"`

	// GPUsPerNode is the per-node process count. 0 requests probing.
	GPUsPerNode *int `json:"gpusPerNode,omitempty"`

	// Nodes is the participating node count.
	Nodes *int `json:"nodes,omitempty"`

	// MasterAddr is the multi-node rendezvous address.
	MasterAddr string `json:"masterAddr,omitempty"`

	// MasterPort is the multi-node rendezvous port.
	MasterPort *int `json:"masterPort,omitempty"`

	// Placement is the placement policy name.
	Placement string `json:"placement,omitempty"`

	// ShardInit toggles sharded parameter initialization.
	ShardInit *bool `json:"shardInit,omitempty"`

	// OMPThreads is the OMP_NUM_THREADS value for the child.
	OMPThreads *int `json:"ompThreads,omitempty"`

	// Launcher is the launcher binary name (torchrun or colossalai).
	Launcher string `json:"launcher,omitempty"`

	// LogFile is the combined-output log path.
	LogFile string `json:"logFile,omitempty"`

	// Image runs the launch inside a container from this image.
	Image string `json:"image,omitempty"`

	// ExtraArgs are appended to the training script's arguments.
	ExtraArgs []string `json:"extraArgs,omitempty"`
}

// LoadFile reads and parses a distrun.jsonc preset file.
//
// A missing file is not an error: presets are an optional convenience, so
// (nil, nil) is returned and resolution proceeds with defaults and the
// environment only. A file that exists but cannot be parsed is an
// ExitConfigInvalid error — silently ignoring a broken project file would
// launch with the wrong parameters.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("failed to read preset file %s", path), err)
	}

	// Strip JSONC comments (// and /* */) and trailing commas before
	// handing the bytes to encoding/json.
	cleanJSON := jsonc.ToJSON(data)

	var file File
	if err := json.Unmarshal(cleanJSON, &file); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("failed to parse preset file %s", path), err)
	}

	return &file, nil
}

// Select returns the preset to apply for the given request.
//
// An explicitly requested name must exist — a typo in --preset should fail
// loudly rather than fall back to defaults. When no name is requested, the
// file's defaultPreset is used if present; a file whose defaultPreset names
// a missing entry is treated as misconfigured.
func (f *File) Select(name string) (*Preset, error) {
	if f == nil {
		if name != "" {
			return nil, model.NewCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("preset %q requested but no preset file was found", name))
		}
		return nil, nil
	}

	if name == "" {
		name = f.DefaultPreset
		if name == "" {
			return nil, nil
		}
	}

	preset, ok := f.Presets[name]
	if !ok {
		return nil, model.NewCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("preset %q not found (available: %s)", name, joinPresetNames(f)))
	}
	return &preset, nil
}

// Names returns the preset names in sorted order for stable CLI output.
func (f *File) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Presets))
	for name := range f.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// joinPresetNames formats the available preset names for error messages.
func joinPresetNames(f *File) string {
	names := f.Names()
	if len(names) == 0 {
		return "none"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

// applyTo overlays the preset's set fields onto the spec. Enum-typed
// fields are parsed here so a bad value in the file reports the preset
// layer, not a later one.
func (p *Preset) applyTo(spec *model.LaunchSpec) error {
	if p.Script != "" {
		spec.Script = p.Script
	}
	if p.DistPlan != "" {
		plan, err := model.ParseDistPlan(p.DistPlan)
		if err != nil {
			return presetError(err)
		}
		spec.DistPlan = plan
	}
	if p.TPDegree != nil {
		spec.TPDegree = *p.TPDegree
	}
	if p.GPUsPerNode != nil {
		spec.GPUsPerNode = *p.GPUsPerNode
	}
	if p.Nodes != nil {
		spec.Nodes = *p.Nodes
	}
	if p.MasterAddr != "" {
		spec.MasterAddr = p.MasterAddr
	}
	if p.MasterPort != nil {
		spec.MasterPort = *p.MasterPort
	}
	if p.Placement != "" {
		placement, err := model.ParsePlacement(p.Placement)
		if err != nil {
			return presetError(err)
		}
		spec.Placement = placement
	}
	if p.ShardInit != nil {
		spec.ShardInit = *p.ShardInit
	}
	if p.OMPThreads != nil {
		spec.OMPThreads = *p.OMPThreads
	}
	if p.Launcher != "" {
		kind, err := model.ParseLauncherKind(p.Launcher)
		if err != nil {
			return presetError(err)
		}
		spec.Launcher = kind
	}
	if p.LogFile != "" {
		spec.LogFile = p.LogFile
	}
	if p.Image != "" {
		spec.Image = p.Image
	}
	if len(p.ExtraArgs) > 0 {
		spec.ExtraArgs = append([]string(nil), p.ExtraArgs...)
	}
	return nil
}

// presetError wraps enum parse failures from the preset layer.
func presetError(err error) error {
	return model.WrapCLIError(model.ExitConfigInvalid, "invalid preset value", err)
}
