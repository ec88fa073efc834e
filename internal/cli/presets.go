// Package cli — presets.go implements the "distrun presets" command.
//
// The presets command lists the named presets available in the project's
// distrun.jsonc file, marking the default. It reads the file only — no
// Docker, no environment resolution.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/distrun/internal/config"
)

// presetsFlags holds the flag values for the presets command.
type presetsFlags struct {
	configFile string // --config: preset file path
}

// NewPresetsCommand creates the "presets" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPresetsCommand() *cobra.Command {
	flags := &presetsFlags{}

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List presets from the project preset file",
		Long: `List the named presets defined in the project's preset file.

Examples:
  distrun presets
  distrun presets --config configs/distrun.jsonc
  distrun presets --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresets(flags)
		},
	}

	cmd.Flags().StringVar(&flags.configFile, "config", config.DefaultFileName, "Preset file path")

	return cmd
}

// runPresets loads the preset file and prints its entries.
func runPresets(flags *presetsFlags) error {
	file, err := config.LoadFile(flags.configFile)
	if err != nil {
		return err
	}

	printPresetsResult(flags.configFile, file)
	return nil
}

// presetJSON is the JSON output structure for a single preset entry.
type presetJSON struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Summary string `json:"summary"`
}

// printPresetsResult outputs the preset list in text or JSON format.
func printPresetsResult(path string, file *config.File) {
	names := file.Names()

	if IsJSONOutput() {
		type resultJSON struct {
			Presets []presetJSON `json:"presets"`
		}
		// Empty slice instead of nil so JSON output shows [] when the
		// file is absent or defines no presets.
		result := resultJSON{Presets: make([]presetJSON, 0, len(names))}
		for _, name := range names {
			preset := file.Presets[name]
			result.Presets = append(result.Presets, presetJSON{
				Name:    name,
				Default: name == file.DefaultPreset,
				Summary: summarizePreset(&preset),
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if file == nil {
		fmt.Printf("No preset file found at %s.\n", path)
		return
	}
	if len(names) == 0 {
		fmt.Printf("Preset file %s defines no presets.\n", path)
		return
	}

	fmt.Printf("%-20s %-9s %s\n", "NAME", "DEFAULT", "SETTINGS")
	for _, name := range names {
		preset := file.Presets[name]
		marker := ""
		if name == file.DefaultPreset {
			marker = "*"
		}
		fmt.Printf("%-20s %-9s %s\n", name, marker, summarizePreset(&preset))
	}
}

// summarizePreset renders the fields a preset sets as a compact
// "key=value" list, in a fixed field order for stable output.
func summarizePreset(p *config.Preset) string {
	var parts []string
	add := func(key, value string) {
		parts = append(parts, key+"="+value)
	}

	if p.DistPlan != "" {
		add("distplan", p.DistPlan)
	}
	if p.TPDegree != nil {
		add("tp-degree", fmt.Sprintf("%d", *p.TPDegree))
	}
	if p.GPUsPerNode != nil {
		add("gpus", fmt.Sprintf("%d", *p.GPUsPerNode))
	}
	if p.Nodes != nil {
		add("nodes", fmt.Sprintf("%d", *p.Nodes))
	}
	if p.Placement != "" {
		add("placement", p.Placement)
	}
	if p.ShardInit != nil {
		add("shardinit", fmt.Sprintf("%t", *p.ShardInit))
	}
	if p.Script != "" {
		add("script", p.Script)
	}
	if p.Launcher != "" {
		add("launcher", p.Launcher)
	}
	if p.Image != "" {
		add("image", p.Image)
	}

	if len(parts) == 0 {
		return "-"
	}
	out := parts[0]
	for _, part := range parts[1:] {
		out += " " + part
	}
	return out
}
