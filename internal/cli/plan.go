// Package cli — plan.go implements the "distrun plan" command.
//
// The plan command runs the same resolution pipeline as run but stops
// short of executing anything: it prints the resolved parameters and the
// exact launcher invocation they produce. Useful for checking what a
// preset or environment actually resolves to before burning GPU hours.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/distrun/internal/launcher"
	"github.com/mmr-tortoise/distrun/internal/manifest"
	"github.com/mmr-tortoise/distrun/internal/model"
)

// planFlags holds the flag values for the plan command.
type planFlags struct {
	launchFlags
	output string // --output: text or yaml (JSON via the global --json)
}

// NewPlanCommand creates the "plan" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPlanCommand() *cobra.Command {
	flags := &planFlags{}

	cmd := &cobra.Command{
		Use:   "plan [flags] [-- script-args...]",
		Short: "Show the resolved launch command without executing it",
		Long: `Resolve launch parameters and print the command that run would execute.

The same precedence chain applies as for run: built-in defaults, the
preset file, environment variables, then CLI flags.

Examples:
  distrun plan
  distrun plan --preset zero2-offload
  distrun plan --json
  distrun plan -o yaml`,

		Args: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash > 0 || (dash < 0 && len(args) > 0) {
				return fmt.Errorf("unexpected argument %q (script arguments go after \"--\")", args[0])
			}
			return nil
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, flags, args)
		},
	}

	addLaunchFlags(cmd, &flags.launchFlags)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "text", "Output format: text, yaml")

	return cmd
}

// runPlan resolves the spec and prints the synthesized command.
func runPlan(cmd *cobra.Command, flags *planFlags, extraArgs []string) error {
	spec, err := resolveSpec(cmd.Context(), cmd, &flags.launchFlags, extraArgs)
	if err != nil {
		return err
	}

	launch := launcher.BuildCommand(spec)

	if flags.output == "yaml" {
		// YAML output is the manifest shape so a plan can be diffed
		// against what a past run actually recorded.
		data, encErr := manifest.Encode(&manifest.Manifest{
			Spec:      *spec,
			Command:   launch.String(),
			Argv:      launch.Argv(),
			StartedAt: time.Time{},
		})
		if encErr != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to encode plan", encErr)
		}
		fmt.Print(string(data))
		return nil
	}
	if flags.output != "text" {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid --output value %q: valid values are text, yaml", flags.output))
	}

	printPlanResult(spec, launch)
	return nil
}

// printPlanResult outputs the resolved spec and command in text or JSON
// format. Shared with the run command's --dry-run path.
func printPlanResult(spec *model.LaunchSpec, launch *launcher.Command) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":        spec.Name,
			"script":      spec.Script,
			"distplan":    spec.DistPlan.String(),
			"tpDegree":    spec.TPDegree,
			"gpusPerNode": spec.GPUsPerNode,
			"nodes":       spec.Nodes,
			"worldSize":   spec.WorldSize(),
			"placement":   spec.Placement.String(),
			"shardInit":   spec.ShardInit,
			"launcher":    spec.Launcher.String(),
			"logFile":     spec.LogFile,
			"command":     launch.String(),
			"argv":        launch.Argv(),
			"env":         launch.Env,
		}
		if spec.Image != "" {
			result["image"] = spec.Image
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Run %q (%s, world size %d)\n", spec.Name, spec.DistPlan, spec.WorldSize())
	fmt.Printf("  Script:     %s\n", spec.Script)
	fmt.Printf("  TP degree:  %d\n", spec.TPDegree)
	fmt.Printf("  GPUs/node:  %d\n", spec.GPUsPerNode)
	fmt.Printf("  Nodes:      %d\n", spec.Nodes)
	fmt.Printf("  Placement:  %s\n", spec.Placement)
	fmt.Printf("  Shard init: %t\n", spec.ShardInit)
	fmt.Printf("  Log file:   %s\n", spec.LogFile)
	if spec.Image != "" {
		fmt.Printf("  Image:      %s\n", spec.Image)
	}
	fmt.Println()
	fmt.Printf("  %s\n", launch.String())
}
