// Package cli — list.go implements the "distrun list" command.
//
// The list command displays containerized training runs by querying Docker
// for containers with the "distrun.managed-by=distrun" label. Runs are
// presented as a text table or JSON array, depending on the --json flag.
//
// An optional --status flag filters runs by lifecycle state (running,
// exited, or all). Host launches are not listed here — they block in the
// foreground and leave only their log and manifest behind.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/distrun/internal/docker"
	"github.com/mmr-tortoise/distrun/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// status filters runs by their lifecycle state.
	// Valid values: "running", "exited", "all" (default).
	status string
}

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List containerized training runs",
		Long: `List training runs launched with --image and their status.

Each run is shown with its name, distribution plan, parallelism shape,
lifecycle status, and age.

Examples:
  distrun list
  distrun list --status running
  distrun list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "all",
		"Filter by status: running, exited, all")

	return cmd
}

// runList connects to Docker, discovers managed runs, applies the status
// filter, and outputs results in the appropriate format.
func runList(ctx context.Context, flags *listFlags) error {
	// Validate the --status flag value up front. The parsed form is kept
	// so filtering below matches however the user cased the flag.
	var statusFilter model.RunStatus
	if flags.status != "all" {
		parsed, err := model.ParseRunStatus(flags.status)
		if err != nil {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid status filter %q: valid values are running, exited, all", flags.status))
		}
		statusFilter = parsed
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	// defer ensures the Docker client is closed when this function returns,
	// releasing the underlying HTTP connection and resources.
	defer func() { _ = cli.Close() }()

	runs, err := docker.ListManagedRuns(ctx, cli)
	if err != nil {
		return err
	}
	debugLog("found managed runs", "count", len(runs))

	// Sort by name for consistent output.
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Name < runs[j].Name
	})

	if statusFilter != "" {
		runs = filterRunsByStatus(runs, statusFilter)
	}

	printListResult(runs)
	return nil
}

// filterRunsByStatus returns the runs whose lifecycle state matches the
// given status. Comparison is on the parsed RunStatus, not the raw flag
// text, so flag casing never affects the result.
func filterRunsByStatus(runs []*model.TrainingRun, status model.RunStatus) []*model.TrainingRun {
	filtered := make([]*model.TrainingRun, 0, len(runs))
	for _, run := range runs {
		if run.Status == status {
			filtered = append(filtered, run)
		}
	}
	return filtered
}

// listRunJSON is the JSON output structure for a single run
// in the list command.
type listRunJSON struct {
	Name        string `json:"name"`
	DistPlan    string `json:"distplan"`
	TPDegree    int    `json:"tpDegree"`
	GPUsPerNode int    `json:"gpusPerNode"`
	Placement   string `json:"placement"`
	Status      string `json:"status"`
	ContainerID string `json:"containerId"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// printListResult outputs the run list in text or JSON format,
// depending on the global --json flag.
func printListResult(runs []*model.TrainingRun) {
	if IsJSONOutput() {
		printListResultJSON(runs)
	} else {
		printListResultText(runs)
	}
}

// printListResultJSON outputs the run list as structured JSON.
// The top-level key is "runs" containing an array of run objects.
func printListResultJSON(runs []*model.TrainingRun) {
	type resultJSON struct {
		Runs []listRunJSON `json:"runs"`
	}

	// Empty slice instead of nil so JSON output shows [] instead of null
	// when no runs are found.
	result := resultJSON{Runs: make([]listRunJSON, 0, len(runs))}

	for _, run := range runs {
		entry := listRunJSON{
			Name:        run.Name,
			DistPlan:    run.DistPlan.String(),
			TPDegree:    run.TPDegree,
			GPUsPerNode: run.GPUsPerNode,
			Placement:   run.Placement.String(),
			Status:      run.Status.String(),
			ContainerID: TruncateID(run.ContainerID),
		}
		if !run.CreatedAt.IsZero() {
			entry.CreatedAt = run.CreatedAt.UTC().Format(time.RFC3339)
		}
		result.Runs = append(result.Runs, entry)
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the run list as a human-readable text table
// with aligned columns.
//
// The table format is:
//
//	NAME             PLAN         TP  GPUS  PLACEMENT  STATUS    AGE
//	gpt-demo         colossalai   2   4     auto       running   2h
//	nightly-zero2    zero2        1   8     cpu        exited    3d
func printListResultText(runs []*model.TrainingRun) {
	if len(runs) == 0 {
		fmt.Println("No training runs found.")
		return
	}

	fmt.Printf("%-20s %-12s %-4s %-5s %-10s %-9s %s\n",
		"NAME", "PLAN", "TP", "GPUS", "PLACEMENT", "STATUS", "AGE")

	for _, run := range runs {
		fmt.Printf("%-20s %-12s %-4d %-5d %-10s %-9s %s\n",
			run.Name,
			run.DistPlan.String(),
			run.TPDegree,
			run.GPUsPerNode,
			run.Placement.String(),
			run.Status.String(),
			FormatAge(run.CreatedAt, time.Now()),
		)
	}
}

// TruncateID shortens a container ID to the 12-character form Docker
// itself displays. Shorter IDs pass through unchanged.
//
// This function is exported for testing purposes (tested in list_test.go).
func TruncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatAge renders the elapsed time since createdAt in the largest
// whole unit, docker-ps style. A zero createdAt (an older container
// without the timestamp label) renders as "-".
//
// Example:
//
//	90 seconds  → "1m"
//	26 hours    → "1d"
//	zero time   → "-"
func FormatAge(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return "-"
	}

	age := now.Sub(createdAt)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}
