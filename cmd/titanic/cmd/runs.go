package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/store"
)

var (
	runsLimit  int
	runsOutput string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded training runs, newest first",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show (0 for all)")
	runsCmd.Flags().StringVar(&runsOutput, "output", "table", "output format: table or json")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if runsOutput == "json" {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return perrors.Wrap(err, "marshal runs")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Run ID", "Started", "Duration", "CV", "Accuracy", "F1", "ROC AUC", "Model")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond).String(),
			formatMetric(r.BestCVScore),
			formatMetric(r.Accuracy),
			formatMetric(r.F1),
			formatMetric(r.ROCAUC),
			r.ModelPath,
		)
	}
	table.Render()
	return nil
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
