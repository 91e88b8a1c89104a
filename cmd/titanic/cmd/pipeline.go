package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/titanic-survival/pipeline"
	"github.com/YuminosukeSato/titanic-survival/training"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download the raw dataset and split it into train and test CSVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.Ingest(cmd.Context(), cfg, pipeline.Options{})
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Preprocess both splits and balance the training split with SMOTE",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.Process(cfg, pipeline.Options{})
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Tune, evaluate and save the classifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := pipeline.Train(cmd.Context(), cfg, pipeline.Options{})
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingestion, processing and training in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := pipeline.Run(cmd.Context(), cfg, pipeline.Options{})
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd, processCmd, trainCmd, runCmd)
}

func printResult(w io.Writer, res *training.Result) {
	fmt.Fprintf(w, "Run %s finished in %s\n", res.RunID, res.Duration.Round(1e6))
	fmt.Fprintf(w, "Best CV score: %.4f\n", res.BestCVScore)

	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	table.Append("accuracy", formatMetric(res.Metrics.Accuracy))
	table.Append("precision", formatMetric(res.Metrics.Precision))
	table.Append("recall", formatMetric(res.Metrics.Recall))
	table.Append("f1", formatMetric(res.Metrics.F1))
	table.Append("roc_auc", formatMetric(res.Metrics.ROCAUC))
	table.Render()

	params := tablewriter.NewWriter(w)
	params.Header("Parameter", "Value")
	for _, name := range sortedKeys(res.BestParams) {
		params.Append(name, fmt.Sprint(res.BestParams[name]))
	}
	params.Render()
}

func formatMetric(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
