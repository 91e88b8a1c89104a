package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/titanic-survival/server"
)

var predictModelPath string

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict survival for one passenger given as flags",
	Example: `  titanic predict --Pclass 1 --Sex 1 --Age 38 --Fare 71.28 --Embarked 0 \
    --Familysize 2 --Isalone 0 --HasCabin 1 --Title 2 --Pclass_Fare 71.28 --Age_Fare 2708.8`,
	RunE: runPredict,
}

func init() {
	for _, field := range server.FeatureFields {
		name := server.FeatureName(field)
		predictCmd.Flags().Float64(name, 0, name+" feature value")
		_ = predictCmd.MarkFlagRequired(name)
	}
	predictCmd.Flags().StringVar(&predictModelPath, "model", "", "model artifact (default from config)")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	path := predictModelPath
	if path == "" {
		path = cfg.Server.ModelPath
	}
	holder := server.NewModelHolder()
	if err := holder.Load(path); err != nil {
		return err
	}

	features := make([]float64, len(server.FeatureFields))
	for i, field := range server.FeatureFields {
		v, err := cmd.Flags().GetFloat64(server.FeatureName(field))
		if err != nil {
			return err
		}
		features[i] = v
	}
	pred, err := holder.Predict(features)
	if err != nil {
		return err
	}

	verdict := "Did not survive"
	if pred.Label == 1 {
		verdict = "Survived"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d), probability %s\n",
		verdict, pred.Label, strconv.FormatFloat(pred.Probability, 'f', 3, 64))
	return nil
}
