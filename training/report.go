package training

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/titanic-survival/metrics"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/sklearn/lightgbm"
)

// FeatureImportance is the split count and total gain of one feature.
type FeatureImportance struct {
	Feature string  `yaml:"feature"`
	Split   float64 `yaml:"split"`
	Gain    float64 `yaml:"gain"`
}

// Importances returns one entry per feature by descending gain. Ties keep
// column order.
func Importances(clf *lightgbm.LGBMClassifier, names []string) ([]FeatureImportance, error) {
	split, err := clf.FeatureImportances("split")
	if err != nil {
		return nil, err
	}
	gain, err := clf.FeatureImportances("gain")
	if err != nil {
		return nil, err
	}
	out := make([]FeatureImportance, len(split))
	for i := range split {
		name := lightgbm.DefaultFeatureName(i)
		if i < len(names) {
			name = names[i]
		}
		out[i] = FeatureImportance{Feature: name, Split: split[i], Gain: gain[i]}
	}
	slices.SortStableFunc(out, func(a, b FeatureImportance) int {
		switch {
		case a.Gain > b.Gain:
			return -1
		case a.Gain < b.Gain:
			return 1
		}
		return 0
	})
	return out, nil
}

// CandidateReport is one row of the search results in the report.
type CandidateReport struct {
	Rank      int            `yaml:"rank"`
	MeanScore float64        `yaml:"mean_score"`
	StdScore  float64        `yaml:"std_score"`
	Params    map[string]any `yaml:"params"`
}

// Report is the YAML document written after training.
type Report struct {
	RunID       string              `yaml:"run_id"`
	StartedAt   time.Time           `yaml:"started_at"`
	DurationMs  int64               `yaml:"duration_ms"`
	ModelPath   string              `yaml:"model_path"`
	Trees       int                 `yaml:"trees"`
	BestCVScore float64             `yaml:"best_cv_score"`
	BestParams  map[string]any      `yaml:"best_params"`
	Metrics     metrics.Report      `yaml:"metrics"`
	Importance  []FeatureImportance `yaml:"feature_importance"`
	Candidates  []CandidateReport   `yaml:"candidates"`
}

// NewReport builds the report of a finished run.
func NewReport(res *Result, modelPath string) Report {
	r := Report{
		RunID:       res.RunID,
		StartedAt:   res.StartedAt.UTC(),
		DurationMs:  res.Duration.Milliseconds(),
		ModelPath:   modelPath,
		BestCVScore: res.BestCVScore,
		BestParams:  res.BestParams,
		Metrics:     res.Metrics,
		Importance:  res.Importance,
	}
	if res.Model != nil && res.Model.Model != nil {
		r.Trees = len(res.Model.Model.Trees)
	}
	for _, c := range res.Candidates {
		r.Candidates = append(r.Candidates, CandidateReport{
			Rank:      c.Rank,
			MeanScore: c.MeanScore,
			StdScore:  c.StdScore,
			Params:    c.Params,
		})
	}
	slices.SortStableFunc(r.Candidates, func(a, b CandidateReport) int { return a.Rank - b.Rank })
	return r
}

// WriteReport writes r as YAML to path.
func WriteReport(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perrors.Wrapf(err, "create directory for %s", path)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return perrors.Wrap(err, "encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return perrors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ReadReport reads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, perrors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, perrors.Wrapf(err, "decode %s", path)
	}
	return r, nil
}

// PlotImportance draws the gain of each feature as a bar chart. The image
// format follows the file extension (png, svg, pdf...).
func PlotImportance(path string, importance []FeatureImportance) error {
	if len(importance) == 0 {
		return perrors.ErrEmptyData
	}
	p := plot.New()
	p.Title.Text = "Feature importance (gain)"
	p.Y.Label.Text = "Total gain"

	values := make(plotter.Values, len(importance))
	names := make([]string, len(importance))
	for i, fi := range importance {
		values[i] = fi.Gain
		names[i] = fi.Feature
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return perrors.Wrap(err, "build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perrors.Wrapf(err, "create directory for %s", path)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return perrors.Wrapf(err, "save %s", path)
	}
	return nil
}
