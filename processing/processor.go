// Package processing turns the raw train/test CSVs into the numeric feature
// tables the classifier is trained on.
package processing

import (
	"os"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/frame"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
	"github.com/YuminosukeSato/titanic-survival/preprocessing"
	"github.com/YuminosukeSato/titanic-survival/sklearn/oversampling"
)

// RequiredColumns are the raw columns PreprocessData reads.
var RequiredColumns = []string{"Age", "Embarked", "Fare", "Sex", "SibSp", "Parch", "Cabin", "Name", "Pclass"}

// DataProcessor runs feature engineering and class balancing.
type DataProcessor struct {
	TrainPath    string
	TestPath     string
	ProcessedDir string

	cfg    *config.Config
	logger log.Logger
}

// New creates processedDir and returns a DataProcessor.
func New(trainPath, testPath, processedDir string, cfg *config.Config) (*DataProcessor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return nil, perrors.Wrapf(err, "create processed directory %s", processedDir)
	}
	return &DataProcessor{
		TrainPath:    trainPath,
		TestPath:     testPath,
		ProcessedDir: processedDir,
		cfg:          cfg,
		logger:       log.GetLoggerWithName("processing").With(log.StageKey, log.StageProcessing),
	}, nil
}

// WithLogger replaces the logger.
func (p *DataProcessor) WithLogger(logger log.Logger) *DataProcessor {
	p.logger = logger.With(log.StageKey, log.StageProcessing)
	return p
}

// PreprocessData fills missing values, encodes categorical columns and adds
// the engineered features. The input frame is not modified and the row
// count is preserved.
func (p *DataProcessor) PreprocessData(f *frame.Frame) (*frame.Frame, error) {
	out, err := p.preprocess(f)
	if err != nil {
		p.logger.Error("Error while preprocessing data", err)
		return nil, perrors.NewPipelineError(log.StageProcessing, "Error while preprocessing data", err)
	}
	p.logger.Info("Data Preprocessing done...", log.SamplesKey, out.Len())
	return out, nil
}

func (p *DataProcessor) preprocess(in *frame.Frame) (*frame.Frame, error) {
	for _, c := range RequiredColumns {
		if !in.HasColumn(c) {
			return nil, perrors.Wrapf(perrors.ErrMissingColumn, "column %q", c)
		}
	}
	f, err := in.Select(in.Columns()...)
	if err != nil {
		return nil, err
	}

	age, err := imputeMedian(f, "Age")
	if err != nil {
		return nil, err
	}
	fare, err := imputeMedian(f, "Fare")
	if err != nil {
		return nil, err
	}

	embarked, _ := f.Column("Embarked")
	embarked, err = preprocessing.NewCategoricalImputer().FitTransform(embarked)
	if err != nil {
		return nil, perrors.Wrap(err, "impute Embarked")
	}
	if err := f.SetFloat("Embarked", preprocessing.NewCategoryCoder().FitTransform(embarked)); err != nil {
		return nil, err
	}

	sex, _ := f.Column("Sex")
	if err := f.SetFloat("Sex", sexEncoder.Transform(sex)); err != nil {
		return nil, err
	}

	sibsp, _ := f.Float("SibSp")
	parch, _ := f.Float("Parch")
	familySize := FamilySize(sibsp, parch)
	cabins, _ := f.Column("Cabin")
	names, _ := f.Column("Name")
	pclass, _ := f.Float("Pclass")

	derived := []struct {
		name   string
		values []float64
	}{
		{"Familysize", familySize},
		{"Isalone", IsAlone(familySize)},
		{"HasCabin", HasCabin(cabins)},
		{"Title", TitleCodes(names)},
		{"Pclass_Fare", Product(pclass, fare)},
		{"Age_Fare", Product(age, fare)},
	}
	for _, d := range derived {
		if err := f.SetFloat(d.name, d.values); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// imputeMedian replaces the missing cells of a numeric column with its
// median and returns the filled values.
func imputeMedian(f *frame.Frame, column string) ([]float64, error) {
	values, err := f.Float(column)
	if err != nil {
		return nil, err
	}
	filled, err := preprocessing.NewSimpleImputer(preprocessing.StrategyMedian).FitTransform(values)
	if err != nil {
		return nil, perrors.Wrapf(err, "impute %s", column)
	}
	if err := f.SetFloat(column, filled); err != nil {
		return nil, err
	}
	return filled, nil
}

// HandleImbalanceData oversamples the minority class with SMOTE and returns
// a frame holding the feature columns followed by the label column.
func (p *DataProcessor) HandleImbalanceData(f *frame.Frame) (*frame.Frame, error) {
	out, err := p.balance(f)
	if err != nil {
		p.logger.Error("Error during balancing data step", err)
		return nil, perrors.NewPipelineError(log.StageProcessing, "Error while balancing data", err)
	}
	p.logger.Info("Data balanced successfully",
		log.SamplesKey, out.Len(),
		"data.samples_before", f.Len(),
	)
	return out, nil
}

func (p *DataProcessor) balance(f *frame.Frame) (*frame.Frame, error) {
	features := p.cfg.DataProcessing.FeatureColumns()
	X, err := f.ToMatrix(features)
	if err != nil {
		return nil, err
	}
	y, err := f.LabelVector(config.LabelColumn)
	if err != nil {
		return nil, err
	}

	smote := oversampling.NewSMOTE().
		WithKNeighbors(p.cfg.DataProcessing.SMOTEKNeighbors).
		WithRandomState(p.cfg.DataProcessing.SMOTESeed)
	smote.Logger = p.logger
	Xres, yres, err := smote.FitResample(X, y.RawVector().Data)
	if err != nil {
		return nil, err
	}

	out, err := frame.FromMatrix(features, Xres)
	if err != nil {
		return nil, err
	}
	if err := out.SetFloat(config.LabelColumn, yres); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveData writes f to path without an index column.
func (p *DataProcessor) SaveData(f *frame.Frame, path string) error {
	p.logger.Info("Saving data in processed folder", log.PathKey, path)
	if err := f.WriteCSVFile(path); err != nil {
		p.logger.Error("Error during saving data", err)
		return perrors.NewPipelineError(log.StageProcessing, "Error during saving data ", err)
	}
	p.logger.Info("Data saved successfully", log.PathKey, path, log.SamplesKey, f.Len())
	return nil
}

// Process reads both splits, engineers features, keeps the selected
// columns, balances the train split only and writes both results.
func (p *DataProcessor) Process() error {
	if err := p.process(); err != nil {
		p.logger.Error("Error during preprocessing pipeline", err)
		return perrors.NewPipelineError(log.StageProcessing, "Error during preprocessing pipeline", err)
	}
	p.logger.Info("Data processing completed successfully")
	return nil
}

func (p *DataProcessor) process() error {
	p.logger.Info("Loading data from raw directory",
		"file.train", p.TrainPath,
		"file.test", p.TestPath,
	)
	train, err := frame.ReadCSVFile(p.TrainPath)
	if err != nil {
		return err
	}
	test, err := frame.ReadCSVFile(p.TestPath)
	if err != nil {
		return err
	}

	if train, err = p.PreprocessData(train); err != nil {
		return err
	}
	if test, err = p.PreprocessData(test); err != nil {
		return err
	}

	selected := p.cfg.DataProcessing.SelectedFeatures
	if train, err = train.Select(selected...); err != nil {
		return err
	}
	if test, err = test.Select(selected...); err != nil {
		return err
	}

	if train, err = p.HandleImbalanceData(train); err != nil {
		return err
	}

	if err := p.SaveData(train, p.cfg.Paths.ProcessedTrain); err != nil {
		return err
	}
	return p.SaveData(test, p.cfg.Paths.ProcessedTest)
}
