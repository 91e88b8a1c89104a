package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "data_ingestion.train_ratio")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"json", "console"}
}

// ValidSources returns the list of valid raw data sources
func ValidSources() []string {
	return []string{"s3", "file"}
}

// ValidBoostingTypes returns the boosting types the classifier implements
func ValidBoostingTypes() []string {
	return []string{"gbdt", "goss"}
}

// ValidScorings returns the scoring names accepted by the search
func ValidScorings() []string {
	return []string{"accuracy", "roc_auc", "f1"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateIngestion()...)
	errs = append(errs, c.validateProcessing()...)
	errs = append(errs, c.validateTraining()...)
	errs = append(errs, c.validatePaths()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateIngestion() []ValidationError {
	var errs []ValidationError
	d := c.DataIngestion

	if d.TrainRatio <= 0 || d.TrainRatio >= 1 {
		errs = append(errs, ValidationError{
			Field:   "data_ingestion.train_ratio",
			Value:   d.TrainRatio,
			Message: "must be strictly between 0 and 1",
		})
	}
	if !slices.Contains(ValidSources(), d.Source) {
		errs = append(errs, ValidationError{
			Field:   "data_ingestion.source",
			Value:   d.Source,
			Message: fmt.Sprintf("must be one of %v", ValidSources()),
		})
	}
	if d.Source == "s3" {
		if d.BucketName == "" {
			errs = append(errs, ValidationError{Field: "data_ingestion.bucket_name", Value: d.BucketName, Message: "is required when source is s3"})
		}
		if d.BucketFileName == "" {
			errs = append(errs, ValidationError{Field: "data_ingestion.bucket_file_name", Value: d.BucketFileName, Message: "is required when source is s3"})
		}
	}
	if d.Source == "file" && d.SourcePath == "" {
		errs = append(errs, ValidationError{Field: "data_ingestion.source_path", Value: d.SourcePath, Message: "is required when source is file"})
	}
	return errs
}

func (c *Config) validateProcessing() []ValidationError {
	var errs []ValidationError
	d := c.DataProcessing

	if !slices.Contains(d.SelectedFeatures, LabelColumn) {
		errs = append(errs, ValidationError{
			Field:   "data_processing.selected_features",
			Value:   d.SelectedFeatures,
			Message: "must include the label column " + LabelColumn,
		})
	}
	if len(d.FeatureColumns()) == 0 {
		errs = append(errs, ValidationError{
			Field:   "data_processing.selected_features",
			Value:   d.SelectedFeatures,
			Message: "must include at least one feature",
		})
	}
	if d.SMOTEKNeighbors < 1 {
		errs = append(errs, ValidationError{
			Field:   "data_processing.smote_k_neighbors",
			Value:   d.SMOTEKNeighbors,
			Message: "must be at least 1",
		})
	}
	return errs
}

func (c *Config) validateTraining() []ValidationError {
	var errs []ValidationError
	m := c.ModelTraining

	if m.NIter < 1 {
		errs = append(errs, ValidationError{Field: "model_training.n_iter", Value: m.NIter, Message: "must be at least 1"})
	}
	if m.CV < 2 {
		errs = append(errs, ValidationError{Field: "model_training.cv", Value: m.CV, Message: "must be at least 2"})
	}
	if !slices.Contains(ValidScorings(), m.Scoring) {
		errs = append(errs, ValidationError{Field: "model_training.scoring", Value: m.Scoring, Message: fmt.Sprintf("must be one of %v", ValidScorings())})
	}
	if m.EarlyStoppingRounds < 0 {
		errs = append(errs, ValidationError{Field: "model_training.early_stopping_rounds", Value: m.EarlyStoppingRounds, Message: "must not be negative"})
	}

	pd := m.ParamDistributions
	ranges := []struct {
		field string
		r     IntRange
		min   int
	}{
		{"model_training.param_distributions.n_estimators", pd.NEstimators, 1},
		{"model_training.param_distributions.max_depth", pd.MaxDepth, 1},
		{"model_training.param_distributions.num_leaves", pd.NumLeaves, 2},
	}
	for _, r := range ranges {
		if r.r.Low < r.min || r.r.High <= r.r.Low {
			errs = append(errs, ValidationError{
				Field:   r.field,
				Value:   r.r,
				Message: fmt.Sprintf("must satisfy %d <= low < high", r.min),
			})
		}
	}
	if pd.LearningRate.Loc <= 0 || pd.LearningRate.Scale < 0 {
		errs = append(errs, ValidationError{
			Field:   "model_training.param_distributions.learning_rate",
			Value:   pd.LearningRate,
			Message: "loc must be positive and scale non-negative",
		})
	}
	if len(pd.BoostingType) == 0 {
		errs = append(errs, ValidationError{Field: "model_training.param_distributions.boosting_type", Value: pd.BoostingType, Message: "must not be empty"})
	}
	for _, bt := range pd.BoostingType {
		if !slices.Contains(ValidBoostingTypes(), bt) {
			errs = append(errs, ValidationError{
				Field:   "model_training.param_distributions.boosting_type",
				Value:   bt,
				Message: fmt.Sprintf("must be one of %v", ValidBoostingTypes()),
			})
		}
	}
	return errs
}

func (c *Config) validatePaths() []ValidationError {
	var errs []ValidationError
	p := c.Paths
	required := []struct {
		field string
		value string
	}{
		{"paths.raw_dir", p.RawDir},
		{"paths.raw_file", p.RawFile},
		{"paths.train_file", p.TrainFile},
		{"paths.test_file", p.TestFile},
		{"paths.processed_dir", p.ProcessedDir},
		{"paths.processed_train", p.ProcessedTrain},
		{"paths.processed_test", p.ProcessedTest},
		{"paths.model_output_path", p.ModelOutputPath},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, ValidationError{Field: r.field, Value: r.value, Message: "must not be empty"})
		}
	}
	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError
	s := c.Server

	if s.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Value: s.Addr, Message: "must not be empty"})
	}
	if s.RateLimitRPS <= 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_rps", Value: s.RateLimitRPS, Message: "must be positive"})
	}
	if s.RateLimitBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_limit_burst", Value: s.RateLimitBurst, Message: "must be at least 1"})
	}
	if s.ReadTimeoutSec < 0 || s.WriteTimeoutSec < 0 || s.ShutdownTimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "server.*_timeout_sec", Value: []int{s.ReadTimeoutSec, s.WriteTimeoutSec, s.ShutdownTimeoutSec}, Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of %v", ValidLogFormats()),
		})
	}
	return errs
}
