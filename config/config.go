// Package config loads the pipeline configuration through viper.
//
// Values come from, in increasing precedence: Default(), the YAML file,
// and TITANIC_* environment variables (TITANIC_SERVER_ADDR for server.addr).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "TITANIC"

// LabelColumn is the target column of the dataset.
const LabelColumn = "Survived"

// Config represents the complete pipeline configuration
type Config struct {
	DataIngestion  DataIngestion  `mapstructure:"data_ingestion" yaml:"data_ingestion"`
	DataProcessing DataProcessing `mapstructure:"data_processing" yaml:"data_processing"`
	ModelTraining  ModelTraining  `mapstructure:"model_training" yaml:"model_training"`
	Paths          Paths          `mapstructure:"paths" yaml:"paths"`
	Server         Server         `mapstructure:"server" yaml:"server"`
	Logging        Logging        `mapstructure:"logging" yaml:"logging"`
	Store          Store          `mapstructure:"store" yaml:"store"`
}

// DataIngestion controls where the raw dataset comes from and how it is split
type DataIngestion struct {
	BucketName     string `mapstructure:"bucket_name" yaml:"bucket_name"`
	BucketFileName string `mapstructure:"bucket_file_name" yaml:"bucket_file_name"`
	// TrainRatio is the share of rows that go to the training split, in (0, 1)
	TrainRatio float64 `mapstructure:"train_ratio" yaml:"train_ratio"`
	Region     string  `mapstructure:"region" yaml:"region"`
	// Source is "s3" or "file". With "file", SourcePath is copied instead of downloading
	Source     string `mapstructure:"source" yaml:"source"`
	SourcePath string `mapstructure:"source_path" yaml:"source_path"`
	Seed       uint64 `mapstructure:"seed" yaml:"seed"`
}

// DataProcessing controls feature selection and class balancing
type DataProcessing struct {
	// SelectedFeatures lists the columns kept after preprocessing, label included
	SelectedFeatures []string `mapstructure:"selected_features" yaml:"selected_features"`
	SMOTEKNeighbors  int      `mapstructure:"smote_k_neighbors" yaml:"smote_k_neighbors"`
	SMOTESeed        uint64   `mapstructure:"smote_seed" yaml:"smote_seed"`
}

// IntRange is a half-open integer range [Low, High)
type IntRange struct {
	Low  int `mapstructure:"low" yaml:"low"`
	High int `mapstructure:"high" yaml:"high"`
}

// FloatRange is the interval [Loc, Loc+Scale]
type FloatRange struct {
	Loc   float64 `mapstructure:"loc" yaml:"loc"`
	Scale float64 `mapstructure:"scale" yaml:"scale"`
}

// ParamDistributions are the hyperparameter distributions of the randomized search
type ParamDistributions struct {
	NEstimators  IntRange   `mapstructure:"n_estimators" yaml:"n_estimators"`
	MaxDepth     IntRange   `mapstructure:"max_depth" yaml:"max_depth"`
	LearningRate FloatRange `mapstructure:"learning_rate" yaml:"learning_rate"`
	NumLeaves    IntRange   `mapstructure:"num_leaves" yaml:"num_leaves"`
	BoostingType []string   `mapstructure:"boosting_type" yaml:"boosting_type"`
}

// ModelTraining controls the hyperparameter search
type ModelTraining struct {
	NIter               int                `mapstructure:"n_iter" yaml:"n_iter"`
	CV                  int                `mapstructure:"cv" yaml:"cv"`
	Seed                uint64             `mapstructure:"seed" yaml:"seed"`
	Scoring             string             `mapstructure:"scoring" yaml:"scoring"`
	EarlyStoppingRounds int                `mapstructure:"early_stopping_rounds" yaml:"early_stopping_rounds"`
	ParamDistributions  ParamDistributions `mapstructure:"param_distributions" yaml:"param_distributions"`
}

// Paths lists every artifact location
type Paths struct {
	ArtifactsDir       string `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	RawDir             string `mapstructure:"raw_dir" yaml:"raw_dir"`
	RawFile            string `mapstructure:"raw_file" yaml:"raw_file"`
	TrainFile          string `mapstructure:"train_file" yaml:"train_file"`
	TestFile           string `mapstructure:"test_file" yaml:"test_file"`
	ProcessedDir       string `mapstructure:"processed_dir" yaml:"processed_dir"`
	ProcessedTrain     string `mapstructure:"processed_train" yaml:"processed_train"`
	ProcessedTest      string `mapstructure:"processed_test" yaml:"processed_test"`
	ModelOutputPath    string `mapstructure:"model_output_path" yaml:"model_output_path"`
	ReportPath         string `mapstructure:"report_path" yaml:"report_path"`
	ImportancePlotPath string `mapstructure:"importance_plot_path" yaml:"importance_plot_path"`
}

// Server controls the prediction web form
type Server struct {
	Addr               string  `mapstructure:"addr" yaml:"addr"`
	ModelPath          string  `mapstructure:"model_path" yaml:"model_path"`
	RateLimitRPS       float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	ReadTimeoutSec     int     `mapstructure:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec    int     `mapstructure:"write_timeout_sec" yaml:"write_timeout_sec"`
	ShutdownTimeoutSec int     `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	// WatchModel reloads the model when the artifact file changes
	WatchModel bool `mapstructure:"watch_model" yaml:"watch_model"`
}

// ReadTimeout returns the read timeout as a time.Duration
func (s Server) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the write timeout as a time.Duration
func (s Server) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a time.Duration
func (s Server) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

// Logging controls log output
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Store controls the training-run registry. An empty Path disables it
type Store struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// FeatureColumns returns SelectedFeatures without the label column
func (d DataProcessing) FeatureColumns() []string {
	out := make([]string, 0, len(d.SelectedFeatures))
	for _, f := range d.SelectedFeatures {
		if f != LabelColumn {
			out = append(out, f)
		}
	}
	return out
}

// DefaultFeatures is the ordered feature set the model is trained on
func DefaultFeatures() []string {
	return []string{
		"Pclass", "Sex", "Age", "Fare", "Embarked", "Familysize",
		"Isalone", "HasCabin", "Title", "Pclass_Fare", "Age_Fare",
	}
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		DataIngestion: DataIngestion{
			BucketName:     "titanic-dataset",
			BucketFileName: "Titanic-Dataset.csv",
			TrainRatio:     0.8,
			Region:         "us-east-1",
			Source:         "s3",
			Seed:           42,
		},
		DataProcessing: DataProcessing{
			SelectedFeatures: append(DefaultFeatures(), LabelColumn),
			SMOTEKNeighbors:  5,
			SMOTESeed:        42,
		},
		ModelTraining: ModelTraining{
			NIter:   4,
			CV:      2,
			Seed:    42,
			Scoring: "accuracy",
			ParamDistributions: ParamDistributions{
				NEstimators:  IntRange{Low: 100, High: 500},
				MaxDepth:     IntRange{Low: 5, High: 50},
				LearningRate: FloatRange{Loc: 0.01, Scale: 0.2},
				NumLeaves:    IntRange{Low: 20, High: 100},
				BoostingType: []string{"gbdt", "goss"},
			},
		},
		Paths: Paths{
			ArtifactsDir:       "artifacts",
			RawDir:             "artifacts/raw",
			RawFile:            "artifacts/raw/raw.csv",
			TrainFile:          "artifacts/raw/train.csv",
			TestFile:           "artifacts/raw/test.csv",
			ProcessedDir:       "artifacts/processed",
			ProcessedTrain:     "artifacts/processed/processed_train.csv",
			ProcessedTest:      "artifacts/processed/processed_test.csv",
			ModelOutputPath:    "artifacts/models/lgbm_model.gob",
			ReportPath:         "artifacts/models/report.yaml",
			ImportancePlotPath: "artifacts/models/feature_importance.png",
		},
		Server: Server{
			Addr:               "0.0.0.0:5000",
			ModelPath:          "artifacts/models/lgbm_model.gob",
			RateLimitRPS:       20,
			RateLimitBurst:     40,
			ReadTimeoutSec:     10,
			WriteTimeoutSec:    10,
			ShutdownTimeoutSec: 5,
			WatchModel:         true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Store: Store{
			Path: "artifacts/runs.db",
		},
	}
}

// SetDefaults registers every default value on v so that environment
// variables can override keys that are absent from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("data_ingestion.bucket_name", d.DataIngestion.BucketName)
	v.SetDefault("data_ingestion.bucket_file_name", d.DataIngestion.BucketFileName)
	v.SetDefault("data_ingestion.train_ratio", d.DataIngestion.TrainRatio)
	v.SetDefault("data_ingestion.region", d.DataIngestion.Region)
	v.SetDefault("data_ingestion.source", d.DataIngestion.Source)
	v.SetDefault("data_ingestion.source_path", d.DataIngestion.SourcePath)
	v.SetDefault("data_ingestion.seed", d.DataIngestion.Seed)

	v.SetDefault("data_processing.selected_features", d.DataProcessing.SelectedFeatures)
	v.SetDefault("data_processing.smote_k_neighbors", d.DataProcessing.SMOTEKNeighbors)
	v.SetDefault("data_processing.smote_seed", d.DataProcessing.SMOTESeed)

	v.SetDefault("model_training.n_iter", d.ModelTraining.NIter)
	v.SetDefault("model_training.cv", d.ModelTraining.CV)
	v.SetDefault("model_training.seed", d.ModelTraining.Seed)
	v.SetDefault("model_training.scoring", d.ModelTraining.Scoring)
	v.SetDefault("model_training.early_stopping_rounds", d.ModelTraining.EarlyStoppingRounds)
	pd := d.ModelTraining.ParamDistributions
	v.SetDefault("model_training.param_distributions.n_estimators.low", pd.NEstimators.Low)
	v.SetDefault("model_training.param_distributions.n_estimators.high", pd.NEstimators.High)
	v.SetDefault("model_training.param_distributions.max_depth.low", pd.MaxDepth.Low)
	v.SetDefault("model_training.param_distributions.max_depth.high", pd.MaxDepth.High)
	v.SetDefault("model_training.param_distributions.learning_rate.loc", pd.LearningRate.Loc)
	v.SetDefault("model_training.param_distributions.learning_rate.scale", pd.LearningRate.Scale)
	v.SetDefault("model_training.param_distributions.num_leaves.low", pd.NumLeaves.Low)
	v.SetDefault("model_training.param_distributions.num_leaves.high", pd.NumLeaves.High)
	v.SetDefault("model_training.param_distributions.boosting_type", pd.BoostingType)

	v.SetDefault("paths.artifacts_dir", d.Paths.ArtifactsDir)
	v.SetDefault("paths.raw_dir", d.Paths.RawDir)
	v.SetDefault("paths.raw_file", d.Paths.RawFile)
	v.SetDefault("paths.train_file", d.Paths.TrainFile)
	v.SetDefault("paths.test_file", d.Paths.TestFile)
	v.SetDefault("paths.processed_dir", d.Paths.ProcessedDir)
	v.SetDefault("paths.processed_train", d.Paths.ProcessedTrain)
	v.SetDefault("paths.processed_test", d.Paths.ProcessedTest)
	v.SetDefault("paths.model_output_path", d.Paths.ModelOutputPath)
	v.SetDefault("paths.report_path", d.Paths.ReportPath)
	v.SetDefault("paths.importance_plot_path", d.Paths.ImportancePlotPath)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.model_path", d.Server.ModelPath)
	v.SetDefault("server.rate_limit_rps", d.Server.RateLimitRPS)
	v.SetDefault("server.rate_limit_burst", d.Server.RateLimitBurst)
	v.SetDefault("server.read_timeout_sec", d.Server.ReadTimeoutSec)
	v.SetDefault("server.write_timeout_sec", d.Server.WriteTimeoutSec)
	v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)
	v.SetDefault("server.watch_model", d.Server.WatchModel)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("store.path", d.Store.Path)
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile may be empty.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return v
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LoadFile reads configFile (when non-empty) and returns the validated Config
func LoadFile(configFile string) (*Config, error) {
	v := NewViper(configFile)
	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return Load(v)
}
