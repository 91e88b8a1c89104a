// Package ingestion downloads the raw passenger CSV and splits it into
// stratified train and test files.
package ingestion

import (
	"context"
	"os"
	"time"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/frame"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
	"github.com/YuminosukeSato/titanic-survival/sklearn/model_selection"
)

// SourceS3 and SourceFile are the accepted values of config.DataIngestion.Source.
const (
	SourceS3   = "s3"
	SourceFile = "file"
)

// DataIngestion fetches the raw dataset and writes the train/test split.
type DataIngestion struct {
	BucketName string
	FileName   string
	TrainRatio float64

	source     string
	sourcePath string
	region     string
	seed       uint64
	paths      config.Paths
	client     ObjectGetter
	logger     log.Logger
}

// Option configures a DataIngestion.
type Option func(*DataIngestion)

// WithObjectGetter replaces the S3 client used by DownloadCSV.
func WithObjectGetter(client ObjectGetter) Option {
	return func(d *DataIngestion) { d.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(d *DataIngestion) { d.logger = logger }
}

// New creates the raw directory and returns a DataIngestion for cfg.
func New(cfg config.DataIngestion, paths config.Paths, opts ...Option) (*DataIngestion, error) {
	d := &DataIngestion{
		BucketName: cfg.BucketName,
		FileName:   cfg.BucketFileName,
		TrainRatio: cfg.TrainRatio,
		source:     cfg.Source,
		sourcePath: cfg.SourcePath,
		region:     cfg.Region,
		seed:       cfg.Seed,
		paths:      paths,
	}
	if d.source == "" {
		d.source = SourceS3
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.GetLoggerWithName("ingestion")
	}
	d.logger = d.logger.With(log.StageKey, log.StageIngestion)

	if err := os.MkdirAll(paths.RawDir, 0o755); err != nil {
		return nil, perrors.Wrapf(err, "create raw directory %s", paths.RawDir)
	}
	d.logger.Info("Data ingestion started",
		log.BucketKey, d.BucketName,
		log.ObjectKey, d.FileName,
	)
	return d, nil
}

// DownloadCSV writes the raw dataset to paths.RawFile, from S3 or from the
// configured local file.
func (d *DataIngestion) DownloadCSV(ctx context.Context) error {
	var (
		n   int64
		err error
	)
	switch d.source {
	case SourceFile:
		n, err = copyFile(d.sourcePath, d.paths.RawFile)
	case SourceS3:
		client := d.client
		if client == nil {
			client, err = NewS3Client(ctx, d.region)
			if err != nil {
				break
			}
			d.client = client
		}
		n, err = downloadObject(ctx, client, d.BucketName, d.FileName, d.paths.RawFile)
	default:
		err = perrors.NewValidationError("source", "must be s3 or file", d.source)
	}
	if err != nil {
		d.logger.Error("Error while downloading csv file", err)
		return perrors.NewPipelineError(log.StageIngestion, "Failed to Download csv", err)
	}
	d.logger.Info("Raw file downloaded", log.PathKey, d.paths.RawFile, log.BytesKey, n)
	return nil
}

// SplitData reads the raw file and writes a split stratified on the label
// column to paths.TrainFile and paths.TestFile.
func (d *DataIngestion) SplitData() error {
	if err := d.splitData(); err != nil {
		d.logger.Error("Error while splitting data", err)
		return perrors.NewPipelineError(log.StageIngestion, "Failed to split data into training and test sets", err)
	}
	return nil
}

func (d *DataIngestion) splitData() error {
	d.logger.Info("Start the splitting process")
	data, err := frame.ReadCSVFile(d.paths.RawFile)
	if err != nil {
		return err
	}
	labels, err := data.Float(config.LabelColumn)
	if err != nil {
		return err
	}
	trainRows, testRows, err := model_selection.TrainTestSplit(labels, d.TrainRatio, d.seed, true)
	if err != nil {
		return err
	}

	train, err := data.Subset(trainRows)
	if err != nil {
		return err
	}
	test, err := data.Subset(testRows)
	if err != nil {
		return err
	}
	if err := train.WriteCSVFile(d.paths.TrainFile); err != nil {
		return err
	}
	if err := test.WriteCSVFile(d.paths.TestFile); err != nil {
		return err
	}
	d.logger.Info("Train data saved", log.PathKey, d.paths.TrainFile, log.SamplesKey, train.Len())
	d.logger.Info("Test data saved", log.PathKey, d.paths.TestFile, log.SamplesKey, test.Len())
	return nil
}

// Run downloads and splits the dataset.
func (d *DataIngestion) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		d.logger.Info("Data ingestion completed", log.DurationMsKey, time.Since(start).Milliseconds())
	}()

	d.logger.Info("Starting data ingestion process")
	if err = d.DownloadCSV(ctx); err == nil {
		err = d.SplitData()
	}
	if err != nil {
		d.logger.Error("Error while ingesting data", err)
		return perrors.NewPipelineError(log.StageIngestion, "Failed to ingest data", err)
	}
	d.logger.Info("Data ingestion completed successfully")
	return nil
}
