// Package pipeline runs ingestion, processing and training one after another.
package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/ingestion"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
	"github.com/YuminosukeSato/titanic-survival/processing"
	"github.com/YuminosukeSato/titanic-survival/store"
	"github.com/YuminosukeSato/titanic-survival/training"
)

// Options carries collaborators that tests and the CLI may replace.
type Options struct {
	ObjectGetter ingestion.ObjectGetter
	Logger       log.Logger
}

// Ingest runs the ingestion stage.
func Ingest(ctx context.Context, cfg *config.Config, opts Options) error {
	ingOpts := []ingestion.Option{}
	if opts.ObjectGetter != nil {
		ingOpts = append(ingOpts, ingestion.WithObjectGetter(opts.ObjectGetter))
	}
	if opts.Logger != nil {
		ingOpts = append(ingOpts, ingestion.WithLogger(opts.Logger))
	}
	ing, err := ingestion.New(cfg.DataIngestion, cfg.Paths, ingOpts...)
	if err != nil {
		return err
	}
	return ing.Run(ctx)
}

// Process runs the processing stage.
func Process(cfg *config.Config, opts Options) error {
	p, err := processing.New(cfg.Paths.TrainFile, cfg.Paths.TestFile, cfg.Paths.ProcessedDir, cfg)
	if err != nil {
		return err
	}
	if opts.Logger != nil {
		p.WithLogger(opts.Logger)
	}
	return p.Process()
}

// Train runs the training stage. When cfg.Store.Path is set the run is
// recorded there.
func Train(ctx context.Context, cfg *config.Config, opts Options) (*training.Result, error) {
	trOpts := []training.Option{
		training.WithReportPath(cfg.Paths.ReportPath),
		training.WithImportancePlotPath(cfg.Paths.ImportancePlotPath),
	}
	if opts.Logger != nil {
		trOpts = append(trOpts, training.WithLogger(opts.Logger))
	}
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		trOpts = append(trOpts, training.WithRecorder(s))
	}
	mt := training.New(cfg.Paths.ProcessedTrain, cfg.Paths.ProcessedTest, cfg.Paths.ModelOutputPath,
		cfg.ModelTraining, trOpts...)
	return mt.Run(ctx)
}

// Run executes every stage in order and stops at the first error.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*training.Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("pipeline")
	}
	start := time.Now()
	logger.Info("Training pipeline started")

	if err := Ingest(ctx, cfg, opts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Process(cfg, opts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := Train(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("Training pipeline completed",
		log.RunIDKey, res.RunID,
		log.AccuracyKey, res.Metrics.Accuracy,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}
