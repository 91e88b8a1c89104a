package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/frame"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

const samplePath = "../testdata/titanic_sample.csv"

type fakeS3 struct {
	body   []byte
	err    error
	bucket string
	key    string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func testPaths(dir string) config.Paths {
	raw := filepath.Join(dir, "raw")
	return config.Paths{
		RawDir:    raw,
		RawFile:   filepath.Join(raw, "raw.csv"),
		TrainFile: filepath.Join(raw, "train.csv"),
		TestFile:  filepath.Join(raw, "test.csv"),
	}
}

func testConfig() config.DataIngestion {
	return config.DataIngestion{
		BucketName:     "titanic-dataset",
		BucketFileName: "Titanic-Dataset.csv",
		TrainRatio:     0.8,
		Source:         SourceS3,
		Seed:           42,
	}
}

func sampleBytes(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(samplePath)
	require.NoError(t, err)
	return data
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)

	d, err := New(testConfig(), paths, WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, "titanic-dataset", d.BucketName)
	assert.Equal(t, "Titanic-Dataset.csv", d.FileName)
	assert.Equal(t, 0.8, d.TrainRatio)
	assert.DirExists(t, paths.RawDir)
	assert.True(t, logger.ContainsMessage("Data ingestion started"))
	assert.True(t, logger.ContainsField(log.BucketKey, "titanic-dataset"))
}

func TestDownloadCSVFromS3(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)
	client := &fakeS3{body: sampleBytes(t)}

	d, err := New(testConfig(), paths, WithLogger(logger), WithObjectGetter(client))
	require.NoError(t, err)
	require.NoError(t, d.DownloadCSV(context.Background()))

	assert.Equal(t, "titanic-dataset", client.bucket)
	assert.Equal(t, "Titanic-Dataset.csv", client.key)
	got, err := os.ReadFile(paths.RawFile)
	require.NoError(t, err)
	assert.Equal(t, client.body, got)
}

func TestDownloadCSVFromFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Source = SourceFile
	cfg.SourcePath = samplePath
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)

	d, err := New(cfg, paths, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, d.DownloadCSV(context.Background()))

	got, err := os.ReadFile(paths.RawFile)
	require.NoError(t, err)
	assert.Equal(t, sampleBytes(t), got)
}

func TestDownloadCSVFailure(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)
	cause := errors.New("access denied")

	d, err := New(testConfig(), paths, WithLogger(logger), WithObjectGetter(&fakeS3{err: cause}))
	require.NoError(t, err)

	err = d.DownloadCSV(context.Background())
	require.Error(t, err)
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Failed to Download csv", pe.Message)
	assert.ErrorIs(t, err, cause)
	assert.NoFileExists(t, paths.RawFile)
}

func TestSplitData(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)

	d, err := New(testConfig(), paths, WithLogger(logger), WithObjectGetter(&fakeS3{body: sampleBytes(t)}))
	require.NoError(t, err)
	require.NoError(t, d.DownloadCSV(context.Background()))
	require.NoError(t, d.SplitData())

	raw, err := frame.ReadCSVFile(paths.RawFile)
	require.NoError(t, err)
	train, err := frame.ReadCSVFile(paths.TrainFile)
	require.NoError(t, err)
	test, err := frame.ReadCSVFile(paths.TestFile)
	require.NoError(t, err)

	// 62 rows, floor(0.8*62) = 49 train rows.
	assert.Equal(t, 49, train.Len())
	assert.Equal(t, 13, test.Len())
	assert.Equal(t, raw.Columns(), train.Columns())
	assert.Equal(t, raw.Columns(), test.Columns())

	survived := func(f *frame.Frame) int {
		ys, err := f.Float(config.LabelColumn)
		require.NoError(t, err)
		n := 0
		for _, y := range ys {
			if y == 1 {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 28, survived(train)+survived(test))
	assert.InDelta(t, 28.0/62.0, float64(survived(train))/49.0, 0.02)

	ids := map[string]bool{}
	for _, f := range []*frame.Frame{train, test} {
		col, err := f.Column("PassengerId")
		require.NoError(t, err)
		for _, id := range col {
			assert.False(t, ids[id], "row %s appears twice", id)
			ids[id] = true
		}
	}
	assert.Len(t, ids, 62)
}

func TestSplitDataMissingLabel(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)

	d, err := New(testConfig(), paths, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.RawFile, []byte("a,b\n1,2\n3,4\n"), 0o644))

	err = d.SplitData()
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Failed to split data into training and test sets", pe.Message)
	assert.ErrorIs(t, err, perrors.ErrMissingColumn)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)

	d, err := New(testConfig(), paths, WithLogger(logger), WithObjectGetter(&fakeS3{body: sampleBytes(t)}))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	assert.FileExists(t, paths.TrainFile)
	assert.FileExists(t, paths.TestFile)
	assert.True(t, logger.ContainsMessage("Data ingestion completed successfully"))
	assert.True(t, logger.ContainsField(log.StageKey, log.StageIngestion))
}

func TestRunFailureStillLogsCompletion(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	paths := testPaths(dir)

	d, err := New(testConfig(), paths, WithLogger(logger), WithObjectGetter(&fakeS3{err: errors.New("no such bucket")}))
	require.NoError(t, err)

	err = d.Run(context.Background())
	require.Error(t, err)
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Failed to ingest data", pe.Message)
	assert.Contains(t, err.Error(), "Failed to Download csv")
	assert.True(t, logger.ContainsMessage("Data ingestion completed"))
	assert.False(t, logger.ContainsMessage("completed successfully"))
}

func TestUnknownSource(t *testing.T) {
	cfg := testConfig()
	cfg.Source = "ftp"
	logger, _ := log.NewTestLogger(log.LevelDebug)

	d, err := New(cfg, testPaths(t.TempDir()), WithLogger(logger))
	require.NoError(t, err)
	var ve *perrors.ValidationError
	assert.True(t, perrors.As(d.DownloadCSV(context.Background()), &ve))
}
