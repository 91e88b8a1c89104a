package processing

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/titanic-survival/config"
	"github.com/YuminosukeSato/titanic-survival/core/frame"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

const samplePath = "../testdata/titanic_sample.csv"

func newTestProcessor(t *testing.T) (*DataProcessor, *log.TestLogger) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ProcessedDir = filepath.Join(dir, "processed")
	cfg.Paths.ProcessedTrain = filepath.Join(cfg.Paths.ProcessedDir, "processed_train.csv")
	cfg.Paths.ProcessedTest = filepath.Join(cfg.Paths.ProcessedDir, "processed_test.csv")

	p, err := New(samplePath, samplePath, cfg.Paths.ProcessedDir, cfg)
	require.NoError(t, err)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	p.WithLogger(logger)
	return p, logger
}

func readSample(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.ReadCSVFile(samplePath)
	require.NoError(t, err)
	return f
}

func rowOf(t *testing.T, f *frame.Frame, passengerID string) int {
	t.Helper()
	ids, err := f.Column("PassengerId")
	require.NoError(t, err)
	for i, id := range ids {
		if id == passengerID {
			return i
		}
	}
	t.Fatalf("passenger %s not found", passengerID)
	return -1
}

func TestNewCreatesProcessedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	p, err := New("train.csv", "test.csv", dir, nil)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, "train.csv", p.TrainPath)
	assert.Equal(t, "test.csv", p.TestPath)
	assert.Equal(t, dir, p.ProcessedDir)
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		want string
		code float64
	}{
		{"Braund, Mr. Owen Harris", "Mr", TitleMr},
		{"Heikkinen, Miss. Laina", "Miss", TitleMiss},
		{"Hewlett, Mrs. (Mary D Kingcome) ", "Mrs", TitleMrs},
		{"Palsson, Master. Gosta Leonard", "Master", TitleMaster},
		{"Uruchurtu, Don. Manuel E", "Don", TitleRare},
		{"Nobody", "", TitleRare},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.name))
			assert.Equal(t, []float64{tt.code}, TitleCodes([]string{tt.name}))
		})
	}
}

func TestFeatureHelpers(t *testing.T) {
	fs := FamilySize([]float64{1, 0, 3}, []float64{0, 0, 1})
	assert.Equal(t, []float64{2, 1, 5}, fs)
	assert.Equal(t, []float64{0, 1, 0}, IsAlone(fs))
	assert.Equal(t, []float64{1, 0, 0}, HasCabin([]string{"C85", "", "NaN"}))
	assert.Equal(t, []float64{6, 0}, Product([]float64{2, 0}, []float64{3, 5}))
}

func TestPreprocessData(t *testing.T) {
	p, logger := newTestProcessor(t)
	in := readSample(t)

	out, err := p.PreprocessData(in)
	require.NoError(t, err)
	assert.Equal(t, in.Len(), out.Len())
	assert.True(t, logger.ContainsMessage("Data Preprocessing done..."))

	// the input frame is left untouched
	sex, err := in.Column("Sex")
	require.NoError(t, err)
	assert.Equal(t, "male", sex[0])

	value := func(column, id string) float64 {
		col, err := out.Float(column)
		require.NoError(t, err)
		return col[rowOf(t, out, id)]
	}

	// Braund, Mr. Owen Harris: male, 22, SibSp 1, 3rd class, 7.25, no cabin, S
	assert.Equal(t, 0.0, value("Sex", "1"))
	assert.Equal(t, 2.0, value("Familysize", "1"))
	assert.Equal(t, 0.0, value("Isalone", "1"))
	assert.Equal(t, 0.0, value("HasCabin", "1"))
	assert.Equal(t, float64(TitleMr), value("Title", "1"))
	assert.Equal(t, 2.0, value("Embarked", "1"))
	assert.InDelta(t, 21.75, value("Pclass_Fare", "1"), 1e-9)
	assert.InDelta(t, 159.5, value("Age_Fare", "1"), 1e-9)

	// Cumings: female with a cabin, embarked at C
	assert.Equal(t, 1.0, value("Sex", "2"))
	assert.Equal(t, 1.0, value("HasCabin", "2"))
	assert.Equal(t, float64(TitleMrs), value("Title", "2"))
	assert.Equal(t, 0.0, value("Embarked", "2"))

	// Moran has no age: the median of the observed ages (27) is used
	assert.Equal(t, 27.0, value("Age", "6"))
	assert.InDelta(t, 27*8.4583, value("Age_Fare", "6"), 1e-9)
	assert.Equal(t, 1.0, value("Embarked", "6"))
	assert.Equal(t, 1.0, value("Isalone", "6"))

	// Icard has no port of embarkation: the mode S is used
	assert.Equal(t, 2.0, value("Embarked", "62"))
	// Uruchurtu, Don.
	assert.Equal(t, float64(TitleRare), value("Title", "31"))

	for _, c := range config.DefaultFeatures() {
		col, err := out.Float(c)
		require.NoError(t, err, c)
		for i, v := range col {
			assert.False(t, math.IsNaN(v), "%s row %d is NaN", c, i)
		}
	}
}

func TestPreprocessDataMissingColumn(t *testing.T) {
	p, _ := newTestProcessor(t)
	in := readSample(t).Drop("Cabin")

	_, err := p.PreprocessData(in)
	require.Error(t, err)
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, log.StageProcessing, pe.Stage)
	assert.ErrorIs(t, err, perrors.ErrMissingColumn)
}

func TestHandleImbalanceData(t *testing.T) {
	p, logger := newTestProcessor(t)
	pre, err := p.PreprocessData(readSample(t))
	require.NoError(t, err)
	selected, err := pre.Select(p.cfg.DataProcessing.SelectedFeatures...)
	require.NoError(t, err)

	balanced, err := p.HandleImbalanceData(selected)
	require.NoError(t, err)

	want := append(config.DefaultFeatures(), config.LabelColumn)
	if diff := cmp.Diff(want, balanced.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	// 34 did not survive, 28 did: 6 synthetic survivors are added
	assert.Equal(t, 68, balanced.Len())
	y, err := balanced.Float(config.LabelColumn)
	require.NoError(t, err)
	ones := 0
	for _, v := range y {
		if v == 1 {
			ones++
		}
	}
	assert.Equal(t, 34, ones)
	assert.True(t, logger.ContainsMessage("SMOTE resampling completed"))
}

func TestHandleImbalanceDataRejectsNonNumeric(t *testing.T) {
	p, _ := newTestProcessor(t)
	pre, err := p.PreprocessData(readSample(t))
	require.NoError(t, err)
	sex, err := pre.Column("Sex")
	require.NoError(t, err)
	sex[0] = ""
	require.NoError(t, pre.SetColumn("Sex", sex))

	_, err = p.HandleImbalanceData(pre)
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Error while balancing data", pe.Message)
	var ve *perrors.ValidationError
	assert.True(t, perrors.As(err, &ve))
}

func TestSaveData(t *testing.T) {
	p, _ := newTestProcessor(t)
	f := frame.New()
	require.NoError(t, f.SetFloat("Age", []float64{22, 38.5}))
	require.NoError(t, f.SetFloat(config.LabelColumn, []float64{0, 1}))
	path := filepath.Join(p.ProcessedDir, "out.csv")

	require.NoError(t, p.SaveData(f, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Age,Survived\n22,0\n38.5,1\n", string(data))
}

func TestProcess(t *testing.T) {
	p, logger := newTestProcessor(t)
	require.NoError(t, p.Process())

	train, err := frame.ReadCSVFile(p.cfg.Paths.ProcessedTrain)
	require.NoError(t, err)
	test, err := frame.ReadCSVFile(p.cfg.Paths.ProcessedTest)
	require.NoError(t, err)

	assert.Equal(t, p.cfg.DataProcessing.SelectedFeatures, train.Columns())
	assert.Equal(t, p.cfg.DataProcessing.SelectedFeatures, test.Columns())
	assert.Equal(t, 68, train.Len())
	// the test split is never resampled
	assert.Equal(t, 62, test.Len())

	_, err = train.ToMatrix(config.DefaultFeatures())
	assert.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Data processing completed successfully"))
}

func TestProcessMissingInput(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.TrainPath = filepath.Join(t.TempDir(), "missing.csv")

	err := p.Process()
	require.Error(t, err)
	var pe *perrors.PipelineError
	require.True(t, perrors.As(err, &pe))
	assert.Equal(t, "Error during preprocessing pipeline", pe.Message)
	assert.True(t, strings.HasPrefix(err.Error(), "Error during preprocessing pipeline: "))
}
