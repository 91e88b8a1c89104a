package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

var nan = math.NaN()

func TestSimpleImputer(t *testing.T) {
	tests := []struct {
		name     string
		strategy ImputeStrategy
		input    []float64
		wantStat float64
	}{
		{"median odd", StrategyMedian, []float64{3, nan, 1, 2}, 2},
		{"median even averages middle values", StrategyMedian, []float64{22, 38, nan, 26, 35}, 30.5},
		{"mean", StrategyMean, []float64{1, 2, nan, 6}, 3},
		{"most frequent ties pick smallest", StrategyMostFrequent, []float64{3, 3, 1, 1, 2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := NewSimpleImputer(tt.strategy)
			out, err := imp.FitTransform(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStat, imp.Statistic())
			for i, v := range tt.input {
				if math.IsNaN(v) {
					assert.Equal(t, tt.wantStat, out[i])
				} else {
					assert.Equal(t, v, out[i])
				}
			}
		})
	}
}

func TestSimpleImputerErrors(t *testing.T) {
	_, err := NewSimpleImputer(StrategyMedian).Transform([]float64{1})
	var nf *perrors.NotFittedError
	assert.ErrorAs(t, err, &nf)

	err = NewSimpleImputer(StrategyMedian).Fit([]float64{nan, nan})
	assert.ErrorIs(t, err, perrors.ErrEmptyData)

	err = NewSimpleImputer("max").Fit([]float64{1})
	var verr *perrors.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCategoricalImputer(t *testing.T) {
	imp := NewCategoricalImputer()
	out, err := imp.FitTransform([]string{"S", "C", "", "S", "Q", "C", "NaN"})
	require.NoError(t, err)
	// S and C tie on two occurrences; the lexically smallest wins
	assert.Equal(t, "C", imp.Fill)
	assert.Equal(t, []string{"S", "C", "C", "S", "Q", "C", "C"}, out)
}

func TestMapEncoder(t *testing.T) {
	sex := NewMapEncoder(map[string]float64{"male": 0, "female": 1}, nil)
	out := sex.Transform([]string{"male", "female", "unknown"})
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 1.0, out[1])
	assert.True(t, math.IsNaN(out[2]))

	rare := 4.0
	title := NewMapEncoder(map[string]float64{"Mr": 0}, &rare)
	assert.Equal(t, []float64{0, 4}, title.Transform([]string{"Mr", "Dr"}))
}

func TestCategoryCoder(t *testing.T) {
	c := NewCategoryCoder()
	codes := c.FitTransform([]string{"S", "C", "Q", "S", ""})

	assert.Equal(t, []string{"C", "Q", "S"}, c.Categories)
	assert.Equal(t, []float64{2, 0, 1, 2, -1}, codes)
	assert.Equal(t, []float64{-1}, c.Transform([]string{"X"}))
}

func TestMedian(t *testing.T) {
	assert.True(t, math.IsNaN(Median(nil)))
	assert.InDelta(t, 30.5125, Median([]float64{7.25, 71.2833, 7.925, 53.1}), 1e-12)
	assert.Equal(t, 7.925, Median([]float64{71.2833, 7.25, 7.925}))
}
