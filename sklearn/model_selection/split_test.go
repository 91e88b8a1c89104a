package model_selection

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

func labelsOf(counts map[float64]int) []float64 {
	var out []float64
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for i := 0; i < counts[k]; i++ {
			out = append(out, k)
		}
	}
	return out
}

func countClass(labels []float64, rows []int, class float64) int {
	n := 0
	for _, r := range rows {
		if labels[r] == class {
			n++
		}
	}
	return n
}

func TestTrainTestSplitStratified(t *testing.T) {
	labels := labelsOf(map[float64]int{0: 549, 1: 342})

	train, test, err := TrainTestSplit(labels, 0.8, 42, true)
	require.NoError(t, err)

	assert.Len(t, train, 712)
	assert.Len(t, test, 179)

	// class proportions are preserved on both sides
	assert.InDelta(t, 549.0/891.0, float64(countClass(labels, train, 0))/float64(len(train)), 0.01)
	assert.InDelta(t, 549.0/891.0, float64(countClass(labels, test, 0))/float64(len(test)), 0.01)

	all := append(slices.Clone(train), test...)
	slices.Sort(all)
	for i, r := range all {
		require.Equal(t, i, r, "every row appears exactly once")
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	labels := labelsOf(map[float64]int{0: 30, 1: 20})

	a1, b1, err := TrainTestSplit(labels, 0.7, 7, true)
	require.NoError(t, err)
	a2, b2, err := TrainTestSplit(labels, 0.7, 7, true)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	a3, _, err := TrainTestSplit(labels, 0.7, 8, true)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a3)
}

func TestTrainTestSplitSmallClassOnBothSides(t *testing.T) {
	labels := labelsOf(map[float64]int{0: 18, 1: 2})

	train, test, err := TrainTestSplit(labels, 0.9, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, countClass(labels, train, 1))
	assert.Equal(t, 1, countClass(labels, test, 1))
	assert.Len(t, train, 18)
}

func TestTrainTestSplitUnstratified(t *testing.T) {
	labels := make([]float64, 10)
	train, test, err := TrainTestSplit(labels, 0.75, 3, false)
	require.NoError(t, err)
	assert.Len(t, train, 7)
	assert.Len(t, test, 3)
}

func TestTrainTestSplitErrors(t *testing.T) {
	tests := []struct {
		name      string
		labels    []float64
		trainSize float64
	}{
		{"empty", nil, 0.8},
		{"ratio zero", labelsOf(map[float64]int{0: 5, 1: 5}), 0},
		{"ratio one", labelsOf(map[float64]int{0: 5, 1: 5}), 1},
		{"single class", labelsOf(map[float64]int{1: 10}), 0.5},
		{"singleton class", labelsOf(map[float64]int{0: 9, 1: 1}), 0.5},
		{"empty test side", labelsOf(map[float64]int{0: 2, 1: 2}), 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := TrainTestSplit(tt.labels, tt.trainSize, 42, true)
			assert.Error(t, err)
		})
	}

	_, _, err := TrainTestSplit(nil, 0.8, 42, true)
	assert.ErrorIs(t, err, perrors.ErrEmptyData)
}
