package oversampling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

func newTestSMOTE(k int) *SMOTE {
	l, _ := log.NewTestLogger(log.LevelDebug)
	s := NewSMOTE().WithKNeighbors(k)
	s.Logger = l
	return s
}

// imbalanced returns nMaj rows of class 0 near the origin and nMin rows of
// class 1 on the segment from (10,10) to (11,11).
func imbalanced(nMaj, nMin int) (*mat.Dense, []float64) {
	X := mat.NewDense(nMaj+nMin, 2, nil)
	y := make([]float64, nMaj+nMin)
	for i := 0; i < nMaj; i++ {
		X.SetRow(i, []float64{float64(i % 3), float64(i % 5)})
	}
	for i := 0; i < nMin; i++ {
		v := 10 + float64(i)/float64(nMin-1)
		X.SetRow(nMaj+i, []float64{v, v})
		y[nMaj+i] = 1
	}
	return X, y
}

func TestSMOTEBalancesClasses(t *testing.T) {
	X, y := imbalanced(20, 8)

	Xr, yr, err := newTestSMOTE(5).FitResample(X, y)
	require.NoError(t, err)

	rows, cols := Xr.Dims()
	assert.Equal(t, 40, rows)
	assert.Equal(t, 2, cols)
	require.Len(t, yr, 40)

	counts := map[float64]int{}
	for _, v := range yr {
		counts[v]++
	}
	assert.Equal(t, map[float64]int{0: 20, 1: 20}, counts)

	// originals keep their order and come first
	for i := 0; i < 28; i++ {
		assert.Equal(t, X.RawRowView(i), Xr.RawRowView(i))
		assert.Equal(t, y[i], yr[i])
	}

	// synthetic rows interpolate between minority samples, so they stay on
	// the minority segment
	for i := 28; i < 40; i++ {
		assert.Equal(t, 1.0, yr[i])
		row := Xr.RawRowView(i)
		assert.InDelta(t, row[0], row[1], 1e-12)
		assert.GreaterOrEqual(t, row[0], 10.0)
		assert.LessOrEqual(t, row[0], 11.0)
	}
}

func TestSMOTEDeterministic(t *testing.T) {
	X, y := imbalanced(15, 6)
	a, _, err := newTestSMOTE(3).FitResample(X, y)
	require.NoError(t, err)
	b, _, err := newTestSMOTE(3).FitResample(X, y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))

	c, _, err := newTestSMOTE(3).WithRandomState(7).FitResample(X, y)
	require.NoError(t, err)
	assert.False(t, mat.Equal(a, c))
}

func TestSMOTEAlreadyBalanced(t *testing.T) {
	X, y := imbalanced(6, 6)
	Xr, yr, err := newTestSMOTE(5).FitResample(X, y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(X, Xr))
	assert.Equal(t, y, yr)
}

func TestSMOTENeighbours(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 3, 10})
	nn := newTestSMOTE(2).neighbours(X, []int{0, 1, 2, 3})
	assert.Equal(t, [][]int{{1, 2}, {0, 2}, {1, 0}, {2, 1}}, nn)
}

func TestSMOTEErrors(t *testing.T) {
	X, y := imbalanced(10, 4)

	tests := []struct {
		name string
		X    *mat.Dense
		y    []float64
		k    int
	}{
		{"too few minority samples", X, y, 5},
		{"single class", mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{1, 1, 1}, 1},
		{"label length mismatch", X, y[:3], 1},
		{"zero neighbours", X, y, 0},
		{"nan feature", mat.NewDense(4, 1, []float64{1, math.NaN(), 3, 4}), []float64{0, 0, 0, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newTestSMOTE(tt.k).FitResample(tt.X, tt.y)
			assert.Error(t, err)
		})
	}
}
