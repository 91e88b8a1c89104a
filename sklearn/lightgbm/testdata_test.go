package lightgbm

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// makeDataset returns n rows of three features where the label is 1 exactly
// when the first feature exceeds 0.5; the other two features are noise.
func makeDataset(n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x0 := r.Float64()
		X.SetRow(i, []float64{x0, r.Float64(), r.NormFloat64()})
		if x0 > 0.5 {
			y.SetVec(i, 1)
		}
	}
	return X, y
}

// makeNoise returns features and labels drawn independently.
func makeNoise(n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	r := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.SetRow(i, []float64{r.Float64(), r.Float64(), r.Float64()})
		y.SetVec(i, float64(r.IntN(2)))
	}
	return X, y
}
