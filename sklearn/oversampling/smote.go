// Package oversampling balances binary or multiclass training data by
// synthesizing minority-class rows.
package oversampling

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// SMOTE は Synthetic Minority Over-sampling Technique の実装
//
// 各少数クラスについて、同じクラスのk近傍との線形補間で合成サンプルを生成し、
// 全クラスのサンプル数を多数クラスに揃える。
type SMOTE struct {
	KNeighbors  int
	RandomState uint64
	Logger      log.Logger
}

// NewSMOTE はデフォルト設定(k=5, seed=42)のSMOTEを作成
func NewSMOTE() *SMOTE {
	return &SMOTE{KNeighbors: 5, RandomState: 42}
}

// WithKNeighbors sets the number of nearest neighbours used for interpolation.
func (s *SMOTE) WithKNeighbors(k int) *SMOTE {
	s.KNeighbors = k
	return s
}

// WithRandomState sets the seed.
func (s *SMOTE) WithRandomState(seed uint64) *SMOTE {
	s.RandomState = seed
	return s
}

// FitResample returns X and y with synthetic rows appended so that every
// class reaches the majority count. Original rows come first in their
// original order; synthetic rows follow class by class in ascending label
// order.
func (s *SMOTE) FitResample(X *mat.Dense, y []float64) (_ *mat.Dense, _ []float64, err error) {
	defer perrors.Recover(&err, "SMOTE.FitResample")

	n, d := X.Dims()
	if n == 0 {
		return nil, nil, perrors.ErrEmptyData
	}
	if len(y) != n {
		return nil, nil, perrors.NewDimensionError("SMOTE.FitResample", n, len(y), 0)
	}
	if s.KNeighbors < 1 {
		return nil, nil, perrors.NewValidationError("k_neighbors", "must be at least 1", s.KNeighbors)
	}
	for i := 0; i < n; i++ {
		if floats.HasNaN(X.RawRowView(i)) {
			return nil, nil, perrors.NewValidationError("X", fmt.Sprintf("row %d contains NaN", i), X.RawRowView(i))
		}
		if math.IsNaN(y[i]) {
			return nil, nil, perrors.NewValidationError("y", fmt.Sprintf("row %d has a missing label", i), y[i])
		}
	}

	groups := make(map[float64][]int)
	for i, label := range y {
		groups[label] = append(groups[label], i)
	}
	if len(groups) < 2 {
		return nil, nil, perrors.NewValueError("SMOTE.FitResample",
			"the target has a single class; at least two are needed to resample")
	}
	classes := make([]float64, 0, len(groups))
	majority := 0
	for c, rows := range groups {
		classes = append(classes, c)
		majority = max(majority, len(rows))
	}
	slices.Sort(classes)

	total := n
	for _, c := range classes {
		if need := majority - len(groups[c]); need > 0 {
			if len(groups[c]) < s.KNeighbors+1 {
				return nil, nil, perrors.NewValueError("SMOTE.FitResample",
					fmt.Sprintf("class %v has %d samples; expected n_neighbors <= n_samples, but n_samples = %d, n_neighbors = %d",
						c, len(groups[c]), len(groups[c]), s.KNeighbors+1))
			}
			total += need
		}
	}

	out := mat.NewDense(total, d, nil)
	outY := make([]float64, 0, total)
	out.Slice(0, n, 0, d).(*mat.Dense).Copy(X)
	outY = append(outY, y...)

	r := rand.New(rand.NewPCG(s.RandomState, s.RandomState))
	row := n
	for _, c := range classes {
		need := majority - len(groups[c])
		if need <= 0 {
			continue
		}
		members := groups[c]
		nn := s.neighbours(X, members)
		for i := 0; i < need; i++ {
			pick := r.IntN(len(members) * s.KNeighbors)
			base := X.RawRowView(members[pick/s.KNeighbors])
			neighbour := X.RawRowView(members[nn[pick/s.KNeighbors][pick%s.KNeighbors]])
			step := r.Float64()

			dst := out.RawRowView(row)
			// dst = base + step*(neighbour - base)
			floats.SubTo(dst, neighbour, base)
			floats.Scale(step, dst)
			floats.Add(dst, base)
			outY = append(outY, c)
			row++
		}
	}

	s.logger().Info("SMOTE resampling completed",
		log.OperationKey, log.OperationResample,
		log.SamplesKey, total,
		"synthetic_samples", total-n,
		log.ClassesKey, len(classes),
	)
	return out, outY, nil
}

// neighbours returns, for each member, the positions (within members) of
// its k nearest other members by Euclidean distance. Ties are broken by
// position.
func (s *SMOTE) neighbours(X *mat.Dense, members []int) [][]int {
	k := s.KNeighbors
	out := make([][]int, len(members))
	order := make([]int, len(members))
	dist := make([]float64, len(members))
	for i, mi := range members {
		a := X.RawRowView(mi)
		for j, mj := range members {
			dist[j] = floats.Distance(a, X.RawRowView(mj), 2)
			order[j] = j
		}
		slices.SortStableFunc(order, func(p, q int) int {
			switch {
			case dist[p] < dist[q]:
				return -1
			case dist[p] > dist[q]:
				return 1
			}
			return 0
		})
		nn := make([]int, 0, k)
		for _, j := range order {
			if j == i {
				continue
			}
			nn = append(nn, j)
			if len(nn) == k {
				break
			}
		}
		out[i] = nn
	}
	return out
}

func (s *SMOTE) logger() log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.GetLoggerWithName("oversampling")
}
