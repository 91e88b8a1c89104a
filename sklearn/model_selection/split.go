// Package model_selection provides dataset splitting, stratified k-fold
// cross-validation and randomized hyperparameter search.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// groupByClass returns the sorted distinct labels and the row indices of
// each label.
func groupByClass(labels []float64) ([]float64, map[float64][]int) {
	groups := make(map[float64][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	classes := make([]float64, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	slices.Sort(classes)
	return classes, groups
}

// TrainTestSplit returns shuffled train and test row indices. The train
// side receives floor(trainSize*n) rows. With stratify, each class is split
// in proportion to its frequency; leftover rows go to the classes with the
// largest remainders and every class with at least two rows appears on
// both sides.
func TrainTestSplit(labels []float64, trainSize float64, seed uint64, stratify bool) (train, test []int, err error) {
	n := len(labels)
	if n == 0 {
		return nil, nil, perrors.ErrEmptyData
	}
	if trainSize <= 0 || trainSize >= 1 || math.IsNaN(trainSize) {
		return nil, nil, perrors.NewValidationError("train_size", "must be strictly between 0 and 1", trainSize)
	}
	nTrain := int(math.Floor(trainSize * float64(n)))
	if nTrain == 0 || nTrain == n {
		return nil, nil, perrors.NewValueError("TrainTestSplit",
			"train_size leaves one side of the split empty")
	}

	r := newRand(seed)
	if !stratify {
		perm := r.Perm(n)
		return perm[:nTrain], perm[nTrain:], nil
	}

	classes, groups := groupByClass(labels)
	if len(classes) < 2 {
		return nil, nil, perrors.NewValueError("TrainTestSplit", "stratified split needs at least two classes")
	}
	if nTrain < len(classes) || n-nTrain < len(classes) {
		return nil, nil, perrors.NewValueError("TrainTestSplit",
			fmt.Sprintf("both sides need at least %d rows (one per class), got train=%d test=%d", len(classes), nTrain, n-nTrain))
	}
	for _, c := range classes {
		if len(groups[c]) < 2 {
			return nil, nil, perrors.NewValueError("TrainTestSplit",
				"the least populated class has only 1 member, which is too few for a stratified split")
		}
	}

	alloc := allocate(classes, groups, nTrain, n)
	for _, c := range classes {
		idx := groups[c]
		r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		train = append(train, idx[:alloc[c]]...)
		test = append(test, idx[alloc[c]:]...)
	}
	r.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	r.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// allocate distributes nTrain rows across classes by largest remainder and
// keeps every class at 1..size-1 rows on the train side.
func allocate(classes []float64, groups map[float64][]int, nTrain, n int) map[float64]int {
	alloc := make(map[float64]int, len(classes))
	type rem struct {
		class float64
		frac  float64
	}
	rems := make([]rem, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTrain) * float64(len(groups[c])) / float64(n)
		base := int(math.Floor(exact))
		alloc[c] = base
		assigned += base
		rems = append(rems, rem{c, exact - float64(base)})
	}
	slices.SortStableFunc(rems, func(a, b rem) int {
		switch {
		case a.frac > b.frac:
			return -1
		case a.frac < b.frac:
			return 1
		}
		return 0
	})
	for i := 0; assigned < nTrain; i = (i + 1) % len(rems) {
		c := rems[i].class
		if alloc[c] < len(groups[c])-1 {
			alloc[c]++
			assigned++
		}
	}

	for _, c := range classes {
		size := len(groups[c])
		if alloc[c] == 0 {
			alloc[c] = 1
			takeFromLargest(alloc, groups, classes, c, -1)
		}
		if alloc[c] == size {
			alloc[c] = size - 1
			takeFromLargest(alloc, groups, classes, c, +1)
		}
	}
	return alloc
}

// takeFromLargest moves one train row from (delta=-1) or to (delta=+1) the
// largest class other than skip that can still give or take one.
func takeFromLargest(alloc map[float64]int, groups map[float64][]int, classes []float64, skip float64, delta int) {
	best, bestSize := math.NaN(), -1
	for _, c := range classes {
		if c == skip {
			continue
		}
		next := alloc[c] + delta
		if next < 1 || next > len(groups[c])-1 {
			continue
		}
		if len(groups[c]) > bestSize {
			best, bestSize = c, len(groups[c])
		}
	}
	if bestSize >= 0 {
		alloc[best] += delta
	}
}
