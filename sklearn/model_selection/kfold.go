package model_selection

import (
	"fmt"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// StratifiedKFold splits rows into folds that preserve the class ratio.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold. Rows of each
// class are dealt to folds in contiguous blocks, the first folds taking one
// extra row when the class size is not divisible.
func (skf *StratifiedKFold) Split(labels []float64) ([]CVFold, error) {
	n := len(labels)
	if n == 0 {
		return nil, perrors.ErrEmptyData
	}
	if skf.NSplits > n {
		return nil, perrors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("cannot have n_splits=%d greater than the number of samples: %d", skf.NSplits, n))
	}

	classes, groups := groupByClass(labels)
	for _, c := range classes {
		if len(groups[c]) < skf.NSplits {
			perrors.Warn(perrors.NewDataConversionWarning("y", len(groups[c]),
				fmt.Sprintf("class %v has fewer members than n_splits=%d", c, skf.NSplits)))
		}
	}

	if skf.Shuffle {
		r := newRand(skf.RandomSeed)
		for _, c := range classes {
			idx := groups[c]
			r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
	}

	testOf := make([]int, n)
	for _, c := range classes {
		idx := groups[c]
		foldSize, remainder := len(idx)/skf.NSplits, len(idx)%skf.NSplits
		cur := 0
		for f := 0; f < skf.NSplits; f++ {
			size := foldSize
			if f < remainder {
				size++
			}
			for _, row := range idx[cur : cur+size] {
				testOf[row] = f
			}
			cur += size
		}
	}

	folds := make([]CVFold, skf.NSplits)
	for row := 0; row < n; row++ {
		for f := range folds {
			if testOf[row] == f {
				folds[f].TestIndices = append(folds[f].TestIndices, row)
			} else {
				folds[f].TrainIndices = append(folds[f].TrainIndices, row)
			}
		}
	}
	return folds, nil
}
