package lightgbm

import (
	"math"
	"slices"
	"sort"
)

// BinMapper maps one feature's values to histogram bins. Bin b holds the
// values v with UpperBounds[b-1] < v <= UpperBounds[b]; NaN goes to the
// extra bin NumBins().
type BinMapper struct {
	UpperBounds []float64
}

// NewBinMapper builds bins from the non-NaN values of a feature. With at
// most maxBin distinct values every value gets its own bin and the bounds
// sit halfway between neighbours; otherwise bins hold roughly equal counts.
func NewBinMapper(values []float64, maxBin int) *BinMapper {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	slices.Sort(sorted)
	distinct := slices.Compact(slices.Clone(sorted))

	if len(distinct) == 0 {
		return &BinMapper{UpperBounds: []float64{math.Inf(1)}}
	}

	var bounds []float64
	if len(distinct) <= maxBin {
		for i := 0; i+1 < len(distinct); i++ {
			bounds = append(bounds, (distinct[i]+distinct[i+1])/2)
		}
	} else {
		// equal-frequency cut points, snapped to midpoints between distinct values
		perBin := float64(len(sorted)) / float64(maxBin)
		for b := 1; b < maxBin; b++ {
			pos := int(perBin * float64(b))
			v := sorted[pos]
			k := sort.SearchFloat64s(distinct, v)
			if k+1 >= len(distinct) {
				break
			}
			bound := (distinct[k] + distinct[k+1]) / 2
			if len(bounds) == 0 || bound > bounds[len(bounds)-1] {
				bounds = append(bounds, bound)
			}
		}
	}
	bounds = append(bounds, math.Inf(1))
	return &BinMapper{UpperBounds: bounds}
}

// NumBins returns the number of value bins, excluding the NaN bin.
func (b *BinMapper) NumBins() int {
	return len(b.UpperBounds)
}

// Bin returns the bin index of v.
func (b *BinMapper) Bin(v float64) int {
	if math.IsNaN(v) {
		return len(b.UpperBounds)
	}
	return sort.SearchFloat64s(b.UpperBounds, v)
}

// histogram accumulates gradient statistics per bin; the last entry is the
// NaN bin.
type histogram struct {
	grad  []float64
	hess  []float64
	count []int
}

func newHistogram(numBins int) histogram {
	return histogram{
		grad:  make([]float64, numBins+1),
		hess:  make([]float64, numBins+1),
		count: make([]int, numBins+1),
	}
}

func (h histogram) add(bins []uint16, rows []int, grad, hess []float64) {
	for _, r := range rows {
		b := bins[r]
		h.grad[b] += grad[r]
		h.hess[b] += hess[r]
		h.count[b]++
	}
}

// SplitInfo contains information about a potential split
type SplitInfo struct {
	Feature     int
	Bin         int
	Threshold   float64
	DefaultLeft bool
	Gain        float64

	LeftGrad, LeftHess   float64
	RightGrad, RightHess float64
	LeftCount            int
	RightCount           int
}

func (s SplitInfo) valid() bool {
	return s.Feature >= 0
}

// leafScore is G²/(H+λ).
func leafScore(g, h, lambda float64) float64 {
	return g * g / (h + lambda)
}

// splitGain is ½(GL²/(HL+λ) + GR²/(HR+λ) - G²/(H+λ)).
func splitGain(gl, hl, gr, hr, lambda float64) float64 {
	return 0.5 * (leafScore(gl, hl, lambda) + leafScore(gr, hr, lambda) - leafScore(gl+gr, hl+hr, lambda))
}

// bestSplit scans the bins of one feature in both missing-value directions.
func (h histogram) bestSplit(feature int, mapper *BinMapper, p *TrainingParams) SplitInfo {
	best := SplitInfo{Feature: -1, Gain: math.Inf(-1)}
	numBins := mapper.NumBins()
	var totalG, totalH float64
	totalN := 0
	for b := 0; b <= numBins; b++ {
		totalG += h.grad[b]
		totalH += h.hess[b]
		totalN += h.count[b]
	}
	missG, missH, missN := h.grad[numBins], h.hess[numBins], h.count[numBins]

	directions := []bool{false}
	if missN > 0 {
		directions = append(directions, true)
	}
	for _, defaultLeft := range directions {
		var lg, lh float64
		ln := 0
		if defaultLeft {
			lg, lh, ln = missG, missH, missN
		}
		for b := 0; b < numBins-1; b++ {
			lg += h.grad[b]
			lh += h.hess[b]
			ln += h.count[b]
			if h.count[b] == 0 && !(b == 0 && defaultLeft) {
				continue
			}
			rn := totalN - ln
			if ln < p.MinDataInLeaf || rn < p.MinDataInLeaf {
				continue
			}
			rg, rh := totalG-lg, totalH-lh
			if lh < p.MinSumHessianInLeaf || rh < p.MinSumHessianInLeaf {
				continue
			}
			gain := splitGain(lg, lh, rg, rh, p.Lambda)
			if gain > best.Gain {
				best = SplitInfo{
					Feature:     feature,
					Bin:         b,
					Threshold:   mapper.UpperBounds[b],
					DefaultLeft: defaultLeft,
					Gain:        gain,
					LeftGrad:    lg,
					LeftHess:    lh,
					LeftCount:   ln,
					RightGrad:   rg,
					RightHess:   rh,
					RightCount:  rn,
				}
			}
		}
	}
	return best
}
