// Package preprocessing はCSV列単位の欠損値補完とカテゴリ変換を提供する。
package preprocessing

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/titanic-survival/core/frame"
	"github.com/YuminosukeSato/titanic-survival/core/model"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// ImputeStrategy は欠損値の補完方法
type ImputeStrategy string

const (
	// StrategyMedian は中央値で補完する（要素数が偶数なら中央2値の平均）
	StrategyMedian ImputeStrategy = "median"
	// StrategyMean は平均値で補完する
	StrategyMean ImputeStrategy = "mean"
	// StrategyMostFrequent は最頻値で補完する（同数の場合は最小値）
	StrategyMostFrequent ImputeStrategy = "most_frequent"
)

// SimpleImputer は数値列のNaNを統計量で置き換える
type SimpleImputer struct {
	model.BaseEstimator

	// Strategy は補完方法
	Strategy ImputeStrategy

	// StatisticValue はFitで学習した補完値
	StatisticValue float64
}

// NewSimpleImputer は新しいSimpleImputerを作成する
//
// 使用例:
//
//	imp := preprocessing.NewSimpleImputer(preprocessing.StrategyMedian)
//	age, err := imp.FitTransform(ageColumn)
func NewSimpleImputer(strategy ImputeStrategy) *SimpleImputer {
	return &SimpleImputer{Strategy: strategy}
}

// Fit はNaN以外の値から補完値を計算する
func (s *SimpleImputer) Fit(values []float64) error {
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return perrors.NewModelError("SimpleImputer.Fit", "no observed values", perrors.ErrEmptyData)
	}

	switch s.Strategy {
	case StrategyMedian:
		s.StatisticValue = Median(observed)
	case StrategyMean:
		s.StatisticValue = stat.Mean(observed, nil)
	case StrategyMostFrequent:
		s.StatisticValue = modeFloat(observed)
	default:
		return perrors.NewValidationError("strategy", "unknown impute strategy", s.Strategy)
	}

	s.SetFitted(1)
	return nil
}

// Transform はNaNを補完値で置き換えた新しいスライスを返す
func (s *SimpleImputer) Transform(values []float64) ([]float64, error) {
	if err := s.RequireFitted("SimpleImputer", "Transform"); err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = s.StatisticValue
		}
		out[i] = v
	}
	return out, nil
}

// FitTransform はFitとTransformを続けて実行する
func (s *SimpleImputer) FitTransform(values []float64) ([]float64, error) {
	if err := s.Fit(values); err != nil {
		return nil, err
	}
	return s.Transform(values)
}

// Statistic は学習済みの補完値を返す
func (s *SimpleImputer) Statistic() float64 {
	return s.StatisticValue
}

// CategoricalImputer は文字列列の欠損セルを最頻値で置き換える
type CategoricalImputer struct {
	model.BaseEstimator

	// Fill はFitで学習した最頻値
	Fill string
}

// NewCategoricalImputer は新しいCategoricalImputerを作成する
func NewCategoricalImputer() *CategoricalImputer {
	return &CategoricalImputer{}
}

// Fit は欠損でないセルの最頻値を求める。同数の場合は辞書順で最小の値を選ぶ
func (c *CategoricalImputer) Fit(values []string) error {
	counts := make(map[string]int)
	for _, v := range values {
		if !frame.IsMissing(v) {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return perrors.NewModelError("CategoricalImputer.Fit", "no observed values", perrors.ErrEmptyData)
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	c.Fill = best
	c.SetFitted(1)
	return nil
}

// Transform は欠損セルをFillで置き換えた新しいスライスを返す
func (c *CategoricalImputer) Transform(values []string) ([]string, error) {
	if err := c.RequireFitted("CategoricalImputer", "Transform"); err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		if frame.IsMissing(v) {
			v = c.Fill
		}
		out[i] = v
	}
	return out, nil
}

// FitTransform はFitとTransformを続けて実行する
func (c *CategoricalImputer) FitTransform(values []string) ([]string, error) {
	if err := c.Fit(values); err != nil {
		return nil, err
	}
	return c.Transform(values)
}

// Median は中央値を返す。要素数が偶数の場合は中央2値の平均
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func modeFloat(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	best, bestCount := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i > bestCount {
			best, bestCount = sorted[i], j-i
		}
		i = j
	}
	return best
}
