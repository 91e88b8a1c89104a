package preprocessing

import (
	"math"
	"slices"
	"strings"

	"github.com/YuminosukeSato/titanic-survival/core/frame"
	"github.com/YuminosukeSato/titanic-survival/core/model"
)

// MapEncoder は文字列を固定の対応表で数値に変換する
//
// 対応表にない値はNaNになる。Fallbackが設定されていればその値になる。
type MapEncoder struct {
	Mapping  map[string]float64
	Fallback *float64
}

// NewMapEncoder は新しいMapEncoderを作成する
//
// 使用例:
//
//	sex := preprocessing.NewMapEncoder(map[string]float64{"male": 0, "female": 1}, nil)
//	codes := sex.Transform(column)
func NewMapEncoder(mapping map[string]float64, fallback *float64) *MapEncoder {
	return &MapEncoder{Mapping: mapping, Fallback: fallback}
}

// Transform は各セルを対応する数値に変換する
func (m *MapEncoder) Transform(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		code, ok := m.Mapping[strings.TrimSpace(v)]
		switch {
		case ok:
			out[i] = code
		case m.Fallback != nil:
			out[i] = *m.Fallback
		default:
			out[i] = math.NaN()
		}
	}
	return out
}

// CategoryCoder は文字列カテゴリを整数コードに変換する
//
// カテゴリは欠損でない値の辞書順で並べ、コードはその位置になる。
// 欠損セルのコードは-1。
type CategoryCoder struct {
	model.BaseEstimator

	Categories []string
}

// NewCategoryCoder は新しいCategoryCoderを作成する
func NewCategoryCoder() *CategoryCoder {
	return &CategoryCoder{}
}

// Fit はカテゴリ一覧を学習する
func (c *CategoryCoder) Fit(values []string) {
	seen := make(map[string]struct{})
	c.Categories = c.Categories[:0]
	for _, v := range values {
		if frame.IsMissing(v) {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			c.Categories = append(c.Categories, v)
		}
	}
	slices.Sort(c.Categories)
	c.SetFitted(1)
}

// Transform は各セルをコードに変換する。未知のカテゴリと欠損は-1
func (c *CategoryCoder) Transform(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		idx, found := slices.BinarySearch(c.Categories, v)
		if !found || frame.IsMissing(v) {
			out[i] = -1
			continue
		}
		out[i] = float64(idx)
	}
	return out
}

// FitTransform はFitとTransformを続けて実行する
func (c *CategoryCoder) FitTransform(values []string) []float64 {
	c.Fit(values)
	return c.Transform(values)
}
