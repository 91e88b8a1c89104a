package model

import (
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// BaseEstimator は全てのモデルの基底となる構造体
//
// フィールドはgobでの保存に含めるため公開しています。
type BaseEstimator struct {
	Fitted    bool
	NFeatures int
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.Fitted
}

// SetFitted はモデルを学習済み状態に設定し、特徴量数を記録する
func (e *BaseEstimator) SetFitted(nFeatures int) {
	e.Fitted = true
	e.NFeatures = nFeatures
}

// Reset はモデルを初期状態にリセットする
func (e *BaseEstimator) Reset() {
	e.Fitted = false
	e.NFeatures = 0
}

// RequireFitted は未学習の場合にNotFittedErrorを返す
func (e *BaseEstimator) RequireFitted(modelName, method string) error {
	if !e.Fitted {
		return perrors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckFeatures は入力の特徴量数が学習時と一致するか検証する
func (e *BaseEstimator) CheckFeatures(op string, got int) error {
	if got != e.NFeatures {
		return perrors.NewDimensionError(op, e.NFeatures, got, 1)
	}
	return nil
}
