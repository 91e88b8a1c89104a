// Package metrics は二値分類モデルの評価指標を提供する。
package metrics

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// positiveLabel は適合率・再現率・F1で陽性として扱うクラス
const positiveLabel = 1.0

// logLossEps はlog(0)を避けるための確率のクリップ幅
const logLossEps = 1e-15

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, perrors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, perrors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return perrors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return nil
}

// Accuracy は正解率を計算する。多クラスのラベルにも使える
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - 正解率）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix は二値分類の混同行列
type ConfusionMatrix struct {
	TN, FP, FN, TP int
}

// NewConfusionMatrix は予測ラベルから混同行列を作成する
func NewConfusionMatrix(yTrue, yPred *mat.VecDense) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return cm, err
	}
	if err := checkBinaryLabels("ConfusionMatrix", yTrue); err != nil {
		return cm, err
	}
	if err := checkBinaryLabels("ConfusionMatrix", yPred); err != nil {
		return cm, err
	}
	for i := 0; i < n; i++ {
		truth, pred := yTrue.AtVec(i) == positiveLabel, yPred.AtVec(i) == positiveLabel
		switch {
		case truth && pred:
			cm.TP++
		case truth && !pred:
			cm.FN++
		case !truth && pred:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm, nil
}

// Dense は [[TN, FP], [FN, TP]] の2×2行列を返す
func (cm ConfusionMatrix) Dense() *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		float64(cm.TN), float64(cm.FP),
		float64(cm.FN), float64(cm.TP),
	})
}

// Precision は陽性クラスの適合率 TP/(TP+FP) を計算する
//
// 陽性の予測が一つもない場合は0を返し、UndefinedMetricWarningを発生させる。
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if cm.TP+cm.FP == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
		return 0, nil
	}
	return float64(cm.TP) / float64(cm.TP+cm.FP), nil
}

// Recall は陽性クラスの再現率 TP/(TP+FN) を計算する
//
// 陽性の正解が一つもない場合は0を返し、UndefinedMetricWarningを発生させる。
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if cm.TP+cm.FN == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("recall", "no true samples", 0))
		return 0, nil
	}
	return float64(cm.TP) / float64(cm.TP+cm.FN), nil
}

// F1Score は適合率と再現率の調和平均 2TP/(2TP+FP+FN) を計算する
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	denom := 2*cm.TP + cm.FP + cm.FN
	if denom == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("f1", "no true nor predicted samples", 0))
		return 0, nil
	}
	return float64(2*cm.TP) / float64(denom), nil
}

// AUC はROC曲線下面積を計算する。yPredは陽性クラスのスコア
//
// 同順位のスコアは平均順位で扱う（Mann-Whitney U統計量）。
// 正解ラベルが片方のクラスしか含まない場合は0.5を返し、警告を発生させる。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		va, vb := yPred.AtVec(a), yPred.AtVec(b)
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	})

	var nPos, nNeg int
	rankSumPos := 0.0
	for i := 0; i < n; {
		j := i
		for j < n && yPred.AtVec(idx[j]) == yPred.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			if yTrue.AtVec(idx[k]) == positiveLabel {
				nPos++
				rankSumPos += avgRank
			} else {
				nNeg++
			}
		}
		i = j
	}

	if nPos == 0 || nNeg == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	u := rankSumPos - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// ROCAUC はAUCの別名
func ROCAUC(yTrue, yScore *mat.VecDense) (float64, error) {
	return AUC(yTrue, yScore)
}

// AUCMatrix は行列形式の入力に対してAUCを計算する。先頭列を使う
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, perrors.NewValueError("AUCMatrix", "nil matrix")
	}
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 || cPred == 0 {
		return 0, perrors.NewValueError("AUCMatrix", "empty matrix")
	}
	if rTrue != rPred {
		return 0, perrors.NewDimensionError("AUCMatrix", rTrue, rPred, 0)
	}
	return AUC(firstColumn(yTrue), firstColumn(yPred))
}

// BinaryLogLoss は二値交差エントロピーを計算する。yPredは陽性クラスの確率
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		p := perrors.ClipValue(yPred.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == positiveLabel {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// LogLoss はBinaryLogLossの別名
func LogLoss(yTrue, yProba *mat.VecDense) (float64, error) {
	return BinaryLogLoss(yTrue, yProba)
}

func firstColumn(m mat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

// Report はテストデータでの評価結果
type Report struct {
	Accuracy  float64         `yaml:"accuracy" json:"accuracy"`
	Precision float64         `yaml:"precision" json:"precision"`
	Recall    float64         `yaml:"recall" json:"recall"`
	F1        float64         `yaml:"f1" json:"f1"`
	ROCAUC    float64         `yaml:"roc_auc" json:"roc_auc"`
	LogLoss   float64         `yaml:"log_loss" json:"log_loss"`
	Confusion ConfusionMatrix `yaml:"confusion_matrix" json:"confusion_matrix"`
}

// Evaluate は予測ラベルと陽性確率から全ての指標を計算する
func Evaluate(yTrue, yPred, yProba *mat.VecDense) (Report, error) {
	var r Report
	var err error
	if r.Confusion, err = NewConfusionMatrix(yTrue, yPred); err != nil {
		return r, err
	}
	if r.Accuracy, err = Accuracy(yTrue, yPred); err != nil {
		return r, err
	}
	if r.Precision, err = Precision(yTrue, yPred); err != nil {
		return r, err
	}
	if r.Recall, err = Recall(yTrue, yPred); err != nil {
		return r, err
	}
	if r.F1, err = F1Score(yTrue, yPred); err != nil {
		return r, err
	}
	if r.ROCAUC, err = AUC(yTrue, yProba); err != nil {
		return r, err
	}
	if r.LogLoss, err = BinaryLogLoss(yTrue, yProba); err != nil {
		return r, err
	}
	return r, nil
}
