// Package lightgbm implements LightGBM-style gradient-boosted decision trees
// for binary classification in pure Go.
//
// Training follows LightGBM's design: features are bucketed into histograms
// (max_bin), trees grow leaf-wise up to num_leaves, and rows can be sampled
// by bagging or by Gradient-based One-Side Sampling (boosting_type "goss").
// Missing values are routed by a learned default direction at every split.
//
// # scikit-learn Compatible API
//
//	clf := lightgbm.NewLGBMClassifier().
//	    WithNEstimators(200).
//	    WithNumLeaves(31).
//	    WithLearningRate(0.05)
//	if err := clf.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	proba, _ := clf.PredictProba(XTest) // n×2: [P(0), P(1)]
//	acc, _ := clf.Score(XTest, yTest)
//
// # Early Stopping
//
//	clf := lightgbm.NewLGBMClassifier().WithEarlyStopping(10)
//	err := clf.FitWithValidation(XTrain, yTrain, XVal, yVal)
//
// The ensemble is truncated to the iteration with the lowest validation
// log loss.
//
// # Low-level Training
//
// Trainer exposes the boosting loop with per-iteration callbacks:
//
//	history := map[string][]float64{}
//	trainer := lightgbm.NewTrainer(lightgbm.DefaultTrainingParams()).
//	    WithCallbacks(lightgbm.RecordEvaluation(history))
//	err := trainer.Fit(X, y)
//	model := trainer.GetModel()
//
// Fitted classifiers are plain structs and can be stored with
// core/model.SaveModel.
package lightgbm
