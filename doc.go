// Package titanic is the root of a Titanic survival prediction pipeline.
//
// The pipeline runs in three stages, each in its own package:
//
//   - ingestion downloads the raw passenger CSV from S3 (or copies a local
//     file) and writes a stratified train/test split.
//   - processing imputes missing values, encodes Sex and Embarked, derives
//     family, cabin, title and interaction features, and balances the
//     training split with SMOTE.
//   - training tunes a gradient boosted classifier with randomized search
//     and cross-validation, evaluates it on the test split, and saves the
//     model, a YAML report and a feature importance chart.
//
// pipeline chains the stages, store records every training run in SQLite,
// and server exposes the saved model through an HTML form, a JSON API,
// a health check and Prometheus metrics.
//
// The command line lives in cmd/titanic:
//
//	titanic run --config config.yaml
//	titanic serve
//	titanic predict --Pclass 3 --Sex 0 --Age 22 ...
//	titanic runs
//
// The learning primitives are implemented natively on gonum: a histogram
// gradient boosting classifier (sklearn/lightgbm), stratified splitting,
// k-fold and randomized search (sklearn/model_selection), SMOTE
// (sklearn/oversampling), imputers and encoders (preprocessing) and
// classification metrics (metrics).
package titanic
