// Standard attribute keys. Keys follow a hierarchical naming convention
// ("data.samples", "s3.bucket") so logs from every stage can be filtered the
// same way.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "LGBMClassifier".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed: "fit", "predict", ...
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or stage emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// StageKey names the pipeline stage: ingestion, processing, training.
	StageKey = "pipeline.stage"

	// RunIDKey identifies one training run.
	RunIDKey = "run.id"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"
	ColumnKey   = "data.column"
)

// Storage locations.
const (
	PathKey   = "file.path"
	BucketKey = "s3.bucket"
	ObjectKey = "s3.key"
	BytesKey  = "file.bytes"
)

// Performance and model quality.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	PrecisionKey  = "metrics.precision"
	RecallKey     = "metrics.recall"
	F1Key         = "metrics.f1"
	ROCAUCKey     = "metrics.roc_auc"
	LossKey       = "metrics.loss"
	ScoreKey      = "metrics.score"
	IterationKey  = "training.iteration"
)

// Hyperparameters and configuration.
const (
	HyperParamsKey  = "model.hyperparams"
	LearningRateKey = "hyperparams.learning_rate"
	RandomSeedKey   = "config.random_seed"
)

// HTTP serving.
const (
	RequestIDKey  = "http.request_id"
	MethodKey     = "http.method"
	RouteKey      = "http.route"
	StatusKey     = "http.status"
	RemoteAddrKey = "http.remote_addr"
	PredictionKey = "preds.value"
	ConfidenceKey = "preds.confidence"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationResample = "resample"
	OperationScore    = "score"
	OperationSearch   = "search"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"

	StageIngestion  = "ingestion"
	StageProcessing = "processing"
	StageTraining   = "training"
	StageServing    = "serving"
)
