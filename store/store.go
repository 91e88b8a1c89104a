// Package store keeps a SQLite registry of training runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// Run is one recorded training run.
type Run struct {
	ID          string
	StartedAt   time.Time
	Duration    time.Duration
	ModelPath   string
	BestParams  map[string]any
	BestCVScore float64

	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	ROCAUC    float64
}

// Store is a training-run registry backed by a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL, -- unix nanoseconds
	duration_ms INTEGER NOT NULL,
	model_path TEXT NOT NULL,
	best_params TEXT NOT NULL,
	best_cv_score REAL NOT NULL,
	accuracy REAL NOT NULL,
	precision REAL NOT NULL,
	recall REAL NOT NULL,
	f1 REAL NOT NULL,
	roc_auc REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, perrors.Wrapf(err, "create directory for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, perrors.Wrapf(err, "open %s", path)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, perrors.Wrap(err, "apply schema")
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts r. The ID must be unique.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return perrors.NewValidationError("id", "must not be empty", r.ID)
	}
	params, err := json.Marshal(r.BestParams)
	if err != nil {
		return perrors.Wrap(err, "encode best params")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, duration_ms, model_path, best_params, best_cv_score,
			accuracy, precision, recall, f1, roc_auc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UnixNano(), r.Duration.Milliseconds(), r.ModelPath,
		string(params), r.BestCVScore, r.Accuracy, r.Precision, r.Recall, r.F1, r.ROCAUC,
	)
	if err != nil {
		return perrors.Wrapf(err, "insert run %s", r.ID)
	}
	return nil
}

const selectRuns = `
	SELECT id, started_at, duration_ms, model_path, best_params, best_cv_score,
		accuracy, precision, recall, f1, roc_auc
	FROM runs ORDER BY started_at DESC, id`

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, perrors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.Wrap(err, "iterate runs")
	}
	return runs, nil
}

// LatestRun returns the most recent run, or sql.ErrNoRows when there is none.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, perrors.Wrap(sql.ErrNoRows, "no recorded runs")
	}
	return runs[0], nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		r          Run
		startedAt  int64
		durationMs int64
		params     string
	)
	err := rows.Scan(&r.ID, &startedAt, &durationMs, &r.ModelPath, &params, &r.BestCVScore,
		&r.Accuracy, &r.Precision, &r.Recall, &r.F1, &r.ROCAUC)
	if err != nil {
		return Run{}, perrors.Wrap(err, "scan run")
	}
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(params), &r.BestParams); err != nil {
		return Run{}, perrors.Wrapf(err, "decode best params of run %s", r.ID)
	}
	return r, nil
}
