package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id      TEXT PRIMARY KEY,
	client_name TEXT NOT NULL,
	input_file  TEXT NOT NULL DEFAULT '',
	output_dir  TEXT NOT NULL DEFAULT '',
	executed_at INTEGER NOT NULL,
	extraction  TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_client ON pipeline_runs(client_name, executed_at);

CREATE TABLE IF NOT EXISTS stage_results (
	run_id      TEXT NOT NULL,
	position    INTEGER NOT NULL,
	stage       TEXT NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	file        TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ns INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS pressure_tests (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	client_name   TEXT NOT NULL,
	project_id    TEXT NOT NULL DEFAULT '',
	tested_at     INTEGER NOT NULL,
	engines       TEXT NOT NULL DEFAULT '[]',
	keyword_count INTEGER NOT NULL DEFAULT 0,
	avg_score     REAL NOT NULL DEFAULT 0,
	mention_rate  REAL NOT NULL DEFAULT 0,
	trend         TEXT NOT NULL DEFAULT '',
	report_file   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_pressure_client ON pressure_tests(client_name, tested_at);
`

// SQLiteHistory persists run summaries and pressure tests in a local SQLite file.
type SQLiteHistory struct {
	db *sql.DB
}

var _ ports.RunHistory = (*SQLiteHistory)(nil)

// OpenSQLiteHistory opens (or creates) the database at path and applies the
// schema. ":memory:" is accepted for tests.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	h := NewSQLiteHistory(db)
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// NewSQLiteHistory wraps an already opened database.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

func (h *SQLiteHistory) migrate(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// Close releases the database.
func (h *SQLiteHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// SaveRun upserts the run and replaces its stage results.
func (h *SQLiteHistory) SaveRun(ctx context.Context, summary domain.RunSummary) error {
	if h.db == nil {
		return nil
	}

	var extraction any
	if summary.Extraction != nil {
		raw, err := json.Marshal(summary.Extraction)
		if err != nil {
			return fmt.Errorf("marshal extraction: %w", err)
		}
		extraction = string(raw)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = sq.Insert("pipeline_runs").
		Options("OR REPLACE").
		Columns("run_id", "client_name", "input_file", "output_dir", "executed_at", "extraction").
		Values(summary.RunID, summary.ClientName, summary.InputFile, summary.OutputDir, summary.ExecutionTime.UnixNano(), extraction).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := sq.Delete("stage_results").Where(sq.Eq{"run_id": summary.RunID}).RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("clear stage results: %w", err)
	}

	if len(summary.Results) > 0 {
		insert := sq.Insert("stage_results").Columns("run_id", "position", "stage", "name", "status", "file", "error", "duration_ns")
		for i, r := range summary.Results {
			insert = insert.Values(summary.RunID, i, string(r.Stage), r.Name, string(r.Status), r.File, r.Error, int64(r.Duration))
		}
		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert stage results: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first, optionally for one client.
// limit <= 0 means no limit.
func (h *SQLiteHistory) ListRuns(ctx context.Context, clientName string, limit int) ([]domain.RunSummary, error) {
	if h.db == nil {
		return nil, nil
	}

	query := sq.Select("run_id", "client_name", "input_file", "output_dir", "executed_at", "extraction").
		From("pipeline_runs").
		OrderBy("executed_at DESC")
	if clientName != "" {
		query = query.Where(sq.Eq{"client_name": clientName})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []domain.RunSummary
	index := make(map[string]int)
	for rows.Next() {
		var (
			run        domain.RunSummary
			executed   int64
			extraction sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.ClientName, &run.InputFile, &run.OutputDir, &executed, &extraction); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.ExecutionTime = time.Unix(0, executed)
		if extraction.Valid && extraction.String != "" {
			var summary domain.ExtractionSummary
			if err := json.Unmarshal([]byte(extraction.String), &summary); err == nil {
				run.Extraction = &summary
			}
		}
		index[run.RunID] = len(runs)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}

	if len(runs) == 0 {
		return runs, nil
	}
	if err := h.loadResults(ctx, runs, index); err != nil {
		return nil, err
	}
	return runs, nil
}

func (h *SQLiteHistory) loadResults(ctx context.Context, runs []domain.RunSummary, index map[string]int) error {
	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.RunID)
	}

	stmt, args, err := sq.Select("run_id", "stage", "name", "status", "file", "error", "duration_ns").
		From("stage_results").
		Where(sq.Eq{"run_id": ids}).
		OrderBy("run_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("build results query: %w", err)
	}

	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runID, stage, status string
			duration             int64
			r                    domain.StageResult
		)
		if err := rows.Scan(&runID, &stage, &r.Name, &status, &r.File, &r.Error, &duration); err != nil {
			return fmt.Errorf("scan stage result: %w", err)
		}
		r.Stage = domain.StageTag(stage)
		r.Status = domain.StageRunStatus(status)
		r.Duration = time.Duration(duration)
		i := index[runID]
		runs[i].Results = append(runs[i].Results, r)
	}
	return rows.Err()
}

// SavePressureTest appends one pressure-test batch for the client.
func (h *SQLiteHistory) SavePressureTest(ctx context.Context, clientName string, record domain.PressureTestRecord) error {
	if h.db == nil {
		return nil
	}

	engines := record.Engines
	if engines == nil {
		engines = []string{}
	}
	rawEngines, err := json.Marshal(engines)
	if err != nil {
		return fmt.Errorf("marshal engines: %w", err)
	}

	_, err = sq.Insert("pressure_tests").
		Columns("client_name", "project_id", "tested_at", "engines", "keyword_count", "avg_score", "mention_rate", "trend", "report_file").
		Values(clientName, record.ProjectID, record.TestedAt.UnixMilli(), string(rawEngines), record.KeywordCount, record.AvgScore, record.MentionRate, string(record.Trend), record.ReportFile).
		RunWith(h.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert pressure test: %w", err)
	}
	return nil
}

// LastPressureTest returns the most recent batch for the client, nil when
// there is none.
func (h *SQLiteHistory) LastPressureTest(ctx context.Context, clientName string) (*domain.PressureTestRecord, error) {
	if h.db == nil {
		return nil, nil
	}

	stmt, args, err := sq.Select("project_id", "tested_at", "engines", "keyword_count", "avg_score", "mention_rate", "trend", "report_file").
		From("pressure_tests").
		Where(sq.Eq{"client_name": clientName}).
		OrderBy("tested_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pressure query: %w", err)
	}

	var (
		rec      domain.PressureTestRecord
		testedAt int64
		engines  string
		trend    string
	)
	err = h.db.QueryRowContext(ctx, stmt, args...).Scan(&rec.ProjectID, &testedAt, &engines, &rec.KeywordCount, &rec.AvgScore, &rec.MentionRate, &trend, &rec.ReportFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pressure test: %w", err)
	}

	rec.TestedAt = time.UnixMilli(testedAt)
	rec.Trend = domain.Trend(trend)
	if err := json.Unmarshal([]byte(engines), &rec.Engines); err != nil {
		return nil, fmt.Errorf("decode engines: %w", err)
	}
	return &rec, nil
}
