// Package archive keeps finished benchmark runs in a local SQLite database.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DjordjeVuckovic/pgbench/internal/bench/metrics"
	"github.com/DjordjeVuckovic/pgbench/internal/bench/report"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("archive: run not found")

// RunRecord is the summary row of an archived run.
type RunRecord struct {
	ID            string    `json:"id"`
	Strategy      string    `json:"strategy"`
	SQL           string    `json:"sql"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Total         int       `json:"total"`
	Successful    int       `json:"successful"`
	Failed        int       `json:"failed"`
	ThroughputQPS float64   `json:"throughput_qps"`
	AvgMs         float64   `json:"avg_ms"`
	P95Ms         float64   `json:"p95_ms"`
}

type Archive struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("archive: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: failed to initialize schema: %w", err)
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id             TEXT PRIMARY KEY,
			strategy       TEXT NOT NULL,
			sql_text       TEXT NOT NULL,
			started_at     INTEGER NOT NULL,
			ended_at       INTEGER NOT NULL,
			total          INTEGER NOT NULL,
			successful     INTEGER NOT NULL,
			failed         INTEGER NOT NULL,
			throughput_qps REAL NOT NULL,
			avg_ms         REAL NOT NULL,
			p95_ms         REAL NOT NULL,
			document       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

		CREATE TABLE IF NOT EXISTS executions (
			run_uuid    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			run_id      INTEGER NOT NULL,
			start_time  INTEGER NOT NULL,
			duration_us REAL NOT NULL,
			success     INTEGER NOT NULL,
			error       TEXT,
			error_kind  TEXT,
			attempts    INTEGER NOT NULL,
			row_count   INTEGER NOT NULL,
			PRIMARY KEY (run_uuid, run_id)
		);`)
	return err
}

// Save stores the document and its raw executions in one transaction.
// Saving an id twice replaces the earlier run.
func (a *Archive) Save(ctx context.Context, doc *report.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored := *doc
	stored.Executions = nil
	data, err := report.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM executions WHERE run_uuid = ?`, doc.Metadata.ID); err != nil {
		return fmt.Errorf("archive: clear executions: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, strategy, sql_text, started_at, ended_at,
			total, successful, failed, throughput_qps, avg_ms, p95_ms, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.Metadata.ID,
		doc.Metadata.Strategy,
		doc.Metadata.SQL,
		doc.Metadata.StartTime.UnixNano(),
		doc.Metadata.EndTime.UnixNano(),
		doc.Summary.Total,
		doc.Summary.Successful,
		doc.Summary.Failed,
		doc.Summary.ThroughputQPS,
		doc.Summary.AvgMs,
		doc.Statistics.Percentiles["p95"],
		string(data),
	)
	if err != nil {
		return fmt.Errorf("archive: insert run: %w", err)
	}

	if len(doc.Executions) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO executions (
				run_uuid, run_id, start_time, duration_us, success, error, error_kind, attempts, row_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("archive: prepare executions: %w", err)
		}
		defer stmt.Close()

		for _, e := range doc.Executions {
			_, err := stmt.ExecContext(ctx,
				doc.Metadata.ID, e.RunID, e.StartTime.UnixNano(), e.DurationUs(),
				e.Success, nullString(e.Error), nullString(e.ErrorKind), e.Attempts, e.RowCount,
			)
			if err != nil {
				return fmt.Errorf("archive: insert execution %d: %w", e.RunID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Load returns the stored document with its raw executions.
func (a *Archive) Load(ctx context.Context, id string) (*report.Document, error) {
	var data string
	err := a.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: load run: %w", err)
	}

	var doc report.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("archive: decode document: %w", err)
	}

	execs, err := a.executions(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Executions = execs
	return &doc, nil
}

func (a *Archive) executions(ctx context.Context, id string) ([]metrics.QueryExecution, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT run_id, start_time, duration_us, success, error, error_kind, attempts, row_count
		FROM executions WHERE run_uuid = ? ORDER BY run_id`, id)
	if err != nil {
		return nil, fmt.Errorf("archive: query executions: %w", err)
	}
	defer rows.Close()

	var out []metrics.QueryExecution
	for rows.Next() {
		var (
			e          metrics.QueryExecution
			start      int64
			durationUs float64
			errText    sql.NullString
			errKind    sql.NullString
		)
		if err := rows.Scan(&e.RunID, &start, &durationUs, &e.Success, &errText, &errKind, &e.Attempts, &e.RowCount); err != nil {
			return nil, fmt.Errorf("archive: scan execution: %w", err)
		}
		e.StartTime = time.Unix(0, start).UTC()
		e.Duration = time.Duration(durationUs * float64(time.Microsecond))
		e.EndTime = e.StartTime.Add(e.Duration)
		e.Error = errText.String
		e.ErrorKind = errKind.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns up to limit runs, most recent first, skipping the first offset.
func (a *Archive) List(ctx context.Context, limit, offset int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, strategy, sql_text, started_at, ended_at, total, successful, failed, throughput_qps, avg_ms, p95_ms
		FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("archive: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			start, end int64
		)
		if err := rows.Scan(&r.ID, &r.Strategy, &r.SQL, &start, &end, &r.Total, &r.Successful, &r.Failed, &r.ThroughputQPS, &r.AvgMs, &r.P95Ms); err != nil {
			return nil, fmt.Errorf("archive: scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, start).UTC()
		r.EndedAt = time.Unix(0, end).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count runs: %w", err)
	}
	return n, nil
}

func (a *Archive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM executions WHERE run_uuid = ?`, id); err != nil {
		return fmt.Errorf("archive: delete executions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive: delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
