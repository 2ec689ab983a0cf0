// Package history keeps a local record of probe runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vburojevic/mprobe/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Run is one row of the history.
type Run struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Device          string         `json:"device"`
	SessionID       string         `json:"scid"`
	Port            int            `json:"port"`
	VersionObserved string         `json:"version_observed"`
	VersionExpected string         `json:"version_expected"`
	VersionMatches  bool           `json:"version_matches"`
	Verdict         domain.Verdict `json:"verdict"`
	Code            domain.Kind    `json:"code,omitempty"`
	Error           string         `json:"error,omitempty"`
	Bytes           int            `json:"bytes"`
	DeviceName      string         `json:"device_name,omitempty"`
	NameState       string         `json:"name_state,omitempty"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished report. Recording the same run twice replaces
// the earlier row.
func (s *Store) Record(ctx context.Context, r *domain.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	run := runFromReport(r)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs(run_id, started_at, finished_at, device, scid, port, version_observed, version_expected, version_matches, verdict, code, error, bytes, device_name, name_state, report_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	finished_at=excluded.finished_at,
	verdict=excluded.verdict,
	code=excluded.code,
	error=excluded.error,
	bytes=excluded.bytes,
	device_name=excluded.device_name,
	name_state=excluded.name_state,
	report_json=excluded.report_json
`, run.RunID, ts(run.StartedAt), ts(run.FinishedAt), run.Device, run.SessionID, run.Port,
		run.VersionObserved, run.VersionExpected, boolToInt(run.VersionMatches),
		string(run.Verdict), string(run.Code), run.Error, run.Bytes, run.DeviceName, run.NameState, string(payload))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. device filters by serial
// when non-empty.
func (s *Store) Recent(ctx context.Context, limit int, device string) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT run_id, started_at, finished_at, device, scid, port, version_observed, version_expected, version_matches, verdict, code, error, bytes, device_name, name_state FROM runs`
	args := []any{}
	if device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Report returns the full stored report for runID.
func (s *Store) Report(ctx context.Context, runID string) (*domain.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var r domain.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// Prune deletes runs that started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func runFromReport(r *domain.Report) Run {
	run := Run{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Device:     r.Device,
		SessionID:  r.SessionID,
		Port:       r.VideoPort,
		Verdict:    r.Verdict,
		Code:       r.Code,
		Error:      r.Error,
	}
	if v := r.Version; v != nil {
		run.VersionObserved = v.Observed
		run.VersionExpected = v.Expected
		run.VersionMatches = v.Matches
	}
	if h := r.Handshake; h != nil {
		run.Bytes = h.Frame.Length
		run.DeviceName = h.Frame.Name
		run.NameState = string(h.Frame.NameState)
	}
	return run
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run               Run
		started, finished string
		matches           int
		verdict, code     string
	)
	if err := scanner.Scan(&run.RunID, &started, &finished, &run.Device, &run.SessionID, &run.Port,
		&run.VersionObserved, &run.VersionExpected, &matches, &verdict, &code, &run.Error,
		&run.Bytes, &run.DeviceName, &run.NameState); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = parseTS(started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = parseTS(finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	run.VersionMatches = matches != 0
	run.Verdict = domain.Verdict(verdict)
	run.Code = domain.Kind(code)
	return run, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// tsLayout keeps a fixed-width fraction so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
