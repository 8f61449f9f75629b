// Package ledger keeps a SQLite history of consolidation runs and the
// artifacts each run produced.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const (
	defaultDir = ".toolforge"
	defaultDB  = "ledger.db"

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ArtifactStatus is what happened to one artifact during a run.
type ArtifactStatus string

const (
	StatusWritten ArtifactStatus = "written"
	StatusPlanned ArtifactStatus = "planned"
	StatusFailed  ArtifactStatus = "failed"
	StatusInSync  ArtifactStatus = "in-sync"
	StatusDrifted ArtifactStatus = "drifted"
)

// Run is one recorded invocation of the pipeline.
type Run struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Mode       string     `json:"mode"`
	DryRun     bool       `json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	ExitCode   int        `json:"exit_code"`
	Errors     int        `json:"errors"`
	Warnings   int        `json:"warnings"`
	Generated  int        `json:"generated"`
	Failed     int        `json:"failed"`
	Sources    []string   `json:"sources,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Artifact is one file a run rendered, wrote, or compared.
type Artifact struct {
	RunID  string         `json:"run_id,omitempty"`
	Tool   string         `json:"tool"`
	Kind   string         `json:"kind"`
	Path   string         `json:"path"`
	SHA256 string         `json:"sha256,omitempty"`
	Status ArtifactStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// Config configures the SQLite ledger.
type Config struct {
	// DSN is the database path or connection string.
	DSN string
	// Retain keeps at most this many runs on Prune (0 keeps everything).
	Retain int
}

// Store persists runs in SQLite.
type Store struct {
	db     *sql.DB
	retain int
}

// DefaultPath returns ~/.toolforge/ledger.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ledger: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultDir, defaultDB), nil
}

// Open opens (or creates) a ledger database.
func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("ledger: dsn is required")
	}
	if !strings.Contains(cfg.DSN, ":memory:") && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &Store{db: db, retain: cfg.Retain}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a run and its artifacts in one transaction. A run without
// an ID gets a fresh UUID; the stored run is returned.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	if s == nil || s.db == nil {
		return Run{}, errors.New("ledger: store is nil")
	}
	if strings.TrimSpace(run.Command) == "" {
		return Run{}, errors.New("ledger: run command is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()

	sources, err := json.Marshal(nonNil(run.Sources))
	if err != nil {
		return Run{}, fmt.Errorf("ledger: marshal sources: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, command, mode, dry_run, started_at, finished_at, exit_code, errors, warnings, generated, failed, sources)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Command,
		run.Mode,
		boolInt(run.DryRun),
		run.StartedAt.Format(timeLayout),
		run.FinishedAt.Format(timeLayout),
		run.ExitCode,
		run.Errors,
		run.Warnings,
		run.Generated,
		run.Failed,
		string(sources),
	)
	if err != nil {
		return Run{}, fmt.Errorf("ledger: insert run: %w", err)
	}

	for i := range run.Artifacts {
		a := &run.Artifacts[i]
		a.RunID = run.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (run_id, tool, kind, path, sha256, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.RunID, a.Tool, a.Kind, a.Path, a.SHA256, string(a.Status), a.Error,
		); err != nil {
			return Run{}, fmt.Errorf("ledger: insert artifact %s/%s: %w", a.Tool, a.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("ledger: commit: %w", err)
	}

	if s.retain > 0 {
		if err := s.Prune(ctx, s.retain); err != nil {
			return run, err
		}
	}
	return run, nil
}

const runColumns = `id, command, mode, dry_run, started_at, finished_at, exit_code, errors, warnings, generated, failed, sources`

// Runs returns the most recent runs, newest first, without their
// artifacts. limit <= 0 returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: store is nil")
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run with its artifacts.
func (s *Store) Get(ctx context.Context, id string) (Run, bool, error) {
	if s == nil || s.db == nil {
		return Run{}, false, errors.New("ledger: store is nil")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, tool, kind, path, sha256, status, error FROM artifacts WHERE run_id = ? ORDER BY tool, kind`, id)
	if err != nil {
		return Run{}, false, fmt.Errorf("ledger: list artifacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return Run{}, false, err
		}
		run.Artifacts = append(run.Artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return Run{}, false, fmt.Errorf("ledger: artifact rows: %w", err)
	}
	return run, true, nil
}

// LastWritten returns the most recent written artifact of a tool and kind.
func (s *Store) LastWritten(ctx context.Context, tool, kind string) (Artifact, bool, error) {
	if s == nil || s.db == nil {
		return Artifact{}, false, errors.New("ledger: store is nil")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT a.run_id, a.tool, a.kind, a.path, a.sha256, a.status, a.error
FROM artifacts a JOIN runs r ON r.id = a.run_id
WHERE a.tool = ? AND a.kind = ? AND a.status = ?
ORDER BY r.started_at DESC, a.id DESC
LIMIT 1`, tool, kind, string(StatusWritten))
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, err
	}
	return a, true, nil
}

// Prune keeps the newest keep runs and deletes the rest with their
// artifacts.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stale = `SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return fmt.Errorf("ledger: prune artifacts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep); err != nil {
		return fmt.Errorf("ledger: prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit prune: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run                   Run
		dryRun                int
		startedAt, finishedAt string
		sources               string
	)
	err := row.Scan(
		&run.ID,
		&run.Command,
		&run.Mode,
		&dryRun,
		&startedAt,
		&finishedAt,
		&run.ExitCode,
		&run.Errors,
		&run.Warnings,
		&run.Generated,
		&run.Failed,
		&sources,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("ledger: scan run: %w", err)
	}
	run.DryRun = dryRun != 0
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, fmt.Errorf("ledger: parse time %q: %w", startedAt, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return Run{}, fmt.Errorf("ledger: parse time %q: %w", finishedAt, err)
	}
	if err := json.Unmarshal([]byte(sources), &run.Sources); err != nil {
		return Run{}, fmt.Errorf("ledger: unmarshal sources: %w", err)
	}
	if len(run.Sources) == 0 {
		run.Sources = nil
	}
	return run, nil
}

func scanArtifact(row scanner) (Artifact, error) {
	var (
		a      Artifact
		status string
	)
	err := row.Scan(&a.RunID, &a.Tool, &a.Kind, &a.Path, &a.SHA256, &status, &a.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, err
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("ledger: scan artifact: %w", err)
	}
	a.Status = ArtifactStatus(status)
	return a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
