// SPDX-License-Identifier: MPL-2.0

// Package history keeps a SQLite journal with one row per settled run.
// It listens to orchestrator terminal events and never feeds back into
// run control.
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

	"github.com/perseusxr/magicopt/internal/logging"
	"github.com/perseusxr/magicopt/internal/orchestrator"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// MemoryDSN opens a private in-memory database.
	MemoryDSN = ":memory:"

	// DefaultListLimit is used by List when limit is not positive.
	DefaultListLimit = 20

	// Fixed width so text order matches time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found in history")

type (
	// Entry is one journaled run.
	Entry struct {
		RunID           string              `json:"runId"`
		Phase           string              `json:"phase"`
		Categories      []string            `json:"categories"`
		Profile         string              `json:"profile"`
		DryRun          bool                `json:"dryRun"`
		Status          orchestrator.Status `json:"status"`
		StartedAt       time.Time           `json:"startedAt"`
		EndedAt         time.Time           `json:"endedAt"`
		Message         string              `json:"message"`
		AssetsProcessed int                 `json:"assetsProcessed"`
		AssetsModified  int                 `json:"assetsModified"`
		Strategy        string              `json:"strategy,omitempty"`
		Errors          []string            `json:"errors,omitempty"`
		Warnings        []string            `json:"warnings,omitempty"`
	}

	// Subscriber is the part of the orchestrator the store attaches to.
	Subscriber interface {
		Subscribe(handler func(orchestrator.Event)) error
	}

	// Store is a SQLite-backed run journal.
	Store struct {
		db     *sql.DB
		logger *log.Logger
	}

	// Option configures a Store.
	Option func(*Store)
)

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Duration is EndedAt-StartedAt.
func (e Entry) Duration() time.Duration {
	if e.EndedAt.Before(e.StartedAt) {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// EntryFromEvent converts a terminal event into an Entry. It returns false
// for progress events.
func EntryFromEvent(ev orchestrator.Event) (Entry, bool) {
	if !ev.Kind.IsTerminal() {
		return Entry{}, false
	}
	snap := ev.Snapshot
	req := snap.Request
	e := Entry{
		RunID:           snap.RunID,
		Phase:           req.Phase().String(),
		Categories:      req.Categories().Labels(),
		Profile:         req.Profile(),
		DryRun:          req.DryRun(),
		Status:          snap.Status,
		StartedAt:       snap.StartTime,
		EndedAt:         snap.EndTime,
		AssetsProcessed: snap.AssetsProcessed,
	}
	if res := ev.Result; res != nil {
		e.Message = res.Message
		e.AssetsProcessed = max(e.AssetsProcessed, res.AssetsProcessed)
		e.AssetsModified = res.AssetsModified
		e.Strategy = res.Strategy
		e.Errors = res.Errors
		e.Warnings = res.Warnings
	}
	return e, true
}

// Open opens or creates the journal at path. Parent directories are created.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes are serialized and :memory: stays one database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			categories TEXT NOT NULL,
			profile TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			assets_processed INTEGER NOT NULL DEFAULT 0,
			assets_modified INTEGER NOT NULL DEFAULT 0,
			strategy TEXT NOT NULL DEFAULT '',
			errors TEXT,
			warnings TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts e, replacing an earlier row with the same run id.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return errors.New("record run: empty run id")
	}
	if err := e.Status.Validate(); err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}

	categories, err := json.Marshal(nonNil(e.Categories))
	if err != nil {
		return err
	}
	errs, err := json.Marshal(nonNil(e.Errors))
	if err != nil {
		return err
	}
	warnings, err := json.Marshal(nonNil(e.Warnings))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, phase, categories, profile, dry_run, status, started_at, ended_at,
			message, assets_processed, assets_modified, strategy, errors, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Phase, string(categories), e.Profile, e.DryRun, e.Status.String(),
		formatTime(e.StartedAt), formatTime(e.EndedAt),
		e.Message, e.AssetsProcessed, e.AssetsModified, e.Strategy, string(errs), string(warnings))
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

const selectColumns = `SELECT run_id, phase, categories, profile, dry_run, status, started_at, ended_at,
	message, assets_processed, assets_modified, strategy, errors, warnings FROM runs`

// List returns the newest entries first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry for runID or ErrNotFound.
func (s *Store) Get(ctx context.Context, runID string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectColumns+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return e, err
}

// Handler returns an event handler that records terminal events. Failures
// are logged only.
func (s *Store) Handler(ctx context.Context) func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		e, ok := EntryFromEvent(ev)
		if !ok {
			return
		}
		if err := s.Record(ctx, e); err != nil {
			s.logger.Error("failed to record run", "run", e.RunID, "err", err)
			return
		}
		s.logger.Debug("run recorded", "run", e.RunID, "status", e.Status)
	}
}

// Attach subscribes the store to sub.
func (s *Store) Attach(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe(s.Handler(ctx))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                      Entry
		status, started, ended string
		categories             string
		errs, warnings         sql.NullString
	)
	if err := row.Scan(&e.RunID, &e.Phase, &categories, &e.Profile, &e.DryRun, &status, &started, &ended,
		&e.Message, &e.AssetsProcessed, &e.AssetsModified, &e.Strategy, &errs, &warnings); err != nil {
		return Entry{}, err
	}

	var err error
	if e.Status, err = orchestrator.ParseStatus(status); err != nil {
		return Entry{}, fmt.Errorf("run %s: %w", e.RunID, err)
	}
	if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Entry{}, fmt.Errorf("run %s: started_at: %w", e.RunID, err)
	}
	if e.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
		return Entry{}, fmt.Errorf("run %s: ended_at: %w", e.RunID, err)
	}
	if err := json.Unmarshal([]byte(categories), &e.Categories); err != nil {
		return Entry{}, fmt.Errorf("run %s: categories: %w", e.RunID, err)
	}
	if e.Errors, err = decodeList(errs); err != nil {
		return Entry{}, fmt.Errorf("run %s: errors: %w", e.RunID, err)
	}
	if e.Warnings, err = decodeList(warnings); err != nil {
		return Entry{}, fmt.Errorf("run %s: warnings: %w", e.RunID, err)
	}
	return e, nil
}

func decodeList(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
