// Package persistence provides SQLite-based storage of simulation runs: one row per
// run, every tick's readings, and the journal of notable events.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/macro-sim/internal/economy"
	"github.com/talgya/macro-sim/internal/engine"
)

// ErrNoRuns is returned when the database holds no runs yet.
var ErrNoRuns = errors.New("no runs recorded")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		config_yaml TEXT NOT NULL,
		start_money REAL NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		last_tick INTEGER NOT NULL DEFAULT 0,
		fatal TEXT
	);

	CREATE TABLE IF NOT EXISTS readings (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		key TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, tick, key)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one row of the runs table.
type Run struct {
	ID         string         `db:"id" json:"id"`
	Seed       int64          `db:"seed" json:"seed"`
	ConfigYAML string         `db:"config_yaml" json:"-"`
	StartMoney float64        `db:"start_money" json:"start_money"`
	StartedAt  string         `db:"started_at" json:"started_at"`
	FinishedAt sql.NullString `db:"finished_at" json:"-"`
	LastTick   uint64         `db:"last_tick" json:"last_tick"`
	Fatal      sql.NullString `db:"fatal" json:"-"`
}

// Recorder writes one run's ticks. It implements engine.Collector.
type Recorder struct {
	db    *DB
	RunID string
}

// StartRun inserts a new run row and returns a recorder bound to it.
func (db *DB) StartRun(seed int64, configYAML string, startMoney float64) (*Recorder, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, seed, config_yaml, start_money, started_at) VALUES (?, ?, ?, ?, ?)",
		id, seed, configYAML, startMoney, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run started", "run_id", id, "seed", seed)
	return &Recorder{db: db, RunID: id}, nil
}

// Collect stores the tick's readings and events in one transaction.
func (r *Recorder) Collect(tick uint64, readings engine.Readings, events []economy.Entry) error {
	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO readings (run_id, tick, key, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range readings.Keys() {
		if _, err := stmt.Exec(r.RunID, tick, k, readings[k]); err != nil {
			return fmt.Errorf("insert reading %s at tick %d: %w", k, tick, err)
		}
	}
	if err := r.insertEvents(tx, events); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE runs SET last_tick = ? WHERE id = ?", tick, r.RunID); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveEvents appends events outside of a tick, e.g. the hiring journal written at setup.
func (r *Recorder) SaveEvents(events []economy.Entry) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.insertEvents(tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Recorder) insertEvents(tx *sqlx.Tx, events []economy.Entry) error {
	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (run_id, tick, description, category) VALUES (?, ?, ?, ?)",
			r.RunID, e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

// Finish marks the run complete. A non-nil fatal error is stored on the row.
func (r *Recorder) Finish(fatal error) error {
	var msg sql.NullString
	if fatal != nil {
		msg = sql.NullString{String: fatal.Error(), Valid: true}
	}
	_, err := r.db.conn.Exec("UPDATE runs SET finished_at = ?, fatal = ? WHERE id = ?", now(), msg, r.RunID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.RunID, err)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun() (*Run, error) {
	var run Run
	err := db.conn.Get(&run, "SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(id string) (*Run, error) {
	var run Run
	if err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return &run, nil
}

// FinalReadings returns the readings of the last tick recorded for the run.
func (db *DB) FinalReadings(runID string) (uint64, engine.Readings, error) {
	var tick uint64
	err := db.conn.Get(&tick, "SELECT COALESCE(MAX(tick), 0) FROM readings WHERE run_id = ?", runID)
	if err != nil {
		return 0, nil, err
	}
	r, err := db.ReadingsAt(runID, tick)
	return tick, r, err
}

// ReadingsAt returns the readings recorded for one tick of the run.
func (db *DB) ReadingsAt(runID string, tick uint64) (engine.Readings, error) {
	var rows []struct {
		Key   string  `db:"key"`
		Value float64 `db:"value"`
	}
	err := db.conn.Select(&rows, "SELECT key, value FROM readings WHERE run_id = ? AND tick = ?", runID, tick)
	if err != nil {
		return nil, err
	}
	r := make(engine.Readings, len(rows))
	for _, row := range rows {
		r[row.Key] = row.Value
	}
	return r, nil
}

// Series returns one reading's value for every recorded tick, oldest first.
func (db *DB) Series(runID, key string) ([]float64, error) {
	var values []float64
	err := db.conn.Select(&values,
		"SELECT value FROM readings WHERE run_id = ? AND key = ? ORDER BY tick",
		runID, key,
	)
	return values, err
}

// Events returns the run's journal, optionally filtered by category, oldest first.
func (db *DB) Events(runID, category string, limit int) ([]economy.Entry, error) {
	query := "SELECT tick, description, category FROM events WHERE run_id = ?"
	args := []any{runID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var events []economy.Entry
	err := db.conn.Select(&events, query, args...)
	return events, err
}

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
