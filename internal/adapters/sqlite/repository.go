package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fxHistory/internal/domain"
	"fxHistory/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.MinuteBarRepository and ports.SyncRunRepository interfaces using
// SQLite. It also serves as a ports.BarSource for offline synchronization.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/history.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %v: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %v: %w", dbPath, err, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// a single connection serializes writers, SQLite allows only one at a time anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS minute_bars (
		symbol TEXT NOT NULL,
		time INTEGER NOT NULL, -- seconds, server time base
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		ticks INTEGER NOT NULL,
		spread INTEGER NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, time)
	) WITHOUT ROWID;

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY, -- ULID, sorts by creation time
		symbol TEXT NOT NULL,
		feed TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		appended INTEGER NOT NULL,
		synchronized INTEGER NOT NULL,
		last_sync_time INTEGER NOT NULL,
		error TEXT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_symbol ON sync_runs (symbol, id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- MinuteBarRepository Implementation ---

// SaveMinuteBars inserts bars of a symbol, replacing rows with the same time.
func (r *Repository) SaveMinuteBars(ctx context.Context, symbol string, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	const query = `
	INSERT INTO minute_bars (symbol, time, open, high, low, close, ticks, spread, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close,
		ticks = excluded.ticks, spread = excluded.spread, volume = excluded.volume`

	symbol = strings.ToUpper(symbol)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v: %w", err, ports.ErrQueryFailed)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare minute bar insert: %v: %w", err, ports.ErrQueryFailed)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Ticks, b.Spread, b.Volume); err != nil {
			return 0, fmt.Errorf("failed to insert minute bar %d of %s: %v: %w", b.Time, symbol, err, ports.ErrQueryFailed)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit minute bars of %s: %v: %w", symbol, err, ports.ErrQueryFailed)
	}
	r.logger.Debug(ctx, "Minute bars saved", map[string]interface{}{"symbol": symbol, "count": len(bars)})
	return len(bars), nil
}

// MinuteBars retrieves bars with from <= time < to ordered by time.
func (r *Repository) MinuteBars(ctx context.Context, symbol string, from, to int64) ([]domain.Bar, error) {
	const query = `
	SELECT time, open, high, low, close, ticks, spread, volume
	FROM minute_bars
	WHERE symbol = ? AND time >= ? AND time < ?
	ORDER BY time`

	rows, err := r.db.QueryContext(ctx, query, strings.ToUpper(symbol), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query minute bars for symbol %s: %v: %w", symbol, err, ports.ErrQueryFailed)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0)
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan minute bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating minute bar rows: %w", err)
	}
	return bars, nil
}

// LatestMinuteBarTime returns the time of the newest stored bar of a symbol.
func (r *Repository) LatestMinuteBarTime(ctx context.Context, symbol string) (int64, bool, error) {
	const query = `SELECT MAX(time) FROM minute_bars WHERE symbol = ?`
	var t sql.NullInt64
	if err := r.db.QueryRowContext(ctx, query, strings.ToUpper(symbol)).Scan(&t); err != nil {
		return 0, false, fmt.Errorf("failed to query latest minute bar of %s: %v: %w", symbol, err, ports.ErrQueryFailed)
	}
	return t.Int64, t.Valid, nil
}

// --- SyncRunRepository Implementation ---

// CreateSyncRun saves a finished synchronization run.
func (r *Repository) CreateSyncRun(ctx context.Context, run *ports.SyncRun) error {
	const query = `
	INSERT INTO sync_runs (id, symbol, feed, started_at, finished_at, appended, synchronized, last_sync_time, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.ID, strings.ToUpper(run.Symbol), run.Feed, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Appended, run.Synchronized, run.LastSyncTime, runErr)
	if err != nil {
		return fmt.Errorf("failed to insert sync run %s: %v: %w", run.ID, err, ports.ErrQueryFailed)
	}
	r.logger.Debug(ctx, "Sync run recorded", map[string]interface{}{"runID": run.ID, "symbol": run.Symbol})
	return nil
}

// LastSyncRun returns the most recent run of a symbol, or nil if there is none.
func (r *Repository) LastSyncRun(ctx context.Context, symbol string) (*ports.SyncRun, error) {
	const query = `
	SELECT id, symbol, feed, started_at, finished_at, appended, synchronized, last_sync_time, error
	FROM sync_runs
	WHERE symbol = ? ORDER BY id DESC LIMIT 1`

	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, strings.ToUpper(symbol)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No sync run found for symbol", map[string]interface{}{"symbol": symbol})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query last sync run for symbol %s: %v: %w", symbol, err, ports.ErrQueryFailed)
	}
	return run, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBar(s scanner) (domain.Bar, error) {
	var b domain.Bar
	err := s.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Ticks, &b.Spread, &b.Volume)
	return b, err
}

func scanSyncRun(s scanner) (*ports.SyncRun, error) {
	run := &ports.SyncRun{}
	var runErr sql.NullString
	err := s.Scan(&run.ID, &run.Symbol, &run.Feed, &run.StartedAt, &run.FinishedAt,
		&run.Appended, &run.Synchronized, &run.LastSyncTime, &runErr)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	run.Error = runErr.String
	return run, nil
}
