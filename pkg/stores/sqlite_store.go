package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/madcore/madcore/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config

	// now is replaced in tests.
	now func() time.Time
}

// Config holds SQLite store configuration.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string

	// BusyTimeout is how long a writer waits for a lock held by another process.
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return &SQLiteStore{cfg: cfg, now: time.Now}, nil
}

// OpenSQLiteStore creates, initializes and migrates a store.
func OpenSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) inMemory() bool {
	return s.cfg.Path == ":memory:"
}

func (s *SQLiteStore) dsn() string {
	if s.inMemory() {
		return ":memory:"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds())
}

// Init opens the database connection, creating the parent directory if needed.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if !s.inMemory() {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o700); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if s.inMemory() {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Get returns one value of a section.
func (s *SQLiteStore) Get(ctx context.Context, section, key string) (string, error) {
	query := `SELECT value FROM parameters WHERE section = ? AND key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, section, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%s/%s: %w", section, key, engine.ErrKeyNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get parameter: %w", err)
	}
	return value, nil
}

// GetSection returns every key of a section. A missing section is empty.
func (s *SQLiteStore) GetSection(ctx context.Context, section string) (map[string]string, error) {
	query := `SELECT key, value FROM parameters WHERE section = ?`

	rows, err := s.db.QueryContext(ctx, query, section)
	if err != nil {
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parameters: %w", err)
	}
	return out, nil
}

// SetMany upserts all keys of data into section in one transaction.
func (s *SQLiteStore) SetMany(ctx context.Context, section string, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}

	query := `
		INSERT INTO parameters (section, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(section, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(s.now())
	for k, v := range data {
		if _, err := tx.ExecContext(ctx, query, section, k, v, now); err != nil {
			return fmt.Errorf("failed to set parameter %s/%s: %w", section, k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit parameters: %w", err)
	}
	return nil
}

// DeleteKeys removes keys from a section. Missing keys are ignored.
func (s *SQLiteStore) DeleteKeys(ctx context.Context, section string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := `DELETE FROM parameters WHERE section = ? AND key IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(keys)+1)
	args = append(args, section)
	for _, k := range keys {
		args = append(args, k)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete parameters: %w", err)
	}
	return nil
}

// DeleteSection removes a whole section.
func (s *SQLiteStore) DeleteSection(ctx context.Context, section string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM parameters WHERE section = ?`, section); err != nil {
		return fmt.Errorf("failed to delete section: %w", err)
	}
	return nil
}

// Sections lists the distinct section names starting with prefix, sorted.
func (s *SQLiteStore) Sections(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT DISTINCT section FROM parameters WHERE substr(section, 1, ?) = ? ORDER BY section`

	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	sections := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, name)
	}
	return sections, rows.Err()
}

// StartRun records a new running run.
func (s *SQLiteStore) StartRun(ctx context.Context, kind engine.RunKind, target string) (*engine.RunRecord, error) {
	run := &engine.RunRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		Target:    target,
		Status:    engine.RunStatusRunning,
		StartedAt: s.now().UTC(),
	}

	query := `
		INSERT INTO runs (id, kind, target, status, attempts, started_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, run.ID, run.Kind, run.Target, run.Status, formatTime(run.StartedAt)); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// FinishRun sets the final status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status engine.RunStatus, attempts int, runErr error) error {
	query := `
		UPDATE runs
		SET status = ?, attempts = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	var completedAt *string
	if status.IsTerminal() {
		now := formatTime(s.now())
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, attempts, errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, kind, target, status, attempts, error, started_at, completed_at`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*engine.RunRecord, error) {
	var (
		run         engine.RunRecord
		errMsg      sql.NullString
		startedAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Kind, &run.Target, &run.Status, &run.Attempts, &errMsg, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("bad started_at %q: %w", startedAt, err)
	}
	run.StartedAt = t

	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad completed_at %q: %w", completedAt.String, err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
