// Package dbopen opens SQLite databases with the pragmas this service runs
// on everywhere: WAL journaling, a 10 s busy timeout, NORMAL synchronous,
// and foreign keys enforced. Pragmas are applied with EXEC statements, so
// any database/sql SQLite driver works.
//
// The caller registers the driver; nothing here imports one:
//
//	import _ "modernc.org/sqlite"
//
//	db, err := dbopen.Open(cfg.JournalDB, dbopen.WithMkdirAll())
//
// Tests use OpenMemory, which caps the pool at one connection and hooks
// Close into t.Cleanup.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type settings struct {
	driver      string
	busyTimeout int
	cacheSize   int
	synchronous string
	foreignKeys bool
	mkdirAll    bool
	schemas     []string
	schemaFiles []string
	ping        bool
}

func baseSettings() settings {
	return settings{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		foreignKeys: true,
		ping:        true,
	}
}

// Option adjusts how Open configures the database.
type Option func(*settings)

// WithDriver selects the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(s *settings) { s.driver = name } }

// WithBusyTimeout overrides PRAGMA busy_timeout (milliseconds).
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyTimeout = ms } }

// WithCacheSize sets PRAGMA cache_size; 0 leaves SQLite's default. Negative
// values mean KiB (-64000 = 64 MB).
func WithCacheSize(pages int) Option { return func(s *settings) { s.cacheSize = pages } }

// WithSynchronous overrides PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(s *settings) { s.synchronous = mode } }

// WithMkdirAll creates the database file's parent directories first.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithSchema queues SQL to run once the pragmas are in place.
func WithSchema(sql string) Option {
	return func(s *settings) { s.schemas = append(s.schemas, sql) }
}

// WithSchemaFile queues an .sql file to read and run after the pragmas.
func WithSchemaFile(path string) Option {
	return func(s *settings) { s.schemaFiles = append(s.schemaFiles, path) }
}

// WithoutPing skips the connectivity check after opening.
func WithoutPing() Option { return func(s *settings) { s.ping = false } }

// WithoutForeignKeys turns PRAGMA foreign_keys off.
func WithoutForeignKeys() Option { return func(s *settings) { s.foreignKeys = false } }

// Open opens the SQLite database at path, applies the service pragmas, runs
// any queued schema statements, and verifies connectivity.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := baseSettings()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	if err := setup(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setup(db *sql.DB, cfg *settings) error {
	fk := "ON"
	if !cfg.foreignKeys {
		fk = "OFF"
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA foreign_keys = %s", fk),
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	if cfg.cacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", cfg.cacheSize))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}

	var ddl []string
	for _, f := range cfg.schemaFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("dbopen: read schema file %s: %w", f, err)
		}
		ddl = append(ddl, string(data))
	}
	ddl = append(ddl, cfg.schemas...)
	for _, s := range ddl {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}

	if cfg.ping {
		if err := db.Ping(); err != nil {
			return fmt.Errorf("dbopen: ping: %w", err)
		}
	}
	return nil
}

// OpenMemory opens an in-memory database for a test and registers cleanup
// on t. The pool is capped at one connection: every connection to
// ":memory:" would otherwise get its own empty database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
