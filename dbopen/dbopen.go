// Package dbopen opens the SQLite file that holds the inspector's audit
// trail. Pragmas travel in the DSN so every pooled connection gets them,
// not only the first one.
//
//	db, err := dbopen.Open("/var/lib/elemscope/audit.db",
//		dbopen.WithMkdirAll(),
//		dbopen.WithSchema(audit.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(audit.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 10 * time.Second
	defaultSynchronous = "NORMAL"
)

var synchronousModes = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}

type config struct {
	busyTimeout time.Duration
	synchronous string
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets how long a connection waits on a locked database.
// Zero or negative keeps the default of 10s.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithSynchronous sets PRAGMA synchronous: OFF, NORMAL, FULL or EXTRA.
// Empty keeps NORMAL.
func WithSynchronous(mode string) Option {
	return func(c *config) {
		if mode != "" {
			c.synchronous = strings.ToUpper(mode)
		}
	}
}

// WithMkdirAll creates the parent directories of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues SQL to run once the database is open. Statements must
// be idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens the SQLite database at path. ":memory:" opens a private
// in-memory database limited to one connection.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{busyTimeout: defaultBusyTimeout, synchronous: defaultSynchronous}
	for _, o := range opts {
		o(&cfg)
	}
	if !synchronousModes[cfg.synchronous] {
		return nil, fmt.Errorf("dbopen: unknown synchronous mode %q", cfg.synchronous)
	}

	memory := path == ":memory:"
	if cfg.mkdirAll && !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driverName, dsn(path, memory, &cfg))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if memory {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// dsn appends the pragmas as _pragma parameters, which the driver applies
// to each new connection.
func dsn(path string, memory bool, cfg *config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout.Milliseconds()))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.synchronous))
	if !memory {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return path + "?" + q.Encode()
}

// OpenMemory opens an in-memory database closed by t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
