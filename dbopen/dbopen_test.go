package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/elemscope/dbopen"
)

func pragma(t *testing.T, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, name string) int {
	t.Helper()
	var v int
	if err := q.QueryRowContext(context.Background(), "PRAGMA "+name).Scan(&v); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return v
}

func TestOpen_Defaults(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if got := pragma(t, db, "busy_timeout"); got != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", got)
	}
	if got := pragma(t, db, "synchronous"); got != 1 {
		t.Fatalf("synchronous = %d, want 1 (NORMAL)", got)
	}
}

func TestOpen_Options(t *testing.T) {
	tests := []struct {
		name   string
		opts   []dbopen.Option
		pragma string
		want   int
	}{
		{"busy timeout", []dbopen.Option{dbopen.WithBusyTimeout(2500 * time.Millisecond)}, "busy_timeout", 2500},
		{"zero busy timeout keeps default", []dbopen.Option{dbopen.WithBusyTimeout(0)}, "busy_timeout", 10_000},
		{"synchronous full", []dbopen.Option{dbopen.WithSynchronous("full")}, "synchronous", 2},
		{"synchronous off", []dbopen.Option{dbopen.WithSynchronous("OFF")}, "synchronous", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbopen.OpenMemory(t, tt.opts...)
			if got := pragma(t, db, tt.pragma); got != tt.want {
				t.Fatalf("%s = %d, want %d", tt.pragma, got, tt.want)
			}
		})
	}
}

func TestOpen_UnknownSynchronous(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSynchronous("sometimes")); err == nil {
		t.Fatal("expected error for unknown synchronous mode")
	}
}

func TestOpen_FilePragmasOnEveryConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "audit.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithBusyTimeout(3*time.Second),
		dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS entries (id TEXT PRIMARY KEY)`))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file: %v", err)
	}

	ctx := context.Background()
	c1, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for i, c := range []*sql.Conn{c1, c2} {
		if got := pragma(t, c, "busy_timeout"); got != 3000 {
			t.Errorf("conn %d: busy_timeout = %d, want 3000", i, got)
		}
		var journal string
		c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal)
		if journal != "wal" {
			t.Errorf("conn %d: journal_mode = %q, want wal", i, journal)
		}
	}
	if _, err := db.Exec(`INSERT INTO entries (id) VALUES ('a')`); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSchema(`CREATE TABLE (`)); err == nil {
		t.Fatal("expected schema error")
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table: entries"), false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsBusy_LockedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	schema := dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS entries (id TEXT PRIMARY KEY)`)
	holder, err := dbopen.Open(path, schema)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	writer, err := dbopen.Open(path, schema, dbopen.WithBusyTimeout(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	ctx := context.Background()
	conn, err := holder.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatal(err)
	}

	_, err = writer.Exec(`INSERT INTO entries (id) VALUES ('x')`)
	if !dbopen.IsBusy(err) {
		t.Fatalf("write under lock: got %v, want a busy error", err)
	}

	conn.ExecContext(ctx, "COMMIT")
	if _, err := writer.Exec(`INSERT INTO entries (id) VALUES ('x')`); err != nil {
		t.Fatalf("write after unlock: %v", err)
	}
}

func TestRetry_Do(t *testing.T) {
	busy := errors.New("database is locked")
	other := errors.New("constraint failed")
	r := dbopen.Retry{Attempts: 3, Backoff: time.Millisecond}
	ctx := context.Background()

	tests := []struct {
		name      string
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"first try", []error{nil}, 1, nil},
		{"busy then ok", []error{busy, busy, nil}, 3, nil},
		{"non-busy stops", []error{other, nil}, 1, other},
		{"attempts exhausted", []error{busy, busy, busy, nil}, 3, busy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := r.Do(ctx, func() error {
				err := tt.results[calls]
				calls++
				return err
			})
			if calls != tt.wantCalls || !errors.Is(err, tt.wantErr) {
				t.Fatalf("calls=%d err=%v, want calls=%d err=%v", calls, err, tt.wantCalls, tt.wantErr)
			}
		})
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err := r.Do(cctx, func() error { return busy })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled: got %v", err)
	}
}

func TestRetry_Tx(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE entries (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	if err := dbopen.DefaultRetry.Tx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO entries (id) VALUES ('kept')`)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	sentinel := errors.New("rollback")
	err := dbopen.DefaultRetry.Tx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO entries (id) VALUES ('dropped')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Tx error = %v", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n)
	if n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
}
