package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// SQLite primary result codes; extended codes carry them in the low byte.
const (
	codeBusy   = 5
	codeLocked = 6
)

// IsBusy reports whether err comes from a locked database.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == codeBusy || code == codeLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

// Retry is the policy for writes that can hit a locked database. The wait
// before attempt n+1 is n*Backoff.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry makes three attempts, waiting 100ms then 200ms.
var DefaultRetry = Retry{Attempts: 3, Backoff: 100 * time.Millisecond}

// Do calls fn until it succeeds, fails with a non-busy error, or the
// attempts run out. The last error is returned as is.
func (r Retry) Do(ctx context.Context, fn func() error) error {
	attempts := max(r.Attempts, 1)
	for i := 1; ; i++ {
		err := fn()
		if err == nil || !IsBusy(err) || i >= attempts {
			return err
		}
		t := time.NewTimer(r.Backoff * time.Duration(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: retry: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// Tx runs fn in a transaction under r. A failed attempt is rolled back
// before the next one.
func (r Retry) Tx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return r.Do(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}
