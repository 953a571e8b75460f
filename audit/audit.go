// Package audit records inspector activity in SQLite: every endpoint call
// (whatever the transport) and every event the inspector emits.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/elemscope/dbopen"
	"github.com/hazyhaar/elemscope/idgen"
	"github.com/hazyhaar/elemscope/inspector/message"
	"github.com/hazyhaar/elemscope/kit"
)

// Schema creates the audit_log table. Pass it to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	remote_addr   TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	result        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action, timestamp);
`

const (
	batchSize     = 32
	flushInterval = 500 * time.Millisecond
)

// Entry is one audit row.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"` // epoch milliseconds
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	RequestID  string `json:"request_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Parameters string `json:"parameters,omitempty"` // JSON
	Result     string `json:"result,omitempty"`     // JSON
	Error      string `json:"error,omitempty"`
	Status     string `json:"status"` // success | error
	DurationMs int64  `json:"duration_ms"`
}

// SQLiteLogger writes entries to the audit_log table. Async entries are
// batched by a background goroutine; Close flushes them.
type SQLiteLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger
	retry  dbopen.Retry

	mu     sync.Mutex
	closed bool
	ch     chan *Entry
	done   chan struct{}
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator sets the entry ID generator. Default: aud_ + UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = g }
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.logger = logger }
}

// WithRetry sets the retry policy of batch flushes. Default:
// dbopen.DefaultRetry.
func WithRetry(r dbopen.Retry) Option {
	return func(l *SQLiteLogger) { l.retry = r }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *SQLiteLogger) { l.now = now }
}

// Open opens the audit database at path, creating its directory and the
// audit_log table.
func Open(path string, opts ...dbopen.Option) (*sql.DB, error) {
	opts = append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	return db, nil
}

// NewSQLiteLogger creates a logger on db and starts its writer. db must
// carry Schema.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:     db,
		newID:  idgen.Prefixed("aud_", idgen.Default),
		now:    time.Now,
		logger: slog.Default(),
		retry:  dbopen.DefaultRetry,
		ch:     make(chan *Entry, 256),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.run()
	return l
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Status == "" {
		e.Status = "success"
		if e.Error != "" {
			e.Status = "error"
		}
	}
}

// Log writes e synchronously, in a single attempt. Busy errors are left to
// the caller (see dbopen.IsBusy).
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	_, err := l.db.ExecContext(ctx, insertSQL, e.args()...)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// LogAsync queues e. Entries queued after Close are dropped.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.logger.Warn("audit: entry dropped, logger closed", "action", e.Action)
		return
	}
	l.ch <- e
}

// Close flushes queued entries and stops the writer.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *SQLiteLogger) run() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, batchSize)
	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *SQLiteLogger) flush(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	err := l.retry.Tx(context.Background(), l.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range batch {
			if _, err := stmt.Exec(e.args()...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.logger.Error("audit: flush", "entries", len(batch), "error", err)
	}
}

const insertSQL = `INSERT INTO audit_log
	(entry_id, timestamp, action, transport, request_id, remote_addr, parameters, result, error_message, status, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (e *Entry) args() []any {
	return []any{e.EntryID, e.Timestamp, e.Action, e.Transport, e.RequestID, e.RemoteAddr,
		e.Parameters, e.Result, e.Error, e.Status, e.DurationMs}
}

// Recent returns the latest entries, newest first. An empty action matches
// every entry.
func (l *SQLiteLogger) Recent(ctx context.Context, action string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `SELECT entry_id, timestamp, action, transport, request_id, remote_addr,
		parameters, result, error_message, status, duration_ms
		FROM audit_log WHERE (? = '' OR action = ?) ORDER BY timestamp DESC, entry_id DESC LIMIT ?`,
		action, action, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.RequestID, &e.RemoteAddr,
			&e.Parameters, &e.Result, &e.Error, &e.Status, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Middleware records every call of the endpoint as action.
func Middleware(l *SQLiteLogger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Action:     action,
				Transport:  kit.GetTransport(ctx),
				RequestID:  kit.GetRequestID(ctx),
				RemoteAddr: kit.GetRemoteAddr(ctx),
				Parameters: marshal(req),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Error = err.Error()
			} else {
				e.Result = marshal(resp)
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

func marshal(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// EventSink records emitted inspector events as "event.<type>" entries.
// Closing it leaves the logger open.
type EventSink struct {
	l *SQLiteLogger
}

// NewEventSink creates a sink writing to l.
func NewEventSink(l *SQLiteLogger) *EventSink {
	return &EventSink{l: l}
}

func (s *EventSink) Send(_ context.Context, ev message.Event) error {
	data, err := message.MarshalEvent(&ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	e := &Entry{
		EntryID:    ev.ID,
		Timestamp:  ev.Timestamp,
		Action:     "event." + string(ev.Type),
		Transport:  "sink",
		Parameters: string(data),
	}
	if ev.Type == message.EvtError {
		e.Error = ev.Message
	}
	s.l.LogAsync(e)
	return nil
}

func (s *EventSink) Close() error { return nil }
