// CLAUDE:SUMMARY SQLite catalog store: open with safe pragmas, transient-error retry helpers.
// Package store persists brokers, report formats, reconciliation results,
// and batch bookkeeping in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clearway/dutyrec/secrets"
)

// Store wraps the catalog database. When a secrets box is attached,
// broker passwords and OTP URIs are sealed before they hit disk.
type Store struct {
	DB     *sql.DB
	box    *secrets.Box
	logger *slog.Logger
}

// Option customises Open behaviour.
type Option func(*Store)

// WithSecrets attaches a sealing box for credential columns.
func WithSecrets(box *secrets.Box) Option { return func(s *Store) { s.box = box } }

// WithLogger sets the store logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// Open opens (creating if needed) the catalog database at path and
// applies the schema. Parent directories are created.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{DB: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// OpenMemory opens an in-memory store for testing. MaxOpenConns(1)
// keeps every query on the same in-memory database.
func OpenMemory(t testing.TB, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.DB.Close() }

const maxRetries = 3

// IsTransient reports whether err looks like a temporary datastore
// condition worth retrying: SQLite busy/locked states plus the
// socket-level failures seen from remote stores.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "resource temporarily unavailable") ||
		strings.Contains(msg, "connection reset")
}

// withRetry runs fn up to 3 times with 0.5, 1, 2 s backoff on transient
// errors.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == maxRetries-1 {
			return err
		}
		backoff := 500 * time.Millisecond * (1 << uint(attempt))
		s.logger.Warn("transient store error, retrying",
			"op", op, "attempt", attempt+1, "backoff", backoff, "error", err)
		if serr := sleepCtx(ctx, backoff); serr != nil {
			return fmt.Errorf("store: %s: cancelled during retry: %w", op, serr)
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nowMilli() int64 { return time.Now().UnixMilli() }
