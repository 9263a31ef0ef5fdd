package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"practicum/pkg/interfaces"
)

var _ interfaces.KeyValueStore = (*SQLiteStore)(nil)

// Config holds the SQLite store settings.
type Config struct {
	Path           string
	Timeout        time.Duration // upper bound on a queued write
	MaxConnections int
	RetryDelay     time.Duration // pause before retrying a busy write
}

// DefaultStoreConfig returns settings for a single-user local session file.
func DefaultStoreConfig(path string) *Config {
	return &Config{
		Path:           path,
		Timeout:        30 * time.Second,
		MaxConnections: 4,
		RetryDelay:     100 * time.Millisecond,
	}
}

// SQLiteStore is the durable key-value store behind the session.
// ARCHITECTURAL DISCOVERY: All writes funnel through one goroutine so
// multi-key transactions never contend for the SQLite write lock
type SQLiteStore struct {
	db           *sql.DB
	config       *Config
	logger       *slog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
	state     *atomic.Int32
}

// A queued write either starts running or is abandoned by its caller, never both.
const (
	opQueued int32 = iota
	opRunning
	opAbandoned
)

// OpenSQLite opens (creating if needed) the store file and applies migrations.
func OpenSQLite(config *Config, logger *slog.Logger) (*SQLiteStore, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("storage path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 4
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:           db,
		config:       config,
		logger:       logger,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	logger.Debug("session store opened", "path", config.Path)
	return s, nil
}

// writeLoop processes all write operations in a single goroutine
func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			if !op.state.CompareAndSwap(opQueued, opRunning) {
				op.result <- ErrWriteTimeout
				continue
			}
			// FUNCTIONAL DISCOVERY: Only lock contention is worth a retry;
			// constraint or I/O errors would fail the same way twice
			err := op.operation(s.db)
			if isBusy(err) {
				s.logger.Warn("store write busy, retrying once", "error", err)
				time.Sleep(s.config.RetryDelay)
				err = op.operation(s.db)
			}
			if err != nil {
				s.logger.Error("store write failed", "error", err)
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// executeWrite queues a write operation and waits for completion.
// TECHNICAL DISCOVERY: Once a write has started it is always awaited, so the
// reported outcome is the one that reached the file; only a write still
// waiting in the queue can be abandoned on timeout or shutdown
func (s *SQLiteStore) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	op := writeOperation{operation: operation, result: make(chan error, 1), state: new(atomic.Int32)}
	timer := time.NewTimer(s.config.Timeout)
	defer timer.Stop()

	select {
	case s.writeChannel <- op:
	case <-timer.C:
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.result:
		return err
	case <-timer.C:
		if op.state.CompareAndSwap(opQueued, opAbandoned) {
			return ErrWriteTimeout
		}
	case <-s.shutdown:
		if op.state.CompareAndSwap(opQueued, opAbandoned) {
			return ErrStoreClosed
		}
	}
	return <-op.result
}

// Get reads a single key; reads bypass the writer goroutine.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if s.isClosed() {
		return "", false, ErrStoreClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

// SetMany upserts every pair in one transaction.
func (s *SQLiteStore) SetMany(ctx context.Context, values map[string]string) error {
	for key := range values {
		if key == "" {
			return ErrEmptyKey
		}
	}
	if len(values) == 0 {
		return nil
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for key, value := range values {
			if _, err := stmt.ExecContext(ctx, key, value); err != nil {
				return fmt.Errorf("failed to write %s: %w", key, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit write: %w", err)
		}
		return nil
	})
}

// Delete removes the keys in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit delete: %w", err)
		}
		return nil
	})
}

// HealthCheck validates connectivity and that the schema is in place.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	ok, err := tableExists(s.db, "kv_store")
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("required table kv_store does not exist")
	}
	return nil
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close stops the writer and closes the database; repeated calls are no-ops.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
