package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on entries.author
const currentSchemaVersion = 1

// Store provides durable storage for the entry log and index snapshots.
// Uses SQLite with WAL mode for concurrent read access.
//
// Store implements engine.Log and engine.SnapshotStore.
type Store struct {
	db  *sql.DB
	ids IDGenerator
	now func() time.Time

	pollInterval time.Duration

	mu      sync.Mutex
	waiters map[chan struct{}]struct{}
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for entries appended without an id.
//
// Default: UUIDv7Generator
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithPollInterval makes Notify channels also fire when another process
// appends to the same database file. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// WithNow sets the clock used for appended_at and saved_at.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:      db,
		ids:     UUIDv7Generator{},
		now:     time.Now,
		waiters: make(map[chan struct{}]struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes every Notify channel, stops pollers and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.done != nil {
			close(s.done)
		}
		for ch := range s.waiters {
			delete(s.waiters, ch)
			close(ch)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes entries by author for per-player scans.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entries_author
		ON entries(author)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Notify implements engine.Log. The channel receives a value after every
// append through this Store and, with WithPollInterval, whenever the last
// seq in the database grows. It is closed by Close or by the release func.
func (s *Store) Notify() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.waiters[ch] = struct{}{}
	if s.pollInterval > 0 {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	stop := make(chan struct{})
	if s.pollInterval > 0 {
		// The baseline is taken before Notify returns, so every later append
		// by another process is signalled.
		last, err := s.LastSeq(context.Background())
		if err != nil {
			last = -1
		}
		go s.poll(ch, stop, last)
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			close(stop)
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.waiters[ch]; ok {
				delete(s.waiters, ch)
				close(ch)
			}
		})
	}
}

// poll signals ch when the last seq grows past last. Runs until stop or
// Close.
func (s *Store) poll(ch chan struct{}, stop <-chan struct{}, last int64) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			seq, err := s.LastSeq(context.Background())
			if err != nil || seq <= last {
				continue
			}
			last = seq
			s.signal(ch)
		}
	}
}

func (s *Store) signal(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiters[ch]; !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Store) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
