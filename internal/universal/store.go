package universal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const walCheckpointInterval = 5 * time.Minute

// Store is the helper's durable table of universal variables: the
// canonical copy every session's shadow table (spec §3 "Universal
// variable table") ultimately propagates from.
//
// Adapted from the teacher's internal/storage.SQLiteStore: same
// WAL-pragma DSN, single-writer connection pool, and background
// checkpoint loop, with the schema narrowed to the one table this helper
// needs.
type Store struct {
	db        *sql.DB
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// OpenStore opens (creating if absent) the SQLite-backed table at
// dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("universal: mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("universal: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("universal: connect: %w", err)
	}

	s := &Store{db: db, stopCh: make(chan struct{}), stoppedCh: make(chan struct{})}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	go s.walCheckpointLoop()
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS universal_variables (
		  name     TEXT PRIMARY KEY,
		  value    TEXT NOT NULL,
		  exported INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("universal: migrate: %w", err)
	}
	return nil
}

func (s *Store) walCheckpointLoop() {
	defer close(s.stoppedCh)
	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
	}
}

// Close stops the checkpoint loop and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.stoppedCh
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Apply persists a notification (SET/SET_EXPORT/ERASE) to the table.
func (s *Store) Apply(ctx context.Context, m Message) error {
	switch m.Kind {
	case KindErase:
		_, err := s.db.ExecContext(ctx, `DELETE FROM universal_variables WHERE name = ?`, m.Name)
		return err
	case KindSet, KindSetExport:
		exported := 0
		if m.Kind == KindSetExport {
			exported = 1
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO universal_variables (name, value, exported) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value, exported = excluded.exported
		`, m.Name, encodeValues(m.Values), exported)
		return err
	default:
		return fmt.Errorf("universal: apply: unknown kind %q", m.Kind)
	}
}

// All returns every stored variable as a notification message, used to
// build the full-table sync a newly-connected client receives before
// the barrier sentinel.
func (s *Store) All(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value, exported FROM universal_variables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var name, value string
		var exported int
		if err := rows.Scan(&name, &value, &exported); err != nil {
			return nil, err
		}
		kind := KindSet
		if exported == 1 {
			kind = KindSetExport
		}
		out = append(out, Message{Kind: kind, Name: name, Values: decodeValues(value)})
	}
	return out, rows.Err()
}

// encodeValues/decodeValues join a variable's array values with a
// unit-separator byte so individual values may themselves contain ":"
// (the POSIX export join character, spec §4.A "exported_environment")
// without ambiguity in the helper's own storage.
func encodeValues(values []string) string {
	return strings.Join(values, "\x1f")
}

func decodeValues(raw string) []string {
	if raw == "" {
		return []string{""}
	}
	return strings.Split(raw, "\x1f")
}
