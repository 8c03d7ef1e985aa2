package station

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// MaxAliasLength bounds what the alias editor accepts.
const MaxAliasLength = 64

var ErrInvalidAlias = errors.New("invalid alias")

// AliasStore persists the station's human-chosen alias across restarts.
type AliasStore interface {
	LoadAlias(ctx context.Context) (string, error)
	SaveAlias(ctx context.Context, alias string) error
}

// CleanAlias trims an alias and rejects one that is too long. An empty
// result clears the alias.
func CleanAlias(alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if len(alias) > MaxAliasLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidAlias, MaxAliasLength)
	}
	return alias, nil
}

// SQLiteAliasStore keeps the alias in a small key/value table.
type SQLiteAliasStore struct {
	db *sql.DB
}

// OpenSQLiteAliasStore opens (or creates) the database at path.
func OpenSQLiteAliasStore(path string) (*SQLiteAliasStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating alias dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening alias db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS station_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings table: %w", err)
	}

	return &SQLiteAliasStore{db: db}, nil
}

func (s *SQLiteAliasStore) LoadAlias(ctx context.Context) (string, error) {
	var alias string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM station_settings WHERE key = 'alias'`,
	).Scan(&alias)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading alias: %w", err)
	}
	return alias, nil
}

func (s *SQLiteAliasStore) SaveAlias(ctx context.Context, alias string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO station_settings (key, value, updated_at) VALUES ('alias', ?, CURRENT_TIMESTAMP)`,
		alias,
	)
	if err != nil {
		return fmt.Errorf("saving alias: %w", err)
	}
	return nil
}

func (s *SQLiteAliasStore) Close() error {
	return s.db.Close()
}

// MemoryAliasStore is used when no database path is configured.
type MemoryAliasStore struct {
	mu    sync.Mutex
	alias string
}

func (m *MemoryAliasStore) LoadAlias(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alias, nil
}

func (m *MemoryAliasStore) SaveAlias(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alias = alias
	return nil
}
