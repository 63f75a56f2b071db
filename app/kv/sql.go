package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	_ "github.com/go-sql-driver/mysql" // mysql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQL implements Store on top of a relational database with a single kv table.
// Both sqlite and mysql are supported, the difference is limited to schema and upsert syntax.
type SQL struct {
	db      *sqlx.DB
	dialect dialect
}

type dialect struct {
	name   string
	schema string
	upsert string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `CREATE TABLE IF NOT EXISTS kv (
		item_key TEXT PRIMARY KEY,
		item_value TEXT NOT NULL,
		updated_at INTEGER
	)`,
	upsert: `INSERT INTO kv (item_key, item_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(item_key) DO UPDATE SET item_value = excluded.item_value, updated_at = excluded.updated_at`,
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: `CREATE TABLE IF NOT EXISTS kv (
		item_key VARCHAR(255) COLLATE utf8mb4_bin NOT NULL PRIMARY KEY,
		item_value LONGTEXT NOT NULL,
		updated_at BIGINT
	) DEFAULT CHARSET=utf8mb4`,
	upsert: `INSERT INTO kv (item_key, item_value, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE item_value = VALUES(item_value), updated_at = VALUES(updated_at)`,
}

type sqlItem struct {
	Key   string `db:"item_key"`
	Value string `db:"item_value"`
}

// NewSQLite opens (or creates) sqlite database at path in WAL mode and makes kv table
func NewSQLite(path string) (*SQL, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	return newSQL(db, sqliteDialect)
}

// NewMySQL connects to mysql with the given DSN and makes kv table
func NewMySQL(dsn string) (*SQL, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQL(db, mysqlDialect)
}

func newSQL(db *sqlx.DB, d dialect) (*SQL, error) {
	if _, err := db.Exec(d.schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to create kv table: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}
	log.Printf("[DEBUG] %s kv store ready", d.name)
	return &SQL{db: db, dialect: d}, nil
}

// List returns entries with keys matching pattern, sorted by key.
// Database narrows by the literal prefix, the full glob applied to results.
func (s *SQL) List(ctx context.Context, pattern string, withValues bool) ([]Item, error) {
	cols := "item_key"
	if withValues {
		cols = "item_key, item_value"
	}
	query := "SELECT " + cols + " FROM kv WHERE item_key LIKE ? ESCAPE '!' ORDER BY item_key"

	var rows []sqlItem
	if err := s.db.SelectContext(ctx, &rows, query, escapeLike(Prefix(pattern))+"%"); err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", pattern, err)
	}

	res := make([]Item, 0, len(rows))
	for _, r := range rows {
		if !Match(pattern, r.Key) {
			continue
		}
		res = append(res, Item(r))
	}
	return res, nil
}

// Get returns value for key or ErrNotFound
func (s *SQL) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT item_value FROM kv WHERE item_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, nil
}

// Set inserts or replaces value for key
func (s *SQL) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Delete removes key, missing key is not an error
func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE item_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQL) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE metacharacters with '!'
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
