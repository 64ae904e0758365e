package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ScopeEntry is one registered (user, session) scope.
type ScopeEntry struct {
	// User is the owning user identifier.
	User string
	// Session is the session identifier within the user.
	Session string
	// Updated is when the scope was last written to.
	Updated time.Time
}

// Registry persists which (user, session) scopes exist and when each was
// last written. The chunk store holds the documents themselves; the registry
// is the cheap relational side used for bookkeeping and the readiness probe.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Touch registers the scope if it is new and bumps its updated timestamp
	// either way. Called on every successful document write.
	Touch(ctx context.Context, user, session string) error
	// Scopes returns all registered scopes for the user, most recently
	// updated first.
	Scopes(ctx context.Context, user string) ([]ScopeEntry, error)
	// Ping reports whether the registry's backing store is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the registry.
	Close() error
}

// SQLiteRegistry is a Registry backed by a local SQLite database.
type SQLiteRegistry struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultRegistryPath returns the default path for the session registry
// database. It resolves to ~/.docqa/registry.db, creating the directory if
// needed.
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("docstore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("docstore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "registry.db"), nil
}

// OpenRegistry opens (or creates) a SQLiteRegistry at the given path and runs
// the schema migration. Use ":memory:" for an in-memory database in tests.
func OpenRegistry(path string) (*SQLiteRegistry, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	r := &SQLiteRegistry{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// migrate creates the schema if it does not already exist.
func (r *SQLiteRegistry) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS scopes (
    user       TEXT    NOT NULL,
    session    TEXT    NOT NULL,
    created_at INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (user, session)
);
CREATE INDEX IF NOT EXISTS idx_scopes_user_updated
    ON scopes (user, updated_at);
`
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// Touch registers the scope if it is new and bumps its updated timestamp
// either way.
func (r *SQLiteRegistry) Touch(ctx context.Context, user, session string) error {
	const q = `
INSERT INTO scopes (user, session, created_at, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user, session) DO UPDATE SET updated_at = excluded.updated_at`
	now := time.Now().Unix()
	if _, err := r.db.ExecContext(ctx, q, user, session, now, now); err != nil {
		return fmt.Errorf("docstore: touch scope: %w", err)
	}
	return nil
}

// Scopes returns all registered scopes for the user, most recently updated
// first.
func (r *SQLiteRegistry) Scopes(ctx context.Context, user string) ([]ScopeEntry, error) {
	const q = `
SELECT user, session, updated_at
FROM   scopes
WHERE  user = ?
ORDER  BY updated_at DESC, session ASC`

	rows, err := r.db.QueryContext(ctx, q, user)
	if err != nil {
		return nil, fmt.Errorf("docstore: scopes: %w", err)
	}
	defer rows.Close()

	var entries []ScopeEntry
	for rows.Next() {
		var e ScopeEntry
		var ts int64
		if err := rows.Scan(&e.User, &e.Session, &ts); err != nil {
			return nil, fmt.Errorf("docstore: scopes scan: %w", err)
		}
		e.Updated = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: scopes rows: %w", err)
	}
	return entries, nil
}

// Ping reports whether the registry database is reachable.
func (r *SQLiteRegistry) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("docstore: registry ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (r *SQLiteRegistry) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("docstore: close registry: %w", err)
	}
	return nil
}
