package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS records (
    db_name TEXT NOT NULL,
    namespace TEXT NOT NULL,
    entity TEXT NOT NULL,
    record_key TEXT NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (db_name, namespace, entity, record_key)
)`

// SQLiteBackend stores records in a single SQLite table. Scans narrow by the
// pattern's literal prefix in SQL and match the rest in Go.
type SQLiteBackend struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

// NewSQLiteBackend opens (or creates) the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(createRecordsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: failed to initialize schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, loc Loc, key string, payload json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO records (db_name, namespace, entity, record_key, payload) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (db_name, namespace, entity, record_key) DO UPDATE SET payload = excluded.payload`,
		loc.Database, loc.Namespace, loc.Entity, key, string(payload))
	if err != nil {
		return fmt.Errorf("engine: failed to put %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Scan(ctx context.Context, loc Loc, p *Pattern) ([]Record, bool, error) {
	query := `SELECT record_key, payload FROM records WHERE db_name = ? AND namespace = ? AND entity = ?`
	args := []interface{}{loc.Database, loc.Namespace, loc.Entity}
	if prefix := p.Prefix(); prefix != "" {
		query += ` AND record_key >= ?`
		args = append(args, prefix)
		if upper, ok := prefixUpperBound(prefix); ok {
			query += ` AND record_key < ?`
			args = append(args, upper)
		}
	}
	query += ` ORDER BY record_key`

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("engine: failed to scan %s: %w", loc.Entity, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, false, fmt.Errorf("engine: failed to read row: %w", err)
		}
		if p.Match(key) {
			out = append(out, Record{Key: key, Payload: json.RawMessage(payload)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("engine: failed to scan %s: %w", loc.Entity, err)
	}
	if len(out) > 0 {
		return out, true, nil
	}

	exists, err := b.exists(ctx, loc)
	if err != nil {
		return nil, false, err
	}
	return out, exists, nil
}

func (b *SQLiteBackend) exists(ctx context.Context, loc Loc) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE db_name = ? AND namespace = ? AND entity = ? LIMIT 1`,
		loc.Database, loc.Namespace, loc.Entity).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("engine: failed to check entity %s: %w", loc.Entity, err)
	}
	return true, nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, loc Loc, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.db.ExecContext(ctx,
		`DELETE FROM records WHERE db_name = ? AND namespace = ? AND entity = ? AND record_key = ?`,
		loc.Database, loc.Namespace, loc.Entity, key)
	if err != nil {
		return false, fmt.Errorf("engine: failed to delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("engine: failed to delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (b *SQLiteBackend) Entities(ctx context.Context, database, namespace string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT DISTINCT entity FROM records WHERE db_name = ? AND namespace = ? ORDER BY entity`,
		database, namespace)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to list entities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("engine: failed to read row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// prefixUpperBound returns the smallest string greater than every string
// with the given prefix, or false if there is none.
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
