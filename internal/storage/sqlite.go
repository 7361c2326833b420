package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLitePrefs keeps preferences in a single-table SQLite database.
type SQLitePrefs struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the prefs database at path and migrates it.
func OpenSQLite(path string) (*SQLitePrefs, error) {
	db, err := sql.Open("sqlite3", "file:"+path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	if _, err := db.Exec(PrefsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate prefs db: %w", err)
	}
	return &SQLitePrefs{db: db}, nil
}

// Close closes the database connection.
func (s *SQLitePrefs) Close() error {
	return s.db.Close()
}

// Load returns every stored key.
func (s *SQLitePrefs) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prefs`)
	if err != nil {
		return nil, fmt.Errorf("load prefs: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan pref: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Save upserts values inside one transaction.
func (s *SQLitePrefs) Save(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO prefs (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
			k, v,
		)
		if err != nil {
			return fmt.Errorf("save pref %q: %w", k, err)
		}
	}
	return tx.Commit()
}

// Delete removes keys inside one transaction. Absent keys are ignored.
func (s *SQLitePrefs) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, k); err != nil {
			return fmt.Errorf("delete pref %q: %w", k, err)
		}
	}
	return tx.Commit()
}
