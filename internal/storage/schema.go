package storage

// PrefsSchema is the SQL schema for the durable client preferences database.
const PrefsSchema = `
CREATE TABLE IF NOT EXISTS prefs (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// dsnPragmas configures SQLite for a small, frequently rewritten table.
const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
