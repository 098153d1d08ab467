// Package index provides SQLite-backed persistence for the annotation
// graph with optional FTS5 full-text search over clean document content.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	class      TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	card_uuid  TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cards (
	uuid       TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	headers    TEXT NOT NULL DEFAULT '{}',
	key_values TEXT NOT NULL DEFAULT '{}',
	tag_refs   TEXT NOT NULL DEFAULT '[]',
	content    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entities (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	name         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	aliases      TEXT NOT NULL DEFAULT '[]',
	properties   TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	id               TEXT PRIMARY KEY,
	source_entity_id TEXT NOT NULL,
	target_entity_id TEXT NOT NULL,
	predicate        TEXT NOT NULL DEFAULT '',
	is_relationship  INTEGER NOT NULL DEFAULT 0,
	is_attribute     INTEGER NOT NULL DEFAULT 0,
	is_normalization INTEGER NOT NULL DEFAULT 0,
	direction        TEXT NOT NULL DEFAULT 'none',
	properties       TEXT NOT NULL DEFAULT '{}',
	source_card_id   TEXT NOT NULL DEFAULT '',
	has_offsets      INTEGER NOT NULL DEFAULT 0,
	ref_start        INTEGER NOT NULL DEFAULT 0,
	ref_end          INTEGER NOT NULL DEFAULT 0,
	file_path        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS snippets (
	id             TEXT PRIMARY KEY,
	card_id        TEXT NOT NULL,
	text           TEXT NOT NULL,
	start_offset   INTEGER NOT NULL,
	end_offset     INTEGER NOT NULL,
	comment        TEXT NOT NULL DEFAULT '',
	analyst        TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_entity_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_entity_id);
CREATE INDEX IF NOT EXISTS idx_cards_path ON cards(path);
CREATE INDEX IF NOT EXISTS idx_snippets_card ON snippets(card_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
