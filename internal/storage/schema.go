package storage

import "context"

// Schema is the document_assets table definition. Column types are kept
// portable between Postgres and SQLite; JSON columns are stored as text.
const Schema = `
CREATE TABLE IF NOT EXISTS document_assets (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	display_name   TEXT NOT NULL,
	storage_key    TEXT NOT NULL,
	size_bytes     BIGINT NOT NULL DEFAULT 0,
	uploaded_at    TIMESTAMP NOT NULL,
	status         TEXT NOT NULL,
	content_hash   TEXT NOT NULL DEFAULT '',
	thumbnail_url  TEXT NOT NULL DEFAULT '',
	thumbnail_kind TEXT NOT NULL DEFAULT '',
	page_count     INTEGER,
	page_assets    TEXT,
	ocr_text       TEXT NOT NULL DEFAULT '',
	text_spans     TEXT,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_assets_owner
	ON document_assets (owner_id, uploaded_at);

CREATE INDEX IF NOT EXISTS idx_document_assets_owner_hash
	ON document_assets (owner_id, content_hash, status);
`

// EnsureSchema creates the document_assets table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
