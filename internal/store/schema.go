package store

import (
	"context"
	"database/sql"
)

const ddl = `
CREATE TABLE IF NOT EXISTS code_chunks (
    tenant_id    TEXT    NOT NULL,
    chunk_index  INTEGER NOT NULL,
    kind         TEXT    NOT NULL DEFAULT '',
    file_name    TEXT    NOT NULL,
    symbol_name  TEXT    NOT NULL DEFAULT '',
    start_line   INTEGER NOT NULL,
    end_line     INTEGER NOT NULL,
    code_snippet TEXT    NOT NULL,
    PRIMARY KEY (tenant_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS corpora (
    tenant_id   TEXT PRIMARY KEY,
    generation  INTEGER  NOT NULL,
    chunk_count INTEGER  NOT NULL,
    dimension   INTEGER  NOT NULL,
    backend     TEXT     NOT NULL,
    index_path  TEXT     NOT NULL,
    model       TEXT     NOT NULL DEFAULT '',
    built_at    DATETIME NOT NULL
);
`

// Init creates the schema tables if they don't exist.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ddl)
	return err
}
