package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// fetchBatch bounds the number of placeholders per IN (...) query.
const fetchBatch = 500

// SQLiteStore implements Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path and
// initializes the schema.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := Init(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, m Manifest, records []Record) error {
	if err := ValidateRecords(m, records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM code_chunks WHERE tenant_id = ?", m.TenantID); err != nil {
		return fmt.Errorf("delete old records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_chunks
		    (tenant_id, chunk_index, kind, file_name, symbol_name, start_line, end_line, code_snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.TenantID, r.ChunkIndex, r.Kind, r.FileName, r.SymbolName, r.StartLine, r.EndLine, r.CodeSnippet,
		); err != nil {
			return fmt.Errorf("insert record %d: %w", r.ChunkIndex, err)
		}
	}

	builtAt := m.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO corpora (tenant_id, generation, chunk_count, dimension, backend, index_path, model, built_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
		    generation = excluded.generation,
		    chunk_count = excluded.chunk_count,
		    dimension = excluded.dimension,
		    backend = excluded.backend,
		    index_path = excluded.index_path,
		    model = excluded.model,
		    built_at = excluded.built_at`,
		m.TenantID, m.Generation, m.ChunkCount, m.Dimension, m.Backend, m.IndexPath, m.Model, builtAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert manifest: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Fetch(ctx context.Context, tenantID string, positions []int) (map[int]Record, error) {
	out := make(map[int]Record, len(positions))
	for start := 0; start < len(positions); start += fetchBatch {
		batch := positions[start:min(start+fetchBatch, len(positions))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, tenantID)
		for _, p := range batch {
			args = append(args, p)
		}
		query := `
			SELECT tenant_id, chunk_index, kind, file_name, symbol_name, start_line, end_line, code_snippet
			FROM code_chunks
			WHERE tenant_id = ? AND chunk_index IN (` + placeholders(len(batch)) + `)`

		if err := s.scanRecords(ctx, out, query, args...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) scanRecords(ctx context.Context, out map[int]Record, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.TenantID, &r.ChunkIndex, &r.Kind, &r.FileName, &r.SymbolName,
			&r.StartLine, &r.EndLine, &r.CodeSnippet,
		); err != nil {
			return err
		}
		out[r.ChunkIndex] = r
	}
	return rows.Err()
}

func (s *SQLiteStore) Manifest(ctx context.Context, tenantID string) (Manifest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, generation, chunk_count, dimension, backend, index_path, model, built_at
		FROM corpora WHERE tenant_id = ?`, tenantID)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM code_chunks WHERE tenant_id = ?", tenantID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, tenantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM code_chunks WHERE tenant_id = ?", tenantID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM corpora WHERE tenant_id = ?", tenantID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Tenants(ctx context.Context) ([]Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, generation, chunk_count, dimension, backend, index_path, model, built_at
		FROM corpora ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanManifest(row scanner) (Manifest, error) {
	var m Manifest
	err := row.Scan(&m.TenantID, &m.Generation, &m.ChunkCount, &m.Dimension,
		&m.Backend, &m.IndexPath, &m.Model, &m.BuiltAt)
	return m, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
