package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteVecName is the name of the sqlite-vec backend.
const SQLiteVecName = "sqlite-vec"

var vecOnce sync.Once

func registerVec() {
	vecOnce.Do(sqlite_vec.Auto)
}

// SQLiteVec stores vectors in a vec0 virtual table with cosine distance.
// Each index is its own SQLite file. Results at the k boundary follow the
// extension's ordering, so ties there may not prefer the lower position.
type SQLiteVec struct{}

func (SQLiteVec) Name() string { return SQLiteVecName }
func (SQLiteVec) Ext() string  { return ".db" }

// Build creates the index in an in-memory database.
func (SQLiteVec) Build(vectors [][]float32) (Index, error) {
	dim, err := checkVectors(vectors)
	if err != nil {
		return nil, err
	}
	registerVec()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := createVecSchema(db, dim, len(vectors)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := insertVectors(db, vectors); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &vecIndex{db: db, dim: dim, n: len(vectors)}, nil
}

// Load opens a persisted index read-only.
func (SQLiteVec) Load(path string) (Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	registerVec()

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, path, err)
	}

	var dim, count, rows int
	if err := db.QueryRow("SELECT dim, count FROM vec_meta").Scan(&dim, &count); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, path, err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&rows); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, path, err)
	}
	if dim <= 0 || count <= 0 || rows != count {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: dim %d, count %d, rows %d", ErrIndexCorrupt, path, dim, count, rows)
	}
	return &vecIndex{db: db, dim: dim, n: count}, nil
}

func createVecSchema(db *sql.DB, dim, count int) error {
	stmts := []string{
		fmt.Sprintf("CREATE VIRTUAL TABLE vectors USING vec0(embedding float[%d] distance_metric=cosine)", dim),
		"CREATE TABLE vec_meta (dim INTEGER NOT NULL, count INTEGER NOT NULL)",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("create vec schema: %w", err)
		}
	}
	if _, err := db.Exec("INSERT INTO vec_meta (dim, count) VALUES (?, ?)", dim, count); err != nil {
		return fmt.Errorf("write vec meta: %w", err)
	}
	return nil
}

func insertVectors(db *sql.DB, vectors [][]float32) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO vectors (rowid, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range vectors {
		blob, err := sqlite_vec.SerializeFloat32(v)
		if err != nil {
			return fmt.Errorf("serialize vector %d: %w", i, err)
		}
		// rowid 0 is not allowed; positions are stored shifted by one.
		if _, err := stmt.Exec(i+1, blob); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}
	return tx.Commit()
}

type vecIndex struct {
	db  *sql.DB
	dim int
	n   int
}

func (x *vecIndex) Len() int       { return x.n }
func (x *vecIndex) Dimension() int { return x.dim }
func (x *vecIndex) Close() error   { return x.db.Close() }

func (x *vecIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimension, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	k = min(k, x.n)

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query: %w", err)
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT rowid, distance
		FROM vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var rowid int64
		var distance float64
		if err := rows.Scan(&rowid, &distance); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Position: int(rowid - 1), Score: float32(1 - distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortHits(hits)
	return hits, nil
}

// Save writes the database to path with VACUUM INTO.
func (x *vecIndex) Save(path string) error {
	return writeAtomic(path, func(tmp string) error {
		// VACUUM INTO refuses to overwrite an existing file.
		if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
			return err
		}
		if _, err := x.db.Exec("VACUUM INTO ?", tmp); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
		return nil
	})
}
