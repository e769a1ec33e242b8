package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// chunkModel is the GORM mapping of code_chunks.
type chunkModel struct {
	TenantID    string `gorm:"primaryKey;column:tenant_id"`
	ChunkIndex  int    `gorm:"primaryKey;autoIncrement:false;column:chunk_index"`
	Kind        string `gorm:"column:kind;not null;default:''"`
	FileName    string `gorm:"column:file_name;not null"`
	SymbolName  string `gorm:"column:symbol_name;not null;default:''"`
	StartLine   int    `gorm:"column:start_line;not null"`
	EndLine     int    `gorm:"column:end_line;not null"`
	CodeSnippet string `gorm:"column:code_snippet;type:text;not null"`
}

func (chunkModel) TableName() string { return "code_chunks" }

// corpusModel is the GORM mapping of corpora.
type corpusModel struct {
	TenantID   string    `gorm:"primaryKey;column:tenant_id"`
	Generation int64     `gorm:"column:generation;not null"`
	ChunkCount int       `gorm:"column:chunk_count;not null"`
	Dimension  int       `gorm:"column:dimension;not null"`
	Backend    string    `gorm:"column:backend;not null"`
	IndexPath  string    `gorm:"column:index_path;not null"`
	Model      string    `gorm:"column:model;not null;default:''"`
	BuiltAt    time.Time `gorm:"column:built_at;not null"`
}

func (corpusModel) TableName() string { return "corpora" }

// GormStore implements Store with GORM. It is used for PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to a postgres:// or sqlite:/// URL through GORM and
// migrates the schema.
func OpenGorm(ctx context.Context, url string) (*GormStore, error) {
	dialector, err := parseDialector(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	return NewGormStore(ctx, dialector)
}

// NewGormStore opens a store on an explicit dialector.
func NewGormStore(ctx context.Context, dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&chunkModel{}, &corpusModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func parseDialector(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite:///")), nil
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		return postgres.Open(url), nil
	default:
		return nil, ErrUnsupportedDriver
	}
}

func (s *GormStore) ReplaceAll(ctx context.Context, m Manifest, records []Record) error {
	if err := ValidateRecords(m, records); err != nil {
		return err
	}

	rows := make([]chunkModel, len(records))
	for i, r := range records {
		rows[i] = chunkModel(r)
	}
	builtAt := m.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	corpus := corpusModel{
		TenantID:   m.TenantID,
		Generation: m.Generation,
		ChunkCount: m.ChunkCount,
		Dimension:  m.Dimension,
		Backend:    m.Backend,
		IndexPath:  m.IndexPath,
		Model:      m.Model,
		BuiltAt:    builtAt.UTC(),
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", m.TenantID).Delete(&chunkModel{}).Error; err != nil {
			return fmt.Errorf("delete old records: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, fetchBatch).Error; err != nil {
				return fmt.Errorf("insert records: %w", err)
			}
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).Create(&corpus).Error; err != nil {
			return fmt.Errorf("upsert manifest: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Fetch(ctx context.Context, tenantID string, positions []int) (map[int]Record, error) {
	out := make(map[int]Record, len(positions))
	for start := 0; start < len(positions); start += fetchBatch {
		batch := positions[start:min(start+fetchBatch, len(positions))]
		var rows []chunkModel
		err := s.db.WithContext(ctx).
			Where("tenant_id = ? AND chunk_index IN ?", tenantID, batch).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("fetch records: %w", err)
		}
		for _, r := range rows {
			out[r.ChunkIndex] = Record(r)
		}
	}
	return out, nil
}

func (s *GormStore) Manifest(ctx context.Context, tenantID string) (Manifest, error) {
	var c corpusModel
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Manifest{}, ErrNotFound
	}
	if err != nil {
		return Manifest{}, err
	}
	return c.manifest(), nil
}

func (s *GormStore) Count(ctx context.Context, tenantID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&chunkModel{}).Where("tenant_id = ?", tenantID).Count(&n).Error
	return int(n), err
}

func (s *GormStore) DeleteAll(ctx context.Context, tenantID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(&chunkModel{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ?", tenantID).Delete(&corpusModel{}).Error
	})
}

func (s *GormStore) Tenants(ctx context.Context) ([]Manifest, error) {
	var rows []corpusModel
	if err := s.db.WithContext(ctx).Order("tenant_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Manifest, len(rows))
	for i, r := range rows {
		out[i] = r.manifest()
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

func (c corpusModel) manifest() Manifest {
	return Manifest{
		TenantID:   c.TenantID,
		Generation: c.Generation,
		ChunkCount: c.ChunkCount,
		Dimension:  c.Dimension,
		Backend:    c.Backend,
		IndexPath:  c.IndexPath,
		Model:      c.Model,
		BuiltAt:    c.BuiltAt,
	}
}
