// Package store persists chunk metadata and corpus manifests per tenant.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Errors returned by stores.
var (
	// ErrNotFound means the tenant has no corpus.
	ErrNotFound = errors.New("corpus not found")
	// ErrInvalidRecords means records do not form positions 0..N-1.
	ErrInvalidRecords = errors.New("invalid corpus records")
	// ErrUnsupportedDriver means the database URL scheme is unknown.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Store provides persistence for corpus metadata.
type Store interface {
	// ReplaceAll atomically swaps the tenant's records and manifest for the
	// given ones. Either everything is replaced or nothing is.
	ReplaceAll(ctx context.Context, m Manifest, records []Record) error
	// Fetch returns the records at the given positions, keyed by position.
	// Missing positions are absent from the map.
	Fetch(ctx context.Context, tenantID string, positions []int) (map[int]Record, error)
	// Manifest returns the tenant's manifest or ErrNotFound.
	Manifest(ctx context.Context, tenantID string) (Manifest, error)
	// Count returns the number of records stored for the tenant.
	Count(ctx context.Context, tenantID string) (int, error)
	// DeleteAll removes the tenant's records and manifest.
	DeleteAll(ctx context.Context, tenantID string) error
	// Tenants returns the manifests of every tenant, ordered by tenant ID.
	Tenants(ctx context.Context) ([]Manifest, error)
	Close() error
}

// Open connects to the database named by url:
//
//	sqlite:///path/to/file.db or a bare path   SQLite via database/sql
//	postgres://... or postgresql://...        PostgreSQL via GORM
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return OpenGorm(ctx, url)
	case strings.HasPrefix(url, "sqlite:///"):
		return OpenSQLite(ctx, strings.TrimPrefix(url, "sqlite:///"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, url)
	default:
		return OpenSQLite(ctx, url)
	}
}

// ValidateRecords checks the positional invariant: records belong to the
// manifest's tenant and carry chunk indices 0..N-1 in order, N being the
// manifest's chunk count.
func ValidateRecords(m Manifest, records []Record) error {
	if m.TenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidRecords)
	}
	if len(records) != m.ChunkCount {
		return fmt.Errorf("%w: %d records for chunk count %d", ErrInvalidRecords, len(records), m.ChunkCount)
	}
	for i, r := range records {
		if r.TenantID != m.TenantID {
			return fmt.Errorf("%w: record %d belongs to tenant %q", ErrInvalidRecords, i, r.TenantID)
		}
		if r.ChunkIndex != i {
			return fmt.Errorf("%w: record %d has chunk index %d", ErrInvalidRecords, i, r.ChunkIndex)
		}
	}
	return nil
}
