package index

import (
	"errors"

	"coderag/internal/vectorindex"
)

// Errors returned by Ingest and Delete.
var (
	// ErrEmptyCorpus means the source tree produced no chunks. The previous
	// corpus, if any, is untouched.
	ErrEmptyCorpus = errors.New("source tree produced no chunks")
	// ErrConcurrentRebuild means a rebuild for the tenant is already running.
	ErrConcurrentRebuild = errors.New("rebuild already running for tenant")
	// ErrIngestBusy means the ingest pool is full.
	ErrIngestBusy = errors.New("too many ingests in progress")
	// ErrEmbeddingService matches any *EmbeddingServiceError.
	ErrEmbeddingService = errors.New("embedding service failure")
	// ErrIndexCorrupt means a persisted vector index could not be read.
	ErrIndexCorrupt = vectorindex.ErrIndexCorrupt
	// ErrInvalidTenant means the tenant ID is empty.
	ErrInvalidTenant = errors.New("invalid tenant id")
	// ErrReservationReleased means Ingest was called on a released Reservation.
	ErrReservationReleased = errors.New("ingest reservation already released")
)

// EmbeddingServiceError wraps a failure of the embedding capability.
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return "embedding service: " + e.Err.Error()
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEmbeddingService.
func (e *EmbeddingServiceError) Is(target error) bool {
	return target == ErrEmbeddingService
}
