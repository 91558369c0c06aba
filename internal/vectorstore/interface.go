package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreUnavailable indicates the backing store could not be reached
	// or could not complete the operation. Retryable by the caller.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// store's configured vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyChunks indicates an upsert with no chunks.
	ErrEmptyChunks = errors.New("empty or nil chunks")
)

// Store is the interface for chunk persistence and similarity search.
//
// Implementations guarantee:
//   - Upsert is idempotent: re-upserting a chunk ID replaces the record
//     atomically (last writer wins, never a merged record).
//   - Query returns at most topK results whose metadata satisfies every
//     filter predicate, ordered by descending similarity. A filter matching
//     nothing yields an empty slice, not an error.
//   - State survives process restart.
type Store interface {
	// Upsert inserts or replaces chunks keyed by chunk ID.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns up to topK chunks most similar to vector, restricted to
	// the filter scope. Scores are cosine similarity (higher is closer).
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredChunk, error)

	// FetchByMetadata returns all chunks matching the filter, unranked.
	// Used for bulk export such as quiz generation over an entire source.
	FetchByMetadata(ctx context.Context, filter Filter) ([]Chunk, error)

	// HasSource reports whether any chunk matches the filter. Cheaper than
	// FetchByMetadata; used by the ingestion dedup probe.
	HasSource(ctx context.Context, filter Filter) (bool, error)

	// DeleteByMetadata removes all chunks matching the filter. The core
	// ingestion and query paths never call this; it exists so external
	// callers can evict a source before a forced re-ingest.
	DeleteByMetadata(ctx context.Context, filter Filter) error

	// Close releases resources held by the store.
	Close() error
}

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special characters, path traversal, and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidConfig)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, name)
	}
	return nil
}

// IsTransientError reports whether a gRPC error should be retried.
// Network timeouts and temporary unavailability are transient; invalid
// arguments, not-found, and permission failures are not.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// validateChunks checks an upsert batch before it reaches a backend.
func validateChunks(chunks []Chunk, vectorSize int) error {
	if len(chunks) == 0 {
		return ErrEmptyChunks
	}
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk at index %d has empty ID", i)
		}
		if c.Text == "" {
			return fmt.Errorf("chunk %s has empty text", c.ID)
		}
		if c.Meta.OwnerID == "" {
			return fmt.Errorf("chunk %s has empty owner_id", c.ID)
		}
		if len(c.Embedding) != vectorSize {
			return fmt.Errorf("%w: chunk %s has dimension %d, store expects %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), vectorSize)
		}
	}
	return nil
}
