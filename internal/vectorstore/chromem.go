package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("axond.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/axond/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the logical collection holding all chunks.
	// Default: "axond_chunks"
	Collection string

	// VectorSize is the expected embedding dimension. Must match the
	// configured embedder's output dimension.
	// Default: 384 (bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/axond/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "axond_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero external services:
// documents live in memory and persist to gob files under the configured
// path, so ingested chunks survive process restarts without running a
// separate database. Suited to single-node deployments; use QdrantStore when
// the corpus outgrows one process.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore opens (or creates) the persistent store at the configured
// path and ensures the chunk collection exists.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrStoreUnavailable, err)
	}

	s := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if _, err := s.collection(); err != nil {
		return nil, err
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// rejectEmbedding is the chromem embedding function for this store.
// All vectors are produced by internal/embeddings and supplied with the
// chunk; chromem must never embed on its own. Passing nil instead would make
// chromem fall back to its default OpenAI embedder for persisted collections.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("store does not embed; vectors must be supplied by the caller")
}

// collection returns the chunk collection, creating it if needed.
func (s *ChromemStore) collection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(s.config.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: getting collection %s: %v", ErrStoreUnavailable, s.config.Collection, err)
	}
	return c, nil
}

// Upsert inserts or replaces chunks keyed by chunk ID. chromem keys its
// document map by ID, so re-adding an existing ID replaces text, vector and
// metadata in one step.
func (s *ChromemStore) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if err := validateChunks(chunks, s.config.VectorSize); err != nil {
		span.RecordError(err)
		return err
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		meta := map[string]string{metaKeyOwnerID: c.Meta.OwnerID}
		if c.Meta.SourceID != "" {
			meta[metaKeySourceID] = c.Meta.SourceID
		}
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Metadata:  meta,
			Embedding: c.Embedding,
		}
	}

	// Concurrency of 1: embeddings are precomputed, so there is nothing to
	// parallelize and sequential insertion keeps failure handling simple.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: adding documents: %v", ErrStoreUnavailable, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted chunks",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(chunks)),
	)

	return nil
}

// Query returns up to topK chunks most similar to vector within the filter
// scope, ordered by descending cosine similarity.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredChunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	docCount := collection.Count()
	if docCount == 0 {
		return []ScoredChunk{}, nil
	}
	if topK > docCount {
		topK = docCount
	}

	results, err := collection.QueryEmbedding(ctx, vector, topK, filter.where(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: querying collection: %v", ErrStoreUnavailable, err)
	}

	scored := make([]ScoredChunk, len(results))
	for i, r := range results {
		scored[i] = ScoredChunk{Chunk: chunkFromResult(r), Score: r.Similarity}
	}
	// chromem returns results ranked already; a stable re-sort pins the
	// descending-score, insertion-order-on-ties contract.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	span.SetAttributes(attribute.Int("result_count", len(scored)))
	span.SetStatus(codes.Ok, "success")

	return scored, nil
}

// FetchByMetadata returns all chunks matching the filter, unranked.
//
// chromem has no scroll/list API, so the fetch issues a filtered query with a
// fixed probe vector and discards the ranking; the metadata filter does all
// the selection.
func (s *ChromemStore) FetchByMetadata(ctx context.Context, filter Filter) ([]Chunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.FetchByMetadata")
	defer span.End()

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	docCount := collection.Count()
	if docCount == 0 {
		return []Chunk{}, nil
	}

	probe := make([]float32, s.config.VectorSize)
	probe[0] = 1

	results, err := collection.QueryEmbedding(ctx, probe, docCount, filter.where(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: fetching by metadata: %v", ErrStoreUnavailable, err)
	}

	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = chunkFromResult(r)
	}

	span.SetAttributes(attribute.Int("result_count", len(chunks)))
	span.SetStatus(codes.Ok, "success")

	return chunks, nil
}

// HasSource reports whether any chunk matches the filter.
func (s *ChromemStore) HasSource(ctx context.Context, filter Filter) (bool, error) {
	chunks, err := s.FetchByMetadata(ctx, filter)
	if err != nil {
		return false, err
	}
	return len(chunks) > 0, nil
}

// DeleteByMetadata removes all chunks matching the filter. A zero filter is
// rejected rather than interpreted as delete-everything.
func (s *ChromemStore) DeleteByMetadata(ctx context.Context, filter Filter) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByMetadata")
	defer span.End()

	if filter.IsZero() {
		return fmt.Errorf("refusing to delete with empty filter")
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := collection.Delete(ctx, filter.where(), nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting by metadata: %v", ErrStoreUnavailable, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted chunks by metadata",
		zap.String("owner_id", filter.OwnerID),
		zap.String("source_id", filter.SourceID),
	)

	return nil
}

// Close closes the store. chromem persists on every write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// chunkFromResult converts a chromem query result to a Chunk.
func chunkFromResult(r chromem.Result) Chunk {
	return Chunk{
		ID:        r.ID,
		Text:      r.Content,
		Embedding: r.Embedding,
		Meta: Meta{
			OwnerID:  r.Metadata[metaKeyOwnerID],
			SourceID: r.Metadata[metaKeySourceID],
		},
	}
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
