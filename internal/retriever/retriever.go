// Package retriever turns a natural-language question into the set of stored
// chunks most relevant to it.
package retriever

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/axond/internal/embeddings"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultTopK is the number of chunks retrieved when the caller does not ask
// for a specific count.
const DefaultTopK = 12

// candidateMultiplier widens the store query when a reranker is attached so
// it has more than topK candidates to reorder.
const candidateMultiplier = 3

// Reranker reorders retrieved candidates before they are returned.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []vectorstore.ScoredChunk, topK int) ([]vectorstore.ScoredChunk, error)
}

// Retriever embeds queries and runs scoped similarity search against the
// vector store.
type Retriever struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	reranker Reranker
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithReranker attaches a reranker that reorders candidates after the vector
// search.
func WithReranker(rr Reranker) Option {
	return func(r *Retriever) {
		r.reranker = rr
	}
}

// New creates a Retriever.
func New(embedder embeddings.Embedder, store vectorstore.Store, logger *zap.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK chunks relevant to the query within the filter
// scope, ordered by descending similarity. A topK of zero or less uses
// DefaultTopK. Fewer (or zero) results than topK is not an error; the caller
// decides how to answer from a thin context.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidateK := topK
	if r.reranker != nil {
		candidateK = topK * candidateMultiplier
	}

	results, err := r.store.Query(ctx, vector, candidateK, filter)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	if r.reranker != nil {
		results, err = r.reranker.Rerank(ctx, query, results, topK)
		if err != nil {
			return nil, fmt.Errorf("reranking results: %w", err)
		}
	}

	r.logger.Debug("retrieved chunks",
		zap.String("owner_id", filter.OwnerID),
		zap.String("source_id", filter.SourceID),
		zap.Int("top_k", topK),
		zap.Int("result_count", len(results)),
	)

	return results, nil
}
