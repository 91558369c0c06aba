package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of texts per embedding request.
const DefaultBatchSize = 32

// DefaultBatchConcurrency bounds how many batches are in flight at once.
const DefaultBatchConcurrency = 4

// EmbedInBatches embeds texts in fixed-size batches with bounded
// concurrency, preserving input order in the result. Any batch failure fails
// the whole call; partial results are never returned.
func EmbedInBatches(ctx context.Context, embedder Embedder, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultBatchConcurrency)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			batch, err := embedder.EmbedDocuments(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: got %d vectors for batch of %d", ErrEmbeddingFailed, len(batch), end-start)
			}
			// Each goroutine writes a disjoint slice range, no lock needed.
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return vectors, nil
}
