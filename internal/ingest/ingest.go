// Package ingest orchestrates the write path: a raw document goes in, scoped
// embedded chunks come out the other side of the vector store.
//
// Ingestion is all-or-nothing. Any stage failure aborts the request with
// nothing committed, and the wrapped error names the stage that failed so
// callers can tell an unreadable document from a down store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/axond/internal/chunker"
	"github.com/fyrsmithlabs/axond/internal/embeddings"
	"github.com/fyrsmithlabs/axond/internal/extract"
	"github.com/fyrsmithlabs/axond/internal/redact"
	"github.com/fyrsmithlabs/axond/internal/vectorstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyDocument is returned when a document yields no content to chunk.
// It is a caller fault, not a pipeline failure.
var ErrEmptyDocument = errors.New("document has no content")

// IngestRequest describes one document to ingest.
type IngestRequest struct {
	// OwnerID scopes the content to a user. Required.
	OwnerID string

	// SourceID identifies the document within the owner's library.
	// Required; re-ingesting the same source replaces its chunks.
	SourceID string

	// MediaType is the document's MIME type.
	MediaType string

	// Payload is the raw document bytes.
	Payload []byte
}

// Validate validates the request.
func (r IngestRequest) Validate() error {
	if r.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if r.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	return nil
}

// IngestResult reports what one ingestion did.
type IngestResult struct {
	// ChunkCount is the number of chunks now stored for the source.
	ChunkCount int

	// Deduplicated is true when the source was already present and nothing
	// was re-embedded.
	Deduplicated bool
}

// Orchestrator runs the ingestion pipeline.
type Orchestrator struct {
	extractor *extract.Extractor
	splitter  *chunker.Splitter
	embedder  embeddings.Embedder
	store     vectorstore.Store
	scrubber  *redact.Scrubber
	logger    *zap.Logger

	// sourceLocks serializes concurrent ingestion of the same owner/source
	// pair so the dedup probe and the write cannot interleave.
	sourceLocks sync.Map
}

// New creates an Orchestrator.
func New(extractor *extract.Extractor, splitter *chunker.Splitter, embedder embeddings.Embedder, store vectorstore.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		scrubber:  redact.New(),
		logger:    logger,
	}
}

// Ingest runs extract, chunk, embed and store for one document.
//
// If the owner/source pair already has stored chunks, the request is
// deduplicated: the existing chunk count is returned and nothing is
// re-embedded. Callers that want a re-ingest delete the source first.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if err := req.Validate(); err != nil {
		return IngestResult{}, err
	}

	text, err := o.extractor.Extract(ctx, req.MediaType, req.Payload)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extraction: %w", err)
	}

	return o.ingestText(ctx, req.OwnerID, req.SourceID, text)
}

// IngestText ingests already-extracted text, bypassing the extractor. Used
// for transcripts and notes that arrive as plain text.
func (o *Orchestrator) IngestText(ctx context.Context, ownerID, sourceID, text string) (IngestResult, error) {
	if err := (IngestRequest{OwnerID: ownerID, SourceID: sourceID}).Validate(); err != nil {
		return IngestResult{}, err
	}
	return o.ingestText(ctx, ownerID, sourceID, text)
}

func (o *Orchestrator) ingestText(ctx context.Context, ownerID, sourceID, text string) (IngestResult, error) {
	// Credentials are scrubbed before the text reaches the embedder or the
	// store.
	text, redacted := o.scrubber.Scrub(text)
	if redacted > 0 {
		o.logger.Warn("redacted credential material from document",
			zap.String("owner_id", ownerID),
			zap.String("source_id", sourceID),
			zap.Int("findings", redacted),
		)
	}

	pieces := o.splitter.Split(text)
	if len(pieces) == 0 {
		return IngestResult{}, fmt.Errorf("chunking: %w", ErrEmptyDocument)
	}

	unlock := o.lockSource(ownerID, sourceID)
	defer unlock()

	filter := vectorstore.Filter{OwnerID: ownerID, SourceID: sourceID}

	found, err := o.store.HasSource(ctx, filter)
	if err != nil {
		return IngestResult{}, fmt.Errorf("storage: probing for existing source: %w", err)
	}
	if found {
		existing, err := o.store.FetchByMetadata(ctx, filter)
		if err != nil {
			return IngestResult{}, fmt.Errorf("storage: counting existing chunks: %w", err)
		}
		o.logger.Info("source already ingested, skipping",
			zap.String("owner_id", ownerID),
			zap.String("source_id", sourceID),
			zap.Int("chunk_count", len(existing)),
		)
		return IngestResult{ChunkCount: len(existing), Deduplicated: true}, nil
	}

	vectors, err := embeddings.EmbedInBatches(ctx, o.embedder, pieces, embeddings.DefaultBatchSize)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:        ChunkID(ownerID, sourceID, i),
			Text:      pieces[i],
			Embedding: vectors[i],
			Meta:      vectorstore.Meta{OwnerID: ownerID, SourceID: sourceID},
		}
	}

	if err := o.store.Upsert(ctx, chunks); err != nil {
		return IngestResult{}, fmt.Errorf("storage: %w", err)
	}

	o.logger.Info("ingested source",
		zap.String("owner_id", ownerID),
		zap.String("source_id", sourceID),
		zap.Int("chunk_count", len(chunks)),
	)

	return IngestResult{ChunkCount: len(chunks)}, nil
}

// Delete removes all stored chunks for one source.
func (o *Orchestrator) Delete(ctx context.Context, ownerID, sourceID string) error {
	if err := (IngestRequest{OwnerID: ownerID, SourceID: sourceID}).Validate(); err != nil {
		return err
	}

	unlock := o.lockSource(ownerID, sourceID)
	defer unlock()

	if err := o.store.DeleteByMetadata(ctx, vectorstore.Filter{OwnerID: ownerID, SourceID: sourceID}); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

// lockSource takes the advisory per-source mutex and returns its unlock.
func (o *Orchestrator) lockSource(ownerID, sourceID string) func() {
	key := ownerID + "\x00" + sourceID
	muAny, _ := o.sourceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// chunkNamespace seeds deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("8a3f5d30-1c7b-4b53-9c5e-2f6d7a1e4b09")

// ChunkID derives a deterministic UUID for a chunk from its owner, source and
// position. Re-ingesting a source yields byte-identical IDs, which is what
// turns a second ingestion into an upsert instead of a duplicate set.
func ChunkID(ownerID, sourceID string, index int) string {
	name := fmt.Sprintf("%s/%s/%d", ownerID, sourceID, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
