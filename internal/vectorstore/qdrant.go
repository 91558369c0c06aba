package vectorstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("axond.vectorstore.qdrant")

// scrollPageLimit bounds one FetchByMetadata scroll page. Larger sources are
// read across multiple pages.
const scrollPageLimit = 4096

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334
	Port int

	// Collection is the logical collection holding all chunks.
	// Default: "axond_chunks"
	Collection string

	// VectorSize is the dimensionality of embeddings. Must match the
	// configured embedder's output dimension.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, large enough for big upsert batches.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "axond_chunks"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// QdrantStore implements Store against a Qdrant server over native gRPC.
//
// gRPC (port 6334) avoids Qdrant's HTTP payload limits and gives binary
// protobuf encoding, which matters for large upsert batches of embeddings.
// Transient gRPC failures are retried with exponential backoff and surface
// as ErrStoreUnavailable once the budget is exhausted.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantStore connects to Qdrant, health-checks the connection, and
// ensures the chunk collection exists with the configured vector size.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to Qdrant: %v", ErrStoreUnavailable, err)
	}

	s := &QdrantStore{
		client: client,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrStoreUnavailable, err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}

// ensureCollection creates the chunk collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrStoreUnavailable, s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrStoreUnavailable, s.config.Collection, err)
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC errors. Permanent errors return immediately.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff

	var err error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed: %w", name, err)
		}

		if attempt == s.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: %s failed after %d retries: %v", ErrStoreUnavailable, name, s.config.MaxRetries, err)
}

// pointID maps a chunk ID to a Qdrant point ID. Qdrant only accepts UUIDs or
// integers, so non-UUID chunk IDs are mapped through a deterministic UUIDv5
// to keep upserts idempotent. The raw chunk ID is preserved in the payload.
func pointID(chunkID string) *qdrant.PointId {
	if _, err := uuid.Parse(chunkID); err == nil {
		return qdrant.NewIDUUID(chunkID)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String())
}

// Upsert inserts or replaces chunks keyed by chunk ID.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.String("collection", s.config.Collection),
	)

	if err := validateChunks(chunks, int(s.config.VectorSize)); err != nil {
		span.RecordError(err)
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := map[string]*qdrant.Value{
			metaKeyChunkID: {Kind: &qdrant.Value_StringValue{StringValue: c.ID}},
			metaKeyText:    {Kind: &qdrant.Value_StringValue{StringValue: c.Text}},
			metaKeyOwnerID: {Kind: &qdrant.Value_StringValue{StringValue: c.Meta.OwnerID}},
		}
		if c.Meta.SourceID != "" {
			payload[metaKeySourceID] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: c.Meta.SourceID}}
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// buildFilter converts a Filter to Qdrant must-match conditions.
func buildFilter(filter Filter) *qdrant.Filter {
	where := filter.where()
	if len(where) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(where))
	for _, key := range []string{metaKeyOwnerID, metaKeySourceID} {
		value, ok := where[key]
		if !ok {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Query returns up to topK chunks most similar to vector within the filter
// scope. Scores are cosine similarity as reported by Qdrant.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredChunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) != int(s.config.VectorSize) {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildFilter(filter),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	scored := make([]ScoredChunk, len(points))
	for i, p := range points {
		scored[i] = ScoredChunk{Chunk: chunkFromPayload(p.Payload), Score: p.Score}
	}

	span.SetAttributes(attribute.Int("result_count", len(scored)))
	span.SetStatus(codes.Ok, "success")

	return scored, nil
}

// FetchByMetadata returns all chunks matching the filter, unranked.
func (s *QdrantStore) FetchByMetadata(ctx context.Context, filter Filter) ([]Chunk, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.FetchByMetadata")
	defer span.End()

	chunks, err := scrollPages(func(offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		var points []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := s.retryOperation(ctx, "scroll", func() error {
			res, nextOffset, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.Collection,
				Filter:         buildFilter(filter),
				Limit:          qdrant.PtrOf(uint32(scrollPageLimit)),
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return err
			}
			points, next = res, nextOffset
			return nil
		})
		return points, next, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(chunks)))
	span.SetStatus(codes.Ok, "success")

	return chunks, nil
}

// scrollPages drains a scroll page by page until the store stops returning a
// next-page offset.
func scrollPages(scroll func(offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)) ([]Chunk, error) {
	var chunks []Chunk
	var offset *qdrant.PointId
	for {
		points, next, err := scroll(offset)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			chunks = append(chunks, chunkFromPayload(p.GetPayload()))
		}
		if next == nil {
			return chunks, nil
		}
		offset = next
	}
}

// HasSource reports whether any chunk matches the filter.
func (s *QdrantStore) HasSource(ctx context.Context, filter Filter) (bool, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.HasSource")
	defer span.End()

	var count uint64
	err := s.retryOperation(ctx, "count", func() error {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Filter:         buildFilter(filter),
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	span.SetStatus(codes.Ok, "success")
	return count > 0, nil
}

// DeleteByMetadata removes all chunks matching the filter. A zero filter is
// rejected rather than interpreted as delete-everything.
func (s *QdrantStore) DeleteByMetadata(ctx context.Context, filter Filter) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteByMetadata")
	defer span.End()

	if filter.IsZero() {
		return fmt.Errorf("refusing to delete with empty filter")
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points:         qdrant.NewPointsSelectorFilter(buildFilter(filter)),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// chunkFromPayload converts a Qdrant point payload to a Chunk. The embedding
// is not carried back; read paths that follow a fetch never re-rank.
func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	c := Chunk{}
	if v, ok := payload[metaKeyChunkID]; ok {
		c.ID = v.GetStringValue()
	}
	if v, ok := payload[metaKeyText]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := payload[metaKeyOwnerID]; ok {
		c.Meta.OwnerID = v.GetStringValue()
	}
	if v, ok := payload[metaKeySourceID]; ok {
		c.Meta.SourceID = v.GetStringValue()
	}
	return c
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
