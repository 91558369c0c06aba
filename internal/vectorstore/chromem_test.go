package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()

	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_chunks",
		VectorSize: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testChunk(id, text, owner, source string, vec []float32) Chunk {
	return Chunk{
		ID:        id,
		Text:      text,
		Embedding: vec,
		Meta:      Meta{OwnerID: owner, SourceID: source},
	}
}

func TestChromemStore_UpsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []Chunk{
		testChunk("c1", "go concurrency patterns", "alice", "doc-1", []float32{1, 0, 0, 0}),
		testChunk("c2", "rust borrow checker", "alice", "doc-1", []float32{0, 1, 0, 0}),
		testChunk("c3", "python asyncio", "alice", "doc-2", []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 2, Filter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "c1", results[0].ID)
	assert.Equal(t, "go concurrency patterns", results[0].Text)
	assert.Equal(t, "alice", results[0].Meta.OwnerID)
	assert.Equal(t, "doc-1", results[0].Meta.SourceID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestChromemStore_UpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := testChunk("stable-id", "original text", "bob", "doc-9", []float32{1, 0, 0, 0})
	require.NoError(t, store.Upsert(ctx, []Chunk{chunk}))

	chunk.Text = "revised text"
	require.NoError(t, store.Upsert(ctx, []Chunk{chunk}))

	chunks, err := store.FetchByMetadata(ctx, Filter{OwnerID: "bob", SourceID: "doc-9"})
	require.NoError(t, err)
	require.Len(t, chunks, 1, "re-upserting the same ID must replace, not duplicate")
	assert.Equal(t, "revised text", chunks[0].Text)
}

func TestChromemStore_UpsertRejectsBadChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		chunks  []Chunk
		wantErr error
	}{
		{"no chunks", nil, ErrEmptyChunks},
		{
			"wrong dimension",
			[]Chunk{testChunk("c1", "text", "alice", "doc-1", []float32{1, 0})},
			ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Upsert(ctx, tt.chunks)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChromemStore_QueryScopesToOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []Chunk{
		testChunk("a1", "alice chunk", "alice", "doc-1", []float32{1, 0, 0, 0}),
		testChunk("b1", "bob chunk", "bob", "doc-2", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 10, Filter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
}

func TestChromemStore_QueryScopesToSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []Chunk{
		testChunk("a1", "first doc", "alice", "doc-1", []float32{1, 0, 0, 0}),
		testChunk("a2", "second doc", "alice", "doc-2", []float32{0.9, 0.1, 0, 0}),
	})
	require.NoError(t, err)

	results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 10, Filter{OwnerID: "alice", SourceID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a2", results[0].ID)
}

func TestChromemStore_QueryEmptyStore(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Query(context.Background(), []float32{1, 0, 0, 0}, 5, Filter{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_QueryDimensionMismatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Query(context.Background(), []float32{1, 0}, 5, Filter{OwnerID: "alice"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemStore_HasSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	filter := Filter{OwnerID: "alice", SourceID: "doc-1"}

	found, err := store.HasSource(ctx, filter)
	require.NoError(t, err)
	assert.False(t, found)

	err = store.Upsert(ctx, []Chunk{
		testChunk("c1", "text", "alice", "doc-1", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	found, err = store.HasSource(ctx, filter)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.HasSource(ctx, Filter{OwnerID: "alice", SourceID: "doc-other"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChromemStore_DeleteByMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, []Chunk{
		testChunk("c1", "keep", "alice", "doc-1", []float32{1, 0, 0, 0}),
		testChunk("c2", "drop", "alice", "doc-2", []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteByMetadata(ctx, Filter{OwnerID: "alice", SourceID: "doc-2"}))

	chunks, err := store.FetchByMetadata(ctx, Filter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1", chunks[0].ID)
}

func TestChromemStore_DeleteRejectsEmptyFilter(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteByMetadata(context.Background(), Filter{})
	assert.Error(t, err)
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := ChromemConfig{Path: dir, Collection: "test_chunks", VectorSize: 4}
	ctx := context.Background()

	store, err := NewChromemStore(cfg, zap.NewNop())
	require.NoError(t, err)

	err = store.Upsert(ctx, []Chunk{
		testChunk("c1", "durable chunk", "alice", "doc-1", []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	chunks, err := reopened.FetchByMetadata(ctx, Filter{OwnerID: "alice", SourceID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "durable chunk", chunks[0].Text)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("axond_chunks"))
	assert.NoError(t, ValidateCollectionName("a1"))
	assert.ErrorIs(t, ValidateCollectionName(""), ErrInvalidConfig)
	assert.ErrorIs(t, ValidateCollectionName("Has-Caps"), ErrInvalidConfig)
	assert.ErrorIs(t, ValidateCollectionName("spaces here"), ErrInvalidConfig)
}

func TestFilter_Matches(t *testing.T) {
	meta := Meta{OwnerID: "alice", SourceID: "doc-1"}

	assert.True(t, Filter{}.Matches(meta))
	assert.True(t, Filter{OwnerID: "alice"}.Matches(meta))
	assert.True(t, Filter{OwnerID: "alice", SourceID: "doc-1"}.Matches(meta))
	assert.False(t, Filter{OwnerID: "bob"}.Matches(meta))
	assert.False(t, Filter{OwnerID: "alice", SourceID: "doc-2"}.Matches(meta))
}
