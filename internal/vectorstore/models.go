package vectorstore

// Metadata keys as stored in vector store payloads.
const (
	metaKeyOwnerID  = "owner_id"
	metaKeySourceID = "source_id"
	metaKeyText     = "text"
	metaKeyChunkID  = "id"
)

// Meta is the metadata carried by every stored chunk.
//
// OwnerID is required. SourceID groups the chunks of one ingested document or
// transcript and may be empty for ungrouped content such as standalone notes.
type Meta struct {
	OwnerID  string
	SourceID string
}

// Chunk is the unit of storage: a bounded substring of a source document
// together with its embedding and scope metadata.
//
// Chunks are immutable once written. Re-ingesting a source produces chunks
// with the same IDs, which replace the previous records via upsert.
type Chunk struct {
	// ID uniquely identifies the chunk across the whole store.
	ID string

	// Text is the chunk content. Never empty for stored chunks.
	Text string

	// Embedding is the chunk's vector. Its length must equal the store's
	// configured vector size.
	Embedding []float32

	Meta Meta
}

// ScoredChunk pairs a chunk with its similarity score for one query.
// Higher scores mean more similar.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Filter restricts queries and fetches to chunks whose metadata matches every
// non-empty field exactly. The zero Filter matches everything.
type Filter struct {
	OwnerID  string
	SourceID string
}

// IsZero reports whether the filter has no predicates.
func (f Filter) IsZero() bool {
	return f.OwnerID == "" && f.SourceID == ""
}

// where converts the filter to the string map shape both backends consume.
// Only non-empty fields become predicates.
func (f Filter) where() map[string]string {
	if f.IsZero() {
		return nil
	}
	m := make(map[string]string, 2)
	if f.OwnerID != "" {
		m[metaKeyOwnerID] = f.OwnerID
	}
	if f.SourceID != "" {
		m[metaKeySourceID] = f.SourceID
	}
	return m
}

// Matches reports whether the chunk's metadata satisfies the filter.
func (f Filter) Matches(m Meta) bool {
	if f.OwnerID != "" && f.OwnerID != m.OwnerID {
		return false
	}
	if f.SourceID != "" && f.SourceID != m.SourceID {
		return false
	}
	return true
}
