// Package vectorstore persists document chunks and their embeddings and
// serves similarity queries scoped by owner/source metadata.
//
// Two implementations are provided: ChromemStore, an embedded persistent
// store backed by chromem-go (the default, no external service needed), and
// QdrantStore, which talks to a Qdrant server over native gRPC. Both expose
// the same Store interface: idempotent upsert keyed by chunk ID, top-k
// similarity search with exact-match metadata filters, unranked fetch by
// metadata, and delete-by-metadata for eviction.
//
// Embedding generation lives outside this package. Callers embed text first
// (see internal/embeddings) and hand finished vectors to the store, so the
// store never decides what model a vector came from; it only enforces that
// all vectors share the configured dimensionality.
package vectorstore
