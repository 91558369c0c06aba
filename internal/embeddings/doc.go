// Package embeddings turns text into vectors.
//
// Three providers are supported: fastembed runs local ONNX models (cgo
// builds only), tei speaks to a text-embeddings-inference server, and openai
// uses the OpenAI embeddings API. NewProvider selects one at runtime and
// detects the vector dimension for known models.
//
// Every vector that reaches the vector store comes from here; the store
// itself never embeds.
package embeddings
