//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds configuration for the local ONNX provider.
type FastEmbedConfig struct {
	// Model is the embedding model. BAAI/bge-small-en-v1.5 by default; the
	// fastembed "fast-" aliases are accepted too.
	Model string

	// CacheDir caches downloaded model files. Defaults to
	// ~/.cache/axond/models.
	CacheDir string

	// MaxLength is the maximum input sequence length, 512 by default.
	MaxLength int
}

// FastEmbedProvider embeds with local ONNX models. No network calls after
// the model is cached.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	mu        sync.RWMutex
}

// knownModels maps accepted model names to the fastembed constant and its
// vector dimension.
var knownModels = map[string]struct {
	model fastembed.EmbeddingModel
	dim   int
}{
	"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"BAAI/bge-small-en":                      {fastembed.BGESmallEN, 384},
	"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
	"BAAI/bge-base-en":                       {fastembed.BGEBaseEN, 768},
	"BAAI/bge-small-zh-v1.5":                 {fastembed.BGESmallZH, 512},
	"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
	"fast-bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"fast-bge-small-en":                      {fastembed.BGESmallEN, 384},
	"fast-bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
	"fast-bge-base-en":                       {fastembed.BGEBaseEN, 768},
	"fast-bge-small-zh-v1.5":                 {fastembed.BGESmallZH, 512},
	"fast-all-MiniLM-L6-v2":                  {fastembed.AllMiniLML6V2, 384},
}

// fastEmbedModelDimension returns the dimension for a known model name.
func fastEmbedModelDimension(model string) (int, bool) {
	entry, ok := knownModels[model]
	return entry.dim, ok
}

// NewFastEmbedProvider creates the local ONNX provider, downloading the ONNX
// runtime library on first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-small-en-v1.5"
	}

	entry, ok := knownModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported model %q", ErrInvalidConfig, cfg.Model)
	}

	// fastembed locates the runtime through ONNX_PATH.
	libPath, err := ensureONNXRuntime(context.Background())
	if err != nil {
		return nil, err
	}
	if os.Getenv("ONNX_PATH") == "" {
		os.Setenv("ONNX_PATH", libPath)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cacheDir = filepath.Join(home, ".cache", "axond", "models")
		} else {
			cacheDir = filepath.Join(".", "local_cache")
		}
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	// No progress bar on a server's stdout.
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                entry.model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: entry.dim,
	}, nil
}

// EmbedDocuments embeds texts with the BGE "passage: " prefix.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vectors, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery embeds one query with the BGE "query: " prefix.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vector, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

// Dimension returns the vector size of the configured model.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close destroys the loaded model.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model.Destroy()
	}
	return nil
}
