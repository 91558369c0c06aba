package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/axond/internal/config"
	"go.uber.org/zap"
)

// NewStore creates a Store based on the configured provider.
//
//   - "chromem" (default): embedded persistent store, no external service.
//   - "qdrant": external Qdrant server over gRPC.
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Collection,
			VectorSize: cfg.VectorStore.VectorSize,
		}, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			Collection: cfg.VectorStore.Collection,
			VectorSize: uint64(cfg.VectorStore.VectorSize),
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
