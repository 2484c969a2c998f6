package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/theodore/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the company Store selected by cfg.VectorStore.Provider:
//   - "chromem" (default): embedded ChromemStore, no external service
//   - "qdrant": QdrantStore, requires a reachable Qdrant server
//
// Provider "none" returns (nil, nil); discovery then skips the database phase.
//
//	store, err := vectorstore.NewStore(cfg, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	if store != nil {
//	    defer store.Close()
//	}
func NewStore(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
			VectorSize: cfg.Chromem.VectorSize,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			CollectionName: cfg.Qdrant.CollectionName,
			VectorSize:     cfg.Qdrant.VectorSize,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
		}, embedder, logger)

	case "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant, none)", ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
