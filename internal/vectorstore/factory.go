package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/verdantlabs/hydrochat/internal/config"
)

// NewStore creates a Store from configuration.
func NewStore(cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "", "memory":
		logger.Info("using in-memory vector store")
		return NewMemoryStore(logger), nil

	case "chromem":
		logger.Info("using chromem vector store",
			zap.String("path", cfg.Chromem.Path),
			zap.Bool("compress", cfg.Chromem.Compress))
		return NewChromemStore(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
