package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wikitools/delsort/internal/config"
	"github.com/wikitools/delsort/internal/types"
)

// Storage is the interface for all dataset backends.
type Storage interface {
	// Write persists a finished dataset. Writing the same key again replaces it.
	Write(key types.DatasetKey, ds *types.Dataset) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Loader is implemented by backends that can read a dataset back by name.
type Loader interface {
	Load(ctx context.Context, name string) (*types.Dataset, error)
}

// New creates the backend selected by cfg.Type.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch cfg.Type {
	case "file":
		return NewFileStorage(cfg.OutputPath, logger)
	case "mongo":
		return NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	case "multi":
		files, err := NewFileStorage(cfg.OutputPath, logger)
		if err != nil {
			return nil, err
		}
		mongo, err := NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
		if err != nil {
			return nil, err
		}
		return NewMultiStorage([]Storage{files, mongo}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
