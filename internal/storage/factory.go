// File: internal/storage/factory.go
package storage

import (
	"strings"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// NewStorage creates a storage instance based on configuration. It returns
// nil, nil when the journal is disabled.
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	storageConfig := &StorageConfig{
		Type:             cfg.Type,
		ConnectionString: cfg.ConnectionString,
		MaxConnections:   cfg.MaxConnections,
		MaxIdleTime:      cfg.MaxIdleTime,
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return NewSQLiteStorage(storageConfig), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(storageConfig), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type", cfg.Type)
	}
}

// Open builds, connects and migrates the configured journal, wrapping it with
// metrics. It returns nil, nil when the journal is disabled.
func Open(cfg config.StorageConfig, metricsManager *metrics.Manager) (Storage, error) {
	store, err := NewStorage(cfg)
	if err != nil || store == nil {
		return nil, err
	}

	if err := store.Connect(); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}

	return NewStorageWithMetrics(store, metricsManager), nil
}
