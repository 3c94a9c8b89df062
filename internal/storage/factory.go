// Package storage selects the credential store and denylist backends.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/storage/memory"
	"github.com/bobmcallan/gatekeep/internal/storage/redis"
	"github.com/bobmcallan/gatekeep/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendSurrealDB = "surrealdb"
	BackendMemory    = "memory"
)

// NewStorageManager creates the credential store for the configured backend.
// Supported backends: "surrealdb" (default), "memory".
func NewStorageManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendSurrealDB
	}

	switch backend {
	case BackendSurrealDB:
		m, err := surrealdb.NewManager(logger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create surrealdb storage: %w", err)
		}
		return m, nil

	case BackendMemory:
		if config.IsProduction() {
			logger.Warn().Msg("Memory storage selected in production: all data is lost on restart")
		}
		logger.Info().Msg("Storage manager initialized (memory)")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: surrealdb, memory)", backend)
	}
}

// NewDenylist creates the access-token denylist. Redis is used when enabled;
// otherwise revocations live in process memory.
func NewDenylist(ctx context.Context, logger *common.Logger, config *common.Config) (interfaces.Denylist, error) {
	if !config.Redis.Enabled {
		logger.Info().Msg("Redis disabled, using in-memory denylist")
		return memory.NewDenylist(), nil
	}
	d, err := redis.NewDenylist(ctx, logger, config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis denylist: %w", err)
	}
	return d, nil
}
