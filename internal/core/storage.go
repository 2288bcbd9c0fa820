package core

import (
	"context"
	"fmt"

	"sampleflow/internal/infra/persistence/memory"
	"sampleflow/internal/infra/persistence/postgres"
	"sampleflow/internal/infra/persistence/sqlite"
	"sampleflow/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageConfig selects and configures a persistent store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the backend named by cfg.Driver, defaulting to
// sqlite. engine may be nil, in which case the default rules are used.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// Ready reports whether the persistent store is reachable. Stores without a
// connection are always ready.
func (s *Service) Ready(ctx context.Context) error {
	pinger, ok := s.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}
