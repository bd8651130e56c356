// Package app provides application-level wiring and dependency injection
// for the duck-warehouse application.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"duck-warehouse/internal/config"
	internaldb "duck-warehouse/internal/db"
	"duck-warehouse/internal/db/repository"
	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/engine"
	"duck-warehouse/internal/realm"
	"duck-warehouse/internal/service/analytics"
)

// Deps holds the external dependencies that main() must provide:
// database handles, config, and the logger.
type Deps struct {
	Cfg       *config.Config
	Warehouse *engine.Store
	WriteDB   *sql.DB
	ReadDB    *sql.DB
	Logger    *slog.Logger
}

// Services groups the services and repositories the CLI needs.
type Services struct {
	Analytics *analytics.Service
	Realms    *repository.RealmConfigRepo
	Roles     *repository.RoleRepo
}

// App holds the fully-wired application.
type App struct {
	Services    Services
	Warehouse   *engine.Store
	RealmCache  *realm.Cache
	RealmSource domain.RealmConfigSource

	logger *slog.Logger
	closer func() error
}

// New wires repositories, the realm cache and the analytics service from
// the provided deps.
func New(_ context.Context, deps Deps) (*App, error) {
	if deps.Cfg == nil || deps.Warehouse == nil || deps.WriteDB == nil || deps.ReadDB == nil {
		return nil, errors.New("app: config, warehouse and metastore handles are required")
	}
	cfg := deps.Cfg
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	// === Repositories ===
	realmRepo := repository.NewRealmConfigRepo(deps.WriteDB)
	roleRepo := repository.NewRoleRepo(deps.WriteDB)
	roleReader := repository.NewRoleRepo(deps.ReadDB)

	// === Realm source ===
	var source domain.RealmConfigSource = repository.NewRealmConfigRepo(deps.ReadDB)
	if cfg.UsesRealmFiles() {
		source = realm.NewDirSource(cfg.RealmConfigDir)
	}
	source = realm.DefaultSchemas(source, cfg.AggregateSchema, cfg.DimensionSchema)
	cache := realm.NewCache(source, nil)

	// === Services ===
	analyticsSvc := analytics.NewService(cache, deps.Warehouse, roleReader, cfg.DefaultResultLimit, deps.Logger)

	return &App{
		Services: Services{
			Analytics: analyticsSvc,
			Realms:    realmRepo,
			Roles:     roleRepo,
		},
		Warehouse:   deps.Warehouse,
		RealmCache:  cache,
		RealmSource: source,
		logger:      deps.Logger,
	}, nil
}

// Open opens the warehouse and the migrated metastore named by cfg and
// wires the application. Close releases every handle.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := engine.Open(cfg.WarehouseDriver, cfg.WarehouseDBPath)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	writeDB, readDB, err := internaldb.OpenMetastore(cfg.MetaDBPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open metastore: %w", err)
	}

	a, err := New(ctx, Deps{Cfg: cfg, Warehouse: store, WriteDB: writeDB, ReadDB: readDB, Logger: logger})
	if err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		_ = store.Close()
		return nil, err
	}
	a.closer = func() error {
		return errors.Join(readDB.Close(), writeDB.Close(), store.Close())
	}
	return a, nil
}

// Close releases the handles opened by Open. It is a no-op for an App
// built with New.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
