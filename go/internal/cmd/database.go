package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/catalog"
	"github.com/mcdev12/circuitcast/go/internal/config"
	"github.com/mcdev12/circuitcast/go/internal/session/outbox"
)

// catalogStore is the opened catalog plus what health checks and shutdown need.
type catalogStore struct {
	repo  catalog.Repository
	db    outbox.Pinger // nil for the in-memory catalog
	close func()
}

func setupCatalog(ctx context.Context, cfg *config.HostConfig) (*catalogStore, error) {
	switch cfg.Catalog.Driver {
	case config.CatalogPostgres:
		db := cfg.Catalog.Database
		if err := catalog.RunMigrations(db.DSN(), cfg.Catalog.MigrationsPath); err != nil {
			return nil, err
		}
		pool, err := catalog.Connect(ctx, db.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info().
			Str("host", db.Host).
			Int("port", db.Port).
			Str("database", db.Database).
			Msg("connected to catalog database")
		return &catalogStore{repo: catalog.NewPostgresRepository(pool), db: pool, close: pool.Close}, nil

	default:
		seed, err := catalog.LoadSeed(cfg.Catalog.SeedPath)
		if err != nil {
			return nil, err
		}
		log.Info().
			Int("exercises", len(seed.Exercises)).
			Int("workouts", len(seed.Workouts)).
			Msg("loaded in-memory catalog")
		return &catalogStore{repo: catalog.NewMemoryRepository(seed), close: func() {}}, nil
	}
}
