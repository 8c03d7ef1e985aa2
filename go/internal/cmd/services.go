package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/catalog"
	"github.com/mcdev12/circuitcast/go/internal/config"
	"github.com/mcdev12/circuitcast/go/internal/session/gateway"
	"github.com/mcdev12/circuitcast/go/internal/session/host"
	"github.com/mcdev12/circuitcast/go/internal/session/outbox"
)

type Services struct {
	Catalog  *catalog.App
	Sessions *host.Service
	Outbox   *outbox.Worker
	Health   *outbox.HealthChecker

	jetstream *outbox.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg *config.HostConfig, store *catalogStore) (*Services, error) {
	// Repository layer → App layer → Session service
	clock := clockwork.NewRealClock()
	catalogApp := catalog.NewApp(store.repo, clock)

	s := &Services{Catalog: catalogApp}

	var (
		publisher outbox.EventPublisher = outbox.NewLogPublisher()
		nc        *nats.Conn
	)
	if cfg.NATS.URL != "" {
		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.Stream
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		js, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		s.jetstream = js
		publisher = js
		nc = js.Conn()
	}

	s.Outbox = outbox.NewWorker(publisher, outbox.Config{
		QueueSize:      cfg.Outbox.QueueSize,
		MaxRetries:     cfg.Outbox.MaxRetries,
		RetryDelay:     cfg.Outbox.RetryDelay,
		PublishTimeout: outbox.DefaultConfig().PublishTimeout,
	})
	if err := s.Outbox.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start outbox worker: %w", err)
	}
	s.Health = outbox.NewHealthChecker(s.Outbox, nc, store.db)

	locator := gateway.ChainLocator{gateway.NewStaticLocator(cfg.Session.Stations)}
	if nc != nil {
		locator = append(locator, gateway.NewNATSLocator(nc, cfg.NATS.LocatePrefix, cfg.NATS.LocateTimeout))
	}

	callbackURL := cfg.StationCallbackURL()
	connCfg := gateway.DefaultConnectionConfig()
	newConnections := func(sessionID string) host.Connections {
		return gateway.NewConnectionManager(sessionID, callbackURL, locator, connCfg)
	}

	s.Sessions = host.NewService(catalogApp, newConnections, s.Outbox, host.Config{
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		Clock:             clock,
	})

	log.Info().
		Bool("nats", nc != nil).
		Int("static_stations", len(cfg.Session.Stations)).
		Dur("heartbeat", cfg.Session.HeartbeatInterval).
		Msg("session services ready")
	return s, nil
}

// Close stops the outbox after draining and releases NATS.
func (s *Services) Close() {
	if err := s.Outbox.Stop(); err != nil {
		log.Error().Err(err).Msg("outbox worker stop failed")
	}
	if s.jetstream != nil {
		if err := s.jetstream.Close(); err != nil {
			log.Error().Err(err).Msg("NATS close failed")
		}
	}
}
