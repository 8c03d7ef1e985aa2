package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/catalog"
	"github.com/mcdev12/circuitcast/go/internal/config"
	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/gateway"
	"github.com/mcdev12/circuitcast/go/internal/session/station"
)

func main() {
	configPath := flag.String("config", os.Getenv("CIRCUITCAST_STATION_CONFIG"), "path to station config YAML")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadStation(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var aliases station.AliasStore = &station.MemoryAliasStore{}
	if cfg.AliasDB != "" {
		store, err := station.OpenSQLiteAliasStore(cfg.AliasDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open alias store")
		}
		defer store.Close()
		aliases = store
	}
	alias, err := aliases.LoadAlias(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load alias")
	}

	seed, err := catalog.LoadSeed(cfg.SeedPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load exercise catalog")
	}
	exercises := make(map[string]models.Exercise, len(seed.Exercises))
	for _, e := range seed.Exercises {
		exercises[e.ID] = e
	}

	address := cfg.Address
	if address == "" {
		address = station.NewPairingCode()
	}
	identity := models.StationIdentity{Address: address, Alias: alias}

	st := station.New(station.Config{
		Identity:       identity,
		Exercises:      exercises,
		DriftTolerance: cfg.DriftTolerance,
	})
	stationDone := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(stationDone)
	}()

	link := station.NewLink(ctx, st, gateway.DefaultConnectionConfig(), station.ReconnectPolicy{
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		Delay:       cfg.Reconnect.Delay,
		MaxDelay:    cfg.Reconnect.MaxDelay,
	}, nil)

	var listeners []station.AliasListener
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("circuitcast-station-"+address),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATS.URL).Msg("failed to connect to NATS")
		}
		defer nc.Drain()

		announcer := station.NewAnnouncer(nc, cfg.NATS.LocatePrefix, cfg.PublicURL)
		if err := announcer.Announce(identity); err != nil {
			log.Fatal().Err(err).Msg("failed to announce station")
		}
		defer announcer.Close()
		listeners = append(listeners, announcer)
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           station.NewServer(st, link, aliases, listeners...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("public_url", cfg.PublicURL).
			Str("pairing_code", address).
			Str("alias", alias).
			Msg("display ready")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	link.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()
	<-stationDone

	log.Info().Msg("station shutdown complete")
}
