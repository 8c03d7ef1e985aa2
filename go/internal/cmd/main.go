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
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("CIRCUITCAST_CONFIG"), "path to host config YAML")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := setupCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up catalog")
	}
	defer store.close()

	services, err := setupServices(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	server := setupServer(cfg.Server.Addr, services)

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("callback_url", cfg.StationCallbackURL()).
			Str("catalog", cfg.Catalog.Driver).
			Msg("host server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// End the live session first so stations get END_SESSION.
	if err := services.Sessions.Stop(shutdownCtx); err != nil {
		log.Debug().Err(err).Msg("no session to end")
	}
	services.Sessions.Shutdown(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	services.Close()
	log.Info().Msg("host shutdown complete")
}
