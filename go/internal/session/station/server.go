package station

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// AliasListener is told about alias changes after they are persisted.
type AliasListener interface {
	UpdateAlias(alias string) error
}

// Server exposes the station's host endpoint and its small local API.
type Server struct {
	station   *Station
	link      *Link
	aliases   AliasStore
	listeners []AliasListener
}

func NewServer(st *Station, link *Link, aliases AliasStore, listeners ...AliasListener) *Server {
	if aliases == nil {
		aliases = &MemoryAliasStore{}
	}
	return &Server{station: st, link: link, aliases: aliases, listeners: listeners}
}

type aliasBody struct {
	Alias string `json:"alias"`
}

// Handler returns the routes wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/alias", s.handleGetAlias)
	mux.HandleFunc("PUT /api/alias", s.handlePutAlias)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPut},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.link.Accept(w, r); err != nil {
		// the upgrader has already written the error response
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade host connection")
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.station.Snapshot())
}

func (s *Server) handleGetAlias(w http.ResponseWriter, r *http.Request) {
	alias, err := s.aliases.LoadAlias(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("load alias")
		http.Error(w, "failed to load alias", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, aliasBody{Alias: alias})
}

func (s *Server) handlePutAlias(w http.ResponseWriter, r *http.Request) {
	var body aliasBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	alias, err := CleanAlias(body.Alias)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.aliases.SaveAlias(r.Context(), alias); err != nil {
		log.Error().Err(err).Msg("save alias")
		http.Error(w, "failed to save alias", http.StatusInternalServerError)
		return
	}
	if err := s.station.SetAlias(r.Context(), alias); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	for _, l := range s.listeners {
		if err := l.UpdateAlias(alias); err != nil {
			log.Warn().Err(err).Str("alias", alias).Msg("alias listener failed")
		}
	}

	writeJSON(w, http.StatusOK, aliasBody{Alias: alias})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
