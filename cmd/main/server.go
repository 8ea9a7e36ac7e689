package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/CTAG07/Understudy/pkg/markov"
	"github.com/CTAG07/Understudy/pkg/store"
)

type Server struct {
	config    *Config
	db        *sql.DB
	logger    *slog.Logger
	store     *store.Store
	registry  *markov.Registry
	authAPI   *AuthAPI
	lineAPI   *LineAPI
	markovAPI *MarkovAPI
	serverAPI *ServerAPI
	mux       *http.ServeMux
}

// NewServer prepares the schema, loads every known model and wires the routes.
func NewServer(config *Config, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	if err := store.SetupSchema(db); err != nil {
		return nil, fmt.Errorf("failed to setup model schema: %w", err)
	}

	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating model store: %w", err)
	}
	st.SetLogger(logger)

	trainer, err := config.Training.NewTrainer(logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create trainer: %w", err)
	}

	registry := markov.NewRegistry()
	registry.SetLogger(logger)

	server := &Server{
		config:   config,
		db:       db,
		logger:   logger,
		store:    st,
		registry: registry,
		mux:      http.NewServeMux(),
	}
	if _, err = server.loadModels(context.Background()); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	if server.authAPI, err = NewAuthAPI(db, logger); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to setup auth: %w", err)
	}
	server.lineAPI = NewLineAPI(registry, config.Generation, logger)
	server.markovAPI = NewMarkovAPI(st, registry, trainer, logger)
	server.serverAPI = NewServerAPI(config, actionChan, server.loadModels, registry.Len, logger)

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.markovAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Management routes must pass through authentication first, generation and
	// the health check stay open.
	server.mux.Handle("/api/", server.authAPI.Authenticate(apiMux))
	server.mux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.lineAPI.RegisterRoutes(server.mux)
	if config.Server.LegacyRoutes {
		server.mux.HandleFunc("/", server.lineAPI.handleLegacy)
	}

	return server, nil
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Close releases the prepared statements. The database itself belongs to the
// caller.
func (s *Server) Close() {
	s.authAPI.Close()
	s.store.Close()
}

// loadModels reads the model directory, if any, and then the store, and swaps
// the result into the registry at once. Stored models win over files of the
// same name. On error the live models are left untouched.
func (s *Server) loadModels(ctx context.Context) (int, error) {
	models := make(map[string]*markov.Model)
	if dir := s.config.Server.ModelDir; dir != "" {
		fromDir, err := store.LoadDir(dir)
		if err != nil {
			return 0, err
		}
		maps.Copy(models, fromDir)
	}
	stored, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	maps.Copy(models, stored)

	if err = s.registry.Replace(models); err != nil {
		return 0, err
	}
	s.logger.Info("Models loaded", "models", len(models), "from_store", len(stored))
	return len(models), nil
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an id, echoed in X-Request-Id, and logs
// it once it has been served.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request served",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
