package main

import (
	"context"
	"log/slog"
	"net/http"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI holds the dependencies for the main application API handlers.
type ServerAPI struct {
	config     *Config
	actionChan chan string
	reload     func(ctx context.Context) (int, error)
	models     func() int
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewServerAPI creates a new instance of the ServerAPI. reload swaps in the
// stored models and reports how many are live; models counts them.
func NewServerAPI(config *Config, actionChan chan string, reload func(ctx context.Context) (int, error), models func() int, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		config:     config,
		actionChan: actionChan,
		reload:     reload,
		models:     models,
		logger:     logger,
	}
}

// RegisterRoutes sets up the routing for all /api/server endpoints.
func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server/config", a.handleConfig)
	mux.HandleFunc("/api/server/version", a.handleVersion)
	mux.HandleFunc("/api/server/reload", a.handleReload)
	mux.HandleFunc("/api/server/shutdown", a.handleShutdown)
	mux.HandleFunc("/api/server/restart", a.handleRestart)
}

// handleHealthCheck is unauthenticated so container runtimes can probe it.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"status": "ok", "models": a.models()})
}

// handleConfig returns the running configuration.
func (a *ServerAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if !requireScope(w, r, scopeServerControl) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.config)
}

// handleVersion returns the application's build information.
func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleReload replaces every live model with the stored ones in one swap.
// Generations already running finish on the models they started with.
func (a *ServerAPI) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if !requireScope(w, r, scopeServerControl) {
		return
	}
	n, err := a.reload(r.Context())
	if err != nil {
		a.logger.Error("Model reload failed, keeping the current models", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Reload failed: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"models": n})
}

// handleShutdown initiates a graceful shutdown of the server.
func (a *ServerAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	a.sendAction(w, r, actionShutdown, "Server is shutting down...")
}

// handleRestart initiates a graceful restart of the server, which also rereads
// the configuration.
func (a *ServerAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	a.sendAction(w, r, actionRestart, "Server is restarting...")
}

func (a *ServerAPI) sendAction(w http.ResponseWriter, r *http.Request, action, message string) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if !requireScope(w, r, scopeServerControl) {
		return
	}

	a.logger.Warn("Server action initiated via API", "action", action)
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": message})

	go func() {
		a.actionChan <- action
	}()
}
