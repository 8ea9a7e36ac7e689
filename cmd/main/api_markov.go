package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Understudy/pkg/markov"
	"github.com/CTAG07/Understudy/pkg/store"
)

// maxUploadBytes bounds training text and imported documents.
const maxUploadBytes = 64 << 20

// MarkovAPI holds the dependencies for the model management handlers. The store
// is the source of truth; the registry mirrors it for generation.
type MarkovAPI struct {
	store    *store.Store
	registry *markov.Registry
	trainer  *markov.Trainer
	logger   *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(st *store.Store, registry *markov.Registry, trainer *markov.Trainer, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		store:    st,
		registry: registry,
		trainer:  trainer,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/markov endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/markov/models", m.handleListModels)
	mux.HandleFunc("/api/markov/models/", m.handleModelByName)
	mux.HandleFunc("/api/markov/import", m.handleImport)
}

type PruneRequest struct {
	MinFreq int `json:"min_freq"`
}

// respondWithModelError maps model errors onto status codes.
func (m *MarkovAPI) respondWithModelError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, markov.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Model not found")
	case errors.Is(err, markov.ErrCodec), errors.Is(err, markov.ErrBuild):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		m.logger.Error("Model operation failed", "model_name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Model operation failed: %v", err))
	}
}

// publish saves m and makes it live under name.
func (m *MarkovAPI) publish(r *http.Request, name string, model *markov.Model) error {
	if err := m.store.Save(r.Context(), name, model); err != nil {
		return err
	}
	return m.registry.Register(name, model)
}

func (m *MarkovAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	infos, err := m.store.List(r.Context())
	if err != nil {
		m.logger.Error("Failed to list models", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, infos)
}

// handleModelByName routes actions for a specific model: info, delete, stats,
// export, train and prune.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/markov/models/"), "/")
	name, action, _ := strings.Cut(path, "/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}
	if !store.ValidName(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid model name")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			m.handleInfo(w, r, name)
		case http.MethodDelete:
			m.handleDelete(w, r, name)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "stats":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		m.handleStats(w, r, name)
	case "export":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		m.handleExport(w, r, name)
	case "train":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		m.handleTrain(w, r, name)
	case "prune":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		m.handlePrune(w, r, name)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func (m *MarkovAPI) handleInfo(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	info, err := m.store.Info(r.Context(), name)
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

func (m *MarkovAPI) handleDelete(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	if err := m.store.Remove(r.Context(), name); err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	if err := m.registry.Remove(name); err != nil && !errors.Is(err, markov.ErrNotFound) {
		m.logger.Warn("Failed to unregister removed model", "model_name", name, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MarkovAPI) handleStats(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	model, err := m.registry.Get(name)
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	respondWithJSON(w, http.StatusOK, model.Stats())
}

func (m *MarkovAPI) handleExport(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, scopeModelsRead) {
		return
	}
	model, err := m.registry.Get(name)
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", name))
	if err = markov.Export(w, model); err != nil {
		m.logger.Error("Failed to export model", "model_name", name, "error", err)
	}
}

// handleTrain trains on the plain text request body. With ?merge=true the new
// counts are added to the existing model instead of replacing it.
func (m *MarkovAPI) handleTrain(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	model, err := m.trainer.TrainReader(r.Context(), http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	if r.URL.Query().Get("merge") == "true" {
		existing, err := m.registry.Get(name)
		switch {
		case err == nil:
			if model, err = markov.Merge(existing, model); err != nil {
				m.respondWithModelError(w, name, err)
				return
			}
		case !errors.Is(err, markov.ErrNotFound):
			m.respondWithModelError(w, name, err)
			return
		}
	}
	if err = m.publish(r, name, model); err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, model.Stats())
}

func (m *MarkovAPI) handlePrune(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	model, err := m.registry.Get(name)
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	pruned, err := model.Prune(req.MinFreq)
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	if err = m.publish(r, name, pruned); err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pruned.Stats())
}

// handleImport stores an uploaded model document under ?name=.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if !requireScope(w, r, scopeModelsWrite) {
		return
	}
	name := r.URL.Query().Get("name")
	if !store.ValidName(name) {
		respondWithError(w, http.StatusBadRequest, "A valid model name is required")
		return
	}

	model, err := markov.Import(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	if err = m.publish(r, name, model); err != nil {
		m.respondWithModelError(w, name, err)
		return
	}
	m.logger.Info("Model imported", "model_name", name)
	respondWithJSON(w, http.StatusCreated, model.Stats())
}
