package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/Understudy/pkg/markov"
)

// legacySuffix marks the per-entity route, /{name}_model.
const legacySuffix = "_model"

// LineResponse is the body of every generation response. Line is null when
// every attempt was rejected.
type LineResponse struct {
	Line *string `json:"line"`
}

// LineAPI serves generated lines. It is not behind authentication.
type LineAPI struct {
	registry *markov.Registry
	config   *GenerationConfig
	logger   *slog.Logger
}

// NewLineAPI creates a new instance of the LineAPI.
func NewLineAPI(registry *markov.Registry, config *GenerationConfig, logger *slog.Logger) *LineAPI {
	return &LineAPI{
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// RegisterRoutes sets up /api/lines/{name}.
func (a *LineAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/lines/", a.handleLine)
}

func (a *LineAPI) handleLine(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/lines/"), "/")
	a.serveLine(w, r, name)
}

// handleLegacy answers /{name}_model and 404s every other path.
func (a *LineAPI) handleLegacy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	name, ok := strings.CutSuffix(path, legacySuffix)
	if !ok || name == "" || strings.Contains(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	a.serveLine(w, r, name)
}

func (a *LineAPI) serveLine(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	tries, opts, err := a.parseQuery(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	line, ok, err := a.registry.GenerateFor(name, tries, opts...)
	if errors.Is(err, markov.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Model not found")
		return
	}
	if err != nil {
		a.logger.Error("Failed to generate line", "model_name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Generation failed")
		return
	}

	var resp LineResponse
	if ok {
		resp.Line = &line
	} else {
		a.logger.Debug("No line passed the filters", "model_name", name, "tries", tries)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// parseQuery reads tries, seed, start, max_length and overlap on top of the
// configured defaults. The route is open, so tries and max_length above the
// configured limits are refused rather than served.
func (a *LineAPI) parseQuery(r *http.Request) (int, []markov.GenerateOption, error) {
	q := r.URL.Query()
	tries := a.config.Tries
	opts := a.config.Options()

	if s := q.Get("tries"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, nil, errors.New("tries must be a non-negative integer")
		}
		if limit := a.config.TriesLimit; limit > 0 && n > limit {
			return 0, nil, fmt.Errorf("tries must not exceed %d", limit)
		}
		tries = n
	}
	if s := q.Get("seed"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, nil, errors.New("seed must be an unsigned integer")
		}
		opts = append(opts, markov.WithSeed(seed))
	}
	if s := q.Get("max_length"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, nil, errors.New("max_length must be an integer")
		}
		if limit := a.config.MaxLengthLimit; limit > 0 && n > limit {
			return 0, nil, fmt.Errorf("max_length must not exceed %d", limit)
		}
		opts = append(opts, markov.WithMaxLength(n))
	}
	if s := q.Get("overlap"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, nil, errors.New("overlap must be an integer")
		}
		opts = append(opts, markov.WithOverlapLimit(n))
	}
	if s := strings.Fields(q.Get("start")); len(s) > 0 {
		opts = append(opts, markov.WithStart(s...))
	}
	return tries, opts, nil
}
