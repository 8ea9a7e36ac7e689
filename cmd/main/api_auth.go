package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// authHeader carries the raw API key of a request.
const authHeader = "understudy-auth"

type contextKey string

const contextKeyScopes = contextKey("scopes")

// AuthAPI guards the management routes and serves /api/auth.
type AuthAPI struct {
	keys   *keyStore
	logger *slog.Logger
}

// NewAuthAPI prepares the key table and its statements. Close releases them.
func NewAuthAPI(db *sql.DB, logger *slog.Logger) (*AuthAPI, error) {
	if err := setupKeySchema(db); err != nil {
		return nil, err
	}
	keys, err := newKeyStore(db)
	if err != nil {
		return nil, err
	}
	return &AuthAPI{keys: keys, logger: logger}, nil
}

func (a *AuthAPI) Close() {
	a.keys.Close()
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/scopes", a.handleScopes)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key. The raw key is
// only ever shown here.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

// Authenticate resolves the key in the understudy-auth header to its scopes and
// stores them in the request context. While no key exists every request is
// treated as master, so the first key can be created.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := a.keys.count(r.Context())
		if err != nil {
			a.logger.Error("Authenticate failed to count keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		scopes := newScopeSet(scopeMaster)
		if n > 0 {
			raw := r.Header.Get(authHeader)
			if raw == "" {
				respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
			scopes, err = a.keys.lookup(r.Context(), raw)
			if errors.Is(err, errKeyNotFound) {
				respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
			if err != nil {
				a.logger.Error("Authenticate failed to look up key", "error", err)
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyScopes, scopes)))
	})
}

// requireScope answers 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if scopes, ok := r.Context().Value(contextKeyScopes).(scopeSet); ok && scopes.allows(scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	scopes, ok := r.Context().Value(contextKeyScopes).(scopeSet)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": scopes.sorted()})
}

func (a *AuthAPI) handleScopes(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	respondWithJSON(w, http.StatusOK, knownScopes)
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeAuthManage) {
			return
		}
		keys, err := a.keys.list(r.Context())
		if err != nil {
			a.logger.Error("Failed to list API keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}
		respondWithJSON(w, http.StatusOK, keys)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	n, err := a.keys.count(r.Context())
	if err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	if n > 0 && !requireScope(w, r, scopeAuthManage) {
		return
	}

	var req CreateKeyRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	for _, s := range req.Scopes {
		if _, ok := knownScopes[s]; !ok {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scope '%s'", s))
			return
		}
	}
	scopes := newScopeSet(req.Scopes...)
	// The first key is always a master key so nobody locks themselves out.
	if n == 0 {
		scopes = newScopeSet(scopeMaster)
	}
	if len(scopes) == 0 {
		respondWithError(w, http.StatusBadRequest, "A key needs at least one scope")
		return
	}

	id, rawKey, err := a.keys.create(r.Context(), scopes, req.Description)
	if err != nil {
		a.logger.Error("Failed to create API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}
	a.logger.Info("API key created", "id", id, "scopes", scopes.String())
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: id, RawKey: rawKey, Scopes: scopes.sorted()})
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if !allowMethod(w, r, http.MethodDelete) || !requireScope(w, r, scopeAuthManage) {
		return
	}

	switch err = a.keys.remove(r.Context(), id); {
	case err == nil:
		a.logger.Info("API key deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errKeyNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	case errors.Is(err, errLastMasterKey):
		respondWithError(w, http.StatusBadRequest, "Cannot delete the last master key")
	default:
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
