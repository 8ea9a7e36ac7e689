package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry holds one live Model per name and routes generation requests to it.
//
// Readers never lock: they load an immutable snapshot of the name table, so a
// generation already holding a Model runs to completion against it even if the
// name is replaced meanwhile. Writers are serialized and publish a new table.
type Registry struct {
	mu     sync.Mutex
	models atomic.Pointer[map[string]*Model]
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	empty := make(map[string]*Model)
	r.models.Store(&empty)
	return r
}

// SetLogger allows the user to set a custom slog.Logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *Registry) snapshot() map[string]*Model {
	return *r.models.Load()
}

// update copies the current table, lets fn edit the copy and publishes it.
func (r *Registry) update(fn func(map[string]*Model) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := maps.Clone(r.snapshot())
	if err := fn(next); err != nil {
		return err
	}
	r.models.Store(&next)
	return nil
}

// Register adds m under name, atomically replacing any model already there.
func (r *Registry) Register(name string, m *Model) error {
	if name == "" {
		return errors.New("markov: model name is empty")
	}
	if m == nil {
		return fmt.Errorf("markov: model %q is nil", name)
	}
	return r.update(func(models map[string]*Model) error {
		_, replaced := models[name]
		models[name] = m
		r.logger.Info("Model registered",
			slog.String("model_name", name),
			slog.Int("state_size", m.stateSize),
			slog.Bool("replaced", replaced),
		)
		return nil
	})
}

// Replace swaps the whole name table for models in one step. Names missing
// from models are dropped.
func (r *Registry) Replace(models map[string]*Model) error {
	next := make(map[string]*Model, len(models))
	for name, m := range models {
		if name == "" || m == nil {
			return fmt.Errorf("markov: invalid registry entry %q", name)
		}
		next[name] = m
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models.Store(&next)
	r.logger.Info("Registry replaced", slog.Int("models", len(next)))
	return nil
}

// Get returns the model registered under name, or ErrNotFound.
func (r *Registry) Get(name string) (*Model, error) {
	m, ok := r.snapshot()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return m, nil
}

// Remove drops name from the registry, or returns ErrNotFound.
func (r *Registry) Remove(name string) error {
	return r.update(func(models map[string]*Model) error {
		if _, ok := models[name]; !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		delete(models, name)
		r.logger.Info("Model removed", slog.String("model_name", name))
		return nil
	})
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.snapshot()))
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

// GenerateFor generates a sentence with the model registered under name. An
// unknown name fails with ErrNotFound; running out of tries is reported as
// ("", false, nil).
func (r *Registry) GenerateFor(name string, tries int, opts ...GenerateOption) (string, bool, error) {
	m, err := r.Get(name)
	if err != nil {
		return "", false, err
	}
	line, ok := Generate(m, tries, opts...)
	if !ok {
		r.logger.Debug("Generation exhausted",
			slog.String("model_name", name),
			slog.Int("tries", tries),
		)
	}
	return line, ok, nil
}
