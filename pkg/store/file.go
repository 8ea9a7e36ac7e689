package store

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Understudy/pkg/markov"
)

// DocumentExt is the file extension of model documents.
const DocumentExt = ".json"

// SaveFile writes the document of m to path. The file is replaced atomically,
// so readers never observe a partly written model.
func SaveFile(path string, m *markov.Model) error {
	var buf bytes.Buffer
	if err := markov.Export(&buf, m); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("could not write model file %s: %w", path, err)
	}
	return nil
}

// LoadFile reads the model document at path.
func LoadFile(path string) (*markov.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open model file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	m, err := markov.Import(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ExportDir writes one <name>.json document per model into dir, creating dir
// if needed.
func ExportDir(dir string, models map[string]*markov.Model) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create export directory: %w", err)
	}
	for _, name := range slices.Sorted(maps.Keys(models)) {
		if !ValidName(name) {
			return fmt.Errorf("invalid model name %q", name)
		}
		if err := SaveFile(filepath.Join(dir, name+DocumentExt), models[name]); err != nil {
			return err
		}
	}
	return nil
}

// LoadDir reads every <name>.json document in dir, keyed by name. Any bad
// document fails the whole call.
func LoadDir(dir string) (map[string]*markov.Model, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+DocumentExt))
	if err != nil {
		return nil, err
	}
	models := make(map[string]*markov.Model, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), DocumentExt)
		if !ValidName(name) {
			continue
		}
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		models[name] = m
	}
	return models, nil
}
