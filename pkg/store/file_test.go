package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Understudy/pkg/markov"
)

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice.json")
	m := testModel(t, "the cat sat", "the dog ran")

	require.NoError(t, SaveFile(path, m))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, markov.Encode(m), markov.Encode(loaded))
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"format_version":1,`), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, markov.ErrCodec)
}

func TestExportLoadDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	models := map[string]*markov.Model{
		"alice": testModel(t, "a b c"),
		"bob":   testModel(t, "d e f"),
	}
	require.NoError(t, ExportDir(dir, models))
	assert.FileExists(t, filepath.Join(dir, "alice.json"))

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	loaded, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for name, m := range models {
		assert.Equal(t, markov.Encode(m), markov.Encode(loaded[name]), name)
	}
}

func TestExportDir_InvalidName(t *testing.T) {
	err := ExportDir(t.TempDir(), map[string]*markov.Model{"../x": testModel(t, "a b")})
	assert.Error(t, err)
}

func TestLoadDir_Empty(t *testing.T) {
	loaded, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
