package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Understudy/pkg/store"
)

func TestReadEntities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string][]string
	}{
		{
			name:  "header",
			input: "id,Character,Line\n1,Jerry,Hello there. How are you?\n2,Elaine,Get out!\n3,Jerry,Fine.\n",
			want: map[string][]string{
				"Jerry":  {"Hello there.", "How are you?", "Fine."},
				"Elaine": {"Get out!"},
			},
		},
		{
			name:  "no header",
			input: "Jerry,Hello.\nGeorge Costanza,\"It's not a lie, if you believe it.\"\n",
			want: map[string][]string{
				"Jerry":           {"Hello."},
				"George_Costanza": {"It's not a lie, if you believe it."},
			},
		},
		{
			name:  "short rows and bad names are skipped",
			input: "speaker,line\nlonely\n???,Who?\nKramer,Giddy up.\n",
			want: map[string][]string{
				"Kramer": {"Giddy up."},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readEntities(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntityName(t *testing.T) {
	assert.Equal(t, "Mr._Peterman", entityName("Mr. Peterman"))
	assert.Equal(t, "Newman", entityName("  Newman "))
	assert.Equal(t, "", entityName("../"))
	assert.Equal(t, "", entityName("日本"))
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	config := `{
  "server_config": {"data_dir": "` + filepath.ToSlash(dir) + `", "database_path": "` + filepath.ToSlash(filepath.Join(dir, "models.db")) + `", "log_level": "error"},
  "generation_config": {"overlap_limit": 0}
}`
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))
	return path
}

func TestRunTrainAndGenerate(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)
	csvPath := filepath.Join(dir, "lines.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("speaker,line\nAlice,The cat sat.\nAlice,The cat ran.\nBob,Hello world.\n"), 0o644))
	outDir := filepath.Join(dir, "models")

	var out bytes.Buffer
	err := runTrain([]string{"--config", configPath, "--input", csvPath, "--out", outDir, "--save"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Alice")
	assert.Contains(t, out.String(), "Bob")

	models, err := store.LoadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, models, 2)
	assert.Len(t, models["Alice"].Corpus(), 2)

	out.Reset()
	err = runGenerate([]string{"--config", configPath, "--model", filepath.Join(outDir, "Alice.json"), "--count", "3", "--seed", "9"}, &out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Contains(t, []string{"The cat sat.", "The cat ran."}, line)
	}

	out.Reset()
	err = runGenerate([]string{"--config", configPath, "--name", "Bob"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\n", out.String())
}

func TestRunTrain_Errors(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir)

	assert.Error(t, runTrain([]string{"--config", configPath}, &bytes.Buffer{}))
	assert.Error(t, runTrain([]string{"--config", configPath, "--input", "x.csv"}, &bytes.Buffer{}))
	assert.Error(t, runTrain([]string{"--config", configPath, "--input", filepath.Join(dir, "missing.csv"), "--out", dir}, &bytes.Buffer{}))

	assert.Error(t, runGenerate([]string{"--config", configPath}, &bytes.Buffer{}))
	assert.Error(t, runGenerate([]string{"--config", configPath, "--name", "nobody"}, &bytes.Buffer{}))
}
