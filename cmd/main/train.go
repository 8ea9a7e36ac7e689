package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/CTAG07/Understudy/pkg/markov"
	"github.com/CTAG07/Understudy/pkg/store"
)

// Header names recognised for the two CSV columns. Files without a header are
// read as speaker,line.
var (
	speakerColumns = []string{"speaker", "character", "name", "entity"}
	lineColumns    = []string{"line", "text", "dialogue", "sentence"}
)

// readEntities groups the lines of a CSV file by speaker. Each line may hold
// several sentences; they are split before training.
func readEntities(r io.Reader) (map[string][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	entities := make(map[string][]string)
	speakerCol, lineCol := 0, 1
	for row := 0; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read training csv: %w", err)
		}
		if row == 0 {
			if s, l, ok := headerColumns(record); ok {
				speakerCol, lineCol = s, l
				continue
			}
		}
		if len(record) <= max(speakerCol, lineCol) {
			continue
		}
		name := entityName(record[speakerCol])
		if name == "" {
			continue
		}
		entities[name] = append(entities[name], markov.SplitSentences(record[lineCol])...)
	}
	return entities, nil
}

func headerColumns(record []string) (int, int, bool) {
	speakerCol, lineCol := -1, -1
	for i, field := range record {
		field = strings.ToLower(strings.TrimSpace(field))
		if speakerCol < 0 && slices.Contains(speakerColumns, field) {
			speakerCol = i
		}
		if lineCol < 0 && slices.Contains(lineColumns, field) {
			lineCol = i
		}
	}
	return speakerCol, lineCol, speakerCol >= 0 && lineCol >= 0
}

// entityName turns a speaker into a valid model name: words are joined with
// underscores and anything else outside [A-Za-z0-9_.-] is dropped.
func entityName(speaker string) string {
	joined := strings.Join(strings.Fields(speaker), "_")
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return -1
	}, joined)
	name = strings.TrimLeft(name, "_.-")
	if !store.ValidName(name) {
		return ""
	}
	return name
}

func runTrain(args []string, out io.Writer) error {
	flagSet, configFile := newFlagSet("train")
	input := flagSet.StringP("input", "i", "", "CSV file of speaker,line rows ('-' reads stdin)")
	outDir := flagSet.StringP("out", "o", "", "Directory to write <name>.json model documents to")
	save := flagSet.Bool("save", false, "Save the models into the model database")
	minLines := flagSet.Int("min-lines", 1, "Skip speakers with fewer sentences than this")
	flagSet.Int("state-size", 0, "Number of words in each chain state")
	flagSet.String("tagger", "", "Tagging strategy (none, fast, accurate)")
	flagSet.Int("shards", 0, "Parts each corpus is split into while building")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("--input is required")
	}
	if *outDir == "" && !*save {
		return errors.New("nothing to do: give --out, --save or both")
	}

	config, err := LoadConfig(*configFile, flagSet)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(config.Server.LogLevel)

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return fmt.Errorf("could not open training csv: %w", err)
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		r = f
	}
	entities, err := readEntities(r)
	if err != nil {
		return err
	}
	for name, sentences := range entities {
		if len(sentences) < *minLines {
			logger.Info("Skipping speaker with too few lines", "speaker", name, "lines", len(sentences))
			delete(entities, name)
		}
	}
	if len(entities) == 0 {
		return errors.New("no speaker has enough lines to train on")
	}

	trainer, err := config.Training.NewTrainer(logger)
	if err != nil {
		return err
	}
	ctx := context.Background()
	models, err := markov.TrainEntities(ctx, trainer, entities)
	if err != nil {
		return err
	}

	if *outDir != "" {
		if err = store.ExportDir(*outDir, models); err != nil {
			return err
		}
		logger.Info("Models exported", "dir", *outDir, "models", len(models))
	}
	if *save {
		if err = saveModels(ctx, config, models); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MODEL\tSENTENCES\tWINDOWS\tVOCABULARY")
	for _, name := range slices.Sorted(maps.Keys(models)) {
		stats := models[name].Stats()
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", name, stats.Sentences, stats.Windows, stats.VocabSize)
	}
	return tw.Flush()
}

func saveModels(ctx context.Context, config *Config, models map[string]*markov.Model) error {
	if err := os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := openDB(config.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err = store.SetupSchema(db); err != nil {
		return err
	}
	st, err := store.New(db)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, name := range slices.Sorted(maps.Keys(models)) {
		if err = st.Save(ctx, name, models[name]); err != nil {
			return err
		}
	}
	return nil
}
