package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CTAG07/Understudy/pkg/markov"
	"github.com/CTAG07/Understudy/pkg/store"
)

func runGenerate(args []string, out io.Writer) error {
	flagSet, configFile := newFlagSet("generate")
	modelFile := flagSet.StringP("model", "m", "", "Model document to generate from")
	name := flagSet.StringP("name", "n", "", "Stored model to generate from")
	count := flagSet.IntP("count", "k", 1, "Number of lines to generate")
	seed := flagSet.Uint64("seed", 0, "Seed for reproducible output (0 picks a random seed)")
	start := flagSet.String("start", "", "Words every line must begin with")
	flagSet.Int("tries", 0, "Attempts per line")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if (*modelFile == "") == (*name == "") {
		return errors.New("exactly one of --model or --name is required")
	}

	config, err := LoadConfig(*configFile, flagSet)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(config.Server.LogLevel)

	var model *markov.Model
	if *modelFile != "" {
		model, err = store.LoadFile(*modelFile)
	} else {
		model, err = loadStored(context.Background(), config, *name)
	}
	if err != nil {
		return err
	}

	base := config.Generation.Options()
	if words := strings.Fields(*start); len(words) > 0 {
		base = append(base, markov.WithStart(words...))
	}
	for i := range *count {
		opts := base
		if *seed != 0 {
			opts = append(opts[:len(opts):len(opts)], markov.WithSeed(*seed+uint64(i)))
		}
		line, ok := markov.Generate(model, config.Generation.Tries, opts...)
		if !ok {
			logger.Warn("No line passed the filters", "tries", config.Generation.Tries)
			continue
		}
		if _, err = fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func loadStored(ctx context.Context, config *Config, name string) (*markov.Model, error) {
	if _, err := os.Stat(config.Server.DatabasePath); err != nil {
		return nil, fmt.Errorf("no model database at %s: %w", config.Server.DatabasePath, err)
	}
	db, err := openDB(config.Server.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err = store.SetupSchema(db); err != nil {
		return nil, err
	}
	st, err := store.New(db)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Load(ctx, name)
}
