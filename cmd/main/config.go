package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CTAG07/Understudy/pkg/markov"
	"github.com/CTAG07/Understudy/pkg/postag"
)

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	Addr               string `json:"addr" mapstructure:"addr"`
	LogLevel           string `json:"log_level" mapstructure:"log_level"`
	DataDir            string `json:"data_dir" mapstructure:"data_dir"`
	DatabasePath       string `json:"database_path" mapstructure:"database_path"`
	ModelDir           string `json:"model_dir" mapstructure:"model_dir"`
	LegacyRoutes       bool   `json:"legacy_routes" mapstructure:"legacy_routes"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec" mapstructure:"shutdown_timeout_sec"`
}

// GenerationConfig holds the defaults applied to every generated line.
// TriesLimit and MaxLengthLimit cap what a caller of the open line route may
// ask for; zero leaves that value uncapped.
type GenerationConfig struct {
	Tries          int     `json:"tries" mapstructure:"tries"`
	MaxLength      int     `json:"max_length" mapstructure:"max_length"`
	MinLength      int     `json:"min_length" mapstructure:"min_length"`
	MaxChars       int     `json:"max_chars" mapstructure:"max_chars"`
	OverlapLimit   *int    `json:"overlap_limit,omitempty" mapstructure:"overlap_limit"` // nil uses the state size of each model
	OverlapRatio   float64 `json:"overlap_ratio" mapstructure:"overlap_ratio"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	TopK           int     `json:"top_k" mapstructure:"top_k"`
	TriesLimit     int     `json:"tries_limit" mapstructure:"tries_limit"`
	MaxLengthLimit int     `json:"max_length_limit" mapstructure:"max_length_limit"`
}

// TrainingConfig holds the settings used to build new models.
type TrainingConfig struct {
	StateSize         int    `json:"state_size" mapstructure:"state_size"`
	Tagger            string `json:"tagger" mapstructure:"tagger"`
	TaggerModelPath   string `json:"tagger_model_path" mapstructure:"tagger_model_path"`
	Shards            int    `json:"shards" mapstructure:"shards"`
	MaxSentenceLength int    `json:"max_sentence_length" mapstructure:"max_sentence_length"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig     `json:"server_config" mapstructure:"server_config"`
	Generation *GenerationConfig `json:"generation_config" mapstructure:"generation_config"`
	Training   *TrainingConfig   `json:"training_config" mapstructure:"training_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:               ":7279",
		LogLevel:           "info",
		DataDir:            "./data",
		DatabasePath:       "./data/understudy.db",
		ModelDir:           "",
		LegacyRoutes:       true,
		ShutdownTimeoutSec: 10,
	}
}

// DefaultGenerationConfig creates a generation configuration with default values.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		Tries:          markov.DefaultTries,
		MaxLength:      markov.DefaultMaxLength,
		Temperature:    1.0,
		TriesLimit:     1000,
		MaxLengthLimit: 1000,
	}
}

// DefaultTrainingConfig creates a training configuration with default values.
func DefaultTrainingConfig() *TrainingConfig {
	return &TrainingConfig{
		StateSize:         2,
		Tagger:            postag.StrategyNone,
		Shards:            4,
		MaxSentenceLength: markov.DefaultMaxSentenceLength,
	}
}

// DefaultConfig aggregates every default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Generation: DefaultGenerationConfig(),
		Training:   DefaultTrainingConfig(),
	}
}

// flagKeys maps command line flags to the configuration keys they override.
var flagKeys = map[string]string{
	"addr":       "server_config.addr",
	"log-level":  "server_config.log_level",
	"database":   "server_config.database_path",
	"model-dir":  "server_config.model_dir",
	"tries":      "generation_config.tries",
	"state-size": "training_config.state_size",
	"tagger":     "training_config.tagger",
	"shards":     "training_config.shards",
}

// LoadConfig reads the configuration from a JSON file at the given path. If the
// file doesn't exist, it creates one with default values. Values can be
// overridden by UNDERSTUDY_* environment variables and by any flag in flags
// that maps to a configuration key.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	defaults, err := json.MarshalIndent(DefaultConfig(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal default config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	if err = v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if _, err = os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err = v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if os.IsNotExist(err) {
		if dir := filepath.Dir(path); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		if err = atomic.WriteFile(path, bytes.NewReader(defaults)); err != nil {
			// The server can still run with defaults.
			fmt.Printf("warning: failed to write default config file: %v\n", err)
		}
	} else {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("UNDERSTUDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err = v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	config := DefaultConfig()
	if err = v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return config, nil
}

// parseLogLevel maps a config level name to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options converts the configuration into generation options.
func (c *GenerationConfig) Options() []markov.GenerateOption {
	opts := []markov.GenerateOption{
		markov.WithMaxLength(c.MaxLength),
		markov.WithMinLength(c.MinLength),
		markov.WithMaxChars(c.MaxChars),
		markov.WithOverlapRatio(c.OverlapRatio),
		markov.WithTemperature(c.Temperature),
		markov.WithTopK(c.TopK),
	}
	if c.OverlapLimit != nil {
		opts = append(opts, markov.WithOverlapLimit(*c.OverlapLimit))
	}
	return opts
}

// NewTrainer creates a trainer with the configured tagging strategy. An empty
// TaggerModelPath selects the embedded English model.
func (c *TrainingConfig) NewTrainer(logger *slog.Logger) (*markov.Trainer, error) {
	var model *postag.Model
	if c.TaggerModelPath != "" && c.Tagger != postag.StrategyNone {
		f, err := os.Open(c.TaggerModelPath)
		if err != nil {
			return nil, fmt.Errorf("could not open tagger model: %w", err)
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		if model, err = postag.Load(f); err != nil {
			return nil, fmt.Errorf("could not load tagger model: %w", err)
		}
	}
	tagger, err := postag.New(c.Tagger, model)
	if err != nil {
		return nil, err
	}
	return markov.NewTrainer(tagger, c.StateSize,
		markov.WithShards(c.Shards),
		markov.WithMaxSentenceLength(c.MaxSentenceLength),
		markov.WithLogger(logger),
	), nil
}
