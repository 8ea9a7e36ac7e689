// Command understudy trains per-speaker markov models and serves generated
// lines over HTTP.
//
//	understudy serve    [--config path] [--addr :7279] [--log-level info]
//	understudy train    --input lines.csv [--out dir] [--save]
//	understudy generate (--model file.json | --name speaker) [--count n]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usage = `Usage: understudy <command> [options]

Commands:
  serve      run the HTTP server (default)
  train      train one model per speaker from a CSV file
  generate   print lines from a trained model
  version    print build information
`

func main() {
	command, args := "serve", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = serve(args)
	case "train":
		err = runTrain(args, os.Stdout)
	case "generate":
		err = runGenerate(args, os.Stdout)
	case "version":
		fmt.Printf("understudy %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	case "help":
		fmt.Fprint(os.Stderr, usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		err = fmt.Errorf("unknown command %q", command)
	}
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "understudy: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns the flags shared by every command.
func newFlagSet(name string) (*pflag.FlagSet, *string) {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configFile := flagSet.StringP("config", "c", "./config.json", "Path to config file")
	flagSet.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flagSet.String("database", "", "Path to the model database")
	return flagSet, configFile
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}

func serve(args []string) error {
	flagSet, configFile := newFlagSet("serve")
	flagSet.String("addr", "", "Address to listen on")
	flagSet.String("model-dir", "", "Directory of <name>.json model documents to load")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	baseLogger := newLogger("info")
	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(*configFile, flagSet, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("Understudy has shut down.")
	return nil
}

// run hosts the server until it is shut down or restarted, and returns which.
func run(configPath string, flags *pflag.FlagSet, actionChan chan string) (string, error) {
	config, err := LoadConfig(configPath, flags)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(config.Server.LogLevel)
	logger.Info("Starting server cycle...", "version", Version)

	if err = os.MkdirAll(config.Server.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := openDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	server, err := NewServer(config, logger, db, actionChan)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting Understudy server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			actionChan <- actionShutdown
		}
	}()

	action := <-actionChan // Block until the API or an OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err = httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	return action, nil
}
