package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Phonograph/internal"
	"github.com/hbomb79/Phonograph/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var log = logger.Get("Bootstrap")

// main() is the entry point to the program, from here will
// we load the users Phonograph configuration, and run until
// an interrupt is received
func main() {
	configPath := flag.String("config", internal.DefaultConfigPath, "path to the YAML configuration file")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		log.Emit(logger.WARNING, "%v, defaulting to info\n", err)
	}
	logger.SetMinLoggingLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := internal.New(*config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Phonograph failed to start: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Phonograph stopped\n")
}

// loadConfig reads the config file at the path given. The default path
// is allowed to be missing, in which case only the environment is used.
func loadConfig(path string) (*internal.PhonographConfig, error) {
	config := &internal.PhonographConfig{}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(expanded); errors.Is(err, fs.ErrNotExist) && path == internal.DefaultConfigPath {
		log.Emit(logger.INFO, "No config file found at %s, reading configuration from environment\n", expanded)
		return config, config.LoadFromEnv()
	}

	return config, config.LoadFromFile(expanded)
}
