// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	appConfigDirName = "guessrun"
	dbFileName       = "guessrun.db"
)

// Config holds the server settings. Empty paths disable the feature they
// point at, except DBPath which falls back to the user config directory.
type Config struct {
	Addr            string        `env:"GUESSRUN_ADDR" envDefault:"127.0.0.1:8080"`
	DBPath          string        `env:"GUESSRUN_DB"`
	TuningPath      string        `env:"GUESSRUN_TUNING"`
	ScriptsDir      string        `env:"GUESSRUN_SCRIPTS_DIR"`
	ShutdownTimeout time.Duration `env:"GUESSRUN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// NoDB runs without persistence; save slots and transcripts are disabled.
	NoDB bool `env:"GUESSRUN_NO_DB" envDefault:"false"`
	// GameLog routes session logs to stdout.
	GameLog bool `env:"GUESSRUN_GAME_LOG" envDefault:"false"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" && !cfg.NoDB {
		path, err := defaultDBPath()
		if err != nil {
			return Config{}, err
		}
		cfg.DBPath = path
	}
	return cfg, nil
}

// defaultDBPath returns the database path inside an OS-appropriate
// writable directory, creating the directory if needed.
func defaultDBPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return filepath.Join(".", dbFileName), nil
	}
	dir := filepath.Join(base, appConfigDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return filepath.Join(dir, dbFileName), nil
}
