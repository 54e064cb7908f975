// Package config loads process configuration from the environment and
// persists user settings through the blob store.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v6"

	"github.com/MohammadTaha536/mmd536/pkg/core/types"
	"github.com/MohammadTaha536/mmd536/pkg/store"
)

// Env is the process-level configuration. User-tunable behavior lives
// in types.Settings instead; Env only carries what the process needs
// before the store is open.
type Env struct {
	APIKey    string `env:"GEMINI_API_KEY"`
	StorePath string `env:"MMD_STORE_PATH" envDefault:"mmd-assist.db"`
	LogLevel  string `env:"MMD_LOG_LEVEL" envDefault:"info"`
	FFPlayBin string `env:"MMD_FFPLAY_BIN" envDefault:"ffplay"`
}

// LoadEnv parses the environment. The API key is the one hard
// requirement; everything else has a default.
func LoadEnv() (*Env, error) {
	cfg := &Env{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.APIKey == "" {
		// legacy name
		cfg.APIKey = os.Getenv("API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	return cfg, nil
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// LoadSettings reads persisted settings, falling back to the defaults
// when nothing (or garbage) is stored. Radio autoplay never survives a
// restart: a stream should only start from an explicit user action.
func LoadSettings(blobs *store.Store, logger *slog.Logger) types.Settings {
	if logger == nil {
		logger = slog.Default()
	}
	s := types.DefaultSettings()
	if err := blobs.Get(store.KeyAppSettings, &s); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("settings load failed, using defaults", "error", err)
		}
		s = types.DefaultSettings()
	}
	s.RadioPlaying = false
	return s
}

// SaveSettings persists the settings record.
func SaveSettings(blobs *store.Store, s types.Settings) error {
	return blobs.Set(store.KeyAppSettings, s)
}
