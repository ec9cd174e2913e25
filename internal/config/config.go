// Package config loads station configuration from the environment.
package config

import (
	"github.com/caarlos0/env/v11"
)

// Config holds all station configuration
type Config struct {
	// ListenAddr is the local status/export HTTP listen address
	ListenAddr string `env:"GMSTATION_LISTEN_ADDR" envDefault:":8090"`
	// DBPath is the sqlite database file for scoped local storage
	DBPath string `env:"GMSTATION_DB_PATH" envDefault:"gmstation.db"`
	// OrchestratorURL is the websocket endpoint for networked operation
	OrchestratorURL string `env:"GMSTATION_ORCHESTRATOR_URL" envDefault:"ws://localhost:3000/ws"`
	// TokensURL optionally fetches the token document over HTTP first
	TokensURL string `env:"GMSTATION_TOKENS_URL"`
	// TokensPath is the primary local token document location
	TokensPath string `env:"GMSTATION_TOKENS_PATH" envDefault:"data/tokens.json"`
	// TokensBackupPath is the secondary token document location
	TokensBackupPath string `env:"GMSTATION_TOKENS_BACKUP_PATH" envDefault:"tokens.json.backup"`
	// GameMode is an optional startup override; accepts "blackmarket" or
	// "black-market"
	GameMode string `env:"GMSTATION_GAME_MODE"`
	// DeviceType identifies this station class to the orchestrator
	DeviceType string `env:"GMSTATION_DEVICE_TYPE" envDefault:"gm-station"`
	// Version is the protocol version announced on connect
	Version string `env:"GMSTATION_PROTOCOL_VERSION" envDefault:"1.0"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `env:"GMSTATION_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
