// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: loaded from a rules file, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DBBackend selects the storage engine.
type DBBackend string

const (
	DBBadger DBBackend = "badger"
	DBMemory DBBackend = "memory"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking block import.
type Config struct {
	// Core
	DataDir   string    `conf:"datadir"`
	DB        DBBackend `conf:"db"`
	RulesFile string    `conf:"rules"` // Protocol rules JSON (empty = built-in defaults)

	// Block authoring (operational, not protocol rules)
	Author AuthorConfig

	// Transaction pool
	Mempool MempoolConfig

	// Logging
	Log LogConfig
}

// AuthorConfig holds block production settings.
type AuthorConfig struct {
	Enabled   bool          `conf:"author.enabled"`
	BlockTime time.Duration `conf:"author.blocktime"`
	// CleanupInterval is how often old timestamps are swept (0 = never).
	CleanupInterval time.Duration `conf:"author.cleanup"`
}

// MempoolConfig holds transaction pool settings.
type MempoolConfig struct {
	MaxSize   int `conf:"mempool.maxsize"`
	MaxTxSize int `conf:"mempool.maxtxsize"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.ledgerd
//	macOS:   ~/Library/Application Support/Ledgerd
//	Windows: %APPDATA%\Ledgerd
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ledgerd"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Ledgerd")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Ledgerd")
		}
		return filepath.Join(home, "AppData", "Roaming", "Ledgerd")
	default:
		return filepath.Join(home, ".ledgerd")
	}
}

// ChainDataDir returns the database directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, "chain")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "ledgerd.conf")
}

// LoadRulesFor returns the protocol rules named by cfg, or the defaults.
func LoadRulesFor(cfg *Config) (*Rules, error) {
	if cfg.RulesFile == "" {
		return DefaultRules(), nil
	}
	return LoadRules(cfg.RulesFile)
}
