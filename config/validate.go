package config

import (
	"fmt"
	"time"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.DB {
	case DBBadger:
		if cfg.DataDir == "" {
			return fmt.Errorf("datadir is required for the %s backend", DBBadger)
		}
	case DBMemory:
	default:
		return fmt.Errorf("db must be %q or %q", DBBadger, DBMemory)
	}

	if cfg.Author.Enabled {
		min := time.Duration(DefaultMinimumTimeInterval) * time.Millisecond
		if cfg.Author.BlockTime < min {
			return fmt.Errorf("author.blocktime must be at least %s", min)
		}
	}
	if cfg.Author.CleanupInterval < 0 {
		return fmt.Errorf("author.cleanup must not be negative")
	}

	if cfg.Mempool.MaxSize <= 0 {
		return fmt.Errorf("mempool.maxsize must be positive")
	}
	if cfg.Mempool.MaxTxSize <= 0 || cfg.Mempool.MaxTxSize > MaxBlockSize {
		return fmt.Errorf("mempool.maxtxsize must be in range [1, %d]", MaxBlockSize)
	}
	return nil
}
