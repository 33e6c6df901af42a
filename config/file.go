package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
// Only node-operational settings, NOT protocol rules.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "datadir":
		cfg.DataDir = value
	case "db":
		cfg.DB = DBBackend(strings.ToLower(value))
	case "rules":
		cfg.RulesFile = value

	// Block authoring (operational, not protocol rules)
	case "author.enabled", "author":
		cfg.Author.Enabled = parseBool(value)
	case "author.blocktime":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Author.BlockTime = d
	case "author.cleanup":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Author.CleanupInterval = d

	// Mempool
	case "mempool.maxsize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mempool.MaxSize = n
	case "mempool.maxtxsize":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mempool.MaxTxSize = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseDuration accepts Go durations ("6s", "1m30s") or whole seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string) error {
	content := `# Ledger Node Configuration
#
# This file contains NODE settings only.
# Protocol rules (timestamp intervals, clean-up ages) live in the rules
# file and must match across every node importing the same chain.

# Data directory (default: ~/.ledgerd)
# datadir = ~/.ledgerd

# Storage backend: badger or memory
db = badger

# Protocol rules file (JSON, default: built-in rules)
# rules = ~/.ledgerd/rules.json

# ============================================================================
# Block Authoring
# ============================================================================

author.enabled = false
author.blocktime = ` + DefaultBlockTime.String() + `

# How often to sweep old timestamps (0 disables)
author.cleanup = ` + DefaultCleanupInterval.String() + `

# ============================================================================
# Mempool
# ============================================================================

mempool.maxsize = ` + strconv.Itoa(DefaultMempoolSize) + `
mempool.maxtxsize = ` + strconv.Itoa(DefaultMempoolTxSize) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
