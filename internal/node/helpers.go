package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
)

// Key namespaces inside the node database.
var (
	prefixState  = []byte("s/") // runtime state: outputs, type index, block height
	prefixBlocks = []byte("c/") // block store
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openStorage opens the database selected by cfg.
func openStorage(cfg *config.Config) (storage.DB, error) {
	switch cfg.DB {
	case config.DBMemory:
		return storage.NewMemory(), nil
	case config.DBBadger, "":
		dir := expandHome(cfg.ChainDataDir())
		db, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", dir, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown db backend %q", cfg.DB)
	}
}

// logFilePath returns where file logs go: the configured path, the default
// under the data directory for persistent nodes, or none.
func logFilePath(cfg *config.Config) (string, error) {
	if cfg.Log.File != "" {
		return expandHome(cfg.Log.File), nil
	}
	if cfg.DB == config.DBMemory {
		return "", nil
	}
	logsDir := expandHome(cfg.LogsDir())
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("creating logs dir: %w", err)
	}
	return filepath.Join(logsDir, "ledgerd.log"), nil
}
