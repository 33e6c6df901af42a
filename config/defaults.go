package config

import "time"

// Default block production and pool settings.
const (
	DefaultBlockTime       = 6 * time.Second
	DefaultCleanupInterval = 10 * time.Minute
	DefaultMempoolSize     = 5000
	DefaultMempoolTxSize   = 100_000
)

// Default returns the default node configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		DB:      DBBadger,
		Author: AuthorConfig{
			Enabled:         false,
			BlockTime:       DefaultBlockTime,
			CleanupInterval: DefaultCleanupInterval,
		},
		Mempool: MempoolConfig{
			MaxSize:   DefaultMempoolSize,
			MaxTxSize: DefaultMempoolTxSize,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
