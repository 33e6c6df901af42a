package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, DBBadger, cfg.DB)
	assert.False(t, cfg.Author.Enabled, "authoring should be off by default")
}

func TestConfig_Dirs(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	assert.Equal(t, filepath.Join("/data", "chain"), cfg.ChainDataDir())
	assert.Equal(t, filepath.Join("/data", "logs"), cfg.LogsDir())
	assert.Equal(t, filepath.Join("/data", "ledgerd.conf"), cfg.ConfigFile())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.conf")
	content := `# comment
db = memory
author.enabled = yes
author.blocktime = "3s"
author.cleanup = 120
mempool.maxsize = 42
log.level = 'debug'
unknown.key = ignored
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3s", values["author.blocktime"], "quotes should be stripped")

	cfg := Default()
	require.NoError(t, ApplyFileConfig(cfg, values))
	assert.Equal(t, DBMemory, cfg.DB)
	assert.True(t, cfg.Author.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Author.BlockTime)
	assert.Equal(t, 2*time.Minute, cfg.Author.CleanupInterval)
	assert.Equal(t, 42, cfg.Mempool.MaxSize)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte("db memory\n"), 0644))

	_, err := LoadFile(path)
	assert.Error(t, err, "a line without '=' must be rejected")
}

func TestApplyFileConfig_BadValue(t *testing.T) {
	cfg := Default()
	err := ApplyFileConfig(cfg, map[string]string{"mempool.maxsize": "lots"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mempool.maxsize")

	assert.Error(t, ApplyFileConfig(cfg, map[string]string{"author.blocktime": "soon"}))
}

func TestParseFlagsFrom(t *testing.T) {
	f, err := ParseFlagsFrom([]string{
		"--datadir=/tmp/x", "--db=MEMORY", "--author", "--block-time=4s",
		"--cleanup-interval=0", "--log-json=false",
	}, io.Discard)
	require.NoError(t, err)

	cfg := Default()
	cfg.Author.CleanupInterval = time.Hour
	cfg.Log.JSON = true
	ApplyFlags(cfg, f)

	assert.Equal(t, "/tmp/x", cfg.DataDir)
	assert.Equal(t, DBMemory, cfg.DB)
	assert.True(t, cfg.Author.Enabled)
	assert.Equal(t, 4*time.Second, cfg.Author.BlockTime)
	assert.Zero(t, cfg.Author.CleanupInterval, "explicit --cleanup-interval=0 disables sweeps")
	assert.False(t, cfg.Log.JSON, "explicit --log-json=false should override")
}

func TestParseFlagsFrom_Unset(t *testing.T) {
	f, err := ParseFlagsFrom(nil, io.Discard)
	require.NoError(t, err)

	cfg := Default()
	want := *cfg
	ApplyFlags(cfg, f)
	assert.Equal(t, want.Author, cfg.Author)
	assert.Equal(t, want.Mempool, cfg.Mempool)
	assert.Equal(t, want.Log, cfg.Log)
}

func TestParseFlagsFrom_Positional(t *testing.T) {
	_, err := ParseFlagsFrom([]string{"extra", "--author"}, io.Discard)
	assert.Error(t, err, "flags after a positional argument must be rejected")
}

func TestLoadWith_Precedence(t *testing.T) {
	dir := t.TempDir()
	f, err := ParseFlagsFrom([]string{"--datadir=" + dir, "--mempool-size=7"}, io.Discard)
	require.NoError(t, err)

	// First start writes the default config file.
	_, err = LoadWith(f)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "ledgerd.conf"))

	conf := "mempool.maxsize = 99\nlog.level = warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledgerd.conf"), []byte(conf), 0644))

	cfg, err := LoadWith(f)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Mempool.MaxSize, "flag should win over file")
	assert.Equal(t, "warn", cfg.Log.Level, "file should win over default")
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerd.conf")
	require.NoError(t, WriteDefaultConfig(path))

	values, err := LoadFile(path)
	require.NoError(t, err)
	cfg := Default()
	require.NoError(t, ApplyFileConfig(cfg, values))

	def := Default()
	assert.Equal(t, def.Author, cfg.Author)
	assert.Equal(t, def.Mempool, cfg.Mempool)
	assert.Equal(t, def.DB, cfg.DB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad db", func(c *Config) { c.DB = "sqlite" }},
		{"badger without datadir", func(c *Config) { c.DataDir = "" }},
		{"block time too short", func(c *Config) { c.Author.Enabled = true; c.Author.BlockTime = time.Second }},
		{"negative cleanup", func(c *Config) { c.Author.CleanupInterval = -time.Second }},
		{"zero pool", func(c *Config) { c.Mempool.MaxSize = 0 }},
		{"huge tx size", func(c *Config) { c.Mempool.MaxTxSize = MaxBlockSize + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}

	mem := Default()
	mem.DB = DBMemory
	mem.DataDir = ""
	assert.NoError(t, Validate(mem), "memory backend needs no datadir")
	assert.Error(t, Validate(nil))
}

func TestLoadRulesFor(t *testing.T) {
	cfg := Default()
	r, err := LoadRulesFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultRules().Timestamp, r.Timestamp, "empty rules file should give defaults")

	path := filepath.Join(t.TempDir(), "rules.json")
	custom := DefaultRules()
	custom.Timestamp.MinBlocksBeforeCleanup = 3
	require.NoError(t, custom.Save(path))

	cfg.RulesFile = path
	r, err = LoadRulesFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), r.Timestamp.MinBlocksBeforeCleanup)
}
