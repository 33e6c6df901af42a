package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Version is the daemon version reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string
	DB      string
	Rules   string

	// Block authoring (operational only)
	Author          bool
	BlockTime       time.Duration
	CleanupInterval time.Duration

	// Mempool
	MempoolSize int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags (for true/false and zero overrides).
	SetAuthor  bool
	SetCleanup bool
	SetLogJSON bool
}

// ParseFlags parses os.Args, exiting on malformed input.
func ParseFlags() *Flags {
	f, err := ParseFlagsFrom(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// ParseFlagsFrom parses the given arguments. Usage goes to out.
func ParseFlagsFrom(args []string, out io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("ledgerd", flag.ContinueOnError)
	fs.SetOutput(out)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.DB, "db", "", "Storage backend (badger or memory)")
	fs.StringVar(&f.Rules, "rules", "", "Protocol rules file (JSON)")

	// Block authoring
	fs.BoolVar(&f.Author, "author", false, "Enable block production")
	fs.DurationVar(&f.BlockTime, "block-time", 0, "Interval between authored blocks")
	fs.DurationVar(&f.CleanupInterval, "cleanup-interval", 0, "Interval between timestamp sweeps (0 disables)")

	// Mempool
	fs.IntVar(&f.MempoolSize, "mempool-size", 0, "Maximum number of pooled transactions")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage(out)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetAuthor = isFlagSet(fs, "author")
	f.SetCleanup = isFlagSet(fs, "cleanup-interval")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.DB != "" {
		cfg.DB = DBBackend(strings.ToLower(f.DB))
	}
	if f.Rules != "" {
		cfg.RulesFile = f.Rules
	}

	// Block authoring
	if f.SetAuthor {
		cfg.Author.Enabled = f.Author
	}
	if f.BlockTime != 0 {
		cfg.Author.BlockTime = f.BlockTime
	}
	if f.SetCleanup {
		cfg.Author.CleanupInterval = f.CleanupInterval
	}

	// Mempool
	if f.MempoolSize != 0 {
		cfg.Mempool.MaxSize = f.MempoolSize
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage(w io.Writer) {
	usage := `ledgerd - UTXO ledger node with timestamp inherents

Usage:
  ledgerd [options]
  ledgerd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir       Data directory (default: ~/.ledgerd)
  --config, -c    Config file path (default: <datadir>/ledgerd.conf)
  --db            Storage backend: badger (default) or memory
  --rules         Protocol rules file (JSON, default: built-in rules)

Authoring Options:
  --author            Enable block production
  --block-time        Interval between authored blocks (default: 6s)
  --cleanup-interval  Interval between timestamp sweeps (default: 10m, 0 disables)

Mempool Options:
  --mempool-size  Maximum number of pooled transactions (default: 5000)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: <datadir>/logs/ledgerd.log)
  --log-json      Output logs as JSON

Examples:
  # Author blocks every 3 seconds
  ledgerd --author --block-time=3s

  # Throwaway in-memory node
  ledgerd --db=memory --author --log-level=debug

Note:
  Protocol rules must match across every node importing the same chain.
  Data directories are created automatically on first start.
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("ledgerd version " + Version)
		os.Exit(0)
	}

	cfg, err := LoadWith(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// LoadWith builds the configuration from defaults, the config file and the
// already parsed flags.
func LoadWith(flags *Flags) (*Config, error) {
	cfg := Default()

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. It is idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
