// Package config defines the fork organizer daemon's configuration
// surface, parsed with jessevdk/go-flags (struct tags drive both CLI
// flags and an ini file).
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jessevdk/go-flags"
)

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".forkd")
	}
	return filepath.Join(home, ".forkd")
}

const (
	defaultConfigFilename   = "forkd.conf"
	defaultDataDirname      = "data"
	defaultLogFilename      = "forkd.log"
	defaultOrphanExpiration = 10 * time.Minute
)

// Config is the organizer daemon's full set of runtime knobs.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	HomeDir    string `short:"A" long:"appdata" description:"Path to application home directory"`
	DataDir    string `short:"b" long:"datadir" description:"Directory holding the confirmed chain store and orphan cache"`
	LogDir     string `long:"logdir" description:"Directory to write rotated log files to"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`

	FlushPerReorg        bool          `long:"flush-per-reorg" description:"Flush the confirmed chain store after every reorganization instead of holding a coarse writer-intent lock for the daemon's lifetime"`
	MaxOrphanBlocks      int           `long:"max-orphan-blocks" default:"500" description:"Maximum number of orphan blocks for the block pool; parsed and stored, but the block pool does not enforce a size limit"`
	OrphanExpiration     time.Duration `long:"orphan-expiration" description:"Duration an orphan block may sit in the pool before eviction"`
	ValidatorWorkers     int           `long:"validator-workers" description:"Number of goroutines running validator accept/connect calls and, separately, the store's reorganize write (default: number of CPUs)"`
	StrictForkPointCheck bool          `long:"strict-fork-point-check" description:"Use the corrected S3 duplicate gate (existence beyond the fork point) instead of the documented whole-chain check"`

	MetricsEnabled bool `long:"metrics" description:"Enable metrics collection"`
}

// Default returns a Config populated with the organizer's defaults, the
// values an unparsed flags.Parse would leave in place for any field
// without a `default` tag that also needs runtime computation
// (OrphanExpiration, ValidatorWorkers, DataDir/LogDir).
func Default() *Config {
	homeDir := defaultHomeDir()
	return &Config{
		ConfigFile:       filepath.Join(homeDir, defaultConfigFilename),
		HomeDir:          homeDir,
		DataDir:          filepath.Join(homeDir, defaultDataDirname),
		LogDir:           homeDir,
		DebugLevel:       "info",
		MaxOrphanBlocks:  500,
		OrphanExpiration: defaultOrphanExpiration,
		ValidatorWorkers: runtime.NumCPU(),
	}
}

// LogFile returns the path log rotation should write to.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// Load parses command-line arguments (and, when present, the ini-style
// ConfigFile) over top of Default(), using a two-pass preParser/parser
// sequence: the first pass only looks for -C/--configfile, the second
// reapplies the full flag set over whatever the ini file set.
func Load(args []string) (*Config, []string, error) {
	cfg := Default()

	preCfg := *cfg
	preParser := flags.NewParser(&preCfg, flags.Default&^flags.HelpFlag)
	if _, err := preParser.ParseArgs(args); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			return nil, nil, err
		}
	}

	if preCfg.ConfigFile != "" {
		if _, err := os.Stat(preCfg.ConfigFile); err == nil {
			iniParser := flags.NewIniParser(flags.NewParser(cfg, flags.Default))
			if err := iniParser.ParseFile(preCfg.ConfigFile); err != nil {
				return nil, nil, err
			}
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if cfg.OrphanExpiration <= 0 {
		cfg.OrphanExpiration = defaultOrphanExpiration
	}
	if cfg.ValidatorWorkers <= 0 {
		cfg.ValidatorWorkers = runtime.NumCPU()
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, err
	}

	return cfg, remaining, nil
}
