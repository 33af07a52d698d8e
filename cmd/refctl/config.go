package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	backendBolt    = "bolt"
	backendLevelDB = "leveldb"
)

type Config struct {
	DB             string    `toml:"DB"`
	Backend        string    `toml:"Backend"`
	Bucket         string    `toml:"Bucket"`
	Namespace      string    `toml:"Namespace"`
	IndexNamespace string    `toml:"IndexNamespace"`
	Verbose        bool      `toml:"Verbose"`
	Log            LogConfig `toml:"Log"`
}

type LogConfig struct {
	// File enables rotated file logging; stderr is used when empty.
	File       string `toml:"File"`
	Level      string `toml:"Level"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

func defaultConfig() *Config {
	return &Config{
		DB:             "refs.db",
		Backend:        backendBolt,
		Namespace:      "ref_pk",
		IndexNamespace: "ref_idx",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads a TOML config over the defaults. An empty path yields the
// defaults; unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case backendBolt, backendLevelDB:
	default:
		return fmt.Errorf("unsupported backend %q (want %s or %s)", c.Backend, backendBolt, backendLevelDB)
	}
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("DB path is required")
	}
	if c.Namespace == "" || c.IndexNamespace == "" {
		return fmt.Errorf("namespaces must not be empty")
	}
	if c.Namespace == c.IndexNamespace {
		return fmt.Errorf("Namespace and IndexNamespace must differ")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLogger builds the process logger. The returned closer flushes the log
// file, if any.
func newLogger(c *Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = stderr
	var closer io.Closer = io.NopCloser(nil)
	if c.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   c.Log.File,
			MaxSize:    c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		}
		w, closer = lj, lj
	}
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}
