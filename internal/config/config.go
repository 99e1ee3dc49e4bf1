// Package config loads hilbertmap settings from YAML, the environment and
// command-line flags, in that order of precedence (lowest first).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Mr-Dark-debug/hilbertmap/internal/ingestion"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/internal/subnet"
)

// Environment variables read by ApplyEnv.
const (
	EnvDB       = "HILBERTMAP_DB"
	EnvHTTPAddr = "HILBERTMAP_HTTP_ADDR"
	EnvLogLevel = "HILBERTMAP_LOG_LEVEL"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full settings tree.
type Config struct {
	DBPath   string `yaml:"db_path"`
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Map    MapConfig        `yaml:"map"`
	Import ingestion.Config `yaml:"import"`
}

// MapConfig holds the map view settings.
type MapConfig struct {
	TopV4      string `yaml:"top_v4"`
	TopV6      string `yaml:"top_v6"`
	MaxExpand  int    `yaml:"max_expand"`
	MinLevel   int    `yaml:"min_level"`
	PromoteKey string `yaml:"promote_key"`
	DemoteKey  string `yaml:"demote_key"`
}

// Dir returns the per-user state directory, ~/.hilbertmap.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hilbertmap"
	}
	return filepath.Join(home, ".hilbertmap")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns sensible defaults.
func Default() Config {
	dir := Dir()
	return Config{
		DBPath:   filepath.Join(dir, "hilbertmap.db"),
		HTTPAddr: "127.0.0.1:8650",
		LogLevel: "info",
		LogFile:  filepath.Join(dir, "tui.log"),
		Map: MapConfig{
			TopV4:      "0.0.0.0/0",
			TopV6:      "2000::/4",
			MaxExpand:  subnet.DefaultMaxExpand,
			MinLevel:   0,
			PromoteKey: "e",
			DemoteKey:  "q",
		},
		Import: ingestion.DefaultConfig(),
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// an empty path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HILBERTMAP_* variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that the map can be built and the importer can run.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalid)
	}
	if err := checkTop("top_v4", c.Map.TopV4, 4); err != nil {
		return err
	}
	if err := checkTop("top_v6", c.Map.TopV6, 6); err != nil {
		return err
	}
	if c.Map.MaxExpand < 2 || c.Map.MaxExpand > prefix.WidthV6 {
		return fmt.Errorf("%w: max_expand %d outside [2, %d]", ErrInvalid, c.Map.MaxExpand, prefix.WidthV6)
	}
	if c.Map.MinLevel < 0 || c.Map.MinLevel%2 != 0 {
		return fmt.Errorf("%w: min_level %d must be even and non-negative", ErrInvalid, c.Map.MinLevel)
	}
	if c.Map.PromoteKey == "" || c.Map.DemoteKey == "" || c.Map.PromoteKey == c.Map.DemoteKey {
		return fmt.Errorf("%w: promote_key and demote_key must be distinct and set", ErrInvalid)
	}
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("%w: import.batch_size must be positive", ErrInvalid)
	}
	if c.Import.FlushInterval <= 0 {
		return fmt.Errorf("%w: import.flush_interval must be positive", ErrInvalid)
	}
	if c.Import.Workers < 0 {
		return fmt.Errorf("%w: import.workers must not be negative", ErrInvalid)
	}
	return nil
}

func checkTop(field, s string, family int) error {
	p, err := prefix.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	if p.Family() != family {
		return fmt.Errorf("%w: %s %s is not IPv%d", ErrInvalid, field, p, family)
	}
	if p.Bits()%2 != 0 {
		return fmt.Errorf("%w: %s %s has an odd prefix length", ErrInvalid, field, p)
	}
	return nil
}

// Top returns the parsed top prefix for family 4 or 6.
func (m MapConfig) Top(family int) (prefix.Prefix, error) {
	s := m.TopV4
	if family == 6 {
		s = m.TopV6
	}
	return prefix.Parse(s)
}
