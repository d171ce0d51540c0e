// Package config loads heapref settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/utils"
)

// EnvVar names the environment variable that points at a config file
const EnvVar = "HEAPREF_CONFIG"

type Config struct {
	Tree    TreeConfig    `toml:"tree"`
	Strings StringsConfig `toml:"strings"`
	Log     LogConfig     `toml:"log"`
	Parser  ParserConfig  `toml:"parser"`

	// Path is the file the config was read from, empty for defaults
	Path string `toml:"-"`
}

// TreeConfig limits text rendering of the referrer tree
type TreeConfig struct {
	MaxDepth    int `toml:"max_depth"`
	MaxChildren int `toml:"max_children"`
}

type StringsConfig struct {
	Top      int    `toml:"top"`
	MinCount int    `toml:"min_count"`
	MinWaste string `toml:"min_waste"` // e.g. "1K"; entries wasting less are hidden
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type ParserConfig struct {
	// Debug writes a record trace to <dump>.debug
	Debug bool `toml:"debug"`
}

func Default() *Config {
	return &Config{
		Tree:    TreeConfig{MaxDepth: 8, MaxChildren: 20},
		Strings: StringsConfig{Top: 25, MinCount: 2, MinWaste: "0B"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads the config file at path, or the first file found on the search
// path when path is empty. Missing search path files yield the defaults; a
// missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = searchPath()
	}
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// searchPath returns $HEAPREF_CONFIG, else the XDG config file
func searchPath() string {
	if p := os.Getenv(EnvVar); p != "" {
		return p
	}

	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "heapref", "config.toml")
}

func (c *Config) Validate() error {
	if c.Tree.MaxDepth <= 0 {
		return fmt.Errorf("tree.max_depth must be positive, got %d", c.Tree.MaxDepth)
	}
	if c.Tree.MaxChildren <= 0 {
		return fmt.Errorf("tree.max_children must be positive, got %d", c.Tree.MaxChildren)
	}
	if c.Strings.Top <= 0 {
		return fmt.Errorf("strings.top must be positive, got %d", c.Strings.Top)
	}
	if c.Strings.MinCount <= 0 {
		return fmt.Errorf("strings.min_count must be positive, got %d", c.Strings.MinCount)
	}
	if _, err := c.MinWaste(); err != nil {
		return fmt.Errorf("strings.min_waste: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// MinWaste parses strings.min_waste
func (c *Config) MinWaste() (utils.MemorySize, error) {
	if c.Strings.MinWaste == "" {
		return 0, nil
	}
	return utils.ParseMemorySize(c.Strings.MinWaste)
}

func (c *Config) LogLevel() (log.Level, error) {
	if c.Log.Level == "" {
		return log.InfoLevel, nil
	}
	return log.ParseLevel(c.Log.Level)
}
