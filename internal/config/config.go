// Package config loads loader settings from a JSON, TOML or YAML file and
// merges them with command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatBinary = "binary"
	FormatJSON   = "json"
)

// Config holds package locations and output settings.
type Config struct {
	// Package lookup
	Packages        map[string]string `json:"packages" toml:"packages" yaml:"packages"`
	ROSPackagePath  []string          `json:"ros_package_path" toml:"ros_package_path" yaml:"ros_package_path"`
	AmentPrefixPath []string          `json:"ament_prefix_path" toml:"ament_prefix_path" yaml:"ament_prefix_path"`
	Xacro           string            `json:"xacro" toml:"xacro" yaml:"xacro"`

	// Output
	Format   string `json:"format" toml:"format" yaml:"format"`
	Connect  string `json:"connect" toml:"connect" yaml:"connect"`
	Manifest string `json:"manifest" toml:"manifest" yaml:"manifest"`

	// Processing
	KeepGoing       bool `json:"keep_going" toml:"keep_going" yaml:"keep_going"`
	ViewCoordinates bool `json:"view_coordinates" toml:"view_coordinates" yaml:"view_coordinates"`
	MaxTextureSize  int  `json:"max_texture_size" toml:"max_texture_size" yaml:"max_texture_size"`
	Workers         int  `json:"workers" toml:"workers" yaml:"workers"`
}

// Load reads a config file, choosing the decoder by extension.
// Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: expand %s: %w", path, err)
	}
	path = expanded
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("config: read %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// Package directories may be relative to the config file.
	dir := filepath.Dir(path)
	for name, p := range cfg.Packages {
		cfg.Packages[name] = absolute(p, dir)
	}
	for i, p := range cfg.ROSPackagePath {
		cfg.ROSPackagePath[i] = absolute(p, dir)
	}
	for i, p := range cfg.AmentPrefixPath {
		cfg.AmentPrefixPath[i] = absolute(p, dir)
	}
	return cfg, nil
}

func absolute(p, dir string) string {
	if expanded, err := homedir.Expand(p); err == nil {
		p = expanded
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Flags holds CLI flag values that override config file settings. Booleans
// can only switch a setting on.
type Flags struct {
	Format          string
	Connect         string
	Manifest        string
	Xacro           string
	KeepGoing       bool
	ViewCoordinates bool
	MaxTextureSize  int
	Workers         int
}

// Resolve applies flag overrides and fills in defaults.
func (c *Config) Resolve(flags Flags) error {
	// CLI flags override config file
	if flags.Format != "" {
		c.Format = flags.Format
	}
	if flags.Connect != "" {
		c.Connect = flags.Connect
	}
	if flags.Manifest != "" {
		c.Manifest = flags.Manifest
	}
	if flags.Xacro != "" {
		c.Xacro = flags.Xacro
	}
	if flags.KeepGoing {
		c.KeepGoing = true
	}
	if flags.ViewCoordinates {
		c.ViewCoordinates = true
	}
	if flags.MaxTextureSize > 0 {
		c.MaxTextureSize = flags.MaxTextureSize
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}

	// Defaults
	if c.Format == "" {
		c.Format = FormatBinary
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}

	switch c.Format {
	case FormatBinary, FormatJSON:
	default:
		return fmt.Errorf("config: unknown format %q", c.Format)
	}
	if c.MaxTextureSize < 0 {
		return fmt.Errorf("config: negative max texture size %d", c.MaxTextureSize)
	}
	return nil
}
