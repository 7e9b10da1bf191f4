// Package config loads the settings of the larkrt command from a TOML or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of the larkrt command. A zero value of a field means the default.
type Config struct {
	// Grammar is the path of a compiled grammar (JSON, or binary when the extension is .bin).
	Grammar            string       `toml:"grammar" yaml:"grammar"`
	Start              string       `toml:"start" yaml:"start"`
	Lexer              string       `toml:"lexer" yaml:"lexer"`
	PropagatePositions bool         `toml:"propagate_positions" yaml:"propagate_positions"`
	Recovery           bool         `toml:"recovery" yaml:"recovery"`
	Output             OutputConfig `toml:"output" yaml:"output"`
	Log                LogConfig    `toml:"log" yaml:"log"`
}

type OutputConfig struct {
	// Format is one of tree, json, or sexp.
	Format string `toml:"format" yaml:"format"`
	Width  int    `toml:"width" yaml:"width"`
}

type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

const (
	OutputFormatTree = "tree"
	OutputFormatJSON = "json"
	OutputFormatSexp = "sexp"

	defaultWidth = 80
)

// Default returns the settings used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a file. The format is chosen by the extension: .toml, or .yaml/.yml. Environment variables
// in the file are expanded before decoding.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	expanded := os.ExpandEnv(string(src))

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(expanded, &c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %v (.toml, .yaml, or .yml is required)", ext)
	}

	// A relative grammar path is relative to the config file.
	if c.Grammar != "" && !filepath.IsAbs(c.Grammar) {
		c.Grammar = filepath.Join(filepath.Dir(path), c.Grammar)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Output.Format == "" {
		c.Output.Format = OutputFormatTree
	}
	if c.Output.Width == 0 {
		c.Output.Width = defaultWidth
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Lexer {
	case "", "basic", "contextual", "auto":
	default:
		return fmt.Errorf("invalid lexer: %v (basic, contextual, or auto is required)", c.Lexer)
	}
	switch c.Output.Format {
	case OutputFormatTree, OutputFormatJSON, OutputFormatSexp:
	default:
		return fmt.Errorf("invalid output format: %v (tree, json, or sexp is required)", c.Output.Format)
	}
	if c.Output.Width < 0 {
		return fmt.Errorf("output width must be positive: %v", c.Output.Width)
	}
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log verbosity must not be negative: %v", c.Log.Verbosity)
	}
	return nil
}
