// Package config loads the lending engine configuration from TOML or YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config captures the deployment settings of a lending engine.
type Config struct {
	// ProgramID is the base58 identifier that owns every market.
	ProgramID string `toml:"ProgramID" yaml:"program_id"`
	// QuoteCurrency names the currency prices are quoted in. At most 32
	// ASCII bytes; shorter values are NUL padded.
	QuoteCurrency string        `toml:"QuoteCurrency" yaml:"quote_currency"`
	SlotsPerYear  uint64        `toml:"SlotsPerYear" yaml:"slots_per_year"`
	Logging       LoggingConfig `toml:"logging" yaml:"logging"`
	Storage       StorageConfig `toml:"storage" yaml:"storage"`
}

// LoggingConfig selects the structured logger settings.
type LoggingConfig struct {
	Service string `toml:"Service" yaml:"service"`
	Env     string `toml:"Env" yaml:"env"`
	Level   string `toml:"Level" yaml:"level"`
	// File, when set, receives a rotated copy of every log line.
	File string `toml:"File" yaml:"file"`
}

// StorageConfig selects the record database.
type StorageConfig struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// Load reads the configuration at path. Files ending in .toml are parsed as
// TOML, .yaml and .yml as YAML.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
