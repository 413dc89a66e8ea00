// Package config provides configuration loading and management for nucleofind.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"nucleofind/internal/models"
	"nucleofind/pkg/errors"
	"nucleofind/pkg/tiling"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tiling parameters
	Tiling struct {
		// TileSize is the edge of the cube the model accepts
		TileSize int `yaml:"tileSize"`

		// Overlap is the stride between neighbouring tile origins; it must divide TileSize
		Overlap int `yaml:"overlap"`
	} `yaml:"tiling"`

	// Sampling parameters
	Sampling struct {
		// Spacing is the working grid spacing in Å
		Spacing float64 `yaml:"spacing"`

		// FullCell predicts over the whole unit cell instead of the asymmetric unit
		FullCell bool `yaml:"fullCell"`
	} `yaml:"sampling"`

	// Inference parameters
	Inference struct {
		// OutputMode is "raw" (class 1 probability) or "argmax"
		OutputMode string `yaml:"outputMode"`

		// Workers bounds concurrent model calls
		Workers int `yaml:"workers"`
	} `yaml:"inference"`

	// Input parameters
	Input struct {
		// NormalizeMaps rescales map inputs to zero mean and unit variance
		NormalizeMaps bool `yaml:"normalizeMaps"`

		// ResolutionCutoff is handed to the reflection loader when set
		ResolutionCutoff *float64 `yaml:"resolutionCutoff,omitempty"`

		// Columns names the amplitude and phase columns of reflection files.
		// Both empty means the loader's default.
		Columns struct {
			Amplitude string `yaml:"amplitude,omitempty"`
			Phase     string `yaml:"phase,omitempty"`
		} `yaml:"columns"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save slice previews of each stage
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where previews are written
		IntermediaryDir string `yaml:"intermediaryDir"`
	} `yaml:"output"`

	// Log parameters
	Log struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is "console" or "json"
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tiling.TileSize = tiling.DefaultTileSize
	cfg.Tiling.Overlap = tiling.DefaultOverlap

	cfg.Sampling.Spacing = 0.7
	cfg.Sampling.FullCell = false

	cfg.Inference.OutputMode = models.OutputRaw.String()
	cfg.Inference.Workers = runtime.NumCPU()

	cfg.Input.NormalizeMaps = true

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	return cfg
}

// Validate checks the values that the pipeline cannot recover from.
func (c *Config) Validate() error {
	if err := tiling.ValidateTiling(c.Tiling.TileSize, c.Tiling.Overlap); err != nil {
		return err
	}
	if c.Sampling.Spacing <= 0 {
		return errors.New(errors.KindInvalidConfig, "config", "sampling.spacing must be positive, got %g", c.Sampling.Spacing)
	}
	if _, err := models.ParseOutputMode(c.Inference.OutputMode); err != nil {
		return errors.Wrap(err, errors.KindInvalidConfig, "config", "inference.outputMode")
	}
	if c.Inference.Workers < 0 {
		return errors.New(errors.KindInvalidConfig, "config", "inference.workers must not be negative, got %d", c.Inference.Workers)
	}
	if r := c.Input.ResolutionCutoff; r != nil && *r <= 0 {
		return errors.New(errors.KindInvalidConfig, "config", "input.resolutionCutoff must be positive, got %g", *r)
	}
	if cols := c.Input.Columns; (cols.Amplitude == "") != (cols.Phase == "") {
		return errors.New(errors.KindInvalidConfig, "config", "input.columns needs both amplitude and phase, got %q and %q", cols.Amplitude, cols.Phase)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
