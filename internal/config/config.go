// Package config provides the injected tool configuration for flamerun.
//
// Every external collaborator (the sampler and the flamegraph
// toolchain) is reached through paths carried here, so tests can
// substitute stub executables without touching the controller.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the per-user config directory under $HOME.
const DefaultDir = ".flamerun"

// ConfigFile is the config file name inside DefaultDir.
const ConfigFile = "config.yaml"

// Config holds the external tool paths and capture settings.
type Config struct {
	// SamplerPath is the perf-style sampling tool, resolved on PATH
	// unless given as an absolute path.
	SamplerPath string `yaml:"sampler_path" env:"FLAMERUN_SAMPLER"`

	// CollapseToolPath folds the textual event script into
	// one-line-per-stack counts (stackcollapse-perf.pl).
	CollapseToolPath string `yaml:"collapse_tool" env:"FLAMERUN_COLLAPSE_TOOL"`

	// RenderToolPath renders folded stacks into an SVG (flamegraph.pl).
	RenderToolPath string `yaml:"render_tool" env:"FLAMERUN_RENDER_TOOL"`

	// OutputDir receives the raw samples and the three pipeline
	// artifacts for every session.
	OutputDir string `yaml:"output_dir" env:"FLAMERUN_OUTPUT_DIR"`

	// CaptureFrequency is the stack sampling frequency in Hz.
	CaptureFrequency int `yaml:"capture_frequency" env:"FLAMERUN_FREQUENCY"`

	// LogLevel sets the zerolog level (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level" env:"FLAMERUN_LOG_LEVEL"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SamplerPath:      "perf",
		CollapseToolPath: "/opt/FlameGraph/stackcollapse-perf.pl",
		RenderToolPath:   "/opt/FlameGraph/flamegraph.pl",
		OutputDir:        "/tmp/flamerun",
		CaptureFrequency: 99,
		LogLevel:         "info",
	}
}

// DefaultPath returns the path of the per-user config file, or an
// empty string when no home directory can be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultDir, ConfigFile)
}

// Load reads the config file at path, falling back to defaults when
// the file does not exist, then applies FLAMERUN_* environment
// overrides on top. An empty path means the per-user default location.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			//nolint:gosec // G304: Path is from trusted config location.
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := MergeFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return fmt.Errorf("no config path available")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
