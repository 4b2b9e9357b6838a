// Package config loads the YAML session configuration that drives one
// merge run: input/output directories, batch and chunk tunables, the
// timezone corrector's thresholds, and the warm-up prepass target.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sentinel errors so callers can branch with errors.Is.
var (
	ErrConfigParse = errors.New("invalid config content")
	ErrNoInputDir  = errors.New("config missing 'dir'")
	ErrNoOutputDir = errors.New("config missing 'outDir'")
)

const (
	// EnvConfigPath overrides the default config file lookup.
	EnvConfigPath = "LOGMERGE_CONFIG"

	// DefaultConfigDir is the directory under the user's home where the
	// config file is expected when no explicit path or env var is given.
	DefaultConfigDir = ".logmerge"

	// DefaultConfigFile is the config filename inside DefaultConfigDir.
	DefaultConfigFile = "config.yaml"
)

// WarmupConfig enables and tunes the warm-up fast path.
type WarmupConfig struct {
	Target       int `yaml:"target"`
	PerTypeLimit int `yaml:"perTypeLimit,omitempty"`
}

// SessionConfig is the on-disk shape of one merge session's configuration.
type SessionConfig struct {
	Dir    string `yaml:"dir"`
	OutDir string `yaml:"outDir"`

	BatchSize     int `yaml:"batchSize,omitempty"`
	ChunkMaxLines int `yaml:"chunkMaxLines,omitempty"`

	JumpThresholdMs int64 `yaml:"jumpThresholdMs,omitempty"`
	MinSuspectLines int   `yaml:"minSuspectLines,omitempty"`

	ProgressMinMs int `yaml:"progressMinMs,omitempty"`

	ParserTemplatePath string `yaml:"parserTemplatePath,omitempty"`

	Warmup *WarmupConfig `yaml:"warmup,omitempty"`
}

// ResolveConfigPath determines which config file to load, preferring an
// explicit path, then LOGMERGE_CONFIG, then the default
// ~/.logmerge/config.yaml.
func ResolveConfigPath(explicitPath string) (string, error) {
	if strings.TrimSpace(explicitPath) != "" {
		return explicitPath, nil
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve default path: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// Load reads and validates a SessionConfig from path.
func Load(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the minimal fields a session needs to start.
func (c *SessionConfig) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return ErrNoInputDir
	}
	if strings.TrimSpace(c.OutDir) == "" {
		return ErrNoOutputDir
	}
	return nil
}
