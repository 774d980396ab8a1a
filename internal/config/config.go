// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=none error info debug"`

	Match   MatchConfig   `yaml:"match"`
	Batch   BatchConfig   `yaml:"batch"`
	Refresh RefreshConfig `yaml:"refresh"`

	// Metadata is passed to the query compiler for every query, e.g. the
	// default field ("df") used by bare terms.
	Metadata map[string]string `yaml:"metadata"`

	Source SourceConfig `yaml:"source" validate:"required"`
	Sinks  []SinkConfig `yaml:"sinks" validate:"min=1,dive"`
}

type MatchConfig struct {
	// Strategy is "simple" or "highlighting", selected once at startup.
	Strategy string `yaml:"strategy" validate:"omitempty,oneof=simple highlighting"`
	Workers  int    `yaml:"workers" validate:"min=1"`
}

// Defaults are applied before decoding, so a zero here can only come from
// an explicit bad value in the file; "omitempty" would wave it through and
// the engine's flush ticker cannot run on a non-positive interval.
type BatchConfig struct {
	// MaxDocs flushes a batch when this many documents are buffered.
	MaxDocs int `yaml:"max_docs" validate:"min=1"`
	// FlushIntervalMs flushes whatever is buffered, even a lone document.
	FlushIntervalMs int `yaml:"flush_interval_ms" validate:"min=1"`
}

type RefreshConfig struct {
	Hour int `yaml:"hour" validate:"min=0,max=23"`
	Min  int `yaml:"min" validate:"min=0,max=59"`
	Sec  int `yaml:"sec" validate:"min=0,max=59"`
}

type SourceConfig struct {
	Kind string `yaml:"kind" validate:"required"`
	// Watch re-reads the corpus automatically when the backing query file
	// changes. Only meaningful for the file source.
	Watch   bool              `yaml:"watch"`
	Options map[string]string `yaml:"options"`
}

type SinkConfig struct {
	Kind    string            `yaml:"kind" validate:"required"`
	Options map[string]string `yaml:"options"`
}

func defaults() Config {
	return Config{
		Port:     7113,
		LogLevel: "info",
		Match:    MatchConfig{Strategy: "simple", Workers: 4},
		Batch:    BatchConfig{MaxDocs: 64, FlushIntervalMs: 2000},
		Refresh:  RefreshConfig{Hour: 3},
	}
}

// Load reads, decodes and validates the config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML document over the built-in defaults.
func Parse(raw []byte) (Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "config is not valid YAML")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

func (b BatchConfig) FlushInterval() time.Duration {
	return time.Duration(b.FlushIntervalMs) * time.Millisecond
}
