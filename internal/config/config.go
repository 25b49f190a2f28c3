// Package config loads the run configuration of the thinker CLI.
//
// Configuration comes from a YAML file, then THINKER_* environment
// variables, then command-line flags, each overriding the one before.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the run configuration.
type Config struct {
	// Interval between ticks. Zero runs ticks back to back.
	Interval time.Duration `yaml:"interval"`

	// MaxTicks stops the run loop after this many ticks. Zero means the
	// scenario's own tick count.
	MaxTicks uint64 `yaml:"max_ticks"`

	// Database is the SQLite path runs are recorded to.
	Database string `yaml:"database"`

	// MetricsAddr is the listen address of the /metrics endpoint.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	Tracing Tracing `yaml:"tracing"`
}

// Tracing configures OpenTelemetry tick spans.
type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: "thinker.db",
		Tracing: Tracing{
			ServiceName: "thinker",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// ApplyDefaults fills zero fields from Default.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = def.Tracing.SampleRatio
	}
}

// Validate checks field ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be in [0, 1], got %v", c.Tracing.SampleRatio))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration file at path and applies environment
// overrides. An empty path yields the defaults with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from THINKER_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("THINKER_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("THINKER_INTERVAL: %w", err)
		}
		c.Interval = d
	}
	if v, ok := lookup("THINKER_MAX_TICKS"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("THINKER_MAX_TICKS: %w", err)
		}
		c.MaxTicks = n
	}
	if v, ok := lookup("THINKER_DB"); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup("THINKER_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup("THINKER_TRACING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("THINKER_TRACING: %w", err)
		}
		c.Tracing.Enabled = b
	}
	if v, ok := lookup("THINKER_TRACING_EXPORTER"); ok && v != "" {
		c.Tracing.Exporter = v
	}
	if v, ok := lookup("THINKER_TRACING_ENDPOINT"); ok && v != "" {
		c.Tracing.Endpoint = v
	}
	return nil
}
