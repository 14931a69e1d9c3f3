// Package app assembles the runtime: configuration, the built-in service
// kinds and the process level context object.
package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/levelhost/internal/core/observability/log"
	"github.com/zeusync/levelhost/internal/core/services"
)

var ErrInvalidConfig = errors.New("app: invalid configuration")

type Config struct {
	LogLevel         string                `yaml:"log_level"`
	LogEncoding      string                `yaml:"log_encoding"`
	DisableLogging   bool                  `yaml:"disable_logging"`
	MetricsNamespace string                `yaml:"metrics_namespace"`
	StartupTimeout   time.Duration         `yaml:"startup_timeout"`
	ShutdownTimeout  time.Duration         `yaml:"shutdown_timeout"`
	Services         []services.Descriptor `yaml:"services"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		LogEncoding:      "json",
		MetricsNamespace: "levelhost",
		StartupTimeout:   30 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Load decodes a YAML configuration on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func LoadBytes(data []byte) (*Config, error) {
	return Load(bytes.NewReader(data))
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Validate checks what can be checked without creating any service: names
// are present and unique, kinds are known, log level parses.
func (c *Config) Validate(catalog *services.Catalog) error {
	var errs error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = errors.Join(errs, err)
	}
	if c.StartupTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = errors.Join(errs, errors.New("timeouts must not be negative"))
	}

	seen := make(map[string]bool, len(c.Services))
	for i, d := range c.Services {
		switch {
		case d.Name == "":
			errs = errors.Join(errs, fmt.Errorf("services[%d]: %w", i, services.ErrEmptyName))
		case seen[d.Name]:
			errs = errors.Join(errs, fmt.Errorf("services[%d]: %w: %s", i, services.ErrDuplicateService, d.Name))
		}
		seen[d.Name] = true

		if d.Create != nil {
			continue
		}
		if _, ok := catalog.Lookup(d.Kind); !ok {
			errs = errors.Join(errs, fmt.Errorf("services[%d] %s: %w: %q", i, d.Name, services.ErrUnknownKind, d.Kind))
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Configuration is the registry view of the config.
func (c *Config) Configuration() services.Configuration {
	return services.Configuration{
		Services:       c.Services,
		DisableLogging: c.DisableLogging,
	}
}
