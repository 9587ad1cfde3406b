// Package config loads AcornDB node configuration from a YAML file and
// environment variables, with environment taking precedence over file
// values, and file values taking precedence over built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds one node's runtime configuration.
type Config struct {
	// Port is the HTTP server port exposing the Grove surface.
	Port int `yaml:"port"`
	// DiscoveryPort is the UDP port Canopy broadcasts and listens on.
	DiscoveryPort int `yaml:"discovery_port"`
	// AutoConnect entangles against newly discovered peers automatically.
	AutoConnect bool `yaml:"auto_connect"`
	// StoragePath is the root directory file-backed trunks persist under.
	StoragePath string `yaml:"storage_path"`
}

// Default returns the built-in configuration baseline.
func Default() Config {
	return Config{
		Port:          5000,
		DiscoveryPort: 50505,
		AutoConnect:   true,
		StoragePath:   "./data",
	}
}

// Load builds a Config starting from Default, overlaying path's YAML
// contents (if path is non-empty and the file exists), then overlaying
// recognized ACORN_* environment variables. A missing path is not an
// error — env and defaults still apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("ACORN_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ACORN_PORT: %w", err)
		}
		cfg.Port = port
	}

	if v, ok := os.LookupEnv("ACORN_DISCOVERY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ACORN_DISCOVERY_PORT: %w", err)
		}
		cfg.DiscoveryPort = port
	}

	if v, ok := os.LookupEnv("ACORN_AUTO_CONNECT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: ACORN_AUTO_CONNECT: %w", err)
		}
		cfg.AutoConnect = b
	}

	if v, ok := os.LookupEnv("ACORN_STORAGE_PATH"); ok {
		cfg.StoragePath = v
	}

	return nil
}
