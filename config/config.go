// Package config loads the engine's ambient settings -- listen
// address, buffer sizing, logging -- from a YAML file, the way
// StellarisJAY-redigo's config package does for its TCP server.
package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// Config is the engine's top-level configuration document.
type Config struct {
	Server ServerConfig `json:"server"`
	Log    LogConfig    `json:"log"`
}

// ServerConfig controls the listening server and its streams.
type ServerConfig struct {
	Address       string `json:"address"`
	Port          int    `json:"port"`
	ReadBufferLen int    `json:"readBufferLen"`
}

// LogConfig controls the slog handler set up at startup.
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:       "0.0.0.0",
			Port:          9000,
			ReadBufferLen: 4096,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default and overwriting whatever fields the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
