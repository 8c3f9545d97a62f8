package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// File paths
	SourcesCSVPath string
	DBPath         string

	// Server settings
	ServerHost string
	ServerPort int
	APIKey     string

	// Collection settings
	WorkerCount int
	Interval    time.Duration

	// Log settings
	LogLevel zerolog.Level
}

// DefaultConfig returns an initial configuration with hardcoded defaults.
func DefaultConfig() *Config {
	logLevel, _ := zerolog.ParseLevel(DefaultLogLevel)

	return &Config{
		SourcesCSVPath: DefaultSourcesCSVPath,
		DBPath:         DefaultDBPath,
		ServerHost:     DefaultServerHost,
		ServerPort:     DefaultServerPort,
		APIKey:         GetEnvString("AIRQUALITY_API_KEY", ""),
		WorkerCount:    DefaultWorkerCount,
		Interval:       time.Duration(DefaultInterval) * time.Minute,
		LogLevel:       logLevel,
	}
}

// ListenAddr returns the formatted listen address for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
