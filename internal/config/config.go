package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the console's own settings. It is read from a YAML file with a
// handful of flag overrides; the irrigation configuration being edited is a
// different thing entirely and lives on the device.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	DeviceURL             string `yaml:"device_url"`
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	ArchivePath           string `yaml:"archive_path"`
	BackupFile            string `yaml:"backup_file"`
	Timezone              string `yaml:"timezone"`
	NtfyTopic             string `yaml:"ntfy_topic"`

	LogLevelName string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`

	StatsdAddr      string   `yaml:"statsd_addr"`
	StatsdNamespace string   `yaml:"statsd_namespace"`
	StatsdTags      []string `yaml:"statsd_tags"`

	LogLevel zerolog.Level `yaml:"-"`
}

// Load parses flags and the config file. Flags win over file values; the
// file is optional so the console can run on -device alone.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		ListenAddr:            ":8080",
		PollIntervalSeconds:   10,
		RequestTimeoutSeconds: 10,
		ArchivePath:           "data/console.db",
		StatsdNamespace:       "irrigation_console.",
		LogLevelName:          "info",
	}

	fs := flag.NewFlagSet("irrigation-console", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to console config file (YAML)")
	device := fs.String("device", "", "Device base URL, e.g. http://192.168.1.50")
	listen := fs.String("listen", "", "Listen address for the editor UI")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		raw, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if *device != "" {
		cfg.DeviceURL = *device
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *logLevel != "" {
		cfg.LogLevelName = *logLevel
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if cfg.DeviceURL == "" {
		return nil, fmt.Errorf("device_url is required (set it in the config file or with -device)")
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 10
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 10
	}

	return cfg, nil
}

// Location resolves the configured timezone; empty means the host's local
// zone. Schedule expiry times are entered and shown in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
