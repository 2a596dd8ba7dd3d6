package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// defaultHTTPTimeout bounds remote dataset retrieval when ingest.http_timeout is not
// set.
const defaultHTTPTimeout = 60 * time.Second

// Config represents the entire application configuration.
type Config struct {
	DatabasePath string       `yaml:"database_path"`
	SQLDir       string       `yaml:"sql_dir"`
	LogLevelStr  string       `yaml:"log_level"`
	Web          WebConfig    `yaml:"web"`
	Ingest       IngestConfig `yaml:"ingest"`
	Watch        WatchConfig  `yaml:"watch"`
	LogLevel     slog.Level   // Parsed from LogLevelStr
}

// WebConfig holds settings specific to the web server.
type WebConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	HTTPTimeoutStr   string        `yaml:"http_timeout"`
	RecordFailedRows bool          `yaml:"record_failed_rows"`
	HTTPTimeout      time.Duration // Parsed from HTTPTimeoutStr
}

// WatchConfig holds settings for the inbox directory watcher.
type WatchConfig struct {
	Dir          string   `yaml:"dir"`
	ProcessedDir string   `yaml:"processed_dir"`
	Suffixes     []string `yaml:"suffixes"`
}

// Load loads and validates the configuration from the given file path.
func Load(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", filePath)
	}

	configFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(configFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse YAML config file: %w", err)
	}

	if err := validateAndPrepare(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateAndPrepare checks for required fields and sets up derived values.
func validateAndPrepare(c *Config) error {
	// General
	if c.DatabasePath == "" {
		return errors.New("database_path is missing")
	}
	if c.SQLDir != "" {
		if fi, err := os.Stat(c.SQLDir); err != nil || !fi.IsDir() {
			return fmt.Errorf("sql_dir %q is not a directory", c.SQLDir)
		}
	}
	if c.LogLevelStr == "" {
		c.LogLevelStr = "info"
	}
	if err := c.LogLevel.UnmarshalText([]byte(c.LogLevelStr)); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	// Web
	if c.Web.ListenAddress == "" {
		return errors.New("web.listen_address is missing")
	}

	// Ingest
	ic := &c.Ingest
	ic.HTTPTimeout = defaultHTTPTimeout
	if ic.HTTPTimeoutStr != "" {
		d, err := time.ParseDuration(ic.HTTPTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid ingest.http_timeout format: %w", err)
		}
		if d <= 0 {
			return errors.New("ingest.http_timeout must be positive")
		}
		ic.HTTPTimeout = d
	}

	// Watch
	wc := &c.Watch
	if wc.Dir == "" {
		return nil
	}
	if wc.ProcessedDir == "" {
		return errors.New("watch.processed_dir is missing")
	}
	if wc.ProcessedDir == wc.Dir {
		return errors.New("watch.processed_dir must differ from watch.dir")
	}
	if len(wc.Suffixes) == 0 {
		wc.Suffixes = []string{".csv"}
	}
	for i, s := range wc.Suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return errors.New("watch.suffixes contains an empty suffix")
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		wc.Suffixes[i] = s
	}
	return nil
}

// WatchEnabled reports whether an inbox directory is configured.
func (c *Config) WatchEnabled() bool {
	return c.Watch.Dir != ""
}
