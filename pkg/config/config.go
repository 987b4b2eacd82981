// Package config loads the runtime configuration: defaults, then the YAML
// file, then environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/your-org/logwarden/internal/model"
)

// ErrMissingConnectionString is reported when neither the configuration file
// nor the environment provides storage credentials. Callers treat it as a
// distinct fatal startup condition.
var ErrMissingConnectionString = errors.New("no storage connection string configured")

// Config captures the full runtime configuration of the pipeline.
type Config struct {
	LogLevel string         `yaml:"log_level" env:"LOGWARDEN_LOG_LEVEL"`
	Storage  StorageConfig  `yaml:"storage"`
	Polling  PollingConfig  `yaml:"polling"`
	Database DatabaseConfig `yaml:"database"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Rules    []model.Rule   `yaml:"rules"`
}

type StorageConfig struct {
	// ConnectionString is a semicolon-delimited endpoint/credential string;
	// see blobstore.ParseConnectionString for the format.
	ConnectionString string   `yaml:"connection_string" env:"LOGWARDEN_STORAGE_CONNECTION_STRING"`
	Containers       []string `yaml:"containers"`
}

type PollingConfig struct {
	// SinceMinutes is the recency window for candidate blobs. Objects older
	// than this are not considered even if unprocessed.
	SinceMinutes int `yaml:"since_minutes"`
	// IntervalSeconds is the sleep between cycles in continuous mode.
	IntervalSeconds int `yaml:"interval_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"LOGWARDEN_DATABASE_PATH"`
}

type AlertsConfig struct {
	Stdout  bool          `yaml:"stdout"`
	Webhook WebhookConfig `yaml:"webhook"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" env:"LOGWARDEN_ALERT_WEBHOOK_URL"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" env:"LOGWARDEN_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when the file and environment are
// silent on a key.
func Default() Config {
	return Config{
		LogLevel: "info",
		Polling: PollingConfig{
			SinceMinutes:    1440,
			IntervalSeconds: 60,
		},
		Database: DatabaseConfig{Path: "data/logwarden.db"},
		Alerts: AlertsConfig{
			Stdout: true,
			Kafka:  KafkaConfig{Topic: "logwarden.alerts"},
		},
		Tracing: TracingConfig{Insecure: true, SampleRatio: 1.0},
	}
}

// Load reads the YAML file at path (if path is non-empty) over the defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	return &cfg, nil
}

// Validate checks the keys without which no partial operation is attempted.
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return ErrMissingConnectionString
	}
	if c.Polling.IntervalSeconds <= 0 {
		return fmt.Errorf("polling.interval_seconds must be positive, got %d", c.Polling.IntervalSeconds)
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.enabled is set but alerts.webhook.url is empty")
	}
	if c.Alerts.Kafka.Enabled && len(c.Alerts.Kafka.Brokers) == 0 {
		return fmt.Errorf("alerts.kafka.enabled is set but alerts.kafka.brokers is empty")
	}
	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d] has no name", i)
		}
		if r.When.Contains != nil && r.When.Contains.Field == "" {
			return fmt.Errorf("rule %q has a contains clause with no field", r.Name)
		}
	}
	return nil
}
