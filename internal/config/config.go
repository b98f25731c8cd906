// Package config loads pipeline settings from environment variables and
// the city roster file used by the ingest phase.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	DBPath     string
	RawDataDir string
	ReportsDir string
	LogLevel   string
	LogFormat  string

	// Weather API settings, required by the ingest phase only.
	WeatherAPIKey     string
	WeatherAPIBaseURL string
	WeatherAPITimeout time.Duration
	CitiesFile        string

	// Optional quality-event emission.
	KafkaBrokers      []string
	KafkaQualityTopic string

	// Optional metrics push for short-lived phase processes.
	PushgatewayURL string
}

// City pairs a display name with the API location query. Queries are
// usually "lat,lon" coordinates: name lookups against the API are
// ambiguous for smaller cities.
type City struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	timeoutStr := envOrDefault("WEATHER_API_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil || timeout <= 0 {
		return nil, errors.New("invalid WEATHER_API_TIMEOUT")
	}

	cfg := &Config{
		DBPath:            envOrDefault("WEATHER_DB_PATH", "db/weather.db"),
		RawDataDir:        envOrDefault("RAW_DATA_DIR", "data/raw"),
		ReportsDir:        envOrDefault("REPORTS_DIR", "reports"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("LOG_FORMAT", "json"),
		WeatherAPIKey:     os.Getenv("WEATHER_API_KEY"),
		WeatherAPIBaseURL: envOrDefault("WEATHER_API_BASE_URL", "https://api.weatherapi.com/v1"),
		WeatherAPITimeout: timeout,
		CitiesFile:        envOrDefault("CITIES_FILE", "config/cities.yaml"),
		KafkaBrokers:      parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaQualityTopic: envOrDefault("KAFKA_QUALITY_TOPIC", "weather-quality-events"),
		PushgatewayURL:    os.Getenv("PUSHGATEWAY_URL"),
	}

	if cfg.DBPath == "" {
		return nil, errors.New("WEATHER_DB_PATH is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaQualityTopic == "" {
		return nil, errors.New("KAFKA_QUALITY_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// QualityReportDir is where advisory CSV snapshots of quarantined rows land.
func (c *Config) QualityReportDir() string {
	return filepath.Join(c.ReportsDir, "quality")
}

// FlagDir is where per-batch gate flags land.
func (c *Config) FlagDir() string {
	return filepath.Join(c.ReportsDir, "flags")
}

// KafkaEnabled reports whether quality events should be emitted.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ValidateIngest checks the settings only the ingest phase needs.
func (c *Config) ValidateIngest() error {
	if c.WeatherAPIKey == "" {
		return errors.New("WEATHER_API_KEY is required")
	}
	return nil
}

// Cities loads the ingest city roster from the configured YAML file.
func (c *Config) Cities() ([]City, error) {
	data, err := os.ReadFile(c.CitiesFile)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}
	var doc struct {
		Cities []City `yaml:"cities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cities file: %w", err)
	}
	if len(doc.Cities) == 0 {
		return nil, errors.New("cities file lists no cities")
	}
	for i, city := range doc.Cities {
		if city.Name == "" || city.Query == "" {
			return nil, fmt.Errorf("cities file entry %d is missing name or query", i)
		}
	}
	return doc.Cities, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
