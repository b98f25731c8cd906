package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/weather-pipeline/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WEATHER_DB_PATH", "RAW_DATA_DIR", "REPORTS_DIR", "LOG_LEVEL", "LOG_FORMAT",
		"WEATHER_API_KEY", "WEATHER_API_BASE_URL", "WEATHER_API_TIMEOUT", "CITIES_FILE",
		"KAFKA_BROKERS", "KAFKA_QUALITY_TOPIC", "PUSHGATEWAY_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "db/weather.db", cfg.DBPath)
	assert.Equal(t, "data/raw", cfg.RawDataDir)
	assert.Equal(t, "reports", cfg.ReportsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "https://api.weatherapi.com/v1", cfg.WeatherAPIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.WeatherAPITimeout)
	assert.Equal(t, "config/cities.yaml", cfg.CitiesFile)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_CustomEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_DB_PATH", "/tmp/w.db")
	t.Setenv("WEATHER_API_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/w.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.WeatherAPITimeout)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "weather-quality-events", cfg.KafkaQualityTopic)
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
}

func TestLoad_InvalidTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_TIMEOUT", "soon")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_NegativeTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHER_API_TIMEOUT", "-1s")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestDerivedDirs(t *testing.T) {
	cfg := &config.Config{ReportsDir: "reports"}

	assert.Equal(t, filepath.Join("reports", "quality"), cfg.QualityReportDir())
	assert.Equal(t, filepath.Join("reports", "flags"), cfg.FlagDir())
}

func TestValidateIngest(t *testing.T) {
	cfg := &config.Config{}
	assert.Error(t, cfg.ValidateIngest())

	cfg.WeatherAPIKey = "key"
	assert.NoError(t, cfg.ValidateIngest())
}

func TestCities(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid roster", func(t *testing.T) {
		path := filepath.Join(dir, "cities.yaml")
		roster := `cities:
  - name: nyc
    query: "40.7128,-74.0060"
  - name: london
    query: "51.5074,-0.1278"
`
		require.NoError(t, os.WriteFile(path, []byte(roster), 0o644))

		cities, err := (&config.Config{CitiesFile: path}).Cities()
		require.NoError(t, err)
		require.Len(t, cities, 2)
		assert.Equal(t, config.City{Name: "nyc", Query: "40.7128,-74.0060"}, cities[0])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := (&config.Config{CitiesFile: filepath.Join(dir, "nope.yaml")}).Cities()
		assert.Error(t, err)
	})

	t.Run("empty roster", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cities: []\n"), 0o644))

		_, err := (&config.Config{CitiesFile: path}).Cities()
		assert.Error(t, err)
	})

	t.Run("entry missing query", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cities:\n  - name: nyc\n"), 0o644))

		_, err := (&config.Config{CitiesFile: path}).Cities()
		assert.Error(t, err)
	})
}
