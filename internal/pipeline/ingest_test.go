package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/weather-pipeline/internal/config"
	"github.com/couchcryptid/weather-pipeline/internal/pipeline"
	"github.com/couchcryptid/weather-pipeline/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockFetcher struct {
	payloads map[string][]byte // keyed by query
	errs     map[string]error
	calls    []string
}

func (m *mockFetcher) Current(_ context.Context, query string) ([]byte, error) {
	m.calls = append(m.calls, query)
	if err := m.errs[query]; err != nil {
		return nil, err
	}
	return m.payloads[query], nil
}

type blockingFetcher struct{}

func (blockingFetcher) Current(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func ingestConfig(t *testing.T) *config.Config {
	t.Helper()
	citiesFile := filepath.Join(t.TempDir(), "cities.yaml")
	roster := `cities:
  - name: nyc
    query: "40.7128,-74.0060"
  - name: london
    query: "51.5074,-0.1278"
`
	require.NoError(t, os.WriteFile(citiesFile, []byte(roster), 0o644))
	return &config.Config{
		WeatherAPIKey:     "test-key",
		WeatherAPIBaseURL: "https://api.weatherapi.com/v1",
		WeatherAPITimeout: 10 * time.Second,
		CitiesFile:        citiesFile,
	}
}

// --- tests ---

func TestIngestPhase_SavesOneDocumentPerCity(t *testing.T) {
	cfg := ingestConfig(t)
	raw := store.NewRawStore(t.TempDir())
	fetcher := &mockFetcher{payloads: map[string][]byte{
		"40.7128,-74.0060": rawDocument("New York"),
		"51.5074,-0.1278":  rawDocument("London"),
	}}

	p := pipeline.NewIngestPhase(fetcher, raw, cfg, discardLogger())
	res, err := p.Run(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsProcessed)

	docs, err := raw.ListBatch("b1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestIngestPhase_SkipsFailedCity(t *testing.T) {
	cfg := ingestConfig(t)
	raw := store.NewRawStore(t.TempDir())
	fetcher := &mockFetcher{
		payloads: map[string][]byte{"51.5074,-0.1278": rawDocument("London")},
		errs:     map[string]error{"40.7128,-74.0060": errors.New("503 from upstream")},
	}

	p := pipeline.NewIngestPhase(fetcher, raw, cfg, discardLogger())
	res, err := p.Run(context.Background(), "b1")
	require.NoError(t, err, "one failed city does not fail the batch")
	assert.Equal(t, 1, res.RowsProcessed)
	assert.Len(t, fetcher.calls, 2, "remaining cities are still attempted")
}

func TestIngestPhase_MissingAPIKeyIsFatal(t *testing.T) {
	cfg := ingestConfig(t)
	cfg.WeatherAPIKey = ""

	p := pipeline.NewIngestPhase(&mockFetcher{}, store.NewRawStore(t.TempDir()), cfg, discardLogger())
	_, err := p.Run(context.Background(), "b1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEATHER_API_KEY")
}

func TestIngestPhase_MissingCitiesFileIsFatal(t *testing.T) {
	cfg := ingestConfig(t)
	cfg.CitiesFile = filepath.Join(t.TempDir(), "nope.yaml")

	p := pipeline.NewIngestPhase(&mockFetcher{}, store.NewRawStore(t.TempDir()), cfg, discardLogger())
	_, err := p.Run(context.Background(), "b1")
	assert.Error(t, err)
}

func TestIngestPhase_CancelledContextAborts(t *testing.T) {
	cfg := ingestConfig(t)
	raw := store.NewRawStore(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := pipeline.NewIngestPhase(blockingFetcher{}, raw, cfg, discardLogger())
	_, err := p.Run(ctx, "b1")
	assert.ErrorIs(t, err, context.Canceled)
}
