package pipeline_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/weather-pipeline/internal/domain"
	"github.com/couchcryptid/weather-pipeline/internal/store"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func testObservation(city, batchID string) domain.Observation {
	return domain.Observation{
		City:          strp(city),
		LocalTime:     strp("2026-08-25 14:30"),
		LastUpdated:   strp("2026-08-25 14:15"),
		TemperatureC:  strp("21.4"),
		ConditionDesc: strp("Sunny"),
		WindKPH:       strp("15.1"),
		WindDir:       strp("WSW"),
		PressureMB:    strp("1013.0"),
		PrecipMM:      strp("0.0"),
		Humidity:      strp("63"),
		FeelslikeC:    strp("21.4"),
		WindchillC:    strp("20.9"),
		DewpointC:     strp("14.2"),
		GustKPH:       strp("22.3"),
		BatchID:       batchID,
	}
}

func openWarehouse(t *testing.T) *store.Warehouse {
	t.Helper()
	w, err := store.Open(filepath.Join(t.TempDir(), "weather.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

// rawDocument builds a well-formed current-conditions payload for a city.
func rawDocument(city string) []byte {
	return []byte(fmt.Sprintf(`{
		"location": {"name": %q, "localtime": "2026-08-25 14:30"},
		"current": {
			"last_updated": "2026-08-25 14:15",
			"temp_c": 21.4,
			"condition": {"text": "Sunny"},
			"wind_kph": 15.1,
			"wind_dir": "WSW",
			"pressure_mb": 1013.0,
			"precip_mm": 0.0,
			"humidity": 63,
			"feelslike_c": 21.4,
			"windchill_c": 20.9,
			"dewpoint_c": 14.2,
			"gust_kph": 22.3
		}
	}`, city))
}
