package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RequiredFields lists every column a well-formed observation must carry,
// in canonical order. The order is load-bearing: duplicate detection, the
// warehouse column layout, and the quarantine export all iterate it.
var RequiredFields = []string{
	"city",
	"local_time",
	"last_updated",
	"temperature_c",
	"condition_desc",
	"wind_kph",
	"wind_dir",
	"pressure_mb",
	"precip_mm",
	"humidity",
	"feelslike_c",
	"windchill_c",
	"dewpoint_c",
	"gust_kph",
}

// Observation is one flat weather record as produced by the process phase.
// Fields are nullable text: the warehouse stores them as TEXT so the
// quality rules can flag values that are present but fail to parse.
type Observation struct {
	City          *string
	LocalTime     *string
	LastUpdated   *string
	TemperatureC  *string
	ConditionDesc *string
	WindKPH       *string
	WindDir       *string
	PressureMB    *string
	PrecipMM      *string
	Humidity      *string
	FeelslikeC    *string
	WindchillC    *string
	DewpointC     *string
	GustKPH       *string

	BatchID string
}

// Fields returns the required fields in the same order as RequiredFields.
func (o Observation) Fields() []*string {
	return []*string{
		o.City,
		o.LocalTime,
		o.LastUpdated,
		o.TemperatureC,
		o.ConditionDesc,
		o.WindKPH,
		o.WindDir,
		o.PressureMB,
		o.PrecipMM,
		o.Humidity,
		o.FeelslikeC,
		o.WindchillC,
		o.DewpointC,
		o.GustKPH,
	}
}

// Key serializes the required fields for duplicate detection. Absent
// fields get a dedicated marker so a nil field and an empty string never
// collide.
func (o Observation) Key() string {
	parts := make([]string, 0, len(RequiredFields))
	for _, f := range o.Fields() {
		if f == nil {
			parts = append(parts, "\x00")
			continue
		}
		parts = append(parts, *f)
	}
	return strings.Join(parts, "\x1f")
}

// ProjectRawObservation projects one raw current-conditions document into
// a flat Observation. Values are carried as text verbatim — numeric
// literals are preserved exactly via json.Number — because type judgements
// belong to the quality rules, not the projection. Only a document that is
// not JSON at all fails here.
func ProjectRawObservation(payload []byte, batchID string) (Observation, error) {
	var doc struct {
		Location map[string]any `json:"location"`
		Current  map[string]any `json:"current"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Observation{}, fmt.Errorf("parse raw observation: %w", err)
	}

	condition, _ := doc.Current["condition"].(map[string]any)

	return Observation{
		City:          textField(doc.Location, "name"),
		LocalTime:     textField(doc.Location, "localtime"),
		LastUpdated:   textField(doc.Current, "last_updated"),
		TemperatureC:  textField(doc.Current, "temp_c"),
		ConditionDesc: textField(condition, "text"),
		WindKPH:       textField(doc.Current, "wind_kph"),
		WindDir:       textField(doc.Current, "wind_dir"),
		PressureMB:    textField(doc.Current, "pressure_mb"),
		PrecipMM:      textField(doc.Current, "precip_mm"),
		Humidity:      textField(doc.Current, "humidity"),
		FeelslikeC:    textField(doc.Current, "feelslike_c"),
		WindchillC:    textField(doc.Current, "windchill_c"),
		DewpointC:     textField(doc.Current, "dewpoint_c"),
		GustKPH:       textField(doc.Current, "gust_kph"),
		BatchID:       batchID,
	}, nil
}

// textField stringifies a JSON value, returning nil for absent or null keys.
func textField(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

// QualityEvent summarizes one quality-phase run for downstream alerting.
type QualityEvent struct {
	ID           string         `json:"id"`
	BatchID      string         `json:"batch_id"`
	Passed       bool           `json:"passed"`
	TotalRows    int            `json:"total_rows"`
	ValidRows    int            `json:"valid_rows"`
	InvalidRows  int            `json:"invalid_rows"`
	ReasonCounts map[Reason]int `json:"reason_counts,omitempty"`
	EmittedAt    time.Time      `json:"emitted_at"`
}
