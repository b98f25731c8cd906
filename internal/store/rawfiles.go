package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RawDocument is one raw per-city observation payload on disk.
type RawDocument struct {
	Path    string
	Payload []byte
}

// RawStore persists the raw JSON documents fetched by the ingest phase,
// one file per city per batch, named <city>_weather_<batch_id>.json.
type RawStore struct {
	dir string
}

// NewRawStore creates a raw document store rooted at dir.
func NewRawStore(dir string) *RawStore {
	return &RawStore{dir: dir}
}

// Save writes one raw document for a city and batch, creating the
// directory on first use. Returns the file path written.
func (s *RawStore) Save(city, batchID string, payload []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create raw data dir: %w", err)
	}
	name := fmt.Sprintf("%s_weather_%s.json", safeCityName(city), batchID)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write raw document: %w", err)
	}
	return path, nil
}

// ListBatch reads every raw document belonging to a batch, ordered by
// filename. An empty slice means no documents exist for the batch.
func (s *RawStore) ListBatch(batchID string) ([]RawDocument, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*_weather_"+batchID+".json"))
	if err != nil {
		return nil, fmt.Errorf("list raw documents: %w", err)
	}
	sort.Strings(matches)

	docs := make([]RawDocument, 0, len(matches))
	for _, path := range matches {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read raw document %s: %w", path, err)
		}
		docs = append(docs, RawDocument{Path: path, Payload: payload})
	}
	return docs, nil
}

// safeCityName lowercases a city name and replaces spaces so it is safe as
// a filename component.
func safeCityName(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "_")
}
