package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONSource reads a FeatureCollection from a URL or a file.
type GeoJSONSource struct {
	location string
	client   *http.Client
}

// NewGeoJSONSource creates a source for location.
func NewGeoJSONSource(location string, client *http.Client) *GeoJSONSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeoJSONSource{location: location, client: client}
}

// Load fetches and decodes the collection.
func (s *GeoJSONSource) Load(ctx context.Context) (*geojson.FeatureCollection, Stats, error) {
	start := time.Now()
	stats := Stats{Source: s.location}

	data, err := readLocation(ctx, s.client, s.location)
	if err != nil {
		return nil, stats, err
	}
	stats.Bytes = int64(len(data))

	fc, skipped, err := DecodeFeatureCollection(data)
	if err != nil {
		return nil, stats, err
	}
	stats.Features = len(fc.Features)
	stats.Skipped = skipped
	stats.Duration = time.Since(start)

	return fc, stats, nil
}

// DecodeFeatureCollection decodes data feature by feature. Features that
// fail to decode are dropped and counted instead of failing the whole
// collection.
func DecodeFeatureCollection(data []byte) (*geojson.FeatureCollection, int, error) {
	var raw struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	if raw.Type != "FeatureCollection" {
		return nil, 0, fmt.Errorf("expected FeatureCollection, got %q", raw.Type)
	}

	fc := geojson.NewFeatureCollection()
	skipped := 0
	for _, msg := range raw.Features {
		f, err := geojson.UnmarshalFeature(msg)
		if err != nil || f == nil {
			skipped++
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		fc.Append(f)
	}

	return fc, skipped, nil
}
