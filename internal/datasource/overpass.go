package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/MeKo-Tech/selectmap/internal/types"
)

// OverpassSource fetches building footprints for a bbox from the Overpass API.
type OverpassSource struct {
	client   overpass.Client
	endpoint string
	bbox     types.BoundingBox
	tileZoom int
	logger   *slog.Logger
}

// NewOverpassSource creates an Overpass building source.
func NewOverpassSource(endpoint string, bbox types.BoundingBox, httpClient *http.Client) *OverpassSource {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// Only 1 parallel request (API etiquette)
	client := overpass.NewWithSettings(endpoint, 1, httpClient)

	return &OverpassSource{
		client:   client,
		endpoint: endpoint,
		bbox:     bbox,
	}
}

// WithTileZoom splits the bbox into web mercator tiles at zoom, one query
// each. Zero disables splitting.
func (s *OverpassSource) WithTileZoom(zoom int) *OverpassSource {
	if zoom >= 0 && zoom <= 22 {
		s.tileZoom = zoom
	}
	return s
}

// WithLogger sets the logger for per-query progress.
func (s *OverpassSource) WithLogger(logger *slog.Logger) *OverpassSource {
	s.logger = logger
	return s
}

// Load queries every tile of the bbox and merges the buildings.
func (s *OverpassSource) Load(ctx context.Context) (*geojson.FeatureCollection, Stats, error) {
	start := time.Now()
	stats := Stats{Source: s.endpoint}

	boxes := []types.BoundingBox{s.bbox}
	if s.tileZoom > 0 {
		tiles := s.bbox.Tiles(maptile.Zoom(s.tileZoom))
		boxes = make([]types.BoundingBox, len(tiles))
		for i, t := range tiles {
			boxes[i] = s.bbox.TileBox(t)
		}
	}

	merged := &overpass.Result{
		Ways:      map[int64]*overpass.Way{},
		Relations: map[int64]*overpass.Relation{},
	}

	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		queryStart := time.Now()
		// Query does not take a context.
		result, err := s.client.Query(buildBuildingQuery(box))
		if err != nil {
			return nil, stats, fmt.Errorf("overpass query failed: %w", err)
		}

		for id, way := range result.Ways {
			merged.Ways[id] = way
		}
		for id, rel := range result.Relations {
			merged.Relations[id] = rel
		}

		s.log().Debug("overpass query completed",
			"query", i+1,
			"queries", len(boxes),
			"bbox", box.String(),
			"ways", len(result.Ways),
			"relations", len(result.Relations),
			"duration_ms", time.Since(queryStart).Milliseconds(),
		)
	}

	fc := ExtractBuildings(merged)
	stats.Features = len(fc.Features)
	stats.Duration = time.Since(start)
	return fc, stats, nil
}

// buildBuildingQuery uses per-element bbox filters so "out geom" returns
// complete footprints of buildings crossing the box edge.
func buildBuildingQuery(bounds types.BoundingBox) string {
	bbox := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon)
	return fmt.Sprintf(`
[out:json][timeout:90];
(
  way["building"](%s);
  relation["building"]["type"="multipolygon"](%s);
);
out geom;
`, bbox, bbox)
}

func (s *OverpassSource) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// OverpassJSONSource reads a saved Overpass JSON response.
type OverpassJSONSource struct {
	location string
	client   *http.Client
}

// NewOverpassJSONSource creates a source for a saved Overpass response.
func NewOverpassJSONSource(location string, client *http.Client) *OverpassJSONSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &OverpassJSONSource{location: location, client: client}
}

// Load reads the response and extracts its buildings.
func (s *OverpassJSONSource) Load(ctx context.Context) (*geojson.FeatureCollection, Stats, error) {
	start := time.Now()
	stats := Stats{Source: s.location}

	data, err := readLocation(ctx, s.client, s.location)
	if err != nil {
		return nil, stats, err
	}
	stats.Bytes = int64(len(data))

	result, err := UnmarshalOverpassJSON(data)
	if err != nil {
		return nil, stats, err
	}

	fc := ExtractBuildings(result)
	stats.Features = len(fc.Features)
	stats.Duration = time.Since(start)
	return fc, stats, nil
}
