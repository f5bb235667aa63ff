// Package datasource loads the static building dataset.
package datasource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/selectmap/internal/types"
)

// Source kinds.
const (
	KindGeoJSON      = "geojson"
	KindOverpass     = "overpass"
	KindOverpassJSON = "overpass-json"
)

// DefaultOverpassEndpoint is the public Overpass API instance.
const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// Stats describes one dataset load.
type Stats struct {
	Source   string        `json:"source"`
	Features int           `json:"features"`
	Skipped  int           `json:"skipped"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Source produces the building dataset.
type Source interface {
	Load(ctx context.Context) (*geojson.FeatureCollection, Stats, error)
}

// Config selects and configures a Source.
type Config struct {
	// Kind is one of KindGeoJSON, KindOverpass or KindOverpassJSON.
	Kind string
	// URL is an http(s) URL, a file:// URL or a local path.
	URL string
	// BBox limits Overpass queries.
	BBox types.BoundingBox
	// OverpassEndpoint overrides DefaultOverpassEndpoint.
	OverpassEndpoint string
	// TileZoom splits Overpass queries into web mercator tiles; 0 queries the whole box.
	TileZoom int
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New builds the Source described by cfg.
func New(cfg Config) (Source, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Kind {
	case "", KindGeoJSON:
		if cfg.URL == "" {
			return nil, fmt.Errorf("geojson source requires a URL or path")
		}
		return NewGeoJSONSource(cfg.URL, cfg.HTTPClient), nil
	case KindOverpass:
		if err := cfg.BBox.Validate(); err != nil {
			return nil, fmt.Errorf("overpass source requires a bbox: %w", err)
		}
		return NewOverpassSource(cfg.OverpassEndpoint, cfg.BBox, cfg.HTTPClient).
			WithTileZoom(cfg.TileZoom).
			WithLogger(cfg.Logger), nil
	case KindOverpassJSON:
		if cfg.URL == "" {
			return nil, fmt.Errorf("overpass-json source requires a URL or path")
		}
		return NewOverpassJSONSource(cfg.URL, cfg.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q", cfg.Kind)
	}
}

// readLocation returns the bytes behind an http(s) URL, file:// URL or path.
func readLocation(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, location)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return data, nil
	}

	path := strings.TrimPrefix(location, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
