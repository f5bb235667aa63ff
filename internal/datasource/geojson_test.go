package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/selectmap/internal/types"
)

const sampleCollection = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "id": 7, "properties": {"building": "house"},
		 "geometry": {"type": "Polygon", "coordinates": [[[18,59],[18.001,59],[18.001,59.001],[18,59.001],[18,59]]]}},
		{"type": "Feature", "properties": {"name": "bad"},
		 "geometry": {"type": "Circle", "coordinates": [18, 59]}},
		{"type": "Feature", "properties": null, "geometry": null},
		{"type": "Feature", "properties": {"osm_id": "way/9"},
		 "geometry": {"type": "Point", "coordinates": [18.0005, 59.0005]}}
	]
}`

func TestDecodeFeatureCollectionSkipsBadFeatures(t *testing.T) {
	fc, skipped, err := DecodeFeatureCollection([]byte(sampleCollection))
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Len(t, fc.Features, 3)

	require.Equal(t, float64(7), fc.Features[0].ID)
	require.IsType(t, orb.Polygon{}, fc.Features[0].Geometry)
	require.Nil(t, fc.Features[1].Geometry)
	require.NotNil(t, fc.Features[1].Properties)
	require.Equal(t, orb.Point{18.0005, 59.0005}, fc.Features[2].Geometry)
}

func TestDecodeFeatureCollectionErrors(t *testing.T) {
	_, _, err := DecodeFeatureCollection([]byte(`{"type":`))
	require.Error(t, err)

	_, _, err = DecodeFeatureCollection([]byte(`{"type":"Feature"}`))
	require.Error(t, err)
}

func TestGeoJSONSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildings.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleCollection), 0o644))

	for _, location := range []string{path, "file://" + path} {
		fc, stats, err := NewGeoJSONSource(location, nil).Load(context.Background())
		require.NoError(t, err)
		require.Len(t, fc.Features, 3)
		require.Equal(t, 3, stats.Features)
		require.Equal(t, 1, stats.Skipped)
		require.Equal(t, int64(len(sampleCollection)), stats.Bytes)
	}

	_, _, err := NewGeoJSONSource(filepath.Join(t.TempDir(), "missing.geojson"), nil).Load(context.Background())
	require.Error(t, err)
}

func TestGeoJSONSourceFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/buildings.geojson":
			w.Header().Set("Content-Type", "application/geo+json")
			_, _ = w.Write([]byte(sampleCollection))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fc, _, err := NewGeoJSONSource(srv.URL+"/buildings.geojson", srv.Client()).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	_, _, err = NewGeoJSONSource(srv.URL+"/missing", srv.Client()).Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 404")
}

func TestNewSource(t *testing.T) {
	bbox := types.BoundingBox{MinLon: 18, MinLat: 59, MaxLon: 18.1, MaxLat: 59.1}

	s, err := New(Config{Kind: KindGeoJSON, URL: "buildings.geojson"})
	require.NoError(t, err)
	require.IsType(t, &GeoJSONSource{}, s)

	s, err = New(Config{Kind: KindOverpass, BBox: bbox, TileZoom: 14})
	require.NoError(t, err)
	require.IsType(t, &OverpassSource{}, s)

	s, err = New(Config{Kind: KindOverpassJSON, URL: "dump.json"})
	require.NoError(t, err)
	require.IsType(t, &OverpassJSONSource{}, s)

	_, err = New(Config{Kind: KindGeoJSON})
	require.Error(t, err)

	_, err = New(Config{Kind: KindOverpass})
	require.Error(t, err)

	_, err = New(Config{Kind: "shapefile", URL: "x"})
	require.Error(t, err)
}
