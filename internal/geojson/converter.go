// Package geojson renders selections, matched buildings and vehicle frames
// as GeoJSON feature collections for the named display sources.
package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/selectmap/internal/buildings"
	"github.com/MeKo-Tech/selectmap/internal/vehicles"
)

// SourceName identifies a display data source.
type SourceName string

const (
	SourceSelection SourceName = "selection-rectangle"
	SourceBuildings SourceName = "buildings-3d"
	SourceVehicles  SourceName = "bus-positions"
)

// Sources lists every named source.
func Sources() []SourceName {
	return []SourceName{SourceSelection, SourceBuildings, SourceVehicles}
}

// ParseSourceName validates a source name.
func ParseSourceName(s string) (SourceName, error) {
	for _, name := range Sources() {
		if string(name) == s {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// SelectionToGeoJSON returns the selection ring as a single polygon
// feature. A nil ring yields an empty collection.
func SelectionToGeoJSON(ring orb.Ring) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(ring) == 0 {
		return fc
	}
	fc.Append(geojson.NewFeature(orb.Polygon{ring}))
	return fc
}

// BuildingsToGeoJSON converts matched buildings, keyed by their stable id.
func BuildingsToGeoJSON(matched []buildings.Building) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range matched {
		if b.Feature == nil || b.Feature.Geometry == nil {
			continue
		}

		f := geojson.NewFeature(b.Feature.Geometry)
		f.ID = b.StableID
		f.Properties = b.Properties()
		fc.Append(f)
	}
	return fc
}

// PositionsToGeoJSON converts an animation frame to point features.
func PositionsToGeoJSON(positions []vehicles.Position) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range positions {
		f := geojson.NewFeature(p.Point())
		f.Properties["id"] = p.ID
		if p.RouteID != "" {
			f.Properties["routeId"] = p.RouteID
		}
		if p.TripID != "" {
			f.Properties["tripId"] = p.TripID
		}
		if p.Bearing != nil {
			f.Properties["bearing"] = *p.Bearing
		}
		if p.Speed != nil {
			f.Properties["speed"] = *p.Speed
		}
		fc.Append(f)
	}
	return fc
}

// ToGeoJSONBytes marshals a collection with indentation.
func ToGeoJSONBytes(fc *geojson.FeatureCollection) ([]byte, error) {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}
