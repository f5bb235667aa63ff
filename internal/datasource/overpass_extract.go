package datasource

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// UnmarshalOverpassJSON decodes an Overpass API JSON response into an overpass.Result.
func UnmarshalOverpassJSON(data []byte) (*overpass.Result, error) {
	var result overpass.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overpass json: %w", err)
	}
	return &result, nil
}

// ExtractBuildings converts the building ways and multipolygon relations of
// result into polygon features. Ways come first, then relations, each
// ordered by OSM id.
func ExtractBuildings(result *overpass.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if result == nil {
		return fc
	}

	// Member ways of building multipolygons are emitted as part of the relation.
	memberWayIDs := make(map[int64]bool)
	for _, rel := range result.Relations {
		if rel == nil || rel.Tags["type"] != "multipolygon" || !isBuilding(rel.Tags) {
			continue
		}
		for _, member := range rel.Members {
			if member.Type == "way" && member.Way != nil {
				memberWayIDs[member.Way.ID] = true
			}
		}
	}

	for _, id := range sortedKeys(result.Ways) {
		way := result.Ways[id]
		if way == nil || memberWayIDs[way.ID] || !isBuilding(way.Tags) {
			continue
		}
		if f := convertWayToFeature(way); f != nil {
			fc.Append(f)
		}
	}

	for _, id := range sortedKeys(result.Relations) {
		rel := result.Relations[id]
		if rel == nil || rel.Tags["type"] != "multipolygon" || !isBuilding(rel.Tags) {
			continue
		}
		if f := convertMultipolygonRelationToFeature(rel); f != nil {
			fc.Append(f)
		}
	}

	return fc
}

// convertWayToFeature keeps only closed ways; an open building outline has
// no footprint.
func convertWayToFeature(way *overpass.Way) *geojson.Feature {
	if len(way.Geometry) < 4 {
		return nil
	}

	ring := make(orb.Ring, len(way.Geometry))
	for i, point := range way.Geometry {
		ring[i] = orb.Point{point.Lon, point.Lat}
	}
	if ring[0] != ring[len(ring)-1] {
		return nil
	}

	f := geojson.NewFeature(orb.Polygon{ring})
	f.ID = fmt.Sprintf("way/%d", way.ID)
	f.Properties = convertTags(way.Tags)
	return f
}

// convertMultipolygonRelationToFeature assembles a relation from its
// embedded member ways. Inner rings are attached to the outer ring that
// contains their first vertex.
func convertMultipolygonRelationToFeature(rel *overpass.Relation) *geojson.Feature {
	var outerRings, innerRings []orb.Ring

	for _, member := range rel.Members {
		if member.Type != "way" || member.Way == nil || len(member.Way.Geometry) == 0 {
			continue
		}

		ring := make(orb.Ring, 0, len(member.Way.Geometry)+1)
		for _, point := range member.Way.Geometry {
			ring = append(ring, orb.Point{point.Lon, point.Lat})
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			continue
		}

		if member.Role == "inner" {
			innerRings = append(innerRings, ring)
		} else {
			outerRings = append(outerRings, ring)
		}
	}

	if len(outerRings) == 0 {
		return nil
	}

	polygons := make(orb.MultiPolygon, len(outerRings))
	for i, outer := range outerRings {
		polygons[i] = orb.Polygon{outer}
	}
	for _, inner := range innerRings {
		for i := range polygons {
			if planar.RingContains(polygons[i][0], inner[0]) {
				polygons[i] = append(polygons[i], inner)
				break
			}
		}
	}

	var geometry orb.Geometry = polygons
	if len(polygons) == 1 {
		geometry = polygons[0]
	}

	f := geojson.NewFeature(geometry)
	f.ID = fmt.Sprintf("relation/%d", rel.ID)
	f.Properties = convertTags(rel.Tags)
	return f
}

func isBuilding(tags map[string]string) bool {
	return tags["building"] != ""
}

// convertTags converts OSM tags to generic properties map
func convertTags(tags map[string]string) geojson.Properties {
	props := make(geojson.Properties, len(tags))
	for k, v := range tags {
		props[k] = v
	}
	return props
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
